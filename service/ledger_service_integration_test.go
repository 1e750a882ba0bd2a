package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bebewat/wrecksshop/events"
	"github.com/bebewat/wrecksshop/models"
	"github.com/bebewat/wrecksshop/repository"
	"github.com/bebewat/wrecksshop/repository/testutil"
	"github.com/bebewat/wrecksshop/service"
)

// TestLedgerService_Integration drives the full reserve/commit/release
// lifecycle against a real database and checks after every step that the
// cached balance equals the replayed entry sum.
func TestLedgerService_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	ledger := service.NewLedgerService(repository.NewUnitOfWorkFactory(testDB.DB, events.NewBus()))
	entries := repository.NewLedgerEntryRepository(testDB.DB)

	// requireConsistent fails unless the cached balance and the entry sum
	// agree on want.
	requireConsistent := func(t *testing.T, playerID string, want int64) {
		t.Helper()
		balance, err := ledger.GetBalance(ctx, playerID)
		require.NoError(t, err)
		sum, err := entries.SumByPlayer(ctx, playerID)
		require.NoError(t, err)
		assert.Equal(t, want, balance, "cached balance")
		assert.Equal(t, want, sum, "entry sum")
	}

	t.Run("purchase commits the held debit", func(t *testing.T) {
		playerID := "000266ef1a2b3c4d5e6f708192a3b4c5"

		_, err := ledger.Credit(ctx, playerID, 100, models.EntryReasonAdmin)
		require.NoError(t, err)
		requireConsistent(t, playerID, 100)

		token, err := ledger.Reserve(ctx, playerID, 40)
		require.NoError(t, err)
		requireConsistent(t, playerID, 60)

		require.NoError(t, ledger.CommitReservation(ctx, token))
		requireConsistent(t, playerID, 60)

		// A replayed commit changes nothing.
		require.NoError(t, ledger.CommitReservation(ctx, token))
		requireConsistent(t, playerID, 60)
	})

	t.Run("insufficient funds leave no trace", func(t *testing.T) {
		playerID := "aaaa266ef1a2b3c4d5e6f708192a3b4c"

		_, err := ledger.Credit(ctx, playerID, 10, models.EntryReasonAdmin)
		require.NoError(t, err)

		_, err = ledger.Reserve(ctx, playerID, 40)
		require.ErrorIs(t, err, service.ErrInsufficientBalance)
		requireConsistent(t, playerID, 10)

		history, err := entries.GetByPlayer(ctx, playerID, 10)
		require.NoError(t, err)
		assert.Len(t, history, 1, "only the funding credit may exist")
	})

	t.Run("released hold nets to zero", func(t *testing.T) {
		playerID := "bbbb266ef1a2b3c4d5e6f708192a3b4c"

		_, err := ledger.Credit(ctx, playerID, 100, models.EntryReasonAdmin)
		require.NoError(t, err)

		token, err := ledger.Reserve(ctx, playerID, 40)
		require.NoError(t, err)
		requireConsistent(t, playerID, 60)

		require.NoError(t, ledger.ReleaseReservation(ctx, token))
		requireConsistent(t, playerID, 100)

		// The reserve/release pair stays in the history as a zero-sum pair.
		history, err := entries.GetByPlayer(ctx, playerID, 10)
		require.NoError(t, err)
		assert.Len(t, history, 3)
	})

	t.Run("commit conflicts with an earlier release", func(t *testing.T) {
		playerID := "cccc266ef1a2b3c4d5e6f708192a3b4c"

		_, err := ledger.Credit(ctx, playerID, 100, models.EntryReasonAdmin)
		require.NoError(t, err)

		token, err := ledger.Reserve(ctx, playerID, 40)
		require.NoError(t, err)
		require.NoError(t, ledger.ReleaseReservation(ctx, token))

		err = ledger.CommitReservation(ctx, token)
		assert.ErrorIs(t, err, service.ErrReservationReleased)
		requireConsistent(t, playerID, 100)
	})

	t.Run("transfer keeps both sides consistent", func(t *testing.T) {
		fromID := "dddd266ef1a2b3c4d5e6f708192a3b4c"
		toID := "eeee266ef1a2b3c4d5e6f708192a3b4c"

		_, err := ledger.Credit(ctx, fromID, 500, models.EntryReasonAdmin)
		require.NoError(t, err)
		require.NoError(t, ledger.EnsurePlayer(ctx, toID))

		require.NoError(t, ledger.Transfer(ctx, fromID, toID, 200))
		requireConsistent(t, fromID, 300)
		requireConsistent(t, toID, 200)
	})

	t.Run("donation replay credits once", func(t *testing.T) {
		playerID := "ffff266ef1a2b3c4d5e6f708192a3b4c"

		balance, err := ledger.CreditDonation(ctx, playerID, 250, "txn-77")
		require.NoError(t, err)
		assert.Equal(t, int64(250), balance)

		// The unique donation reference survives across service instances,
		// so a redelivered notification cannot double-credit.
		_, err = ledger.CreditDonation(ctx, playerID, 250, "txn-77")
		assert.ErrorIs(t, err, service.ErrDuplicateDonation)
		requireConsistent(t, playerID, 250)
	})

	t.Run("stale sweep refunds orphaned holds", func(t *testing.T) {
		playerID := "1111266ef1a2b3c4d5e6f708192a3b4c"

		_, err := ledger.Credit(ctx, playerID, 100, models.EntryReasonAdmin)
		require.NoError(t, err)
		_, err = ledger.Reserve(ctx, playerID, 30)
		require.NoError(t, err)
		requireConsistent(t, playerID, 70)

		time.Sleep(20 * time.Millisecond)
		released, err := ledger.ReleaseStaleReservations(ctx, 10*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, 1, released)
		requireConsistent(t, playerID, 100)
	})
}
