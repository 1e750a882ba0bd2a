package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bebewat/wrecksshop/models"
	"github.com/bebewat/wrecksshop/repository/testutil"
)

func TestLedgerEntryRepository_Record(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	players := NewPlayerRepository(testDB.DB)
	repo := NewLedgerEntryRepository(testDB.DB)
	ctx := context.Background()

	player, err := players.Create(ctx, "000266ef1a2b3c4d5e6f708192a3b4c5")
	require.NoError(t, err)

	t.Run("assigns id and timestamp", func(t *testing.T) {
		entry := testutil.CreateTestLedgerEntry(player.ID, 500, models.EntryReasonPlaytime)
		err := repo.Record(ctx, entry)
		require.NoError(t, err)

		assert.NotZero(t, entry.ID)
		assert.False(t, entry.CreatedAt.IsZero())
	})

	t.Run("reference round trips", func(t *testing.T) {
		entry := testutil.CreateTestLedgerEntryWithReference(player.ID, -1000, models.EntryReasonReserve, "8c2b0a7e-1111-2222-3333-444455556666")
		err := repo.Record(ctx, entry)
		require.NoError(t, err)

		entries, err := repo.GetByPlayer(ctx, player.ID, 1)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.NotNil(t, entries[0].Reference)
		assert.Equal(t, "8c2b0a7e-1111-2222-3333-444455556666", *entries[0].Reference)
		assert.Equal(t, models.EntryReasonReserve, entries[0].Reason)
	})

	t.Run("unknown player rejected", func(t *testing.T) {
		entry := testutil.CreateTestLedgerEntry("ffff266ef1a2b3c4d5e6f708192a3b4c", 100, models.EntryReasonDonation)
		err := repo.Record(ctx, entry)
		assert.Error(t, err)
	})
}

func TestLedgerEntryRepository_GetByPlayer(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	players := NewPlayerRepository(testDB.DB)
	repo := NewLedgerEntryRepository(testDB.DB)
	ctx := context.Background()

	player, err := players.Create(ctx, "aaaa266ef1a2b3c4d5e6f708192a3b4c")
	require.NoError(t, err)

	for _, amount := range []int64{100, 200, 300, 400} {
		entry := testutil.CreateTestLedgerEntry(player.ID, amount, models.EntryReasonAdmin)
		require.NoError(t, repo.Record(ctx, entry))
	}

	t.Run("newest first", func(t *testing.T) {
		entries, err := repo.GetByPlayer(ctx, player.ID, 10)
		require.NoError(t, err)
		require.Len(t, entries, 4)

		assert.Equal(t, int64(400), entries[0].Amount)
		assert.Equal(t, int64(100), entries[3].Amount)
	})

	t.Run("limit applies", func(t *testing.T) {
		entries, err := repo.GetByPlayer(ctx, player.ID, 2)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, int64(400), entries[0].Amount)
		assert.Equal(t, int64(300), entries[1].Amount)
	})

	t.Run("no history", func(t *testing.T) {
		other, err := players.Create(ctx, "bbbb266ef1a2b3c4d5e6f708192a3b4c")
		require.NoError(t, err)

		entries, err := repo.GetByPlayer(ctx, other.ID, 10)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestLedgerEntryRepository_SumByPlayer(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	players := NewPlayerRepository(testDB.DB)
	repo := NewLedgerEntryRepository(testDB.DB)
	ctx := context.Background()

	player, err := players.Create(ctx, "cccc266ef1a2b3c4d5e6f708192a3b4c")
	require.NoError(t, err)

	t.Run("empty history sums to zero", func(t *testing.T) {
		sum, err := repo.SumByPlayer(ctx, player.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), sum)
	})

	t.Run("credits and debits net out", func(t *testing.T) {
		require.NoError(t, repo.Record(ctx, testutil.CreateTestLedgerEntry(player.ID, 5000, models.EntryReasonDonation)))
		require.NoError(t, repo.Record(ctx, testutil.CreateTestLedgerEntry(player.ID, -1200, models.EntryReasonReserve)))
		require.NoError(t, repo.Record(ctx, testutil.CreateTestLedgerEntry(player.ID, 1200, models.EntryReasonRelease)))
		require.NoError(t, repo.Record(ctx, testutil.CreateTestLedgerEntry(player.ID, 60, models.EntryReasonPlaytime)))

		sum, err := repo.SumByPlayer(ctx, player.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(5060), sum)
	})
}
