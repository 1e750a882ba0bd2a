package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bebewat/wrecksshop/models"
	"github.com/bebewat/wrecksshop/repository/testutil"
)

func TestReservationRepository_Create(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	players := NewPlayerRepository(testDB.DB)
	repo := NewReservationRepository(testDB.DB)
	ctx := context.Background()

	player, err := players.Create(ctx, "000266ef1a2b3c4d5e6f708192a3b4c5")
	require.NoError(t, err)

	t.Run("successful creation", func(t *testing.T) {
		res := testutil.CreateTestReservation(player.ID, 1500)
		err := repo.Create(ctx, res)
		require.NoError(t, err)
		assert.False(t, res.CreatedAt.IsZero())

		stored, err := repo.GetByTokenForUpdate(ctx, res.Token)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, models.ReservationStateHeld, stored.State)
		assert.Equal(t, int64(1500), stored.Amount)
		assert.Nil(t, stored.SettledAt)
	})

	t.Run("zero amount rejected by schema", func(t *testing.T) {
		res := testutil.CreateTestReservation(player.ID, 0)
		err := repo.Create(ctx, res)
		assert.Error(t, err)
	})

	t.Run("duplicate token rejected", func(t *testing.T) {
		res := testutil.CreateTestReservation(player.ID, 100)
		require.NoError(t, repo.Create(ctx, res))

		dup := testutil.CreateTestReservation(player.ID, 100)
		dup.Token = res.Token
		err := repo.Create(ctx, dup)
		assert.Error(t, err)
	})

	t.Run("unknown token", func(t *testing.T) {
		res, err := repo.GetByTokenForUpdate(ctx, "9e107d9d-0000-1111-2222-333344445555")
		require.NoError(t, err)
		assert.Nil(t, res)
	})
}

func TestReservationRepository_Settle(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	players := NewPlayerRepository(testDB.DB)
	repo := NewReservationRepository(testDB.DB)
	ctx := context.Background()

	player, err := players.Create(ctx, "aaaa266ef1a2b3c4d5e6f708192a3b4c")
	require.NoError(t, err)

	t.Run("commit stamps settled_at", func(t *testing.T) {
		res := testutil.CreateTestReservation(player.ID, 2000)
		require.NoError(t, repo.Create(ctx, res))

		err := repo.Settle(ctx, res.Token, models.ReservationStateCommitted)
		require.NoError(t, err)

		settled, err := repo.GetByTokenForUpdate(ctx, res.Token)
		require.NoError(t, err)
		require.NotNil(t, settled)
		assert.Equal(t, models.ReservationStateCommitted, settled.State)
		require.NotNil(t, settled.SettledAt)
		assert.True(t, settled.State.Settled())
	})

	t.Run("release", func(t *testing.T) {
		res := testutil.CreateTestReservation(player.ID, 750)
		require.NoError(t, repo.Create(ctx, res))

		err := repo.Settle(ctx, res.Token, models.ReservationStateReleased)
		require.NoError(t, err)

		settled, err := repo.GetByTokenForUpdate(ctx, res.Token)
		require.NoError(t, err)
		assert.Equal(t, models.ReservationStateReleased, settled.State)
	})

	t.Run("unknown token", func(t *testing.T) {
		err := repo.Settle(ctx, "9e107d9d-0000-1111-2222-333344445555", models.ReservationStateReleased)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}

func TestReservationRepository_GetStaleHeld(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	players := NewPlayerRepository(testDB.DB)
	repo := NewReservationRepository(testDB.DB)
	ctx := context.Background()

	player, err := players.Create(ctx, "bbbb266ef1a2b3c4d5e6f708192a3b4c")
	require.NoError(t, err)

	held := testutil.CreateTestReservation(player.ID, 300)
	require.NoError(t, repo.Create(ctx, held))

	committed := testutil.CreateTestReservation(player.ID, 400)
	require.NoError(t, repo.Create(ctx, committed))
	require.NoError(t, repo.Settle(ctx, committed.Token, models.ReservationStateCommitted))

	t.Run("future cutoff catches held only", func(t *testing.T) {
		stale, err := repo.GetStaleHeld(ctx, time.Now().Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, stale, 1)
		assert.Equal(t, held.Token, stale[0].Token)
		assert.Equal(t, models.ReservationStateHeld, stale[0].State)
	})

	t.Run("past cutoff catches nothing", func(t *testing.T) {
		stale, err := repo.GetStaleHeld(ctx, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.Empty(t, stale)
	})
}
