package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bebewat/wrecksshop/database"
	"github.com/bebewat/wrecksshop/models"
)

// PlayerRepository implements the PlayerRepository interface
type PlayerRepository struct {
	q queryable
}

// NewPlayerRepository creates a new player repository
func NewPlayerRepository(db *database.DB) *PlayerRepository {
	return &PlayerRepository{q: db.Pool}
}

// newPlayerRepositoryWithTx creates a new player repository with a transaction
func newPlayerRepositoryWithTx(tx queryable) *PlayerRepository {
	return &PlayerRepository{q: tx}
}

const playerColumns = `id, discord_id, balance, active, created_at, updated_at`

func scanPlayer(row pgx.Row) (*models.Player, error) {
	var p models.Player
	err := row.Scan(&p.ID, &p.DiscordID, &p.Balance, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByID retrieves a player by their platform account id
func (r *PlayerRepository) GetByID(ctx context.Context, playerID string) (*models.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE id = $1`

	p, err := scanPlayer(r.q.QueryRow(ctx, query, playerID))
	if err != nil {
		return nil, fmt.Errorf("failed to get player %s: %w", playerID, err)
	}
	return p, nil
}

// GetByIDForUpdate retrieves a player and locks the row for the duration of
// the surrounding transaction. This is the per-player serialization point
// for all balance mutations.
func (r *PlayerRepository) GetByIDForUpdate(ctx context.Context, playerID string) (*models.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE id = $1 FOR UPDATE`

	p, err := scanPlayer(r.q.QueryRow(ctx, query, playerID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock player %s: %w", playerID, err)
	}
	return p, nil
}

// GetByDiscordID retrieves a player by their linked Discord account
func (r *PlayerRepository) GetByDiscordID(ctx context.Context, discordID int64) (*models.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE discord_id = $1`

	p, err := scanPlayer(r.q.QueryRow(ctx, query, discordID))
	if err != nil {
		return nil, fmt.Errorf("failed to get player by discord ID %d: %w", discordID, err)
	}
	return p, nil
}

// Create creates a new player with a zero balance
func (r *PlayerRepository) Create(ctx context.Context, playerID string) (*models.Player, error) {
	query := `
		INSERT INTO players (id)
		VALUES ($1)
		RETURNING ` + playerColumns

	p, err := scanPlayer(r.q.QueryRow(ctx, query, playerID))
	if err != nil {
		return nil, fmt.Errorf("failed to create player %s: %w", playerID, err)
	}
	return p, nil
}

// UpdateBalance sets a player's cached balance. Callers must have locked the
// row and appended the matching ledger entry in the same transaction.
func (r *PlayerRepository) UpdateBalance(ctx context.Context, playerID string, newBalance int64) error {
	query := `
		UPDATE players
		SET balance = $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.q.Exec(ctx, query, newBalance, playerID)
	if err != nil {
		return fmt.Errorf("failed to update balance for player %s: %w", playerID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("player %s not found", playerID)
	}
	return nil
}

// LinkDiscordAccount attaches a Discord account id to a player
func (r *PlayerRepository) LinkDiscordAccount(ctx context.Context, playerID string, discordID int64) error {
	query := `
		UPDATE players
		SET discord_id = $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.q.Exec(ctx, query, discordID, playerID)
	if err != nil {
		return fmt.Errorf("failed to link discord account for player %s: %w", playerID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("player %s not found", playerID)
	}
	return nil
}

// Deactivate marks a player inactive. Players are never deleted.
func (r *PlayerRepository) Deactivate(ctx context.Context, playerID string) error {
	query := `
		UPDATE players
		SET active = FALSE, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.q.Exec(ctx, query, playerID)
	if err != nil {
		return fmt.Errorf("failed to deactivate player %s: %w", playerID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("player %s not found", playerID)
	}
	return nil
}
