package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bebewat/wrecksshop/database"
	"github.com/bebewat/wrecksshop/models"
)

// ReservationRepository implements the ReservationRepository interface
type ReservationRepository struct {
	q queryable
}

// NewReservationRepository creates a new reservation repository
func NewReservationRepository(db *database.DB) *ReservationRepository {
	return &ReservationRepository{q: db.Pool}
}

// newReservationRepositoryWithTx creates a new reservation repository with a transaction
func newReservationRepositoryWithTx(tx queryable) *ReservationRepository {
	return &ReservationRepository{q: tx}
}

// Create persists a new held reservation
func (r *ReservationRepository) Create(ctx context.Context, res *models.Reservation) error {
	query := `
		INSERT INTO reservations (token, player_id, amount, state)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	err := r.q.QueryRow(ctx, query,
		res.Token,
		res.PlayerID,
		res.Amount,
		res.State,
	).Scan(&res.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create reservation %s: %w", res.Token, err)
	}
	return nil
}

// GetByTokenForUpdate retrieves a reservation and locks it for the duration
// of the surrounding transaction, serializing settle attempts on one token.
func (r *ReservationRepository) GetByTokenForUpdate(ctx context.Context, token string) (*models.Reservation, error) {
	query := `
		SELECT token, player_id, amount, state, created_at, settled_at
		FROM reservations
		WHERE token = $1
		FOR UPDATE
	`

	var res models.Reservation
	err := r.q.QueryRow(ctx, query, token).Scan(
		&res.Token,
		&res.PlayerID,
		&res.Amount,
		&res.State,
		&res.CreatedAt,
		&res.SettledAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock reservation %s: %w", token, err)
	}
	return &res, nil
}

// Settle moves a reservation into a terminal state
func (r *ReservationRepository) Settle(ctx context.Context, token string, state models.ReservationState) error {
	query := `
		UPDATE reservations
		SET state = $1, settled_at = NOW()
		WHERE token = $2
	`

	result, err := r.q.Exec(ctx, query, state, token)
	if err != nil {
		return fmt.Errorf("failed to settle reservation %s: %w", token, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("reservation %s not found", token)
	}
	return nil
}

// GetStaleHeld returns held reservations created before the cutoff. Used by
// the startup sweep to release holds orphaned by a crash mid-purchase.
func (r *ReservationRepository) GetStaleHeld(ctx context.Context, cutoff time.Time) ([]*models.Reservation, error) {
	query := `
		SELECT token, player_id, amount, state, created_at, settled_at
		FROM reservations
		WHERE state = 'held' AND created_at < $1
		ORDER BY created_at
	`

	rows, err := r.q.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to get stale reservations: %w", err)
	}
	defer rows.Close()

	var out []*models.Reservation
	for rows.Next() {
		var res models.Reservation
		err := rows.Scan(
			&res.Token,
			&res.PlayerID,
			&res.Amount,
			&res.State,
			&res.CreatedAt,
			&res.SettledAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		out = append(out, &res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reservations: %w", err)
	}

	return out, nil
}
