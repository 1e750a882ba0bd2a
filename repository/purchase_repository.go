package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bebewat/wrecksshop/database"
	"github.com/bebewat/wrecksshop/models"
)

// PurchaseRepository implements the PurchaseRepository interface
type PurchaseRepository struct {
	q queryable
}

// NewPurchaseRepository creates a new purchase repository
func NewPurchaseRepository(db *database.DB) *PurchaseRepository {
	return &PurchaseRepository{q: db.Pool}
}

// newPurchaseRepositoryWithTx creates a new purchase repository with a transaction
func newPurchaseRepositoryWithTx(tx queryable) *PurchaseRepository {
	return &PurchaseRepository{q: tx}
}

const purchaseColumns = `id, player_id, item_id, server_id, price, state, reason, reservation_token, created_at, settled_at`

func scanPurchase(row pgx.Row) (*models.Purchase, error) {
	var p models.Purchase
	err := row.Scan(
		&p.ID,
		&p.PlayerID,
		&p.ItemID,
		&p.ServerID,
		&p.Price,
		&p.State,
		&p.Reason,
		&p.ReservationToken,
		&p.CreatedAt,
		&p.SettledAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create persists a new purchase in its initial state
func (r *PurchaseRepository) Create(ctx context.Context, purchase *models.Purchase) error {
	query := `
		INSERT INTO purchases (id, player_id, item_id, server_id, price, state, reservation_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	err := r.q.QueryRow(ctx, query,
		purchase.ID,
		purchase.PlayerID,
		purchase.ItemID,
		purchase.ServerID,
		purchase.Price,
		purchase.State,
		purchase.ReservationToken,
	).Scan(&purchase.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create purchase %s: %w", purchase.ID, err)
	}
	return nil
}

// GetByID retrieves a purchase by its id
func (r *PurchaseRepository) GetByID(ctx context.Context, id string) (*models.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases WHERE id = $1`

	p, err := scanPurchase(r.q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase %s: %w", id, err)
	}
	return p, nil
}

// GetByIDForUpdate retrieves a purchase and locks it for the duration of the
// surrounding transaction, serializing settlement and cancellation.
func (r *PurchaseRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases WHERE id = $1 FOR UPDATE`

	p, err := scanPurchase(r.q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to lock purchase %s: %w", id, err)
	}
	return p, nil
}

// MarkReserved attaches the reservation token to a pending purchase and
// moves it to reserved. A purchase that has left pending (a cancel won the
// race) is not touched.
func (r *PurchaseRepository) MarkReserved(ctx context.Context, id, token string) error {
	query := `
		UPDATE purchases
		SET state = 'reserved', reservation_token = $1
		WHERE id = $2 AND state = 'pending'
	`

	result, err := r.q.Exec(ctx, query, token, id)
	if err != nil {
		return fmt.Errorf("failed to mark purchase %s reserved: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("purchase %s is not pending", id)
	}
	return nil
}

// UpdateState transitions a purchase. Terminal states also stamp settled_at;
// settled purchases are immutable and never transition again.
func (r *PurchaseRepository) UpdateState(ctx context.Context, id string, state models.PurchaseState, reason *string) error {
	query := `
		UPDATE purchases
		SET state = $1,
		    reason = COALESCE($2, reason),
		    settled_at = CASE WHEN $1 IN ('delivered', 'refunded') THEN NOW() ELSE settled_at END
		WHERE id = $3 AND settled_at IS NULL
	`

	result, err := r.q.Exec(ctx, query, state, reason, id)
	if err != nil {
		return fmt.Errorf("failed to update purchase %s to %s: %w", id, state, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("purchase %s not found or already settled", id)
	}
	return nil
}

// GetByPlayer returns a player's purchases, newest first
func (r *PurchaseRepository) GetByPlayer(ctx context.Context, playerID string, limit int) ([]*models.Purchase, error) {
	query := `
		SELECT ` + purchaseColumns + `
		FROM purchases
		WHERE player_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get purchases for player %s: %w", playerID, err)
	}
	defer rows.Close()

	var purchases []*models.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate purchases: %w", err)
	}

	return purchases, nil
}
