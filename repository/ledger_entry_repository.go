package repository

import (
	"context"
	"fmt"

	"github.com/bebewat/wrecksshop/database"
	"github.com/bebewat/wrecksshop/models"
)

// LedgerEntryRepository implements the LedgerEntryRepository interface
type LedgerEntryRepository struct {
	q queryable
}

// NewLedgerEntryRepository creates a new ledger entry repository
func NewLedgerEntryRepository(db *database.DB) *LedgerEntryRepository {
	return &LedgerEntryRepository{q: db.Pool}
}

// newLedgerEntryRepositoryWithTx creates a new ledger entry repository with a transaction
func newLedgerEntryRepositoryWithTx(tx queryable) *LedgerEntryRepository {
	return &LedgerEntryRepository{q: tx}
}

// Record appends one ledger entry. Entries are append-only; there is no
// update or delete path.
func (r *LedgerEntryRepository) Record(ctx context.Context, entry *models.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (player_id, amount, reason, reference)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		entry.PlayerID,
		entry.Amount,
		entry.Reason,
		entry.Reference,
	).Scan(&entry.ID, &entry.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to record ledger entry for player %s: %w", entry.PlayerID, err)
	}
	return nil
}

// GetByPlayer returns the most recent entries for a player, newest first
func (r *LedgerEntryRepository) GetByPlayer(ctx context.Context, playerID string, limit int) ([]*models.LedgerEntry, error) {
	query := `
		SELECT id, player_id, amount, reason, reference, created_at
		FROM ledger_entries
		WHERE player_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entries for player %s: %w", playerID, err)
	}
	defer rows.Close()

	var entries []*models.LedgerEntry
	for rows.Next() {
		var entry models.LedgerEntry
		err := rows.Scan(
			&entry.ID,
			&entry.PlayerID,
			&entry.Amount,
			&entry.Reason,
			&entry.Reference,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger entries: %w", err)
	}

	return entries, nil
}

// SumByPlayer replays the entry history into a balance. The cached balance
// on the player row must always equal this sum.
func (r *LedgerEntryRepository) SumByPlayer(ctx context.Context, playerID string) (int64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE player_id = $1
	`

	var sum int64
	if err := r.q.QueryRow(ctx, query, playerID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum ledger entries for player %s: %w", playerID, err)
	}
	return sum, nil
}
