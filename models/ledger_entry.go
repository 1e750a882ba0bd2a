package models

import (
	"time"
)

// EntryReason categorizes a balance change.
type EntryReason string

const (
	EntryReasonPurchase EntryReason = "purchase"
	EntryReasonReserve  EntryReason = "reserve"
	EntryReasonRelease  EntryReason = "release"
	EntryReasonPlaytime EntryReason = "playtime"
	EntryReasonDonation EntryReason = "donation"
	EntryReasonTradeIn  EntryReason = "trade_in"
	EntryReasonTradeOut EntryReason = "trade_out"
	EntryReasonAdmin    EntryReason = "admin"
)

// LedgerEntry is one append-only record of a balance change. The cached
// player balance must always equal the sum of that player's entries.
type LedgerEntry struct {
	ID        int64       `db:"id"`
	PlayerID  string      `db:"player_id"`
	Amount    int64       `db:"amount"`
	Reason    EntryReason `db:"reason"`
	Reference *string     `db:"reference"` // reservation token or purchase id
	CreatedAt time.Time   `db:"created_at"`
}
