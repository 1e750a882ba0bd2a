package models

import (
	"time"
)

// PurchaseState is the transaction state machine:
// pending -> reserved -> delivered on success,
// pending -> reserved -> failed -> refunded on delivery failure,
// reserved -> refunded when delivery was never attempted or the buyer
// cancelled in time.
type PurchaseState string

const (
	PurchaseStatePending   PurchaseState = "pending"
	PurchaseStateReserved  PurchaseState = "reserved"
	PurchaseStateDelivered PurchaseState = "delivered"
	PurchaseStateFailed    PurchaseState = "failed"
	PurchaseStateRefunded  PurchaseState = "refunded"
)

// Terminal reports whether the purchase has settled. Settled purchases are
// immutable history.
func (s PurchaseState) Terminal() bool {
	return s == PurchaseStateDelivered || s == PurchaseStateRefunded
}

// Purchase is one shop transaction. Its ID doubles as the correlation id on
// every delivery command issued for it.
type Purchase struct {
	ID               string        `db:"id"`
	PlayerID         string        `db:"player_id"`
	ItemID           string        `db:"item_id"`
	ServerID         string        `db:"server_id"`
	Price            int64         `db:"price"`
	State            PurchaseState `db:"state"`
	Reason           *string       `db:"reason"`
	ReservationToken *string       `db:"reservation_token"`
	CreatedAt        time.Time     `db:"created_at"`
	SettledAt        *time.Time    `db:"settled_at"`
}
