package models

import (
	"time"
)

// ReservationState tracks the lifecycle of a point hold.
type ReservationState string

const (
	ReservationStateHeld      ReservationState = "held"
	ReservationStateCommitted ReservationState = "committed"
	ReservationStateReleased  ReservationState = "released"
)

// Settled reports whether the reservation reached a terminal state.
func (s ReservationState) Settled() bool {
	return s == ReservationStateCommitted || s == ReservationStateReleased
}

// Reservation holds points against a player's balance while a purchase is in
// flight. The hold is taken out of the balance when created; committing keeps
// the debit, releasing returns it.
type Reservation struct {
	Token     string           `db:"token"`
	PlayerID  string           `db:"player_id"`
	Amount    int64            `db:"amount"`
	State     ReservationState `db:"state"`
	CreatedAt time.Time        `db:"created_at"`
	SettledAt *time.Time       `db:"settled_at"`
}
