package service

import (
	"errors"
)

var (
	// ErrInvalidAmount rejects non-positive ledger amounts. Never retried.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")

	// ErrInsufficientBalance rejects debits and reservations beyond the
	// player's current balance. Never retried.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")

	// ErrPlayerNotFound means no player row exists for the identifier.
	ErrPlayerNotFound = errors.New("ledger: player not found")

	// ErrReservationNotFound means the token does not name a reservation.
	ErrReservationNotFound = errors.New("ledger: reservation not found")

	// ErrReservationReleased means the hold was refunded before commit.
	ErrReservationReleased = errors.New("ledger: reservation already released")

	// ErrDuplicateDonation means the donation transaction was already
	// credited. Redeliveries of the same notification are acknowledged
	// without a second credit.
	ErrDuplicateDonation = errors.New("ledger: donation already credited")

	// ErrItemNotFound means the catalog has no such item.
	ErrItemNotFound = errors.New("shop: item not found")

	// ErrPurchaseInFlight rejects a duplicate submission while a purchase
	// for the same player and item is still being processed.
	ErrPurchaseInFlight = errors.New("shop: purchase already in flight for this player and item")

	// ErrPurchaseNotFound means the id does not name a purchase.
	ErrPurchaseNotFound = errors.New("shop: purchase not found")

	// ErrPurchaseNotCancelable means the purchase already settled.
	ErrPurchaseNotCancelable = errors.New("shop: purchase can no longer be cancelled")
)
