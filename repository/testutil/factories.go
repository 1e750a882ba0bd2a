package testutil

import (
	"github.com/google/uuid"

	"github.com/bebewat/wrecksshop/models"
)

// CreateTestLedgerEntry creates a ledger entry with default values
func CreateTestLedgerEntry(playerID string, amount int64, reason models.EntryReason) *models.LedgerEntry {
	return &models.LedgerEntry{
		PlayerID: playerID,
		Amount:   amount,
		Reason:   reason,
	}
}

// CreateTestLedgerEntryWithReference creates a ledger entry tied to a
// reservation token or purchase id
func CreateTestLedgerEntryWithReference(playerID string, amount int64, reason models.EntryReason, reference string) *models.LedgerEntry {
	entry := CreateTestLedgerEntry(playerID, amount, reason)
	entry.Reference = &reference
	return entry
}

// CreateTestReservation creates a held reservation with a fresh token
func CreateTestReservation(playerID string, amount int64) *models.Reservation {
	return &models.Reservation{
		Token:    uuid.New().String(),
		PlayerID: playerID,
		Amount:   amount,
		State:    models.ReservationStateHeld,
	}
}

// CreateTestPurchase creates a reserved purchase backed by an existing
// reservation. The reservation must already be persisted; purchases carry a
// foreign key to it.
func CreateTestPurchase(playerID, itemID, serverID string, price int64, reservationToken string) *models.Purchase {
	return &models.Purchase{
		ID:               uuid.New().String(),
		PlayerID:         playerID,
		ItemID:           itemID,
		ServerID:         serverID,
		Price:            price,
		State:            models.PurchaseStateReserved,
		ReservationToken: &reservationToken,
	}
}
