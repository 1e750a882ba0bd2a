package service

import (
	"context"
	"fmt"

	"github.com/bebewat/wrecksshop/events"
	"github.com/bebewat/wrecksshop/models"
)

// recordLedgerChange appends a ledger entry, updates the cached balance and
// publishes the balance change event. This is the single entry point for all
// balance mutations: the entry and the cached balance are written in the same
// unit of work and can never be observed out of sync.
func recordLedgerChange(ctx context.Context, uow UnitOfWork, entry *models.LedgerEntry, newBalance int64) error {
	if err := uow.LedgerEntryRepository().Record(ctx, entry); err != nil {
		return fmt.Errorf("failed to record ledger entry: %w", err)
	}

	if err := uow.PlayerRepository().UpdateBalance(ctx, entry.PlayerID, newBalance); err != nil {
		return fmt.Errorf("failed to update cached balance: %w", err)
	}

	// Held until the transaction commits
	uow.EventBus().Publish(events.BalanceChangeEvent{
		PlayerID:   entry.PlayerID,
		Amount:     entry.Amount,
		NewBalance: newBalance,
		Reason:     entry.Reason,
	})

	return nil
}

// getOrCreatePlayer loads a player inside the unit of work, creating the row
// on first observed activity and locking it either way.
func getOrCreatePlayer(ctx context.Context, uow UnitOfWork, playerID string) (*models.Player, error) {
	player, err := uow.PlayerRepository().GetByIDForUpdate(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load player: %w", err)
	}
	if player != nil {
		return player, nil
	}

	player, err = uow.PlayerRepository().Create(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to create player: %w", err)
	}

	uow.EventBus().Publish(events.PlayerCreatedEvent{
		PlayerID:  player.ID,
		DiscordID: player.DiscordID,
	})

	return player, nil
}
