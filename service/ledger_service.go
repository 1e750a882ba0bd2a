package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/bebewat/wrecksshop/database"
	"github.com/bebewat/wrecksshop/models"
)

// ledgerService implements the LedgerService interface
type ledgerService struct {
	uowFactory UnitOfWorkFactory
}

// NewLedgerService creates a new ledger service
func NewLedgerService(uowFactory UnitOfWorkFactory) LedgerService {
	return &ledgerService{
		uowFactory: uowFactory,
	}
}

// Credit adds points to a player's balance. The player row is created on
// first observed activity, so donation and accrual credits for unseen
// players succeed.
func (s *ledgerService) Credit(ctx context.Context, playerID string, amount int64, reason models.EntryReason) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	var newBalance int64
	err := s.withUnitOfWork(ctx, func(uow UnitOfWork) error {
		player, err := getOrCreatePlayer(ctx, uow, playerID)
		if err != nil {
			return err
		}

		newBalance = player.Balance + amount
		entry := &models.LedgerEntry{
			PlayerID: playerID,
			Amount:   amount,
			Reason:   reason,
		}
		return recordLedgerChange(ctx, uow, entry, newBalance)
	})
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

// CreditDonation adds donated points, keyed by the provider's transaction id
// so redelivered notifications credit at most once. The dedup lives in the
// ledger itself (a unique reference on the donation entry), so it survives
// restarts.
func (s *ledgerService) CreditDonation(ctx context.Context, playerID string, amount int64, transactionID string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if transactionID == "" {
		return 0, fmt.Errorf("donation transaction id is required")
	}

	reference := "donation:" + transactionID
	var newBalance int64
	err := s.withUnitOfWork(ctx, func(uow UnitOfWork) error {
		player, err := getOrCreatePlayer(ctx, uow, playerID)
		if err != nil {
			return err
		}

		newBalance = player.Balance + amount
		entry := &models.LedgerEntry{
			PlayerID:  playerID,
			Amount:    amount,
			Reason:    models.EntryReasonDonation,
			Reference: &reference,
		}
		return recordLedgerChange(ctx, uow, entry, newBalance)
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			return 0, ErrDuplicateDonation
		}
		return 0, err
	}
	return newBalance, nil
}

// EnsurePlayer creates the player row on first observed activity, without
// touching the balance. Existing players are left untouched.
func (s *ledgerService) EnsurePlayer(ctx context.Context, playerID string) error {
	return s.withUnitOfWork(ctx, func(uow UnitOfWork) error {
		_, err := getOrCreatePlayer(ctx, uow, playerID)
		return err
	})
}

// Debit removes points from a player's balance, failing on insufficient
// funds before any write happens.
func (s *ledgerService) Debit(ctx context.Context, playerID string, amount int64, reason models.EntryReason) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	var newBalance int64
	err := s.withUnitOfWork(ctx, func(uow UnitOfWork) error {
		player, err := uow.PlayerRepository().GetByIDForUpdate(ctx, playerID)
		if err != nil {
			return fmt.Errorf("failed to load player: %w", err)
		}
		if player == nil {
			return ErrPlayerNotFound
		}
		if player.Balance < amount {
			return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, player.Balance, amount)
		}

		newBalance = player.Balance - amount
		entry := &models.LedgerEntry{
			PlayerID: playerID,
			Amount:   -amount,
			Reason:   reason,
		}
		return recordLedgerChange(ctx, uow, entry, newBalance)
	})
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

// Reserve holds amount against the player's balance. The hold is a negative
// ledger entry referencing the token, so balances always equal the entry sum
// while the purchase is in flight.
func (s *ledgerService) Reserve(ctx context.Context, playerID string, amount int64) (string, error) {
	if amount <= 0 {
		return "", ErrInvalidAmount
	}

	token := uuid.New().String()
	err := s.withUnitOfWork(ctx, func(uow UnitOfWork) error {
		player, err := uow.PlayerRepository().GetByIDForUpdate(ctx, playerID)
		if err != nil {
			return fmt.Errorf("failed to load player: %w", err)
		}
		if player == nil {
			return ErrPlayerNotFound
		}
		if player.Balance < amount {
			return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, player.Balance, amount)
		}

		res := &models.Reservation{
			Token:    token,
			PlayerID: playerID,
			Amount:   amount,
			State:    models.ReservationStateHeld,
		}
		if err := uow.ReservationRepository().Create(ctx, res); err != nil {
			return fmt.Errorf("failed to create reservation: %w", err)
		}

		entry := &models.LedgerEntry{
			PlayerID:  playerID,
			Amount:    -amount,
			Reason:    models.EntryReasonReserve,
			Reference: &token,
		}
		return recordLedgerChange(ctx, uow, entry, player.Balance-amount)
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// CommitReservation converts a hold into a permanent debit. The funds were
// taken out at reserve time, so committing changes no balance; it only locks
// the settlement in. Replays against a settled token are no-ops so the
// coordinator can safely retry after a crash.
func (s *ledgerService) CommitReservation(ctx context.Context, token string) error {
	return s.withUnitOfWork(ctx, func(uow UnitOfWork) error {
		res, err := uow.ReservationRepository().GetByTokenForUpdate(ctx, token)
		if err != nil {
			return fmt.Errorf("failed to load reservation: %w", err)
		}
		if res == nil {
			return ErrReservationNotFound
		}
		switch res.State {
		case models.ReservationStateCommitted:
			return nil
		case models.ReservationStateReleased:
			// The hold was already refunded; committing now would charge the
			// player without a matching debit entry.
			return ErrReservationReleased
		}
		return uow.ReservationRepository().Settle(ctx, token, models.ReservationStateCommitted)
	})
}

// ReleaseReservation returns held funds unchanged via the matching positive
// entry, netting the reserve/release pair to zero. Replays against a settled
// token are no-ops.
func (s *ledgerService) ReleaseReservation(ctx context.Context, token string) error {
	return s.withUnitOfWork(ctx, func(uow UnitOfWork) error {
		res, err := uow.ReservationRepository().GetByTokenForUpdate(ctx, token)
		if err != nil {
			return fmt.Errorf("failed to load reservation: %w", err)
		}
		if res == nil {
			return ErrReservationNotFound
		}
		if res.State.Settled() {
			return nil
		}

		player, err := uow.PlayerRepository().GetByIDForUpdate(ctx, res.PlayerID)
		if err != nil {
			return fmt.Errorf("failed to load player: %w", err)
		}
		if player == nil {
			return ErrPlayerNotFound
		}

		if err := uow.ReservationRepository().Settle(ctx, token, models.ReservationStateReleased); err != nil {
			return err
		}

		entry := &models.LedgerEntry{
			PlayerID:  res.PlayerID,
			Amount:    res.Amount,
			Reason:    models.EntryReasonRelease,
			Reference: &res.Token,
		}
		return recordLedgerChange(ctx, uow, entry, player.Balance+res.Amount)
	})
}

// Transfer moves points between two players in one transaction. Players are
// locked in a stable order to avoid deadlocks between crossing transfers.
func (s *ledgerService) Transfer(ctx context.Context, fromPlayerID, toPlayerID string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if fromPlayerID == toPlayerID {
		return fmt.Errorf("cannot transfer points to yourself")
	}

	return s.withUnitOfWork(ctx, func(uow UnitOfWork) error {
		first, second := fromPlayerID, toPlayerID
		if second < first {
			first, second = second, first
		}
		locked := make(map[string]*models.Player, 2)
		for _, id := range []string{first, second} {
			p, err := uow.PlayerRepository().GetByIDForUpdate(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to load player: %w", err)
			}
			if p == nil {
				return fmt.Errorf("%w: %s", ErrPlayerNotFound, id)
			}
			locked[id] = p
		}

		from, to := locked[fromPlayerID], locked[toPlayerID]
		if from.Balance < amount {
			return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, from.Balance, amount)
		}

		out := &models.LedgerEntry{
			PlayerID: from.ID,
			Amount:   -amount,
			Reason:   models.EntryReasonTradeOut,
			Reference: func() *string {
				ref := "to:" + to.ID
				return &ref
			}(),
		}
		if err := recordLedgerChange(ctx, uow, out, from.Balance-amount); err != nil {
			return err
		}

		in := &models.LedgerEntry{
			PlayerID: to.ID,
			Amount:   amount,
			Reason:   models.EntryReasonTradeIn,
			Reference: func() *string {
				ref := "from:" + from.ID
				return &ref
			}(),
		}
		return recordLedgerChange(ctx, uow, in, to.Balance+amount)
	})
}

// GetBalance returns the cached balance for a player
func (s *ledgerService) GetBalance(ctx context.Context, playerID string) (int64, error) {
	var balance int64
	err := s.withUnitOfWork(ctx, func(uow UnitOfWork) error {
		player, err := uow.PlayerRepository().GetByID(ctx, playerID)
		if err != nil {
			return fmt.Errorf("failed to load player: %w", err)
		}
		if player == nil {
			return ErrPlayerNotFound
		}
		balance = player.Balance
		return nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// GetHistory returns the most recent ledger entries for a player
func (s *ledgerService) GetHistory(ctx context.Context, playerID string, limit int) ([]*models.LedgerEntry, error) {
	var entries []*models.LedgerEntry
	err := s.withUnitOfWork(ctx, func(uow UnitOfWork) error {
		var err error
		entries, err = uow.LedgerEntryRepository().GetByPlayer(ctx, playerID, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// GetPlayerByDiscordID resolves a linked Discord account to a player
func (s *ledgerService) GetPlayerByDiscordID(ctx context.Context, discordID int64) (*models.Player, error) {
	var player *models.Player
	err := s.withUnitOfWork(ctx, func(uow UnitOfWork) error {
		var err error
		player, err = uow.PlayerRepository().GetByDiscordID(ctx, discordID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return player, nil
}

// LinkDiscordAccount attaches a Discord account to a player, creating the
// player row on first link.
func (s *ledgerService) LinkDiscordAccount(ctx context.Context, playerID string, discordID int64) error {
	return s.withUnitOfWork(ctx, func(uow UnitOfWork) error {
		if _, err := getOrCreatePlayer(ctx, uow, playerID); err != nil {
			return err
		}
		return uow.PlayerRepository().LinkDiscordAccount(ctx, playerID, discordID)
	})
}

// ReleaseStaleReservations releases holds older than maxAge and returns how
// many were released. A crash between reserve and settle leaves a held row;
// this sweep refunds it once the purchase deadline is safely past.
func (s *ledgerService) ReleaseStaleReservations(ctx context.Context, maxAge time.Duration) (int, error) {
	var stale []*models.Reservation
	err := s.withUnitOfWork(ctx, func(uow UnitOfWork) error {
		var err error
		stale, err = uow.ReservationRepository().GetStaleHeld(ctx, time.Now().Add(-maxAge))
		return err
	})
	if err != nil {
		return 0, err
	}

	released := 0
	for _, res := range stale {
		if err := s.ReleaseReservation(ctx, res.Token); err != nil {
			log.WithFields(log.Fields{
				"token":  res.Token,
				"player": res.PlayerID,
			}).WithError(err).Error("Failed to release stale reservation")
			continue
		}
		released++
	}
	if released > 0 {
		log.WithField("count", released).Info("Released stale reservations")
	}
	return released, nil
}

// withUnitOfWork runs fn inside one transaction, committing on success.
func (s *ledgerService) withUnitOfWork(ctx context.Context, fn func(uow UnitOfWork) error) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback() // No-op if already committed

	if err := fn(uow); err != nil {
		return err
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
