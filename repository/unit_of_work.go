package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bebewat/wrecksshop/database"
	"github.com/bebewat/wrecksshop/events"
	"github.com/bebewat/wrecksshop/service"
)

// unitOfWork implements the UnitOfWork interface
type unitOfWork struct {
	db               *database.DB
	tx               pgx.Tx
	ctx              context.Context
	transactionalBus *events.TransactionalBus
	playerRepo       service.PlayerRepository
	ledgerEntryRepo  service.LedgerEntryRepository
	reservationRepo  service.ReservationRepository
	purchaseRepo     service.PurchaseRepository
}

// NewUnitOfWorkFactory creates a new UnitOfWork factory
func NewUnitOfWorkFactory(db *database.DB, eventBus *events.Bus) service.UnitOfWorkFactory {
	return &unitOfWorkFactory{
		db:       db,
		eventBus: eventBus,
	}
}

type unitOfWorkFactory struct {
	db       *database.DB
	eventBus *events.Bus
}

func (f *unitOfWorkFactory) Create() service.UnitOfWork {
	return &unitOfWork{
		db:               f.db,
		transactionalBus: events.NewTransactionalBus(f.eventBus),
	}
}

// Begin starts a new transaction
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}

	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.tx = tx
	u.ctx = ctx

	// Create repositories bound to the transaction
	u.playerRepo = newPlayerRepositoryWithTx(tx)
	u.ledgerEntryRepo = newLedgerEntryRepositoryWithTx(tx)
	u.reservationRepo = newReservationRepositoryWithTx(tx)
	u.purchaseRepo = newPurchaseRepositoryWithTx(tx)

	return nil
}

// Commit commits the transaction
func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}

	err := u.tx.Commit(u.ctx)
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	u.tx = nil

	// Flush pending events after successful commit
	if u.transactionalBus != nil {
		u.transactionalBus.Flush(u.ctx)
	}

	return nil
}

// Rollback rolls back the transaction
func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return nil // Nothing to rollback
	}

	err := u.tx.Rollback(u.ctx)
	if err != nil && err != pgx.ErrTxClosed {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	u.tx = nil

	// Discard pending events on rollback
	if u.transactionalBus != nil {
		u.transactionalBus.Discard()
	}

	return nil
}

// PlayerRepository returns the player repository for this unit of work
func (u *unitOfWork) PlayerRepository() service.PlayerRepository {
	if u.playerRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.playerRepo
}

// LedgerEntryRepository returns the ledger entry repository for this unit of work
func (u *unitOfWork) LedgerEntryRepository() service.LedgerEntryRepository {
	if u.ledgerEntryRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.ledgerEntryRepo
}

// ReservationRepository returns the reservation repository for this unit of work
func (u *unitOfWork) ReservationRepository() service.ReservationRepository {
	if u.reservationRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.reservationRepo
}

// PurchaseRepository returns the purchase repository for this unit of work
func (u *unitOfWork) PurchaseRepository() service.PurchaseRepository {
	if u.purchaseRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.purchaseRepo
}

// EventBus returns the transactional event bus for this unit of work
func (u *unitOfWork) EventBus() service.EventPublisher {
	if u.transactionalBus == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.transactionalBus
}
