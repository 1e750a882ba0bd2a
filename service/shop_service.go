package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/bebewat/wrecksshop/events"
	"github.com/bebewat/wrecksshop/models"
)

const defaultPurchaseTimeout = 2 * time.Minute

// CatalogProvider returns the current immutable catalog snapshot.
type CatalogProvider interface {
	Catalog() *models.Catalog
}

// ShopConfig tunes the purchase coordinator.
type ShopConfig struct {
	// PurchaseTimeout bounds one purchase end to end, across all delivery
	// commands and their retries. Expiry takes the refund path.
	PurchaseTimeout time.Duration
}

// shopService implements the ShopService interface. It is the single point
// enforcing at most one in-flight purchase per (player, item) pair; the
// ledger below it only guarantees per-player serialization.
type shopService struct {
	uowFactory UnitOfWorkFactory
	ledger     LedgerService
	dispatcher CommandDispatcher
	catalogs   CatalogProvider
	cfg        ShopConfig

	mu       sync.Mutex
	inFlight map[string]struct{}           // "playerID|itemID"
	cancels  map[string]context.CancelFunc // purchase id -> delivery abort
}

// NewShopService creates a new shop transaction coordinator
func NewShopService(uowFactory UnitOfWorkFactory, ledger LedgerService, dispatcher CommandDispatcher, catalogs CatalogProvider, cfg ShopConfig) ShopService {
	if cfg.PurchaseTimeout <= 0 {
		cfg.PurchaseTimeout = defaultPurchaseTimeout
	}
	return &shopService{
		uowFactory: uowFactory,
		ledger:     ledger,
		dispatcher: dispatcher,
		catalogs:   catalogs,
		cfg:        cfg,
		inFlight:   make(map[string]struct{}),
		cancels:    make(map[string]context.CancelFunc),
	}
}

// Purchase runs one shop transaction:
// reserve -> enqueue delivery commands -> commit or release.
// Every attempt resolves to an explicit outcome; the player is never charged
// for an undelivered item.
func (s *shopService) Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error) {
	item := s.catalogs.Catalog().Item(req.ItemID)
	if item == nil {
		return nil, fmt.Errorf("%w: %q", ErrItemNotFound, req.ItemID)
	}

	// Guard against double-click and double-command races from the caller.
	key := req.PlayerID + "|" + req.ItemID
	s.mu.Lock()
	if _, busy := s.inFlight[key]; busy {
		s.mu.Unlock()
		return nil, ErrPurchaseInFlight
	}
	s.inFlight[key] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, key)
		s.mu.Unlock()
	}()

	price := s.catalogs.Catalog().FinalPrice(item, req.Roles)

	purchase := &models.Purchase{
		ID:       uuid.New().String(),
		PlayerID: req.PlayerID,
		ItemID:   req.ItemID,
		ServerID: req.ServerID,
		Price:    price,
		State:    models.PurchaseStatePending,
	}
	if err := s.createPurchase(ctx, purchase); err != nil {
		return nil, err
	}

	// Reserve before touching any server. Insufficient funds terminalize
	// the purchase here with no ledger entries and no server contact.
	token, err := s.ledger.Reserve(ctx, req.PlayerID, price)
	if err != nil {
		reason := "insufficient balance"
		if !errors.Is(err, ErrInsufficientBalance) {
			reason = "reservation failed"
			err = fmt.Errorf("failed to reserve points: %w", err)
		}
		if settleErr := s.settlePurchase(ctx, purchase, models.PurchaseStateRefunded, reason); settleErr != nil {
			log.WithField("purchase", purchase.ID).WithError(settleErr).Error("Failed to settle purchase after reservation failure")
		}
		return nil, err
	}

	purchase.ReservationToken = &token
	if err := s.markReserved(ctx, purchase, token); err != nil {
		// A concurrent cancel already refunded the purchase; the fresh hold
		// must not dangle.
		if relErr := s.ledger.ReleaseReservation(ctx, token); relErr != nil {
			log.WithField("token", token).WithError(relErr).Error("Failed to release reservation after losing purchase to cancellation")
		}
		return nil, err
	}

	deliveryCtx, cancelDelivery := context.WithTimeout(ctx, s.cfg.PurchaseTimeout)
	s.mu.Lock()
	s.cancels[purchase.ID] = cancelDelivery
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.cancels, purchase.ID)
		s.mu.Unlock()
		cancelDelivery()
	}()

	commands := item.RenderCommands(models.DeliveryParams{
		PlayerID: req.PlayerID,
		MapName:  req.MapName,
		Quantity: req.Quantity,
	})

	for _, command := range commands {
		if _, err := s.dispatcher.Execute(deliveryCtx, req.ServerID, command, purchase.ID); err != nil {
			return s.refund(ctx, purchase, token, deliveryReason(err))
		}
	}

	if err := s.ledger.CommitReservation(ctx, token); err != nil {
		// Commit lost against a concurrent cancellation; the refund stands.
		log.WithFields(log.Fields{
			"purchase": purchase.ID,
			"token":    token,
		}).WithError(err).Warn("Reservation no longer committable, refunding purchase")
		return s.refund(ctx, purchase, token, "cancelled during delivery")
	}

	if err := s.settlePurchase(ctx, purchase, models.PurchaseStateDelivered, ""); err != nil {
		return nil, err
	}

	balance := s.balanceAfterSettlement(ctx, req.PlayerID)

	log.WithFields(log.Fields{
		"purchase": purchase.ID,
		"player":   req.PlayerID,
		"item":     req.ItemID,
		"server":   req.ServerID,
		"price":    price,
	}).Info("Purchase delivered")

	return &PurchaseResult{
		PurchaseID: purchase.ID,
		State:      models.PurchaseStateDelivered,
		Price:      price,
		NewBalance: balance,
	}, nil
}

// refund releases the hold and drives the purchase through failed into
// refunded, surfacing the failure reason to the caller.
func (s *shopService) refund(ctx context.Context, purchase *models.Purchase, token, reason string) (*PurchaseResult, error) {
	if err := s.ledger.ReleaseReservation(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to release reservation for purchase %s: %w", purchase.ID, err)
	}

	if err := s.settlePurchase(ctx, purchase, models.PurchaseStateFailed, reason); err != nil {
		log.WithField("purchase", purchase.ID).WithError(err).Error("Failed to record purchase failure")
	}
	if err := s.settlePurchase(ctx, purchase, models.PurchaseStateRefunded, reason); err != nil {
		return nil, err
	}

	balance := s.balanceAfterSettlement(ctx, purchase.PlayerID)

	log.WithFields(log.Fields{
		"purchase": purchase.ID,
		"player":   purchase.PlayerID,
		"item":     purchase.ItemID,
		"reason":   reason,
	}).Warn("Purchase refunded")

	return &PurchaseResult{
		PurchaseID: purchase.ID,
		State:      models.PurchaseStateRefunded,
		Price:      purchase.Price,
		NewBalance: balance,
		Reason:     reason,
	}, nil
}

// CancelPurchase refunds a purchase that has not settled yet. Delivered
// purchases cannot be cancelled; compensation goes through a separate refund
// flow.
func (s *shopService) CancelPurchase(ctx context.Context, purchaseID string) error {
	var purchase *models.Purchase
	err := s.withUnitOfWork(ctx, func(uow UnitOfWork) error {
		var err error
		purchase, err = uow.PurchaseRepository().GetByIDForUpdate(ctx, purchaseID)
		if err != nil {
			return err
		}
		if purchase == nil {
			return ErrPurchaseNotFound
		}
		if purchase.State != models.PurchaseStatePending && purchase.State != models.PurchaseStateReserved {
			return ErrPurchaseNotCancelable
		}
		return nil
	})
	if err != nil {
		return err
	}

	// An in-flight delivery is aborted through its context; the purchase
	// flow then takes its own refund path, so nothing is released twice.
	s.mu.Lock()
	cancelDelivery, inFlight := s.cancels[purchaseID]
	s.mu.Unlock()
	if inFlight {
		cancelDelivery()
		return nil
	}

	if purchase.ReservationToken != nil {
		if err := s.ledger.ReleaseReservation(ctx, *purchase.ReservationToken); err != nil {
			return fmt.Errorf("failed to release reservation: %w", err)
		}
	}
	return s.settlePurchase(ctx, purchase, models.PurchaseStateRefunded, "cancelled by caller")
}

// createPurchase persists the purchase row in its own transaction.
func (s *shopService) createPurchase(ctx context.Context, purchase *models.Purchase) error {
	return s.withUnitOfWork(ctx, func(uow UnitOfWork) error {
		return uow.PurchaseRepository().Create(ctx, purchase)
	})
}

// markReserved attaches the reservation to the pending purchase, failing
// when a concurrent cancel already settled it.
func (s *shopService) markReserved(ctx context.Context, purchase *models.Purchase, token string) error {
	return s.withUnitOfWork(ctx, func(uow UnitOfWork) error {
		if err := uow.PurchaseRepository().MarkReserved(ctx, purchase.ID, token); err != nil {
			return err
		}
		purchase.State = models.PurchaseStateReserved
		return nil
	})
}

// balanceAfterSettlement reads the balance for the purchase outcome. A read
// failure reports -1 rather than a misleading zero.
func (s *shopService) balanceAfterSettlement(ctx context.Context, playerID string) int64 {
	balance, err := s.ledger.GetBalance(ctx, playerID)
	if err != nil {
		log.WithField("player", playerID).WithError(err).Warn("Failed to read balance after settlement")
		return -1
	}
	return balance
}

// settlePurchase transitions the purchase and publishes the settlement event
// once it reaches a terminal state.
func (s *shopService) settlePurchase(ctx context.Context, purchase *models.Purchase, state models.PurchaseState, reason string) error {
	return s.withUnitOfWork(ctx, func(uow UnitOfWork) error {
		var reasonPtr *string
		if reason != "" {
			reasonPtr = &reason
		}
		if err := uow.PurchaseRepository().UpdateState(ctx, purchase.ID, state, reasonPtr); err != nil {
			return err
		}
		purchase.State = state

		if state.Terminal() {
			uow.EventBus().Publish(events.PurchaseSettledEvent{
				PurchaseID: purchase.ID,
				PlayerID:   purchase.PlayerID,
				ItemID:     purchase.ItemID,
				ServerID:   purchase.ServerID,
				Price:      purchase.Price,
				State:      state,
				Reason:     reason,
			})
		}
		return nil
	})
}

// deliveryReason maps a dispatch error to a caller-visible failure reason.
func deliveryReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "purchase timed out"
	case errors.Is(err, context.Canceled):
		return "cancelled by caller"
	default:
		return err.Error()
	}
}

// withUnitOfWork runs fn inside one transaction, committing on success.
func (s *shopService) withUnitOfWork(ctx context.Context, fn func(uow UnitOfWork) error) error {
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
