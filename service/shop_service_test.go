package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/bebewat/wrecksshop/events"
	"github.com/bebewat/wrecksshop/models"
	"github.com/bebewat/wrecksshop/pool"
)

type staticCatalog struct {
	catalog *models.Catalog
}

func (s *staticCatalog) Catalog() *models.Catalog {
	return s.catalog
}

func testCatalog() CatalogProvider {
	return &staticCatalog{catalog: models.NewCatalog(
		[]models.ShopItem{
			{
				ID:               "rex_kit",
				Name:             "Rex Kit",
				Price:            1000,
				Category:         "dinos",
				Commands:         []string{"GiveItemToPlayer {player_id} rex_saddle 1", "SpawnDino {player_id} Rex {quantity}"},
				DiscountEligible: true,
			},
			{
				ID:       "metal_pack",
				Name:     "Metal Pack",
				Price:    200,
				Category: "resources",
				Commands: []string{"GiveItemToPlayer {player_id} metal 500"},
			},
		},
		[]models.Discount{
			{Type: models.DiscountTypeRole, Target: "VIP", Percent: 10},
		},
		"",
	)}
}

// newShopFixture wires a shop service with a mocked ledger, dispatcher and
// unit of work. The purchase repository mock accepts all writes.
func newShopFixture(t *testing.T) (ShopService, *MockLedgerService, *MockCommandDispatcher, *MockPurchaseRepository, *MockEventPublisher) {
	t.Helper()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockPurchaseRepo := new(MockPurchaseRepository)
	mockBus := new(MockEventPublisher)
	mockLedger := new(MockLedgerService)
	mockDispatcher := new(MockCommandDispatcher)

	mockUoW.SetRepositories(new(MockPlayerRepository), new(MockLedgerEntryRepository), new(MockReservationRepository), mockPurchaseRepo, mockBus)

	mockFactory.On("Create").Return(mockUoW).Maybe()
	mockUoW.On("Begin", mock.Anything).Return(nil).Maybe()
	mockUoW.On("Commit").Return(nil).Maybe()
	mockUoW.On("Rollback").Return(nil).Maybe()

	service := NewShopService(mockFactory, mockLedger, mockDispatcher, testCatalog(), ShopConfig{
		PurchaseTimeout: time.Second,
	})
	return service, mockLedger, mockDispatcher, mockPurchaseRepo, mockBus
}

func TestShopService_Purchase_Delivered(t *testing.T) {
	ctx := context.Background()
	service, mockLedger, mockDispatcher, mockPurchaseRepo, mockBus := newShopFixture(t)

	mockLedger.On("Reserve", ctx, "000266ef", int64(1000)).Return("tok-1", nil)
	// The purchase row is born pending, before any hold exists.
	mockPurchaseRepo.On("Create", ctx, mock.MatchedBy(func(p *models.Purchase) bool {
		return p.PlayerID == "000266ef" && p.ItemID == "rex_kit" && p.Price == 1000 &&
			p.State == models.PurchaseStatePending && p.ReservationToken == nil
	})).Return(nil)
	mockPurchaseRepo.On("MarkReserved", ctx, mock.AnythingOfType("string"), "tok-1").Return(nil)

	// Both delivery commands carry the purchase id as correlation id.
	mockDispatcher.On("Execute", mock.Anything, "ragnarok", "GiveItemToPlayer 000266ef rex_saddle 1", mock.AnythingOfType("string")).Return("ok", nil)
	mockDispatcher.On("Execute", mock.Anything, "ragnarok", "SpawnDino 000266ef Rex 1", mock.AnythingOfType("string")).Return("ok", nil)

	mockLedger.On("CommitReservation", ctx, "tok-1").Return(nil)
	mockPurchaseRepo.On("UpdateState", ctx, mock.AnythingOfType("string"), models.PurchaseStateDelivered, (*string)(nil)).Return(nil)
	mockBus.On("Publish", mock.MatchedBy(func(e events.Event) bool {
		ps, ok := e.(events.PurchaseSettledEvent)
		return ok && ps.State == models.PurchaseStateDelivered && ps.Price == 1000
	})).Return()
	mockLedger.On("GetBalance", ctx, "000266ef").Return(int64(500), nil)

	result, err := service.Purchase(ctx, PurchaseRequest{
		PlayerID: "000266ef",
		ItemID:   "rex_kit",
		ServerID: "ragnarok",
		MapName:  "Ragnarok",
	})

	assert.NoError(t, err)
	assert.Equal(t, models.PurchaseStateDelivered, result.State)
	assert.Equal(t, int64(1000), result.Price)
	assert.Equal(t, int64(500), result.NewBalance)
	mockLedger.AssertExpectations(t)
	mockDispatcher.AssertExpectations(t)
	mockPurchaseRepo.AssertExpectations(t)
	mockBus.AssertExpectations(t)
}

func TestShopService_Purchase_RoleDiscountApplied(t *testing.T) {
	ctx := context.Background()
	service, mockLedger, mockDispatcher, mockPurchaseRepo, mockBus := newShopFixture(t)

	// 10% VIP discount off 1000.
	mockLedger.On("Reserve", ctx, "p1", int64(900)).Return("tok-1", nil)
	mockPurchaseRepo.On("Create", ctx, mock.AnythingOfType("*models.Purchase")).Return(nil)
	mockPurchaseRepo.On("MarkReserved", ctx, mock.AnythingOfType("string"), "tok-1").Return(nil)
	mockDispatcher.On("Execute", mock.Anything, "island", mock.AnythingOfType("string"), mock.AnythingOfType("string")).Return("ok", nil)
	mockLedger.On("CommitReservation", ctx, "tok-1").Return(nil)
	mockPurchaseRepo.On("UpdateState", ctx, mock.AnythingOfType("string"), models.PurchaseStateDelivered, (*string)(nil)).Return(nil)
	mockBus.On("Publish", mock.Anything).Return()
	mockLedger.On("GetBalance", ctx, "p1").Return(int64(100), nil)

	result, err := service.Purchase(ctx, PurchaseRequest{
		PlayerID: "p1",
		ItemID:   "rex_kit",
		ServerID: "island",
		Roles:    []string{"VIP"},
	})

	assert.NoError(t, err)
	assert.Equal(t, int64(900), result.Price)
	mockLedger.AssertExpectations(t)
}

func TestShopService_Purchase_UnknownItem(t *testing.T) {
	ctx := context.Background()
	service, mockLedger, _, _, _ := newShopFixture(t)

	_, err := service.Purchase(ctx, PurchaseRequest{PlayerID: "p1", ItemID: "no_such_item", ServerID: "island"})

	assert.ErrorIs(t, err, ErrItemNotFound)
	mockLedger.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything, mock.Anything)
}

func TestShopService_Purchase_InsufficientFunds(t *testing.T) {
	ctx := context.Background()
	service, mockLedger, mockDispatcher, mockPurchaseRepo, mockBus := newShopFixture(t)

	mockPurchaseRepo.On("Create", ctx, mock.MatchedBy(func(p *models.Purchase) bool {
		return p.State == models.PurchaseStatePending
	})).Return(nil)
	mockLedger.On("Reserve", ctx, "p1", int64(200)).Return("", ErrInsufficientBalance)
	mockPurchaseRepo.On("UpdateState", ctx, mock.AnythingOfType("string"), models.PurchaseStateRefunded, mock.MatchedBy(func(reason *string) bool {
		return reason != nil && *reason == "insufficient balance"
	})).Return(nil)
	mockBus.On("Publish", mock.Anything).Return()

	_, err := service.Purchase(ctx, PurchaseRequest{PlayerID: "p1", ItemID: "metal_pack", ServerID: "island"})

	assert.ErrorIs(t, err, ErrInsufficientBalance)
	// Funding failures terminalize the purchase without reaching a server.
	mockDispatcher.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockPurchaseRepo.AssertNotCalled(t, "MarkReserved", mock.Anything, mock.Anything, mock.Anything)
	mockPurchaseRepo.AssertExpectations(t)
}

func TestShopService_Purchase_DeliveryFailureRefunds(t *testing.T) {
	ctx := context.Background()
	service, mockLedger, mockDispatcher, mockPurchaseRepo, mockBus := newShopFixture(t)

	mockLedger.On("Reserve", ctx, "p1", int64(200)).Return("tok-9", nil)
	mockPurchaseRepo.On("Create", ctx, mock.AnythingOfType("*models.Purchase")).Return(nil)
	mockPurchaseRepo.On("MarkReserved", ctx, mock.AnythingOfType("string"), "tok-9").Return(nil)
	mockDispatcher.On("Execute", mock.Anything, "island", mock.AnythingOfType("string"), mock.AnythingOfType("string")).
		Return("", pool.ErrDeliveryFailed)

	mockLedger.On("ReleaseReservation", ctx, "tok-9").Return(nil)
	mockPurchaseRepo.On("UpdateState", ctx, mock.AnythingOfType("string"), models.PurchaseStateFailed, mock.AnythingOfType("*string")).Return(nil)
	mockPurchaseRepo.On("UpdateState", ctx, mock.AnythingOfType("string"), models.PurchaseStateRefunded, mock.AnythingOfType("*string")).Return(nil)
	mockBus.On("Publish", mock.MatchedBy(func(e events.Event) bool {
		ps, ok := e.(events.PurchaseSettledEvent)
		return ok && ps.State == models.PurchaseStateRefunded && ps.Reason != ""
	})).Return()
	mockLedger.On("GetBalance", ctx, "p1").Return(int64(1000), nil)

	result, err := service.Purchase(ctx, PurchaseRequest{PlayerID: "p1", ItemID: "metal_pack", ServerID: "island"})

	assert.NoError(t, err)
	assert.Equal(t, models.PurchaseStateRefunded, result.State)
	assert.NotEmpty(t, result.Reason)
	mockLedger.AssertExpectations(t)
	// The reservation is never committed on a failed delivery.
	mockLedger.AssertNotCalled(t, "CommitReservation", mock.Anything, mock.Anything)
}

func TestShopService_Purchase_DuplicateInFlight(t *testing.T) {
	ctx := context.Background()
	service, mockLedger, mockDispatcher, mockPurchaseRepo, mockBus := newShopFixture(t)

	started := make(chan struct{})
	release := make(chan struct{})

	mockLedger.On("Reserve", ctx, "p1", int64(200)).Return("tok-1", nil)
	mockPurchaseRepo.On("Create", ctx, mock.AnythingOfType("*models.Purchase")).Return(nil)
	mockPurchaseRepo.On("MarkReserved", ctx, mock.AnythingOfType("string"), "tok-1").Return(nil)
	// Block the first purchase mid-delivery so the duplicate arrives while
	// it is still in flight.
	mockDispatcher.On("Execute", mock.Anything, "island", mock.AnythingOfType("string"), mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) {
			close(started)
			<-release
		}).Return("ok", nil)
	mockLedger.On("CommitReservation", ctx, "tok-1").Return(nil)
	mockPurchaseRepo.On("UpdateState", ctx, mock.AnythingOfType("string"), models.PurchaseStateDelivered, (*string)(nil)).Return(nil)
	mockBus.On("Publish", mock.Anything).Return()
	mockLedger.On("GetBalance", ctx, "p1").Return(int64(0), nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := service.Purchase(ctx, PurchaseRequest{PlayerID: "p1", ItemID: "metal_pack", ServerID: "island"})
		assert.NoError(t, err)
	}()

	<-started
	_, err := service.Purchase(ctx, PurchaseRequest{PlayerID: "p1", ItemID: "metal_pack", ServerID: "island"})
	assert.ErrorIs(t, err, ErrPurchaseInFlight)

	close(release)
	wg.Wait()

	// The two delivery commands belong to exactly one purchase.
	mockLedger.AssertNumberOfCalls(t, "Reserve", 1)
}

func TestShopService_Purchase_CommitConflictRefunds(t *testing.T) {
	ctx := context.Background()
	service, mockLedger, mockDispatcher, mockPurchaseRepo, mockBus := newShopFixture(t)

	mockLedger.On("Reserve", ctx, "p1", int64(200)).Return("tok-1", nil)
	mockPurchaseRepo.On("Create", ctx, mock.AnythingOfType("*models.Purchase")).Return(nil)
	mockPurchaseRepo.On("MarkReserved", ctx, mock.AnythingOfType("string"), "tok-1").Return(nil)
	mockDispatcher.On("Execute", mock.Anything, "island", mock.AnythingOfType("string"), mock.AnythingOfType("string")).Return("ok", nil)

	// A concurrent cancellation released the hold before commit.
	mockLedger.On("CommitReservation", ctx, "tok-1").Return(ErrReservationReleased)
	mockLedger.On("ReleaseReservation", ctx, "tok-1").Return(nil)
	mockPurchaseRepo.On("UpdateState", ctx, mock.AnythingOfType("string"), mock.AnythingOfType("models.PurchaseState"), mock.Anything).Return(nil)
	mockBus.On("Publish", mock.Anything).Return()
	mockLedger.On("GetBalance", ctx, "p1").Return(int64(200), nil)

	result, err := service.Purchase(ctx, PurchaseRequest{PlayerID: "p1", ItemID: "metal_pack", ServerID: "island"})

	assert.NoError(t, err)
	assert.Equal(t, models.PurchaseStateRefunded, result.State)
}

func TestShopService_CancelPurchase(t *testing.T) {
	ctx := context.Background()
	service, mockLedger, _, mockPurchaseRepo, mockBus := newShopFixture(t)

	token := "tok-5"
	reserved := &models.Purchase{
		ID:               "purch-1",
		PlayerID:         "p1",
		ItemID:           "metal_pack",
		Price:            200,
		State:            models.PurchaseStateReserved,
		ReservationToken: &token,
	}
	mockPurchaseRepo.On("GetByIDForUpdate", ctx, "purch-1").Return(reserved, nil)
	mockLedger.On("ReleaseReservation", ctx, "tok-5").Return(nil)
	mockPurchaseRepo.On("UpdateState", ctx, "purch-1", models.PurchaseStateRefunded, mock.AnythingOfType("*string")).Return(nil)
	mockBus.On("Publish", mock.AnythingOfType("events.PurchaseSettledEvent")).Return()

	assert.NoError(t, service.CancelPurchase(ctx, "purch-1"))
	mockLedger.AssertExpectations(t)
	mockPurchaseRepo.AssertExpectations(t)
}

func TestShopService_CancelPurchase_AbortsInFlightDelivery(t *testing.T) {
	ctx := context.Background()
	service, mockLedger, mockDispatcher, mockPurchaseRepo, mockBus := newShopFixture(t)

	started := make(chan struct{})
	reserved := &models.Purchase{State: models.PurchaseStateReserved}

	mockLedger.On("Reserve", ctx, "p1", int64(200)).Return("tok-1", nil)
	mockPurchaseRepo.On("Create", ctx, mock.AnythingOfType("*models.Purchase")).
		Run(func(args mock.Arguments) {
			p := args.Get(1).(*models.Purchase)
			reserved.ID = p.ID
			reserved.PlayerID = p.PlayerID
		}).Return(nil)
	mockPurchaseRepo.On("MarkReserved", ctx, mock.AnythingOfType("string"), "tok-1").Return(nil)

	// Delivery hangs until its context is cancelled.
	mockDispatcher.On("Execute", mock.Anything, "island", mock.AnythingOfType("string"), mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) {
			close(started)
			<-args.Get(0).(context.Context).Done()
		}).Return("", context.Canceled)

	mockPurchaseRepo.On("GetByIDForUpdate", ctx, mock.AnythingOfType("string")).Return(reserved, nil)
	mockLedger.On("ReleaseReservation", ctx, "tok-1").Return(nil)
	mockPurchaseRepo.On("UpdateState", ctx, mock.AnythingOfType("string"), models.PurchaseStateFailed, mock.AnythingOfType("*string")).Return(nil)
	mockPurchaseRepo.On("UpdateState", ctx, mock.AnythingOfType("string"), models.PurchaseStateRefunded, mock.AnythingOfType("*string")).Return(nil)
	mockBus.On("Publish", mock.Anything).Return()
	mockLedger.On("GetBalance", ctx, "p1").Return(int64(200), nil)

	results := make(chan *PurchaseResult, 1)
	go func() {
		result, err := service.Purchase(ctx, PurchaseRequest{PlayerID: "p1", ItemID: "metal_pack", ServerID: "island"})
		assert.NoError(t, err)
		results <- result
	}()

	<-started
	assert.NoError(t, service.CancelPurchase(ctx, reserved.ID))

	result := <-results
	assert.Equal(t, models.PurchaseStateRefunded, result.State)
	assert.Equal(t, "cancelled by caller", result.Reason)
	// The aborted delivery is never committed, so nothing is given for free.
	mockLedger.AssertNotCalled(t, "CommitReservation", mock.Anything, mock.Anything)
	mockLedger.AssertNumberOfCalls(t, "ReleaseReservation", 1)
}

func TestShopService_Purchase_BalanceReadFailureNotZero(t *testing.T) {
	ctx := context.Background()
	service, mockLedger, mockDispatcher, mockPurchaseRepo, mockBus := newShopFixture(t)

	mockLedger.On("Reserve", ctx, "p1", int64(200)).Return("tok-1", nil)
	mockPurchaseRepo.On("Create", ctx, mock.AnythingOfType("*models.Purchase")).Return(nil)
	mockPurchaseRepo.On("MarkReserved", ctx, mock.AnythingOfType("string"), "tok-1").Return(nil)
	mockDispatcher.On("Execute", mock.Anything, "island", mock.AnythingOfType("string"), mock.AnythingOfType("string")).Return("ok", nil)
	mockLedger.On("CommitReservation", ctx, "tok-1").Return(nil)
	mockPurchaseRepo.On("UpdateState", ctx, mock.AnythingOfType("string"), models.PurchaseStateDelivered, (*string)(nil)).Return(nil)
	mockBus.On("Publish", mock.Anything).Return()
	mockLedger.On("GetBalance", ctx, "p1").Return(int64(0), errors.New("connection refused"))

	result, err := service.Purchase(ctx, PurchaseRequest{PlayerID: "p1", ItemID: "metal_pack", ServerID: "island"})

	assert.NoError(t, err)
	assert.Equal(t, models.PurchaseStateDelivered, result.State)
	// An unreadable balance must not be reported as an empty account.
	assert.Equal(t, int64(-1), result.NewBalance)
}

func TestShopService_CancelPurchase_DeliveredNotCancelable(t *testing.T) {
	ctx := context.Background()
	service, mockLedger, _, mockPurchaseRepo, _ := newShopFixture(t)

	delivered := &models.Purchase{ID: "purch-2", State: models.PurchaseStateDelivered}
	mockPurchaseRepo.On("GetByIDForUpdate", ctx, "purch-2").Return(delivered, nil)

	err := service.CancelPurchase(ctx, "purch-2")

	assert.ErrorIs(t, err, ErrPurchaseNotCancelable)
	mockLedger.AssertNotCalled(t, "ReleaseReservation", mock.Anything, mock.Anything)
}

func TestShopService_CancelPurchase_NotFound(t *testing.T) {
	ctx := context.Background()
	service, _, _, mockPurchaseRepo, _ := newShopFixture(t)

	mockPurchaseRepo.On("GetByIDForUpdate", ctx, "missing").Return(nil, nil)

	err := service.CancelPurchase(ctx, "missing")
	assert.ErrorIs(t, err, ErrPurchaseNotFound)
}
