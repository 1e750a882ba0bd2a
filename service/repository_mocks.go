package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/bebewat/wrecksshop/events"
	"github.com/bebewat/wrecksshop/models"
	"github.com/bebewat/wrecksshop/rcon"
)

// MockPlayerRepository is a mock implementation of PlayerRepository
type MockPlayerRepository struct {
	mock.Mock
}

func (m *MockPlayerRepository) GetByID(ctx context.Context, playerID string) (*models.Player, error) {
	args := m.Called(ctx, playerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Player), args.Error(1)
}

func (m *MockPlayerRepository) GetByIDForUpdate(ctx context.Context, playerID string) (*models.Player, error) {
	args := m.Called(ctx, playerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Player), args.Error(1)
}

func (m *MockPlayerRepository) GetByDiscordID(ctx context.Context, discordID int64) (*models.Player, error) {
	args := m.Called(ctx, discordID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Player), args.Error(1)
}

func (m *MockPlayerRepository) Create(ctx context.Context, playerID string) (*models.Player, error) {
	args := m.Called(ctx, playerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Player), args.Error(1)
}

func (m *MockPlayerRepository) UpdateBalance(ctx context.Context, playerID string, newBalance int64) error {
	args := m.Called(ctx, playerID, newBalance)
	return args.Error(0)
}

func (m *MockPlayerRepository) LinkDiscordAccount(ctx context.Context, playerID string, discordID int64) error {
	args := m.Called(ctx, playerID, discordID)
	return args.Error(0)
}

func (m *MockPlayerRepository) Deactivate(ctx context.Context, playerID string) error {
	args := m.Called(ctx, playerID)
	return args.Error(0)
}

// MockLedgerEntryRepository is a mock implementation of LedgerEntryRepository
type MockLedgerEntryRepository struct {
	mock.Mock
}

func (m *MockLedgerEntryRepository) Record(ctx context.Context, entry *models.LedgerEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockLedgerEntryRepository) GetByPlayer(ctx context.Context, playerID string, limit int) ([]*models.LedgerEntry, error) {
	args := m.Called(ctx, playerID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LedgerEntry), args.Error(1)
}

func (m *MockLedgerEntryRepository) SumByPlayer(ctx context.Context, playerID string) (int64, error) {
	args := m.Called(ctx, playerID)
	return args.Get(0).(int64), args.Error(1)
}

// MockReservationRepository is a mock implementation of ReservationRepository
type MockReservationRepository struct {
	mock.Mock
}

func (m *MockReservationRepository) Create(ctx context.Context, res *models.Reservation) error {
	args := m.Called(ctx, res)
	return args.Error(0)
}

func (m *MockReservationRepository) GetByTokenForUpdate(ctx context.Context, token string) (*models.Reservation, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reservation), args.Error(1)
}

func (m *MockReservationRepository) Settle(ctx context.Context, token string, state models.ReservationState) error {
	args := m.Called(ctx, token, state)
	return args.Error(0)
}

func (m *MockReservationRepository) GetStaleHeld(ctx context.Context, cutoff time.Time) ([]*models.Reservation, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Reservation), args.Error(1)
}

// MockPurchaseRepository is a mock implementation of PurchaseRepository
type MockPurchaseRepository struct {
	mock.Mock
}

func (m *MockPurchaseRepository) Create(ctx context.Context, purchase *models.Purchase) error {
	args := m.Called(ctx, purchase)
	return args.Error(0)
}

func (m *MockPurchaseRepository) GetByID(ctx context.Context, id string) (*models.Purchase, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Purchase), args.Error(1)
}

func (m *MockPurchaseRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Purchase, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Purchase), args.Error(1)
}

func (m *MockPurchaseRepository) MarkReserved(ctx context.Context, id, token string) error {
	args := m.Called(ctx, id, token)
	return args.Error(0)
}

func (m *MockPurchaseRepository) UpdateState(ctx context.Context, id string, state models.PurchaseState, reason *string) error {
	args := m.Called(ctx, id, state, reason)
	return args.Error(0)
}

func (m *MockPurchaseRepository) GetByPlayer(ctx context.Context, playerID string, limit int) ([]*models.Purchase, error) {
	args := m.Called(ctx, playerID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Purchase), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher for testing
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) {
	m.Called(event)
}

// MockUnitOfWork is a mock implementation of UnitOfWork. SetRepositories
// wires in the repository mocks a test wants to drive.
type MockUnitOfWork struct {
	mock.Mock

	players      PlayerRepository
	entries      LedgerEntryRepository
	reservations ReservationRepository
	purchases    PurchaseRepository
	bus          EventPublisher
}

func (m *MockUnitOfWork) SetRepositories(players PlayerRepository, entries LedgerEntryRepository, reservations ReservationRepository, purchases PurchaseRepository, bus EventPublisher) {
	m.players = players
	m.entries = entries
	m.reservations = reservations
	m.purchases = purchases
	m.bus = bus
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) PlayerRepository() PlayerRepository {
	return m.players
}

func (m *MockUnitOfWork) LedgerEntryRepository() LedgerEntryRepository {
	return m.entries
}

func (m *MockUnitOfWork) ReservationRepository() ReservationRepository {
	return m.reservations
}

func (m *MockUnitOfWork) PurchaseRepository() PurchaseRepository {
	return m.purchases
}

func (m *MockUnitOfWork) EventBus() EventPublisher {
	return m.bus
}

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}

// MockCommandDispatcher is a mock implementation of CommandDispatcher
type MockCommandDispatcher struct {
	mock.Mock
}

func (m *MockCommandDispatcher) Execute(ctx context.Context, serverID, command, correlationID string) (string, error) {
	args := m.Called(ctx, serverID, command, correlationID)
	return args.String(0), args.Error(1)
}

func (m *MockCommandDispatcher) ServerState(serverID string) rcon.State {
	args := m.Called(serverID)
	return args.Get(0).(rcon.State)
}

func (m *MockCommandDispatcher) ServerIDs() []string {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]string)
}

// MockLedgerService is a mock implementation of LedgerService
type MockLedgerService struct {
	mock.Mock
}

func (m *MockLedgerService) Credit(ctx context.Context, playerID string, amount int64, reason models.EntryReason) (int64, error) {
	args := m.Called(ctx, playerID, amount, reason)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerService) CreditDonation(ctx context.Context, playerID string, amount int64, transactionID string) (int64, error) {
	args := m.Called(ctx, playerID, amount, transactionID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerService) EnsurePlayer(ctx context.Context, playerID string) error {
	args := m.Called(ctx, playerID)
	return args.Error(0)
}

func (m *MockLedgerService) Debit(ctx context.Context, playerID string, amount int64, reason models.EntryReason) (int64, error) {
	args := m.Called(ctx, playerID, amount, reason)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerService) Reserve(ctx context.Context, playerID string, amount int64) (string, error) {
	args := m.Called(ctx, playerID, amount)
	return args.String(0), args.Error(1)
}

func (m *MockLedgerService) CommitReservation(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockLedgerService) ReleaseReservation(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockLedgerService) Transfer(ctx context.Context, fromPlayerID, toPlayerID string, amount int64) error {
	args := m.Called(ctx, fromPlayerID, toPlayerID, amount)
	return args.Error(0)
}

func (m *MockLedgerService) GetBalance(ctx context.Context, playerID string) (int64, error) {
	args := m.Called(ctx, playerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerService) GetHistory(ctx context.Context, playerID string, limit int) ([]*models.LedgerEntry, error) {
	args := m.Called(ctx, playerID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LedgerEntry), args.Error(1)
}

func (m *MockLedgerService) GetPlayerByDiscordID(ctx context.Context, discordID int64) (*models.Player, error) {
	args := m.Called(ctx, discordID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Player), args.Error(1)
}

func (m *MockLedgerService) LinkDiscordAccount(ctx context.Context, playerID string, discordID int64) error {
	args := m.Called(ctx, playerID, discordID)
	return args.Error(0)
}

func (m *MockLedgerService) ReleaseStaleReservations(ctx context.Context, maxAge time.Duration) (int, error) {
	args := m.Called(ctx, maxAge)
	return args.Int(0), args.Error(1)
}
