package service

import (
	"context"
	"time"

	"github.com/bebewat/wrecksshop/events"
	"github.com/bebewat/wrecksshop/models"
	"github.com/bebewat/wrecksshop/rcon"
)

// PlayerRepository defines the interface for player data access
type PlayerRepository interface {
	// GetByID retrieves a player by their platform account id
	GetByID(ctx context.Context, playerID string) (*models.Player, error)

	// GetByIDForUpdate retrieves a player and locks the row until the
	// surrounding transaction ends
	GetByIDForUpdate(ctx context.Context, playerID string) (*models.Player, error)

	// GetByDiscordID retrieves a player by their linked Discord account
	GetByDiscordID(ctx context.Context, discordID int64) (*models.Player, error)

	// Create creates a new player with a zero balance
	Create(ctx context.Context, playerID string) (*models.Player, error)

	// UpdateBalance sets the cached balance
	UpdateBalance(ctx context.Context, playerID string, newBalance int64) error

	// LinkDiscordAccount attaches a Discord account id to a player
	LinkDiscordAccount(ctx context.Context, playerID string, discordID int64) error

	// Deactivate marks a player inactive
	Deactivate(ctx context.Context, playerID string) error
}

// LedgerEntryRepository defines the interface for the append-only audit trail
type LedgerEntryRepository interface {
	// Record appends one entry
	Record(ctx context.Context, entry *models.LedgerEntry) error

	// GetByPlayer returns the most recent entries for a player
	GetByPlayer(ctx context.Context, playerID string, limit int) ([]*models.LedgerEntry, error)

	// SumByPlayer replays the history into a balance
	SumByPlayer(ctx context.Context, playerID string) (int64, error)
}

// ReservationRepository defines the interface for point holds
type ReservationRepository interface {
	// Create persists a new held reservation
	Create(ctx context.Context, res *models.Reservation) error

	// GetByTokenForUpdate retrieves and locks a reservation
	GetByTokenForUpdate(ctx context.Context, token string) (*models.Reservation, error)

	// Settle moves a reservation into a terminal state
	Settle(ctx context.Context, token string, state models.ReservationState) error

	// GetStaleHeld returns held reservations created before the cutoff
	GetStaleHeld(ctx context.Context, cutoff time.Time) ([]*models.Reservation, error)
}

// PurchaseRepository defines the interface for purchase history
type PurchaseRepository interface {
	// Create persists a new purchase
	Create(ctx context.Context, purchase *models.Purchase) error

	// GetByID retrieves a purchase
	GetByID(ctx context.Context, id string) (*models.Purchase, error)

	// GetByIDForUpdate retrieves and locks a purchase
	GetByIDForUpdate(ctx context.Context, id string) (*models.Purchase, error)

	// MarkReserved attaches the reservation token to a pending purchase
	// and moves it to reserved
	MarkReserved(ctx context.Context, id, token string) error

	// UpdateState transitions an unsettled purchase
	UpdateState(ctx context.Context, id string, state models.PurchaseState, reason *string) error

	// GetByPlayer returns a player's purchases, newest first
	GetByPlayer(ctx context.Context, playerID string, limit int) ([]*models.Purchase, error)
}

// EventPublisher publishes events that are held until the surrounding
// transaction commits
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork represents one database transaction with its repositories
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	PlayerRepository() PlayerRepository
	LedgerEntryRepository() LedgerEntryRepository
	ReservationRepository() ReservationRepository
	PurchaseRepository() PurchaseRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory creates units of work
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// LedgerService owns player balances and the audit trail. Every mutation
// appends exactly one ledger entry and updates the cached balance in the
// same transaction.
type LedgerService interface {
	// Credit adds points to a player, creating them on first activity
	Credit(ctx context.Context, playerID string, amount int64, reason models.EntryReason) (int64, error)

	// CreditDonation adds donated points exactly once per provider
	// transaction id; a replay returns ErrDuplicateDonation.
	CreditDonation(ctx context.Context, playerID string, amount int64, transactionID string) (int64, error)

	// EnsurePlayer creates the player row on first observed activity
	// without touching the balance
	EnsurePlayer(ctx context.Context, playerID string) error

	// Debit removes points, failing on insufficient balance
	Debit(ctx context.Context, playerID string, amount int64, reason models.EntryReason) (int64, error)

	// Reserve holds points for an in-flight purchase and returns the token
	Reserve(ctx context.Context, playerID string, amount int64) (string, error)

	// CommitReservation makes a held debit permanent. Replays on an already
	// committed token are no-ops; a released token returns
	// ErrReservationReleased.
	CommitReservation(ctx context.Context, token string) error

	// ReleaseReservation returns held points unchanged. Settled tokens are
	// a no-op, not an error.
	ReleaseReservation(ctx context.Context, token string) error

	// Transfer moves points between two players
	Transfer(ctx context.Context, fromPlayerID, toPlayerID string, amount int64) error

	// GetBalance returns the cached balance
	GetBalance(ctx context.Context, playerID string) (int64, error)

	// GetHistory returns the most recent ledger entries
	GetHistory(ctx context.Context, playerID string, limit int) ([]*models.LedgerEntry, error)

	// GetPlayerByDiscordID resolves a linked Discord account
	GetPlayerByDiscordID(ctx context.Context, discordID int64) (*models.Player, error)

	// LinkDiscordAccount attaches a Discord account to a player, creating
	// the player on first link
	LinkDiscordAccount(ctx context.Context, playerID string, discordID int64) error

	// ReleaseStaleReservations releases holds older than maxAge. Run at
	// startup to reconcile reservations orphaned by a crash.
	ReleaseStaleReservations(ctx context.Context, maxAge time.Duration) (int, error)
}

// PurchaseRequest is one purchase submission from the Discord layer.
type PurchaseRequest struct {
	PlayerID string
	ItemID   string
	ServerID string
	MapName  string
	Quantity int
	// Roles are the buyer's Discord role names, used for discount
	// eligibility only.
	Roles []string
}

// PurchaseResult is the explicit outcome of a purchase attempt. Reason is
// set for every non-delivered state; silent failure is prohibited.
type PurchaseResult struct {
	PurchaseID string
	State      models.PurchaseState
	Price      int64
	// NewBalance is the balance after settlement, or -1 when it could not
	// be read. It is never reported as zero on a read failure.
	NewBalance int64
	Reason     string
}

// ShopService coordinates purchases: validate, reserve, deliver, settle.
type ShopService interface {
	// Purchase runs one shop transaction end to end
	Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error)

	// CancelPurchase refunds a purchase that has not been delivered yet
	CancelPurchase(ctx context.Context, purchaseID string) error
}

// CommandDispatcher delivers commands to game servers through the per-server
// queues. Implemented by *pool.ServerPool.
type CommandDispatcher interface {
	Execute(ctx context.Context, serverID, command, correlationID string) (string, error)
	ServerState(serverID string) rcon.State
	ServerIDs() []string
}
