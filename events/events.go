package events

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/bebewat/wrecksshop/models"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeBalanceChange     EventType = "balance_change"
	EventTypePlayerCreated     EventType = "player_created"
	EventTypePurchaseSettled   EventType = "purchase_settled"
	EventTypeServerStateChange EventType = "server_state_change"
	EventTypePointsAccrued     EventType = "points_accrued"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// BalanceChangeEvent represents a balance change that occurred
type BalanceChangeEvent struct {
	PlayerID   string
	Amount     int64
	NewBalance int64
	Reason     models.EntryReason
}

func (e BalanceChangeEvent) Type() EventType {
	return EventTypeBalanceChange
}

// PlayerCreatedEvent represents a new player row being created on first
// observed activity
type PlayerCreatedEvent struct {
	PlayerID  string
	DiscordID *int64
}

func (e PlayerCreatedEvent) Type() EventType {
	return EventTypePlayerCreated
}

// PurchaseSettledEvent fires when a purchase reaches a terminal state
type PurchaseSettledEvent struct {
	PurchaseID string
	PlayerID   string
	ItemID     string
	ServerID   string
	Price      int64
	State      models.PurchaseState
	Reason     string
}

func (e PurchaseSettledEvent) Type() EventType {
	return EventTypePurchaseSettled
}

// ServerStateChangeEvent mirrors an RCON session liveness transition
type ServerStateChangeEvent struct {
	ServerID string
	OldState string
	NewState string
}

func (e ServerStateChangeEvent) Type() EventType {
	return EventTypeServerStateChange
}

// PointsAccruedEvent summarizes one playtime accrual poll of a server
type PointsAccruedEvent struct {
	ServerID     string
	PlayersSeen  int
	TotalCredits int64
}

func (e PointsAccruedEvent) Type() EventType {
	return EventTypePointsAccrued
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Emit publishes an event to all registered handlers
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	// Call handlers asynchronously to avoid blocking
	for _, handler := range handlers {
		go func(h Handler) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType": event.Type(),
						"panic":     r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler)
	}
}

// A transactional event bus for holding pending events coupled to the Unit of Work.
// Flushes to the underlying event bus.
type TransactionalBus struct {
	real    *Bus
	pending []Event // stashed until Flush
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	b.pending = append(b.pending, e)
}

// called after successful DB commit
func (b *TransactionalBus) Flush(ctx context.Context) error {
	// Events outlive the transaction context that produced them.
	eventCtx := context.Background()
	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
	return nil
}

// called after db rollback or to clear state.
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
