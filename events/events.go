package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"stockbet/models"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeBalanceChange     EventType = "balance_change"
	EventTypeUserCreated       EventType = "user_created"
	EventTypeBetPlaced         EventType = "bet_placed"
	EventTypeMarketStateChange EventType = "market_state_change"
	EventTypeMarketSettled     EventType = "market_settled"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// BalanceChangeEvent represents a wallet balance change that occurred
type BalanceChangeEvent struct {
	WalletID        uuid.UUID
	TransactionType models.TransactionType
	Amount          decimal.Decimal
	BalanceAfter    decimal.Decimal
	Reference       string
}

func (e BalanceChangeEvent) Type() EventType {
	return EventTypeBalanceChange
}

// UserCreatedEvent represents a new user and wallet creation
type UserCreatedEvent struct {
	UserID   uuid.UUID
	WalletID uuid.UUID
	Email    string
}

func (e UserCreatedEvent) Type() EventType {
	return EventTypeUserCreated
}

// BetPlacedEvent represents a bet that was placed
type BetPlacedEvent struct {
	BetID    uuid.UUID
	UserID   uuid.UUID
	MarketID uuid.UUID
	Outcome  models.Outcome
	Amount   decimal.Decimal
}

func (e BetPlacedEvent) Type() EventType {
	return EventTypeBetPlaced
}

// MarketStateChangeEvent represents a market lifecycle transition
type MarketStateChangeEvent struct {
	MarketID   uuid.UUID
	OldStatus  models.MarketStatus
	NewStatus  models.MarketStatus
	Resolution models.Outcome
}

func (e MarketStateChangeEvent) Type() EventType {
	return EventTypeMarketStateChange
}

// MarketSettledEvent represents a completed settlement pass
type MarketSettledEvent struct {
	MarketID   uuid.UUID
	Resolution models.Outcome
	Pool       decimal.Decimal
	TotalPaid  decimal.Decimal
	Rake       decimal.Decimal
	BetCount   int
}

func (e MarketSettledEvent) Type() EventType {
	return EventTypeMarketSettled
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

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
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

// TransactionalBus holds pending events coupled to a unit of work and
// flushes them to the underlying bus only after the transaction commits.
type TransactionalBus struct {
	real    *Bus
	pending []Event
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	b.pending = append(b.pending, e)
}

// Flush is called after a successful DB commit. Events are emitted on a
// background context so they outlive the transaction's context.
func (b *TransactionalBus) Flush(ctx context.Context) {
	eventCtx := context.Background()
	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
}

// Discard drops pending events after a rollback.
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
