// Package eventbus carries committed ledger events to in-process
// subscribers. The outbox dispatcher is the only publisher in normal
// operation, so handlers always observe events after the owning
// transaction committed.
package eventbus

import (
	"context"
	"errors"
	"reflect"
	"sync"
)

// EventHandler consumes one committed ledger event.
type EventHandler func(ctx context.Context, event any) error

// EventBus fans committed ledger events out to subscribed handlers.
type EventBus interface {
	Publish(ctx context.Context, event any) error
	Subscribe(eventType string, handler EventHandler)
}

// ErrNilEvent rejects publishing a nil ledger event.
var ErrNilEvent = errors.New("eventbus: nil ledger event")

// ErrInvalidEventType rejects events whose type name cannot be derived.
var ErrInvalidEventType = errors.New("eventbus: invalid ledger event type")

// InMemoryBus delivers events synchronously within the process.
type InMemoryBus struct {
	mu          sync.RWMutex
	subscribers map[string][]EventHandler
}

// NewInMemoryBus constructs an empty bus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{subscribers: make(map[string][]EventHandler)}
}

// Publish hands the event to every subscriber of its type in
// subscription order. All handlers run even when one fails; the first
// handler error is reported so the dispatcher can mark the outbox row.
func (b *InMemoryBus) Publish(ctx context.Context, event any) error {
	if event == nil {
		return ErrNilEvent
	}
	topic := EventType(event)
	if topic == "" {
		return ErrInvalidEventType
	}

	b.mu.RLock()
	subscribers := make([]EventHandler, len(b.subscribers[topic]))
	copy(subscribers, b.subscribers[topic])
	b.mu.RUnlock()

	var firstErr error
	for _, handle := range subscribers {
		if err := handle(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Subscribe adds a handler for one event type. Empty types and nil
// handlers are ignored.
func (b *InMemoryBus) Subscribe(eventType string, handler EventHandler) {
	if eventType == "" || handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// EventType derives the bus topic for a ledger event value. The same
// name is written to the envelope's EventType field, so outbox rows,
// registry entries and bus subscriptions agree on naming.
func EventType(event any) string {
	if event == nil {
		return ""
	}
	t := reflect.TypeOf(event)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.String()
}

// EventTypeOf is EventType for a type parameter, for subscribing
// without constructing an event value.
func EventTypeOf[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.String()
}
