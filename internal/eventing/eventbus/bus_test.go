package eventbus

import (
	"context"
	"errors"
	"testing"
)

type busEvent struct {
	StationID int64
}

func TestEventTypeNaming(t *testing.T) {
	want := "eventbus.busEvent"
	if got := EventType(busEvent{}); got != want {
		t.Fatalf("value topic = %q, want %q", got, want)
	}
	if got := EventType(&busEvent{}); got != want {
		t.Fatalf("pointer topic = %q, want %q", got, want)
	}
	if got := EventTypeOf[busEvent](); got != want {
		t.Fatalf("type parameter topic = %q, want %q", got, want)
	}
	if got := EventTypeOf[*busEvent](); got != want {
		t.Fatalf("pointer type parameter topic = %q, want %q", got, want)
	}
	if got := EventType(nil); got != "" {
		t.Fatalf("nil event topic = %q", got)
	}
}

func TestPublishDeliversInSubscriptionOrder(t *testing.T) {
	bus := NewInMemoryBus()
	var order []string
	bus.Subscribe(EventTypeOf[busEvent](), func(ctx context.Context, event any) error {
		order = append(order, "first")
		return nil
	})
	bus.Subscribe(EventTypeOf[busEvent](), func(ctx context.Context, event any) error {
		order = append(order, "second")
		return nil
	})

	if err := bus.Publish(context.Background(), busEvent{StationID: 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("delivery order: %v", order)
	}
}

func TestPublishRunsAllHandlersOnFailure(t *testing.T) {
	bus := NewInMemoryBus()
	failure := errors.New("consumer down")
	delivered := 0
	bus.Subscribe(EventTypeOf[busEvent](), func(ctx context.Context, event any) error {
		delivered++
		return failure
	})
	bus.Subscribe(EventTypeOf[busEvent](), func(ctx context.Context, event any) error {
		delivered++
		return nil
	})

	err := bus.Publish(context.Background(), busEvent{})
	if !errors.Is(err, failure) {
		t.Fatalf("publish error = %v, want first handler error", err)
	}
	if delivered != 2 {
		t.Fatalf("delivered to %d handlers, want 2", delivered)
	}
}

func TestPublishRejectsNilEvent(t *testing.T) {
	bus := NewInMemoryBus()
	if err := bus.Publish(context.Background(), nil); !errors.Is(err, ErrNilEvent) {
		t.Fatalf("publish nil = %v", err)
	}
}
