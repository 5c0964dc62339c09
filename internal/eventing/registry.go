package eventing

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"gridmarket/internal/eventing/eventbus"
)

// Registry knows the concrete Go type behind each envelope EventType,
// so outbox rows can be decoded back into the typed ledger events
// handlers expect. Types register under the same name the bus uses as
// a topic.
type Registry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]reflect.Type)}
}

// Register binds a sample event value (or pointer to one) to its
// envelope type name.
func (r *Registry) Register(sample any) {
	if r == nil || sample == nil {
		return
	}
	t := reflect.TypeOf(sample)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	r.mu.Lock()
	r.types[eventbus.EventType(sample)] = t
	r.mu.Unlock()
}

// DecodePayload reconstructs the typed event stored in an envelope.
// Envelopes whose type was never registered stay undecodable and the
// dispatcher marks their outbox rows failed.
func (r *Registry) DecodePayload(env Envelope) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("eventing: nil registry")
	}
	r.mu.RLock()
	t, ok := r.types[env.EventType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("eventing: no event registered as %q", env.EventType)
	}
	value := reflect.New(t)
	if err := json.Unmarshal(env.Payload, value.Interface()); err != nil {
		return nil, fmt.Errorf("eventing: decode %s: %w", env.EventType, err)
	}
	return value.Elem().Interface(), nil
}
