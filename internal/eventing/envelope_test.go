package eventing

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

type sampleEvent struct {
	StationID int64  `json:"station_id"`
	Name      string `json:"name"`
}

func TestBuildEnvelope(t *testing.T) {
	occurred := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env, err := BuildEnvelope(sampleEvent{StationID: 3, Name: "n"}, Meta{
		Actor:      "org-a",
		StationID:  3,
		OccurredAt: occurred,
	})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	if env.EventType != "eventing.sampleEvent" {
		t.Fatalf("event type = %q", env.EventType)
	}
	if env.EventID == "" {
		t.Fatalf("event id not assigned")
	}
	if env.CorrelationID != env.EventID {
		t.Fatalf("correlation id should default to event id")
	}
	if env.SchemaVersion != 1 {
		t.Fatalf("schema version = %d", env.SchemaVersion)
	}
	if !env.OccurredAt.Equal(occurred) {
		t.Fatalf("occurred at = %v", env.OccurredAt)
	}

	var decoded sampleEvent
	if err := json.Unmarshal(env.Payload, &decoded); err != nil {
		t.Fatalf("payload decode: %v", err)
	}
	if decoded.StationID != 3 || decoded.Name != "n" {
		t.Fatalf("payload round trip: %+v", decoded)
	}
}

func TestBuildEnvelope_CorrelationFromContext(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "req-7")
	env, err := BuildEnvelope(sampleEvent{StationID: 1}, MetaFromContext(ctx))
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	if env.CorrelationID != "req-7" {
		t.Fatalf("correlation id = %q, want req-7", env.CorrelationID)
	}
}

func TestBuildEnvelope_NilEvent(t *testing.T) {
	if _, err := BuildEnvelope(nil, Meta{}); err == nil {
		t.Fatalf("expected error for nil event")
	}
}

func TestRegistryDecodePayload(t *testing.T) {
	registry := NewRegistry()
	registry.Register(sampleEvent{})

	env, err := BuildEnvelope(sampleEvent{StationID: 9}, Meta{})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	payload, err := registry.DecodePayload(env)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	event, ok := payload.(sampleEvent)
	if !ok {
		t.Fatalf("decoded to %T", payload)
	}
	if event.StationID != 9 {
		t.Fatalf("decoded event: %+v", event)
	}
}

func TestRegistryDecodePayload_PointerSample(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&sampleEvent{})

	env, err := BuildEnvelope(sampleEvent{StationID: 4}, Meta{})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	payload, err := registry.DecodePayload(env)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if event, ok := payload.(sampleEvent); !ok || event.StationID != 4 {
		t.Fatalf("decoded to %T: %+v", payload, payload)
	}
}

func TestRegistryDecodePayload_UnknownType(t *testing.T) {
	registry := NewRegistry()
	env := Envelope{EventType: "eventing.unknown", Payload: json.RawMessage(`{}`)}
	if _, err := registry.DecodePayload(env); err == nil {
		t.Fatalf("expected error for unregistered type")
	}
}

func TestNewEventIDUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := NewEventID()
		if id == "" {
			t.Fatalf("empty id")
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}
