package eventing

import (
	"encoding/json"
	"errors"
	"time"

	"gridmarket/internal/eventing/eventbus"
)

// Envelope wraps an event payload with metadata. Envelopes are written
// to the outbox in the same transaction as the state change they
// describe, so an event is never observable without its mutation.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id"`
	Actor         string          `json:"actor"`
	StationID     int64           `json:"station_id"`
	SchemaVersion int             `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// Meta provides envelope overrides.
type Meta struct {
	EventID       string
	OccurredAt    time.Time
	CorrelationID string
	Actor         string
	StationID     int64
	SchemaVersion int
}

// BuildEnvelope constructs an envelope from an event payload and metadata.
func BuildEnvelope(event any, meta Meta) (Envelope, error) {
	if event == nil {
		return Envelope{}, errors.New("eventing: nil event")
	}

	// The bus topic doubles as the envelope type name.
	eventType := eventbus.EventType(event)
	if eventType == "" {
		return Envelope{}, errors.New("eventing: untyped event")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, err
	}

	occurredAt := meta.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	eventID := meta.EventID
	if eventID == "" {
		eventID = newEventID()
	}

	correlationID := meta.CorrelationID
	if correlationID == "" {
		correlationID = eventID
	}

	schemaVersion := meta.SchemaVersion
	if schemaVersion == 0 {
		schemaVersion = 1
	}

	return Envelope{
		EventID:       eventID,
		EventType:     eventType,
		OccurredAt:    occurredAt.UTC(),
		CorrelationID: correlationID,
		Actor:         meta.Actor,
		StationID:     meta.StationID,
		SchemaVersion: schemaVersion,
		Payload:       payload,
	}, nil
}
