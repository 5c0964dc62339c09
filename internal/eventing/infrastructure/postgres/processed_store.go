package postgres

import (
	"context"
	"database/sql"
	"errors"
)

// ProcessedStore records consumed event ids per consumer for idempotent
// delivery.
type ProcessedStore struct {
	db *sql.DB
}

// NewProcessedStore constructs a processed store.
func NewProcessedStore(db *sql.DB) *ProcessedStore {
	return &ProcessedStore{db: db}
}

// HasProcessed reports whether a consumer already handled the event.
func (s *ProcessedStore) HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("processed store: nil db")
	}
	var one int
	err := s.db.QueryRowContext(ctx, `
SELECT 1 FROM processed_events WHERE event_id = $1 AND consumer = $2`, eventID, consumerName).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkProcessed records the event as handled by the consumer.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, eventID, consumerName string) error {
	if s == nil || s.db == nil {
		return errors.New("processed store: nil db")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO processed_events (event_id, consumer) VALUES ($1,$2)
ON CONFLICT (event_id, consumer) DO NOTHING`, eventID, consumerName)
	return err
}
