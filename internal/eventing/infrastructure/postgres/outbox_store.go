package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"gridmarket/internal/eventing"
)

// OutboxStore reads and settles outbox records written by ledger
// transactions.
type OutboxStore struct {
	db *sql.DB
}

// NewOutboxStore constructs an outbox store.
func NewOutboxStore(db *sql.DB) *OutboxStore {
	return &OutboxStore{db: db}
}

// ListPending returns pending outbox records in commit order.
func (s *OutboxStore) ListPending(ctx context.Context, limit int) ([]eventing.OutboxRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("outbox store: nil db")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, payload
FROM event_outbox
WHERE status = 'pending'
ORDER BY created_at ASC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []eventing.OutboxRecord
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		var env eventing.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return nil, err
		}
		result = append(result, eventing.OutboxRecord{ID: id, Envelope: env})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkSent marks an outbox record as sent.
func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errors.New("outbox store: nil db")
	}
	_, err := s.db.ExecContext(ctx, `
UPDATE event_outbox
SET status = 'sent', sent_at = $1
WHERE id = $2`, time.Now().UTC(), id)
	return err
}

// MarkFailed marks an outbox record as failed and increments attempts.
func (s *OutboxStore) MarkFailed(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errors.New("outbox store: nil db")
	}
	_, err := s.db.ExecContext(ctx, `
UPDATE event_outbox
SET status = 'failed', attempts = attempts + 1
WHERE id = $1`, id)
	return err
}
