package postgres

import (
	"context"
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS stations (
	id BIGINT PRIMARY KEY,
	latitude BIGINT NOT NULL,
	longitude BIGINT NOT NULL,
	installed_capacity BIGINT NOT NULL,
	sell_capacity BIGINT NOT NULL,
	surcharge_amount BIGINT NOT NULL DEFAULT 0,
	surcharge_set BOOLEAN NOT NULL DEFAULT FALSE,
	target_reserve BIGINT NOT NULL DEFAULT 0,
	price_per_unit BIGINT NOT NULL,
	time_created TIMESTAMPTZ NOT NULL,
	last_updated TIMESTAMPTZ NOT NULL,
	generation_type TEXT NOT NULL,
	state TEXT NOT NULL,
	organization TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS service_records (
	station_id BIGINT NOT NULL REFERENCES stations(id),
	seq BIGINT NOT NULL,
	reported_at TIMESTAMPTZ NOT NULL,
	report_ref TEXT NOT NULL,
	PRIMARY KEY (station_id, seq)
);

CREATE TABLE IF NOT EXISTS whitelist (
	identity TEXT PRIMARY KEY,
	allowed BOOLEAN NOT NULL
);

CREATE TABLE IF NOT EXISTS system_config (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
	identity TEXT PRIMARY KEY,
	balance BIGINT NOT NULL CHECK (balance >= 0)
);

CREATE TABLE IF NOT EXISTS event_outbox (
	id TEXT PRIMARY KEY,
	event_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload JSONB NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	attempts INT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	sent_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS processed_events (
	event_id TEXT NOT NULL,
	consumer TEXT NOT NULL,
	processed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (event_id, consumer)
);

CREATE TABLE IF NOT EXISTS audit_logs (
	id TEXT PRIMARY KEY,
	actor TEXT NOT NULL,
	action TEXT NOT NULL,
	station_id BIGINT,
	metadata JSONB,
	payload_digest TEXT,
	ip TEXT,
	user_agent TEXT,
	created_at TIMESTAMPTZ NOT NULL
);
`

// Migrate applies the store schema. Statements are idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
