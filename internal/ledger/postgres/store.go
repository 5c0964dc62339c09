// Package postgres implements the durable ledger store. Every unit of
// work runs as a serializable database transaction, so the capacity
// deduction, the value transfers and the outbox insert of a purchase
// commit or roll back together.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"gridmarket/internal/eventing"
	"gridmarket/internal/ledger"
	registry "gridmarket/internal/registry/domain"
	servicelog "gridmarket/internal/servicelog/domain"
)

const administratorKey = "administrator"

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the Postgres ledger engine.
type Store struct {
	db *sql.DB
}

// NewStore constructs a store.
func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("ledger store: nil db")
	}
	return &Store{db: db}, nil
}

// StationCount returns the number of registered stations.
func (s *Store) StationCount(ctx context.Context) (int64, error) {
	return stationCount(ctx, s.db)
}

// GetStation returns the station or nil when the id is unassigned.
func (s *Store) GetStation(ctx context.Context, id int64) (*registry.Station, error) {
	return getStation(ctx, s.db, id)
}

// ListStations returns count consecutive stations starting at start.
func (s *Store) ListStations(ctx context.Context, start, count int64) ([]registry.Station, error) {
	return listStations(ctx, s.db, start, count)
}

// RecordCount returns the service log length for a station.
func (s *Store) RecordCount(ctx context.Context, stationID int64) (int64, error) {
	return recordCount(ctx, s.db, stationID)
}

// ListRecords returns count consecutive service records starting at start.
func (s *Store) ListRecords(ctx context.Context, stationID, start, count int64) ([]servicelog.Record, error) {
	return listRecords(ctx, s.db, stationID, start, count)
}

// IsWhitelisted reports whitelist membership; unknown identities are false.
func (s *Store) IsWhitelisted(ctx context.Context, identity string) (bool, error) {
	return isWhitelisted(ctx, s.db, identity)
}

// Administrator returns the singleton administrator identity.
func (s *Store) Administrator(ctx context.Context) (string, error) {
	return administrator(ctx, s.db)
}

// Balance returns the account balance; unknown accounts hold zero.
func (s *Store) Balance(ctx context.Context, identity string) (int64, error) {
	return balance(ctx, s.db, identity)
}

// Begin opens a serializable unit of work.
func (s *Store) Begin(ctx context.Context) (ledger.Tx, error) {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	return &tx{tx: sqlTx}, nil
}

// ---- transaction ----

type tx struct {
	tx   *sql.Tx
	done bool
}

func (t *tx) ensureOpen() error {
	if t.done {
		return ledger.ErrTxClosed
	}
	return nil
}

func (t *tx) StationCount(ctx context.Context) (int64, error) {
	if err := t.ensureOpen(); err != nil {
		return 0, err
	}
	return stationCount(ctx, t.tx)
}

func (t *tx) GetStation(ctx context.Context, id int64) (*registry.Station, error) {
	if err := t.ensureOpen(); err != nil {
		return nil, err
	}
	return getStation(ctx, t.tx, id)
}

func (t *tx) ListStations(ctx context.Context, start, count int64) ([]registry.Station, error) {
	if err := t.ensureOpen(); err != nil {
		return nil, err
	}
	return listStations(ctx, t.tx, start, count)
}

func (t *tx) RecordCount(ctx context.Context, stationID int64) (int64, error) {
	if err := t.ensureOpen(); err != nil {
		return 0, err
	}
	return recordCount(ctx, t.tx, stationID)
}

func (t *tx) ListRecords(ctx context.Context, stationID, start, count int64) ([]servicelog.Record, error) {
	if err := t.ensureOpen(); err != nil {
		return nil, err
	}
	return listRecords(ctx, t.tx, stationID, start, count)
}

func (t *tx) IsWhitelisted(ctx context.Context, identity string) (bool, error) {
	if err := t.ensureOpen(); err != nil {
		return false, err
	}
	return isWhitelisted(ctx, t.tx, identity)
}

func (t *tx) Administrator(ctx context.Context) (string, error) {
	if err := t.ensureOpen(); err != nil {
		return "", err
	}
	return administrator(ctx, t.tx)
}

func (t *tx) Balance(ctx context.Context, identity string) (int64, error) {
	if err := t.ensureOpen(); err != nil {
		return 0, err
	}
	return balance(ctx, t.tx, identity)
}

func (t *tx) PutStation(ctx context.Context, station registry.Station) error {
	if err := t.ensureOpen(); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO stations (
	id, latitude, longitude, installed_capacity, sell_capacity,
	surcharge_amount, surcharge_set, target_reserve, price_per_unit,
	time_created, last_updated, generation_type, state, organization
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
)
ON CONFLICT (id) DO UPDATE SET
	latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude,
	installed_capacity = EXCLUDED.installed_capacity,
	sell_capacity = EXCLUDED.sell_capacity,
	surcharge_amount = EXCLUDED.surcharge_amount,
	surcharge_set = EXCLUDED.surcharge_set,
	target_reserve = EXCLUDED.target_reserve,
	price_per_unit = EXCLUDED.price_per_unit,
	last_updated = EXCLUDED.last_updated,
	generation_type = EXCLUDED.generation_type,
	state = EXCLUDED.state,
	organization = EXCLUDED.organization`,
		station.ID, station.Coordinates.Latitude, station.Coordinates.Longitude,
		station.InstalledCapacity, station.SellCapacity,
		station.Surcharge.Amount, station.Surcharge.Set,
		station.TargetReserve, station.PricePerUnit,
		station.TimeCreated, station.LastUpdated,
		string(station.GenerationType), string(station.State), station.Organization,
	)
	return err
}

func (t *tx) AppendRecord(ctx context.Context, stationID int64, record servicelog.Record) (int64, error) {
	if err := t.ensureOpen(); err != nil {
		return 0, err
	}
	count, err := recordCount(ctx, t.tx, stationID)
	if err != nil {
		return 0, err
	}
	_, err = t.tx.ExecContext(ctx, `
INSERT INTO service_records (station_id, seq, reported_at, report_ref)
VALUES ($1,$2,$3,$4)`, stationID, count, record.ReportedAt, record.ReportRef)
	if err != nil {
		return 0, err
	}
	return count + 1, nil
}

func (t *tx) SetWhitelisted(ctx context.Context, identity string, allowed bool) error {
	if err := t.ensureOpen(); err != nil {
		return err
	}
	if identity == "" {
		return fmt.Errorf("%w: empty identity", registry.ErrInvalidArgument)
	}
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO whitelist (identity, allowed) VALUES ($1,$2)
ON CONFLICT (identity) DO UPDATE SET allowed = EXCLUDED.allowed`, identity, allowed)
	return err
}

func (t *tx) SetAdministrator(ctx context.Context, identity string) error {
	if err := t.ensureOpen(); err != nil {
		return err
	}
	if identity == "" {
		return fmt.Errorf("%w: empty identity", registry.ErrInvalidArgument)
	}
	current, err := administrator(ctx, t.tx)
	if err != nil && !errors.Is(err, ledger.ErrAdministratorUnset) {
		return err
	}
	if current != "" && current != identity {
		return ledger.ErrAdministratorSet
	}
	_, err = t.tx.ExecContext(ctx, `
INSERT INTO system_config (key, value) VALUES ($1,$2)
ON CONFLICT (key) DO NOTHING`, administratorKey, identity)
	return err
}

func (t *tx) InitAccount(ctx context.Context, identity string, balance int64) error {
	if err := t.ensureOpen(); err != nil {
		return err
	}
	if identity == "" || balance < 0 {
		return ledger.ErrInvalidTransfer
	}
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO accounts (identity, balance) VALUES ($1,$2)
ON CONFLICT (identity) DO NOTHING`, identity, balance)
	return err
}

func (t *tx) Transfer(ctx context.Context, from, to string, amount int64) error {
	if err := t.ensureOpen(); err != nil {
		return err
	}
	if from == "" || to == "" || amount < 0 {
		return ledger.ErrInvalidTransfer
	}
	result, err := t.tx.ExecContext(ctx, `
UPDATE accounts SET balance = balance - $1
WHERE identity = $2 AND balance >= $1`, amount, from)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var current int64
		err := t.tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE identity = $1`, from).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ledger.ErrUnknownAccount, from)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s holds %d, needs %d", ledger.ErrInsufficientBalance, from, current, amount)
	}
	_, err = t.tx.ExecContext(ctx, `
INSERT INTO accounts (identity, balance) VALUES ($1,$2)
ON CONFLICT (identity) DO UPDATE SET balance = accounts.balance + EXCLUDED.balance`, to, amount)
	return err
}

func (t *tx) AppendEvent(ctx context.Context, env eventing.Envelope) error {
	if err := t.ensureOpen(); err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
INSERT INTO event_outbox (id, event_id, event_type, payload, status, attempts)
VALUES ($1,$2,$3,$4,'pending',0)
ON CONFLICT (id) DO NOTHING`, eventing.NewEventID(), env.EventID, env.EventType, payload)
	return err
}

func (t *tx) Commit() error {
	if err := t.ensureOpen(); err != nil {
		return err
	}
	t.done = true
	return t.tx.Commit()
}

func (t *tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}

// ---- shared queries ----

func stationCount(ctx context.Context, q querier) (int64, error) {
	var count int64
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM stations`).Scan(&count)
	return count, err
}

const stationColumns = `
id, latitude, longitude, installed_capacity, sell_capacity,
surcharge_amount, surcharge_set, target_reserve, price_per_unit,
time_created, last_updated, generation_type, state, organization`

func scanStation(scanner interface{ Scan(dest ...any) error }) (*registry.Station, error) {
	var station registry.Station
	var generationType, state string
	err := scanner.Scan(
		&station.ID, &station.Coordinates.Latitude, &station.Coordinates.Longitude,
		&station.InstalledCapacity, &station.SellCapacity,
		&station.Surcharge.Amount, &station.Surcharge.Set,
		&station.TargetReserve, &station.PricePerUnit,
		&station.TimeCreated, &station.LastUpdated,
		&generationType, &state, &station.Organization,
	)
	if err != nil {
		return nil, err
	}
	station.GenerationType = registry.GenerationType(generationType)
	station.State = registry.LifecycleState(state)
	station.TimeCreated = station.TimeCreated.UTC()
	station.LastUpdated = station.LastUpdated.UTC()
	return &station, nil
}

func getStation(ctx context.Context, q querier, id int64) (*registry.Station, error) {
	row := q.QueryRowContext(ctx, `SELECT `+stationColumns+` FROM stations WHERE id = $1`, id)
	station, err := scanStation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return station, nil
}

func listStations(ctx context.Context, q querier, start, count int64) ([]registry.Station, error) {
	if count <= 0 || start < 0 {
		return nil, fmt.Errorf("%w: pagination window", registry.ErrInvalidArgument)
	}
	rows, err := q.QueryContext(ctx, `
SELECT `+stationColumns+`
FROM stations
WHERE id >= $1 AND id < $2
ORDER BY id`, start, start+count)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []registry.Station
	for rows.Next() {
		station, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *station)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Identifiers are dense, so a short result means the window runs
	// past the end of the registry.
	if int64(len(result)) != count {
		return nil, fmt.Errorf("%w: pagination window [%d,%d) exceeds registry", registry.ErrInvalidArgument, start, start+count)
	}
	return result, nil
}

func stationExists(ctx context.Context, q querier, stationID int64) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM stations WHERE id = $1`, stationID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func recordCount(ctx context.Context, q querier, stationID int64) (int64, error) {
	exists, err := stationExists(ctx, q, stationID)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, registry.ErrNotFound
	}
	var count int64
	err = q.QueryRowContext(ctx, `SELECT COUNT(*) FROM service_records WHERE station_id = $1`, stationID).Scan(&count)
	return count, err
}

func listRecords(ctx context.Context, q querier, stationID, start, count int64) ([]servicelog.Record, error) {
	total, err := recordCount(ctx, q, stationID)
	if err != nil {
		return nil, err
	}
	if count <= 0 || start < 0 {
		return nil, fmt.Errorf("%w: pagination window", servicelog.ErrInvalidArgument)
	}
	if start+count > total {
		return nil, fmt.Errorf("%w: pagination window [%d,%d) exceeds %d", servicelog.ErrInvalidArgument, start, start+count, total)
	}
	rows, err := q.QueryContext(ctx, `
SELECT reported_at, report_ref
FROM service_records
WHERE station_id = $1 AND seq >= $2 AND seq < $3
ORDER BY seq`, stationID, start, start+count)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []servicelog.Record
	for rows.Next() {
		var record servicelog.Record
		if err := rows.Scan(&record.ReportedAt, &record.ReportRef); err != nil {
			return nil, err
		}
		record.ReportedAt = record.ReportedAt.UTC()
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func isWhitelisted(ctx context.Context, q querier, identity string) (bool, error) {
	var allowed bool
	err := q.QueryRowContext(ctx, `SELECT allowed FROM whitelist WHERE identity = $1`, identity).Scan(&allowed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return allowed, nil
}

func administrator(ctx context.Context, q querier) (string, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM system_config WHERE key = $1`, administratorKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ledger.ErrAdministratorUnset
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func balance(ctx context.Context, q querier, identity string) (int64, error) {
	var value int64
	err := q.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE identity = $1`, identity).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return value, nil
}
