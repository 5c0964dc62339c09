// Package memory implements the ledger store in process memory. A
// single writer mutex held from Begin to Commit/Rollback gives the
// serial execution model of the original host; readers always see the
// last committed snapshot because commits swap an immutable state value.
package memory

import (
	"context"
	"fmt"
	"sync"

	"gridmarket/internal/eventing"
	"gridmarket/internal/ledger"
	registry "gridmarket/internal/registry/domain"
	servicelog "gridmarket/internal/servicelog/domain"
)

type state struct {
	stations      []registry.Station
	records       map[int64][]servicelog.Record
	whitelist     map[string]bool
	administrator string
	accounts      map[string]int64
}

func newState() *state {
	return &state{
		records:   make(map[int64][]servicelog.Record),
		whitelist: make(map[string]bool),
		accounts:  make(map[string]int64),
	}
}

func (s *state) clone() *state {
	next := &state{
		stations:      append([]registry.Station(nil), s.stations...),
		records:       make(map[int64][]servicelog.Record, len(s.records)),
		whitelist:     make(map[string]bool, len(s.whitelist)),
		administrator: s.administrator,
		accounts:      make(map[string]int64, len(s.accounts)),
	}
	for id, recs := range s.records {
		next.records[id] = append([]servicelog.Record(nil), recs...)
	}
	for identity, allowed := range s.whitelist {
		next.whitelist[identity] = allowed
	}
	for identity, balance := range s.accounts {
		next.accounts[identity] = balance
	}
	return next
}

type outboxEntry struct {
	id       string
	envelope eventing.Envelope
	status   string
}

// Store is the in-memory ledger engine. It also implements
// eventing.OutboxStore so the shared dispatcher drains its outbox the
// same way it drains the Postgres one.
type Store struct {
	writeMu sync.Mutex

	stateMu   sync.RWMutex
	committed *state
	outbox    []outboxEntry
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{committed: newState()}
}

func (s *Store) snapshot() *state {
	s.stateMu.RLock()
	snap := s.committed
	s.stateMu.RUnlock()
	return snap
}

// StationCount returns the number of registered stations.
func (s *Store) StationCount(ctx context.Context) (int64, error) {
	_ = ctx
	return int64(len(s.snapshot().stations)), nil
}

// GetStation returns the station or nil when the id is unassigned.
func (s *Store) GetStation(ctx context.Context, id int64) (*registry.Station, error) {
	_ = ctx
	return getStation(s.snapshot(), id), nil
}

// ListStations returns count consecutive stations starting at start.
func (s *Store) ListStations(ctx context.Context, start, count int64) ([]registry.Station, error) {
	_ = ctx
	return listStations(s.snapshot(), start, count)
}

// RecordCount returns the service log length for a station.
func (s *Store) RecordCount(ctx context.Context, stationID int64) (int64, error) {
	_ = ctx
	return recordCount(s.snapshot(), stationID)
}

// ListRecords returns count consecutive service records starting at start.
func (s *Store) ListRecords(ctx context.Context, stationID, start, count int64) ([]servicelog.Record, error) {
	_ = ctx
	return listRecords(s.snapshot(), stationID, start, count)
}

// IsWhitelisted reports whitelist membership; unknown identities are false.
func (s *Store) IsWhitelisted(ctx context.Context, identity string) (bool, error) {
	_ = ctx
	return s.snapshot().whitelist[identity], nil
}

// Administrator returns the singleton administrator identity.
func (s *Store) Administrator(ctx context.Context) (string, error) {
	_ = ctx
	admin := s.snapshot().administrator
	if admin == "" {
		return "", ledger.ErrAdministratorUnset
	}
	return admin, nil
}

// Balance returns the account balance; unknown accounts hold zero.
func (s *Store) Balance(ctx context.Context, identity string) (int64, error) {
	_ = ctx
	return s.snapshot().accounts[identity], nil
}

// Begin opens a unit of work. The writer lock is held until Commit or
// Rollback, so units of work execute strictly one at a time.
func (s *Store) Begin(ctx context.Context) (ledger.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.writeMu.Lock()
	return &tx{store: s, staged: s.snapshot().clone()}, nil
}

// ---- eventing.OutboxStore ----

// ListPending returns committed, undelivered outbox entries in order.
func (s *Store) ListPending(ctx context.Context, limit int) ([]eventing.OutboxRecord, error) {
	_ = ctx
	if limit <= 0 {
		limit = 50
	}
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	var result []eventing.OutboxRecord
	for _, entry := range s.outbox {
		if entry.status != "pending" {
			continue
		}
		result = append(result, eventing.OutboxRecord{ID: entry.id, Envelope: entry.envelope})
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

// MarkSent marks an outbox entry as delivered.
func (s *Store) MarkSent(ctx context.Context, id string) error {
	_ = ctx
	return s.markOutbox(id, "sent")
}

// MarkFailed marks an outbox entry as failed.
func (s *Store) MarkFailed(ctx context.Context, id string) error {
	_ = ctx
	return s.markOutbox(id, "failed")
}

func (s *Store) markOutbox(id, status string) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	for i := range s.outbox {
		if s.outbox[i].id == id {
			s.outbox[i].status = status
			return nil
		}
	}
	return nil
}

// ---- shared snapshot reads ----

func getStation(snap *state, id int64) *registry.Station {
	if id < 0 || id >= int64(len(snap.stations)) {
		return nil
	}
	station := snap.stations[id]
	return &station
}

func listStations(snap *state, start, count int64) ([]registry.Station, error) {
	total := int64(len(snap.stations))
	if count <= 0 || start < 0 {
		return nil, fmt.Errorf("%w: pagination window", registry.ErrInvalidArgument)
	}
	if start >= total || start+count > total {
		return nil, fmt.Errorf("%w: pagination window [%d,%d) exceeds %d", registry.ErrInvalidArgument, start, start+count, total)
	}
	return append([]registry.Station(nil), snap.stations[start:start+count]...), nil
}

func recordCount(snap *state, stationID int64) (int64, error) {
	if getStation(snap, stationID) == nil {
		return 0, registry.ErrNotFound
	}
	return int64(len(snap.records[stationID])), nil
}

func listRecords(snap *state, stationID, start, count int64) ([]servicelog.Record, error) {
	total, err := recordCount(snap, stationID)
	if err != nil {
		return nil, err
	}
	if count <= 0 || start < 0 {
		return nil, fmt.Errorf("%w: pagination window", servicelog.ErrInvalidArgument)
	}
	if start+count > total {
		return nil, fmt.Errorf("%w: pagination window [%d,%d) exceeds %d", servicelog.ErrInvalidArgument, start, start+count, total)
	}
	return append([]servicelog.Record(nil), snap.records[stationID][start:start+count]...), nil
}

// ---- transaction ----

type tx struct {
	store  *Store
	staged *state
	events []eventing.Envelope
	done   bool
}

func (t *tx) ensureOpen() error {
	if t.done {
		return ledger.ErrTxClosed
	}
	return nil
}

func (t *tx) StationCount(ctx context.Context) (int64, error) {
	_ = ctx
	if err := t.ensureOpen(); err != nil {
		return 0, err
	}
	return int64(len(t.staged.stations)), nil
}

func (t *tx) GetStation(ctx context.Context, id int64) (*registry.Station, error) {
	_ = ctx
	if err := t.ensureOpen(); err != nil {
		return nil, err
	}
	return getStation(t.staged, id), nil
}

func (t *tx) ListStations(ctx context.Context, start, count int64) ([]registry.Station, error) {
	_ = ctx
	if err := t.ensureOpen(); err != nil {
		return nil, err
	}
	return listStations(t.staged, start, count)
}

func (t *tx) RecordCount(ctx context.Context, stationID int64) (int64, error) {
	_ = ctx
	if err := t.ensureOpen(); err != nil {
		return 0, err
	}
	return recordCount(t.staged, stationID)
}

func (t *tx) ListRecords(ctx context.Context, stationID, start, count int64) ([]servicelog.Record, error) {
	_ = ctx
	if err := t.ensureOpen(); err != nil {
		return nil, err
	}
	return listRecords(t.staged, stationID, start, count)
}

func (t *tx) IsWhitelisted(ctx context.Context, identity string) (bool, error) {
	_ = ctx
	if err := t.ensureOpen(); err != nil {
		return false, err
	}
	return t.staged.whitelist[identity], nil
}

func (t *tx) Administrator(ctx context.Context) (string, error) {
	_ = ctx
	if err := t.ensureOpen(); err != nil {
		return "", err
	}
	if t.staged.administrator == "" {
		return "", ledger.ErrAdministratorUnset
	}
	return t.staged.administrator, nil
}

func (t *tx) Balance(ctx context.Context, identity string) (int64, error) {
	_ = ctx
	if err := t.ensureOpen(); err != nil {
		return 0, err
	}
	return t.staged.accounts[identity], nil
}

func (t *tx) PutStation(ctx context.Context, station registry.Station) error {
	_ = ctx
	if err := t.ensureOpen(); err != nil {
		return err
	}
	switch {
	case station.ID >= 0 && station.ID < int64(len(t.staged.stations)):
		t.staged.stations[station.ID] = station
	case station.ID == int64(len(t.staged.stations)):
		t.staged.stations = append(t.staged.stations, station)
	default:
		return fmt.Errorf("%w: station id %d breaks dense assignment", registry.ErrInvalidArgument, station.ID)
	}
	return nil
}

func (t *tx) AppendRecord(ctx context.Context, stationID int64, record servicelog.Record) (int64, error) {
	_ = ctx
	if err := t.ensureOpen(); err != nil {
		return 0, err
	}
	if getStation(t.staged, stationID) == nil {
		return 0, registry.ErrNotFound
	}
	t.staged.records[stationID] = append(t.staged.records[stationID], record)
	return int64(len(t.staged.records[stationID])), nil
}

func (t *tx) SetWhitelisted(ctx context.Context, identity string, allowed bool) error {
	_ = ctx
	if err := t.ensureOpen(); err != nil {
		return err
	}
	if identity == "" {
		return fmt.Errorf("%w: empty identity", registry.ErrInvalidArgument)
	}
	t.staged.whitelist[identity] = allowed
	return nil
}

func (t *tx) SetAdministrator(ctx context.Context, identity string) error {
	_ = ctx
	if err := t.ensureOpen(); err != nil {
		return err
	}
	if identity == "" {
		return fmt.Errorf("%w: empty identity", registry.ErrInvalidArgument)
	}
	if t.staged.administrator != "" && t.staged.administrator != identity {
		return ledger.ErrAdministratorSet
	}
	t.staged.administrator = identity
	return nil
}

func (t *tx) InitAccount(ctx context.Context, identity string, balance int64) error {
	_ = ctx
	if err := t.ensureOpen(); err != nil {
		return err
	}
	if identity == "" || balance < 0 {
		return ledger.ErrInvalidTransfer
	}
	if _, ok := t.staged.accounts[identity]; ok {
		return nil
	}
	t.staged.accounts[identity] = balance
	return nil
}

func (t *tx) Transfer(ctx context.Context, from, to string, amount int64) error {
	_ = ctx
	if err := t.ensureOpen(); err != nil {
		return err
	}
	if from == "" || to == "" || amount < 0 {
		return ledger.ErrInvalidTransfer
	}
	balance, ok := t.staged.accounts[from]
	if !ok {
		return fmt.Errorf("%w: %s", ledger.ErrUnknownAccount, from)
	}
	if balance < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", ledger.ErrInsufficientBalance, from, balance, amount)
	}
	t.staged.accounts[from] = balance - amount
	t.staged.accounts[to] += amount
	return nil
}

func (t *tx) AppendEvent(ctx context.Context, env eventing.Envelope) error {
	_ = ctx
	if err := t.ensureOpen(); err != nil {
		return err
	}
	t.events = append(t.events, env)
	return nil
}

// Commit publishes the staged state and queues staged events for the
// dispatcher, then releases the writer lock.
func (t *tx) Commit() error {
	if err := t.ensureOpen(); err != nil {
		return err
	}
	t.done = true
	t.store.stateMu.Lock()
	t.store.committed = t.staged
	for _, env := range t.events {
		t.store.outbox = append(t.store.outbox, outboxEntry{
			id:       eventing.NewEventID(),
			envelope: env,
			status:   "pending",
		})
	}
	t.store.stateMu.Unlock()
	t.store.writeMu.Unlock()
	return nil
}

// Rollback discards the staged state and releases the writer lock.
func (t *tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.staged = nil
	t.store.writeMu.Unlock()
	return nil
}
