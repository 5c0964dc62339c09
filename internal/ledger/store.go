// Package ledger defines the transactional store the registry and the
// capacity market run on. It reproduces the whole-call atomicity of a
// hosted ledger as an explicit unit of work: every mutating operation
// reads, mutates, transfers and records its events inside one Tx, and
// either all of it commits or none of it does.
package ledger

import (
	"context"
	"errors"

	"gridmarket/internal/eventing"
	registry "gridmarket/internal/registry/domain"
	servicelog "gridmarket/internal/servicelog/domain"
)

var (
	// ErrAdministratorSet is returned when genesis attempts to rebind an
	// already-initialized administrator identity.
	ErrAdministratorSet = errors.New("ledger: administrator already set")
	// ErrAdministratorUnset is returned when no administrator has been
	// initialized yet.
	ErrAdministratorUnset = errors.New("ledger: administrator not set")
	// ErrUnknownAccount is returned when a transfer debits an account
	// that does not exist.
	ErrUnknownAccount = errors.New("ledger: unknown account")
	// ErrInsufficientBalance is returned when a transfer debits more
	// than the account holds.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	// ErrTransferFailed wraps any value-movement failure surfaced to
	// callers of the market.
	ErrTransferFailed = errors.New("ledger: transfer failed")
	// ErrInvalidTransfer is returned for non-positive transfer amounts
	// or empty identities.
	ErrInvalidTransfer = errors.New("ledger: invalid transfer")
	// ErrTxClosed is returned when a finished transaction is reused.
	ErrTxClosed = errors.New("ledger: transaction closed")
)

// Account holds the value balance for an identity.
type Account struct {
	Identity string `json:"identity"`
	Balance  int64  `json:"balance"`
}

// Reader is the read surface shared by committed snapshots and open
// transactions. Reads outside a Tx observe the latest committed state.
type Reader interface {
	StationCount(ctx context.Context) (int64, error)
	// GetStation returns nil when the id is unassigned. Existence is
	// answered by the store itself, never by counter comparison.
	GetStation(ctx context.Context, id int64) (*registry.Station, error)
	ListStations(ctx context.Context, start, count int64) ([]registry.Station, error)
	RecordCount(ctx context.Context, stationID int64) (int64, error)
	ListRecords(ctx context.Context, stationID, start, count int64) ([]servicelog.Record, error)
	IsWhitelisted(ctx context.Context, identity string) (bool, error)
	Administrator(ctx context.Context) (string, error)
	Balance(ctx context.Context, identity string) (int64, error)
}

// Store is the durable state plus the transactional boundary.
type Store interface {
	Reader
	// Begin opens a serializable unit of work. Mutations performed
	// through the returned Tx become visible to other callers only at
	// Commit, as one atomic step.
	Begin(ctx context.Context) (Tx, error)
}

// Tx is a single unit of work. Implementations guarantee that a Tx
// observes a consistent snapshot and that concurrent units of work are
// applied in some serial order.
type Tx interface {
	Reader
	// PutStation inserts or overwrites the station keyed by its id.
	PutStation(ctx context.Context, station registry.Station) error
	// AppendRecord appends to a station's service log and returns the
	// new record count.
	AppendRecord(ctx context.Context, stationID int64, record servicelog.Record) (int64, error)
	SetWhitelisted(ctx context.Context, identity string, allowed bool) error
	// SetAdministrator binds the singleton administrator identity. It
	// fails with ErrAdministratorSet once bound to a different identity.
	SetAdministrator(ctx context.Context, identity string) error
	// InitAccount creates an account with the given balance. Existing
	// accounts are left untouched.
	InitAccount(ctx context.Context, identity string, balance int64) error
	// Transfer moves value between accounts. Failures abort the whole
	// unit of work when the caller rolls back.
	Transfer(ctx context.Context, from, to string, amount int64) error
	// AppendEvent stages an envelope for the outbox; it is persisted
	// atomically with the transaction.
	AppendEvent(ctx context.Context, env eventing.Envelope) error
	Commit() error
	Rollback() error
}
