package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"gridmarket/internal/eventing"
	"gridmarket/internal/ledger"
	registry "gridmarket/internal/registry/domain"
	servicelog "gridmarket/internal/servicelog/domain"
)

func testStation(id int64) registry.Station {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return registry.Station{
		ID:                id,
		InstalledCapacity: 1000,
		SellCapacity:      800,
		PricePerUnit:      5,
		TimeCreated:       now,
		LastUpdated:       now,
		GenerationType:    registry.GenerationWind,
		State:             registry.StateInstalled,
		Organization:      "org-a",
	}
}

func mustCommit(t *testing.T, tx ledger.Tx) {
	t.Helper()
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestCommitPublishesState(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tx.PutStation(ctx, testStation(0)); err != nil {
		t.Fatalf("put station: %v", err)
	}

	// Committed snapshot does not see the staged write.
	if count, _ := store.StationCount(ctx); count != 0 {
		t.Fatalf("staged write visible before commit: count=%d", count)
	}
	mustCommit(t, tx)

	if count, _ := store.StationCount(ctx); count != 1 {
		t.Fatalf("expected 1 station after commit, got %d", count)
	}
	station, err := store.GetStation(ctx, 0)
	if err != nil {
		t.Fatalf("get station: %v", err)
	}
	if station == nil || station.Organization != "org-a" {
		t.Fatalf("unexpected station: %+v", station)
	}
}

func TestRollbackDiscardsEverything(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tx.PutStation(ctx, testStation(0)); err != nil {
		t.Fatalf("put station: %v", err)
	}
	if err := tx.InitAccount(ctx, "org-a", 100); err != nil {
		t.Fatalf("init account: %v", err)
	}
	if err := tx.AppendEvent(ctx, eventing.Envelope{EventID: "ev-1"}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	if count, _ := store.StationCount(ctx); count != 0 {
		t.Fatalf("rollback leaked stations: %d", count)
	}
	if balance, _ := store.Balance(ctx, "org-a"); balance != 0 {
		t.Fatalf("rollback leaked balance: %d", balance)
	}
	pending, _ := store.ListPending(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("rollback leaked outbox entries: %d", len(pending))
	}
}

func TestTxClosedAfterFinish(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	tx, _ := store.Begin(ctx)
	mustCommit(t, tx)
	if err := tx.PutStation(ctx, testStation(0)); !errors.Is(err, ledger.ErrTxClosed) {
		t.Fatalf("expected tx closed, got %v", err)
	}
	// Rollback after commit is a no-op.
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback after commit: %v", err)
	}
}

func TestPutStationDenseAssignment(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	tx, _ := store.Begin(ctx)
	if err := tx.PutStation(ctx, testStation(1)); !errors.Is(err, registry.ErrInvalidArgument) {
		t.Fatalf("expected dense assignment violation, got %v", err)
	}
	if err := tx.PutStation(ctx, testStation(0)); err != nil {
		t.Fatalf("append id 0: %v", err)
	}
	if err := tx.PutStation(ctx, testStation(1)); err != nil {
		t.Fatalf("append id 1: %v", err)
	}
	updated := testStation(0)
	updated.SellCapacity = 500
	if err := tx.PutStation(ctx, updated); err != nil {
		t.Fatalf("overwrite id 0: %v", err)
	}
	mustCommit(t, tx)

	station, _ := store.GetStation(ctx, 0)
	if station.SellCapacity != 500 {
		t.Fatalf("overwrite lost: %+v", station)
	}
}

func TestListStationsWindow(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	tx, _ := store.Begin(ctx)
	for i := int64(0); i < 5; i++ {
		if err := tx.PutStation(ctx, testStation(i)); err != nil {
			t.Fatalf("put station %d: %v", i, err)
		}
	}
	mustCommit(t, tx)

	stations, err := store.ListStations(ctx, 1, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stations) != 3 || stations[0].ID != 1 || stations[2].ID != 3 {
		t.Fatalf("unexpected window: %+v", stations)
	}

	for _, tc := range []struct{ start, count int64 }{
		{0, 0}, {-1, 2}, {0, 6}, {5, 1}, {4, 2},
	} {
		if _, err := store.ListStations(ctx, tc.start, tc.count); !errors.Is(err, registry.ErrInvalidArgument) {
			t.Fatalf("window [%d,%d): expected invalid argument, got %v", tc.start, tc.start+tc.count, err)
		}
	}
}

func TestServiceRecords(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if _, err := store.RecordCount(ctx, 0); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected not found for missing station, got %v", err)
	}

	tx, _ := store.Begin(ctx)
	if err := tx.PutStation(ctx, testStation(0)); err != nil {
		t.Fatalf("put station: %v", err)
	}
	for i := 0; i < 3; i++ {
		count, err := tx.AppendRecord(ctx, 0, servicelog.Record{
			ReportedAt: time.Now().UTC(),
			ReportRef:  "report",
		})
		if err != nil {
			t.Fatalf("append record: %v", err)
		}
		if count != int64(i+1) {
			t.Fatalf("expected count %d, got %d", i+1, count)
		}
	}
	if _, err := tx.AppendRecord(ctx, 7, servicelog.Record{ReportRef: "x"}); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected not found appending to missing station, got %v", err)
	}
	mustCommit(t, tx)

	records, err := store.ListRecords(ctx, 0, 1, 2)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if _, err := store.ListRecords(ctx, 0, 2, 2); !errors.Is(err, servicelog.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument past the end, got %v", err)
	}
}

func TestTransferSemantics(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	tx, _ := store.Begin(ctx)
	if err := tx.InitAccount(ctx, "org-a", 100); err != nil {
		t.Fatalf("init account: %v", err)
	}
	// Re-init keeps the existing balance.
	if err := tx.InitAccount(ctx, "org-a", 999); err != nil {
		t.Fatalf("re-init account: %v", err)
	}
	if balance, _ := tx.Balance(ctx, "org-a"); balance != 100 {
		t.Fatalf("re-init changed balance: %d", balance)
	}

	if err := tx.Transfer(ctx, "org-a", "org-b", 40); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := tx.Transfer(ctx, "org-a", "org-b", 61); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if err := tx.Transfer(ctx, "org-x", "org-b", 1); !errors.Is(err, ledger.ErrUnknownAccount) {
		t.Fatalf("expected unknown account, got %v", err)
	}
	if err := tx.Transfer(ctx, "org-a", "org-b", -1); !errors.Is(err, ledger.ErrInvalidTransfer) {
		t.Fatalf("expected invalid transfer, got %v", err)
	}
	mustCommit(t, tx)

	if balance, _ := store.Balance(ctx, "org-a"); balance != 60 {
		t.Fatalf("expected 60, got %d", balance)
	}
	if balance, _ := store.Balance(ctx, "org-b"); balance != 40 {
		t.Fatalf("expected 40, got %d", balance)
	}
}

func TestAdministratorSingleInit(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if _, err := store.Administrator(ctx); !errors.Is(err, ledger.ErrAdministratorUnset) {
		t.Fatalf("expected administrator unset, got %v", err)
	}

	tx, _ := store.Begin(ctx)
	if err := tx.SetAdministrator(ctx, "org-admin"); err != nil {
		t.Fatalf("set administrator: %v", err)
	}
	// Same identity is idempotent, a different one is rejected.
	if err := tx.SetAdministrator(ctx, "org-admin"); err != nil {
		t.Fatalf("idempotent rebind: %v", err)
	}
	if err := tx.SetAdministrator(ctx, "org-other"); !errors.Is(err, ledger.ErrAdministratorSet) {
		t.Fatalf("expected administrator set, got %v", err)
	}
	mustCommit(t, tx)

	admin, err := store.Administrator(ctx)
	if err != nil || admin != "org-admin" {
		t.Fatalf("administrator = %q, %v", admin, err)
	}
}

func TestOutboxLifecycle(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	tx, _ := store.Begin(ctx)
	if err := tx.AppendEvent(ctx, eventing.Envelope{EventType: "test.Event"}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	mustCommit(t, tx)

	pending, err := store.ListPending(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending, got %d", len(pending))
	}
	if err := store.MarkSent(ctx, pending[0].ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	pending, _ = store.ListPending(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("sent entry still pending: %d", len(pending))
	}
}
