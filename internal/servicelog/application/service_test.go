package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"gridmarket/internal/accesscontrol"
	"gridmarket/internal/ledger/memory"
	registry "gridmarket/internal/registry/domain"
	servicelog "gridmarket/internal/servicelog/domain"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func newFixture(t *testing.T) (*Service, *memory.Store, *fixedClock) {
	t.Helper()
	store := memory.NewStore()
	clock := &fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	service, err := NewService(store, clock, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	ctx := context.Background()
	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	station := registry.Station{
		ID:             0,
		TimeCreated:    clock.now,
		LastUpdated:    clock.now,
		GenerationType: registry.GenerationWind,
		State:          registry.StateMonitored,
		Organization:   "org-a",
	}
	if err := tx.PutStation(ctx, station); err != nil {
		t.Fatalf("put station: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return service, store, clock
}

func TestAddEntry_AppendsInOrder(t *testing.T) {
	service, _, clock := newFixture(t)
	ctx := context.Background()

	count, err := service.AddEntry(ctx, "org-a", 0, "report-1")
	if err != nil || count != 1 {
		t.Fatalf("first entry: count=%d err=%v", count, err)
	}
	clock.now = clock.now.Add(time.Hour)
	count, err = service.AddEntry(ctx, "org-a", 0, "report-2")
	if err != nil || count != 2 {
		t.Fatalf("second entry: count=%d err=%v", count, err)
	}

	records, err := service.ListRecords(ctx, 0, 0, 2)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if records[0].ReportRef != "report-1" || records[1].ReportRef != "report-2" {
		t.Fatalf("records out of order: %+v", records)
	}
	if !records[1].ReportedAt.After(records[0].ReportedAt) {
		t.Fatalf("timestamps not increasing: %+v", records)
	}
}

func TestAddEntry_Gates(t *testing.T) {
	service, _, _ := newFixture(t)
	ctx := context.Background()

	if _, err := service.AddEntry(ctx, "org-a", 0, ""); !errors.Is(err, servicelog.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for empty ref, got %v", err)
	}
	if _, err := service.AddEntry(ctx, "org-a", 9, "report"); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := service.AddEntry(ctx, "org-b", 0, "report"); !errors.Is(err, accesscontrol.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for non-owner, got %v", err)
	}

	count, err := service.RecordCount(ctx, 0)
	if err != nil || count != 0 {
		t.Fatalf("rejected entries mutated the log: count=%d err=%v", count, err)
	}
}

func TestListRecords_WindowErrors(t *testing.T) {
	service, _, _ := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := service.AddEntry(ctx, "org-a", 0, "report"); err != nil {
			t.Fatalf("add entry: %v", err)
		}
	}

	if _, err := service.ListRecords(ctx, 0, 1, 3); !errors.Is(err, servicelog.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for overrun, got %v", err)
	}
	if _, err := service.ListRecords(ctx, 0, 0, 0); !errors.Is(err, servicelog.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for empty window, got %v", err)
	}
	if _, err := service.ListRecords(ctx, 5, 0, 1); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected not found for missing station, got %v", err)
	}

	records, err := service.ListRecords(ctx, 0, 1, 2)
	if err != nil || len(records) != 2 {
		t.Fatalf("tail window: %v (%d)", err, len(records))
	}
}
