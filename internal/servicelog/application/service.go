package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gridmarket/internal/accesscontrol"
	"gridmarket/internal/eventing"
	"gridmarket/internal/ledger"
	"gridmarket/internal/observability/metrics"
	registry "gridmarket/internal/registry/domain"
	"gridmarket/internal/servicelog/application/events"
	servicelog "gridmarket/internal/servicelog/domain"
)

// Clock supplies the logical time stamped onto report entries.
type Clock interface {
	Now() time.Time
}

// Dispatcher drains committed outbox events after a successful unit of
// work.
type Dispatcher interface {
	Dispatch(ctx context.Context, limit int) error
}

// Service owns the append-only per-station service log.
type Service struct {
	store    ledger.Store
	clock    Clock
	dispatch Dispatcher
}

// NewService constructs the service log service.
func NewService(store ledger.Store, clock Clock, dispatch Dispatcher) (*Service, error) {
	if store == nil {
		return nil, errors.New("servicelog service: nil store")
	}
	if clock == nil {
		return nil, errors.New("servicelog service: nil clock")
	}
	return &Service{store: store, clock: clock, dispatch: dispatch}, nil
}

// AddEntry appends a maintenance/report entry to the station's log and
// returns the new record count. Station owner only.
func (s *Service) AddEntry(ctx context.Context, caller string, stationID int64, reportRef string) (count int64, err error) {
	start := s.clock.Now()
	defer func() { metrics.RecordOperation("servicelog.add", err, time.Since(start)) }()
	if reportRef == "" {
		return 0, fmt.Errorf("%w: empty report ref", servicelog.ErrInvalidArgument)
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	station, err := tx.GetStation(ctx, stationID)
	if err != nil {
		return 0, err
	}
	if station == nil {
		return 0, registry.ErrNotFound
	}
	if err = accesscontrol.RequireStationOwner(*station, caller); err != nil {
		return 0, err
	}

	now := s.clock.Now().UTC()
	record := servicelog.Record{ReportedAt: now, ReportRef: reportRef}
	if err = record.Validate(); err != nil {
		return 0, err
	}
	count, err = tx.AppendRecord(ctx, stationID, record)
	if err != nil {
		return 0, err
	}

	meta := eventing.MetaFromContext(ctx)
	meta.Actor = caller
	meta.StationID = stationID
	meta.OccurredAt = now
	env, err := eventing.BuildEnvelope(events.ServiceEntryAdded{
		StationID:   stationID,
		RecordCount: count,
		ReportRef:   reportRef,
		OccurredAt:  now,
	}, meta)
	if err != nil {
		return 0, err
	}
	if err = tx.AppendEvent(ctx, env); err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	if s.dispatch != nil {
		_ = s.dispatch.Dispatch(ctx, 10)
	}
	return count, nil
}

// RecordCount returns the service log length for a station.
func (s *Service) RecordCount(ctx context.Context, stationID int64) (int64, error) {
	return s.store.RecordCount(ctx, stationID)
}

// ListRecords returns count consecutive records starting at start. The
// window must satisfy start+count <= recordCount; short reads are
// rejected rather than padded.
func (s *Service) ListRecords(ctx context.Context, stationID, start, count int64) ([]servicelog.Record, error) {
	return s.store.ListRecords(ctx, stationID, start, count)
}
