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
	"gridmarket/internal/registry/application/events"
	registry "gridmarket/internal/registry/domain"
)

// Clock supplies the logical time stamped onto mutations.
type Clock interface {
	Now() time.Time
}

// Dispatcher drains committed outbox events after a successful unit of
// work.
type Dispatcher interface {
	Dispatch(ctx context.Context, limit int) error
}

// Service owns the station registry operations. Every mutation runs as
// one unit of work: gate check, snapshot read, mutation, event, commit.
type Service struct {
	store    ledger.Store
	clock    Clock
	dispatch Dispatcher
}

// NewService constructs the registry service.
func NewService(store ledger.Store, clock Clock, dispatch Dispatcher) (*Service, error) {
	if store == nil {
		return nil, errors.New("registry service: nil store")
	}
	if clock == nil {
		return nil, errors.New("registry service: nil clock")
	}
	return &Service{store: store, clock: clock, dispatch: dispatch}, nil
}

// AddStationInput carries the caller-supplied station attributes.
type AddStationInput struct {
	Coordinates       registry.Coordinates
	InstalledCapacity int64
	SellCapacity      int64
	PricePerUnit      int64
	GenerationType    registry.GenerationType
	InitialState      registry.LifecycleState
}

// AddStation registers a new station for a whitelisted caller. The next
// dense identifier is assigned inside the transaction, so concurrent
// registrations never collide.
func (s *Service) AddStation(ctx context.Context, caller string, in AddStationInput) (st registry.Station, err error) {
	start := s.clock.Now()
	defer func() { metrics.RecordOperation("station.add", err, time.Since(start)) }()

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return registry.Station{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if err = accesscontrol.RequireWhitelisted(ctx, tx, caller); err != nil {
		return registry.Station{}, err
	}

	id, err := tx.StationCount(ctx)
	if err != nil {
		return registry.Station{}, err
	}
	now := s.clock.Now().UTC()
	station := registry.Station{
		ID:                id,
		Coordinates:       in.Coordinates,
		InstalledCapacity: in.InstalledCapacity,
		SellCapacity:      in.SellCapacity,
		TargetReserve:     0,
		PricePerUnit:      in.PricePerUnit,
		TimeCreated:       now,
		LastUpdated:       now,
		GenerationType:    in.GenerationType,
		State:             in.InitialState,
		Organization:      caller,
	}
	if err = station.Validate(); err != nil {
		return registry.Station{}, err
	}
	if err = tx.PutStation(ctx, station); err != nil {
		return registry.Station{}, err
	}

	if err = s.appendEvent(ctx, tx, caller, id, events.StationRegistered{
		StationID:         id,
		Organization:      caller,
		GenerationType:    string(in.GenerationType),
		InstalledCapacity: in.InstalledCapacity,
		SellCapacity:      in.SellCapacity,
		PricePerUnit:      in.PricePerUnit,
		OccurredAt:        now,
	}, now); err != nil {
		return registry.Station{}, err
	}
	if err = tx.Commit(); err != nil {
		return registry.Station{}, err
	}
	s.dispatchPending(ctx)
	return station, nil
}

// GetStation returns one station by id.
func (s *Service) GetStation(ctx context.Context, id int64) (registry.Station, error) {
	station, err := s.store.GetStation(ctx, id)
	if err != nil {
		return registry.Station{}, err
	}
	if station == nil {
		return registry.Station{}, registry.ErrNotFound
	}
	return *station, nil
}

// ListStations returns count consecutive stations starting at start, in
// identifier order. Out-of-range windows are rejected, never zero-filled.
func (s *Service) ListStations(ctx context.Context, start, count int64) ([]registry.Station, error) {
	return s.store.ListStations(ctx, start, count)
}

// StationCount returns the registry size.
func (s *Service) StationCount(ctx context.Context) (int64, error) {
	return s.store.StationCount(ctx)
}

// UpdateSellCapacity overwrites the sellable capacity unconditionally.
// No check against installed capacity is made; negative values are
// rejected rather than clamped.
func (s *Service) UpdateSellCapacity(ctx context.Context, caller string, stationID, newCapacity int64) (err error) {
	start := s.clock.Now()
	defer func() { metrics.RecordOperation("station.sell_capacity", err, time.Since(start)) }()
	if newCapacity < 0 {
		return fmt.Errorf("%w: negative sell capacity", registry.ErrInvalidArgument)
	}
	return s.mutateOwned(ctx, caller, stationID, func(station *registry.Station, now time.Time) any {
		station.SellCapacity = newCapacity
		return events.SellCapacityChanged{StationID: stationID, SellCapacity: newCapacity, OccurredAt: now}
	})
}

// SetTargetReserve overwrites the target reserve rate unconditionally.
func (s *Service) SetTargetReserve(ctx context.Context, caller string, stationID, newRate int64) (err error) {
	start := s.clock.Now()
	defer func() { metrics.RecordOperation("station.target_reserve", err, time.Since(start)) }()
	if newRate < 0 {
		return fmt.Errorf("%w: negative target reserve", registry.ErrInvalidArgument)
	}
	return s.mutateOwned(ctx, caller, stationID, func(station *registry.Station, now time.Time) any {
		station.TargetReserve = newRate
		return events.TargetReserveChanged{StationID: stationID, TargetReserve: newRate, OccurredAt: now}
	})
}

// ChangeOwner reassigns the owning organization.
func (s *Service) ChangeOwner(ctx context.Context, caller string, stationID int64, newOwner string) (err error) {
	start := s.clock.Now()
	defer func() { metrics.RecordOperation("station.owner", err, time.Since(start)) }()
	if newOwner == "" {
		return fmt.Errorf("%w: empty new owner", registry.ErrInvalidArgument)
	}
	return s.mutateOwned(ctx, caller, stationID, func(station *registry.Station, now time.Time) any {
		previous := station.Organization
		station.Organization = newOwner
		return events.OwnerChanged{StationID: stationID, PreviousOwner: previous, NewOwner: newOwner, OccurredAt: now}
	})
}

// ChangeState moves the lifecycle state. Any-to-any transitions are
// permitted; dismantled is not terminal.
func (s *Service) ChangeState(ctx context.Context, caller string, stationID int64, newState registry.LifecycleState) (err error) {
	start := s.clock.Now()
	defer func() { metrics.RecordOperation("station.state", err, time.Since(start)) }()
	if _, err = registry.ParseLifecycleState(string(newState)); err != nil {
		return err
	}
	return s.mutateOwned(ctx, caller, stationID, func(station *registry.Station, now time.Time) any {
		previous := station.State
		station.State = newState
		return events.StateChanged{StationID: stationID, PreviousState: string(previous), State: string(newState), OccurredAt: now}
	})
}

// Admit adds an identity to the whitelist. Administrator only.
func (s *Service) Admit(ctx context.Context, caller, identity string) error {
	return s.setWhitelisted(ctx, caller, identity, true)
}

// Revoke removes an identity from the whitelist. Administrator only.
func (s *Service) Revoke(ctx context.Context, caller, identity string) error {
	return s.setWhitelisted(ctx, caller, identity, false)
}

// IsWhitelisted reports current whitelist membership.
func (s *Service) IsWhitelisted(ctx context.Context, identity string) (bool, error) {
	return s.store.IsWhitelisted(ctx, identity)
}

func (s *Service) setWhitelisted(ctx context.Context, caller, identity string, allowed bool) (err error) {
	start := s.clock.Now()
	defer func() { metrics.RecordOperation("whitelist.set", err, time.Since(start)) }()
	if identity == "" {
		return fmt.Errorf("%w: empty identity", registry.ErrInvalidArgument)
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err = accesscontrol.RequireAdministrator(ctx, tx, caller); err != nil {
		return err
	}
	if err = tx.SetWhitelisted(ctx, identity, allowed); err != nil {
		return err
	}
	now := s.clock.Now().UTC()
	if err = s.appendEvent(ctx, tx, caller, 0, events.WhitelistChanged{Identity: identity, Allowed: allowed, OccurredAt: now}, now); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	s.dispatchPending(ctx)
	return nil
}

// mutateOwned is the shared owner-gated read-modify-write path:
// existence first (NotFound), then ownership (Unauthorized), then the
// field overwrite with a refreshed LastUpdated.
func (s *Service) mutateOwned(ctx context.Context, caller string, stationID int64, mutate func(*registry.Station, time.Time) any) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	station, err := tx.GetStation(ctx, stationID)
	if err != nil {
		return err
	}
	if station == nil {
		return registry.ErrNotFound
	}
	if err := accesscontrol.RequireStationOwner(*station, caller); err != nil {
		return err
	}

	now := s.clock.Now().UTC()
	event := mutate(station, now)
	station.LastUpdated = now
	if err := station.Validate(); err != nil {
		return err
	}
	if err := tx.PutStation(ctx, *station); err != nil {
		return err
	}
	if err := s.appendEvent(ctx, tx, caller, stationID, event, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.dispatchPending(ctx)
	return nil
}

func (s *Service) appendEvent(ctx context.Context, tx ledger.Tx, caller string, stationID int64, event any, now time.Time) error {
	meta := eventing.MetaFromContext(ctx)
	meta.Actor = caller
	meta.StationID = stationID
	meta.OccurredAt = now
	env, err := eventing.BuildEnvelope(event, meta)
	if err != nil {
		return err
	}
	return tx.AppendEvent(ctx, env)
}

func (s *Service) dispatchPending(ctx context.Context) {
	if s.dispatch == nil {
		return
	}
	_ = s.dispatch.Dispatch(ctx, 10)
}
