package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gridmarket/internal/accesscontrol"
	"gridmarket/internal/eventing"
	"gridmarket/internal/ledger"
	"gridmarket/internal/market/application/events"
	market "gridmarket/internal/market/domain"
	"gridmarket/internal/observability/metrics"
	registry "gridmarket/internal/registry/domain"
)

// The escrow account the market settles through. Tender is pulled from
// the buyer into escrow, then paid out to owner and administrator with
// the remainder refunded; on a committed purchase escrow nets to zero.
const escrowAccount = "market.escrow"

// Clock supplies the logical time stamped onto mutations.
type Clock interface {
	Now() time.Time
}

// Dispatcher drains committed outbox events after a successful unit of
// work.
type Dispatcher interface {
	Dispatch(ctx context.Context, limit int) error
}

// Service owns the surcharge-and-purchase settlement logic.
type Service struct {
	store    ledger.Store
	clock    Clock
	dispatch Dispatcher
}

// NewService constructs the market service.
func NewService(store ledger.Store, clock Clock, dispatch Dispatcher) (*Service, error) {
	if store == nil {
		return nil, errors.New("market service: nil store")
	}
	if clock == nil {
		return nil, errors.New("market service: nil clock")
	}
	return &Service{store: store, clock: clock, dispatch: dispatch}, nil
}

// SetSurcharge sets the per-unit surcharge for a station. Administrator
// only; idempotent and repeatable, previous rates are not retained.
func (s *Service) SetSurcharge(ctx context.Context, caller string, stationID, amount int64) (err error) {
	start := s.clock.Now()
	defer func() { metrics.RecordOperation("market.surcharge", err, time.Since(start)) }()
	if amount < 0 {
		return fmt.Errorf("%w: negative surcharge", market.ErrInvalidAmount)
	}

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
	if err = accesscontrol.RequireAdministrator(ctx, tx, caller); err != nil {
		return err
	}

	now := s.clock.Now().UTC()
	station.Surcharge = registry.Surcharge{Amount: amount, Set: true}
	station.LastUpdated = now
	if err = tx.PutStation(ctx, *station); err != nil {
		return err
	}
	if err = s.appendEvent(ctx, tx, caller, stationID, events.SurchargeSet{
		StationID:  stationID,
		Amount:     amount,
		OccurredAt: now,
	}, now); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	s.dispatchPending(ctx)
	return nil
}

// Receipt reports the settlement breakdown of a committed purchase.
type Receipt struct {
	StationID         int64  `json:"station_id"`
	Buyer             string `json:"buyer"`
	Seller            string `json:"seller"`
	Amount            int64  `json:"amount"`
	Price             int64  `json:"price"`
	Surcharge         int64  `json:"surcharge"`
	Refund            int64  `json:"refund"`
	RemainingCapacity int64  `json:"remaining_capacity"`
}

// BuyCapacity settles a purchase. The market is open: any identity may
// buy except the station owner. Preconditions run in a fixed order
// (surcharge set, capacity bound, funds, self trade), then the capacity
// deduction is written before any transfer is attempted, and the whole
// unit of work rolls back if a transfer fails.
func (s *Service) BuyCapacity(ctx context.Context, buyer string, stationID, amount, tendered int64) (receipt Receipt, err error) {
	start := s.clock.Now()
	defer func() {
		metrics.RecordOperation("market.buy", err, time.Since(start))
		metrics.RecordPurchase(err)
	}()

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return Receipt{}, err
	}
	defer func() { _ = tx.Rollback() }()

	station, err := tx.GetStation(ctx, stationID)
	if err != nil {
		return Receipt{}, err
	}
	if station == nil {
		return Receipt{}, registry.ErrNotFound
	}

	quote, err := market.PrepareQuote(*station, buyer, amount, tendered)
	if err != nil {
		return Receipt{}, err
	}
	admin, err := tx.Administrator(ctx)
	if err != nil {
		return Receipt{}, err
	}

	// Deduct capacity ahead of the transfers so a re-entrant read inside
	// this unit of work can never observe stale capacity.
	now := s.clock.Now().UTC()
	station.SellCapacity -= quote.Amount
	station.LastUpdated = now
	if err = tx.PutStation(ctx, *station); err != nil {
		return Receipt{}, err
	}

	if err = s.transfer(ctx, tx, buyer, escrowAccount, tendered); err != nil {
		return Receipt{}, err
	}
	if err = s.transfer(ctx, tx, escrowAccount, station.Organization, quote.Price); err != nil {
		return Receipt{}, err
	}
	if err = s.transfer(ctx, tx, escrowAccount, admin, quote.Surcharge); err != nil {
		return Receipt{}, err
	}
	if err = s.transfer(ctx, tx, escrowAccount, buyer, quote.Refund); err != nil {
		return Receipt{}, err
	}

	receipt = Receipt{
		StationID:         stationID,
		Buyer:             buyer,
		Seller:            station.Organization,
		Amount:            quote.Amount,
		Price:             quote.Price,
		Surcharge:         quote.Surcharge,
		Refund:            quote.Refund,
		RemainingCapacity: station.SellCapacity,
	}
	if err = s.appendEvent(ctx, tx, buyer, stationID, events.CapacityPurchased{
		StationID:         stationID,
		Buyer:             buyer,
		Seller:            station.Organization,
		Amount:            quote.Amount,
		Price:             quote.Price,
		Surcharge:         quote.Surcharge,
		Refund:            quote.Refund,
		RemainingCapacity: station.SellCapacity,
		OccurredAt:        now,
	}, now); err != nil {
		return Receipt{}, err
	}
	if err = tx.Commit(); err != nil {
		return Receipt{}, err
	}

	metrics.AddCapacitySold(quote.Amount)
	metrics.AddValueSettled("owner", quote.Price)
	metrics.AddValueSettled("administrator", quote.Surcharge)
	metrics.AddValueSettled("refund", quote.Refund)
	s.dispatchPending(ctx)
	return receipt, nil
}

// Balance returns the committed account balance for an identity.
func (s *Service) Balance(ctx context.Context, identity string) (int64, error) {
	return s.store.Balance(ctx, identity)
}

func (s *Service) transfer(ctx context.Context, tx ledger.Tx, from, to string, amount int64) error {
	if err := tx.Transfer(ctx, from, to, amount); err != nil {
		return fmt.Errorf("%w: %w", ledger.ErrTransferFailed, err)
	}
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
