package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"gridmarket/internal/accesscontrol"
	"gridmarket/internal/ledger"
	"gridmarket/internal/ledger/memory"
	market "gridmarket/internal/market/domain"
	registry "gridmarket/internal/registry/domain"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

type fixture struct {
	service *Service
	store   *memory.Store
}

// newFixture seeds one station owned by org-owner with the settlement
// scenario capacities, an administrator, and buyer funds.
func newFixture(t *testing.T, buyerBalance int64) fixture {
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
	if err := tx.SetAdministrator(ctx, "org-admin"); err != nil {
		t.Fatalf("set administrator: %v", err)
	}
	station := registry.Station{
		ID:                0,
		InstalledCapacity: 260000,
		SellCapacity:      240000,
		PricePerUnit:      5,
		TimeCreated:       clock.now,
		LastUpdated:       clock.now,
		GenerationType:    registry.GenerationSolar,
		State:             registry.StateOnline,
		Organization:      "org-owner",
	}
	if err := tx.PutStation(ctx, station); err != nil {
		t.Fatalf("put station: %v", err)
	}
	if buyerBalance >= 0 {
		if err := tx.InitAccount(ctx, "org-buyer", buyerBalance); err != nil {
			t.Fatalf("init buyer account: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return fixture{service: service, store: store}
}

func (f fixture) balance(t *testing.T, identity string) int64 {
	t.Helper()
	balance, err := f.service.Balance(context.Background(), identity)
	if err != nil {
		t.Fatalf("balance %s: %v", identity, err)
	}
	return balance
}

func TestSetSurcharge(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	if err := f.service.SetSurcharge(ctx, "org-owner", 0, 2); !errors.Is(err, accesscontrol.ErrUnauthorized) {
		t.Fatalf("non-administrator must not set surcharge, got %v", err)
	}
	if err := f.service.SetSurcharge(ctx, "org-admin", 7, 2); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected not found for missing station, got %v", err)
	}
	if err := f.service.SetSurcharge(ctx, "org-admin", 0, -1); !errors.Is(err, market.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}

	if err := f.service.SetSurcharge(ctx, "org-admin", 0, 2); err != nil {
		t.Fatalf("set surcharge: %v", err)
	}
	station, err := f.store.GetStation(ctx, 0)
	if err != nil {
		t.Fatalf("get station: %v", err)
	}
	if !station.Surcharge.Set || station.Surcharge.Amount != 2 {
		t.Fatalf("surcharge not recorded: %+v", station.Surcharge)
	}

	// Repeatable: the new rate replaces the old one.
	if err := f.service.SetSurcharge(ctx, "org-admin", 0, 9); err != nil {
		t.Fatalf("reset surcharge: %v", err)
	}
	station, _ = f.store.GetStation(ctx, 0)
	if station.Surcharge.Amount != 9 {
		t.Fatalf("surcharge not replaced: %+v", station.Surcharge)
	}
}

func TestBuyCapacity_SettlementScenario(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	if err := f.service.SetSurcharge(ctx, "org-admin", 0, 2); err != nil {
		t.Fatalf("set surcharge: %v", err)
	}

	receipt, err := f.service.BuyCapacity(ctx, "org-buyer", 0, 1, 10)
	if err != nil {
		t.Fatalf("buy capacity: %v", err)
	}
	if receipt.Price != 5 || receipt.Surcharge != 2 || receipt.Refund != 3 {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	if receipt.RemainingCapacity != 239999 {
		t.Fatalf("remaining capacity = %d", receipt.RemainingCapacity)
	}

	station, _ := f.store.GetStation(ctx, 0)
	if station.SellCapacity != 239999 {
		t.Fatalf("sell capacity = %d", station.SellCapacity)
	}
	// The tender was split three ways and the escrow netted to zero.
	if got := f.balance(t, "org-owner"); got != 5 {
		t.Fatalf("owner balance = %d", got)
	}
	if got := f.balance(t, "org-admin"); got != 2 {
		t.Fatalf("administrator balance = %d", got)
	}
	if got := f.balance(t, "org-buyer"); got != 93 {
		t.Fatalf("buyer balance = %d", got)
	}
	if got := f.balance(t, escrowAccount); got != 0 {
		t.Fatalf("escrow balance = %d", got)
	}
}

func TestBuyCapacity_Preconditions(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	if _, err := f.service.BuyCapacity(ctx, "org-buyer", 0, 1, 10); !errors.Is(err, market.ErrSurchargeNotSet) {
		t.Fatalf("expected surcharge not set, got %v", err)
	}
	if err := f.service.SetSurcharge(ctx, "org-admin", 0, 2); err != nil {
		t.Fatalf("set surcharge: %v", err)
	}
	if _, err := f.service.BuyCapacity(ctx, "org-buyer", 7, 1, 10); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.service.BuyCapacity(ctx, "org-buyer", 0, 240000, 2000000); !errors.Is(err, market.ErrCapacityExceeded) {
		t.Fatalf("expected capacity exceeded at the bound, got %v", err)
	}
	if _, err := f.service.BuyCapacity(ctx, "org-buyer", 0, 1, 6); !errors.Is(err, market.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if _, err := f.service.BuyCapacity(ctx, "org-owner", 0, 1, 10); !errors.Is(err, market.ErrSelfTradeRejected) {
		t.Fatalf("expected self trade rejected, got %v", err)
	}

	// None of the rejections touched the station or any balance.
	station, _ := f.store.GetStation(ctx, 0)
	if station.SellCapacity != 240000 {
		t.Fatalf("rejected purchases mutated capacity: %d", station.SellCapacity)
	}
	if got := f.balance(t, "org-buyer"); got != 100 {
		t.Fatalf("rejected purchases mutated buyer balance: %d", got)
	}
}

func TestBuyCapacity_TransferFailureRollsBackCapacity(t *testing.T) {
	// Buyer account holds less than the tender, so the first transfer
	// fails after the capacity deduction was staged.
	f := newFixture(t, 5)
	ctx := context.Background()

	if err := f.service.SetSurcharge(ctx, "org-admin", 0, 2); err != nil {
		t.Fatalf("set surcharge: %v", err)
	}

	_, err := f.service.BuyCapacity(ctx, "org-buyer", 0, 1, 10)
	if !errors.Is(err, ledger.ErrTransferFailed) {
		t.Fatalf("expected transfer failed, got %v", err)
	}
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("cause not preserved: %v", err)
	}

	station, _ := f.store.GetStation(ctx, 0)
	if station.SellCapacity != 240000 {
		t.Fatalf("capacity deduction survived the rollback: %d", station.SellCapacity)
	}
	if got := f.balance(t, "org-buyer"); got != 5 {
		t.Fatalf("buyer balance mutated: %d", got)
	}
	if got := f.balance(t, "org-owner"); got != 0 {
		t.Fatalf("owner balance mutated: %d", got)
	}
	pending, _ := f.store.ListPending(ctx, 10)
	for _, record := range pending {
		if record.Envelope.EventType == "events.CapacityPurchased" {
			t.Fatalf("purchase event emitted despite rollback")
		}
	}
}

func TestBuyCapacity_UnknownBuyerAccount(t *testing.T) {
	f := newFixture(t, -1)
	ctx := context.Background()

	if err := f.service.SetSurcharge(ctx, "org-admin", 0, 2); err != nil {
		t.Fatalf("set surcharge: %v", err)
	}
	_, err := f.service.BuyCapacity(ctx, "org-buyer", 0, 1, 10)
	if !errors.Is(err, ledger.ErrTransferFailed) || !errors.Is(err, ledger.ErrUnknownAccount) {
		t.Fatalf("expected transfer failed on unknown account, got %v", err)
	}
}

func TestBuyCapacity_ZeroSurchargeRate(t *testing.T) {
	// A surcharge of zero is set, not unset: purchases settle with no
	// administrator cut.
	f := newFixture(t, 100)
	ctx := context.Background()

	if err := f.service.SetSurcharge(ctx, "org-admin", 0, 0); err != nil {
		t.Fatalf("set surcharge: %v", err)
	}
	receipt, err := f.service.BuyCapacity(ctx, "org-buyer", 0, 2, 10)
	if err != nil {
		t.Fatalf("buy capacity: %v", err)
	}
	if receipt.Price != 10 || receipt.Surcharge != 0 || receipt.Refund != 0 {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	if got := f.balance(t, "org-admin"); got != 0 {
		t.Fatalf("administrator balance = %d", got)
	}
	if got := f.balance(t, "org-owner"); got != 10 {
		t.Fatalf("owner balance = %d", got)
	}
}
