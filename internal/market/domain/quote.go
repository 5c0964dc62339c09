package market

import (
	"math"

	registry "gridmarket/internal/registry/domain"
)

// Quote is the settlement breakdown for a prospective purchase.
type Quote struct {
	Amount    int64
	Price     int64 // amount * price-per-unit, routed to the owner
	Surcharge int64 // amount * surcharge, routed to the administrator
	Refund    int64 // tendered minus price minus surcharge
}

// Total returns the required tender for the quote.
func (q Quote) Total() int64 {
	return q.Price + q.Surcharge
}

// PrepareQuote validates a purchase against a station snapshot and
// computes the settlement split. Preconditions are checked in a fixed
// order so each failure mode is distinguishable: surcharge set, capacity
// bound, funds, self trade.
//
// The capacity bound is strict: buying the entirety of the remaining
// capacity is rejected, so the last unit is never sellable.
func PrepareQuote(station registry.Station, buyer string, amount, tendered int64) (Quote, error) {
	if amount <= 0 || tendered < 0 {
		return Quote{}, ErrInvalidAmount
	}
	if !station.Surcharge.Set {
		return Quote{}, ErrSurchargeNotSet
	}
	if amount >= station.SellCapacity {
		return Quote{}, ErrCapacityExceeded
	}
	price, ok := mulNonNegative(amount, station.PricePerUnit)
	if !ok {
		return Quote{}, ErrInvalidAmount
	}
	surcharge, ok := mulNonNegative(amount, station.Surcharge.Amount)
	if !ok {
		return Quote{}, ErrInvalidAmount
	}
	// The total must also stay representable.
	if price > math.MaxInt64-surcharge {
		return Quote{}, ErrInvalidAmount
	}
	quote := Quote{
		Amount:    amount,
		Price:     price,
		Surcharge: surcharge,
	}
	if tendered < quote.Total() {
		return Quote{}, ErrInsufficientFunds
	}
	if buyer == station.Organization {
		return Quote{}, ErrSelfTradeRejected
	}
	quote.Refund = tendered - quote.Total()
	return quote, nil
}

// mulNonNegative multiplies two non-negative values, reporting whether
// the product stays within int64.
func mulNonNegative(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxInt64/b {
		return 0, false
	}
	return a * b, true
}
