package market

import "errors"

var (
	// ErrSurchargeNotSet is returned when a purchase is attempted before
	// the administrator has set a surcharge for the station.
	ErrSurchargeNotSet = errors.New("market: surcharge not set")
	// ErrCapacityExceeded is returned when the purchase amount is not
	// strictly less than the remaining sellable capacity.
	ErrCapacityExceeded = errors.New("market: capacity exceeded")
	// ErrInsufficientFunds is returned when the tendered value does not
	// cover price plus surcharge.
	ErrInsufficientFunds = errors.New("market: insufficient funds")
	// ErrSelfTradeRejected is returned when the station owner attempts to
	// buy their own capacity.
	ErrSelfTradeRejected = errors.New("market: self trade rejected")
	// ErrInvalidAmount is returned for non-positive purchase amounts or
	// negative surcharges and tenders.
	ErrInvalidAmount = errors.New("market: invalid amount")
)
