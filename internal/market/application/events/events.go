package events

import "time"

// SurchargeSet is emitted when the administrator sets or changes the
// per-unit surcharge for a station. No history of previous rates is kept.
type SurchargeSet struct {
	StationID  int64     `json:"station_id"`
	Amount     int64     `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CapacityPurchased is emitted on a settled purchase. The three value
// movements it reports committed in the same transaction as the
// capacity deduction.
type CapacityPurchased struct {
	StationID         int64     `json:"station_id"`
	Buyer             string    `json:"buyer"`
	Seller            string    `json:"seller"`
	Amount            int64     `json:"amount"`
	Price             int64     `json:"price"`
	Surcharge         int64     `json:"surcharge"`
	Refund            int64     `json:"refund"`
	RemainingCapacity int64     `json:"remaining_capacity"`
	OccurredAt        time.Time `json:"occurred_at"`
}
