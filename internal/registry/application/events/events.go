package events

import "time"

// StationRegistered is emitted when a station is added to the registry.
type StationRegistered struct {
	StationID         int64     `json:"station_id"`
	Organization      string    `json:"organization"`
	GenerationType    string    `json:"generation_type"`
	InstalledCapacity int64     `json:"installed_capacity"`
	SellCapacity      int64     `json:"sell_capacity"`
	PricePerUnit      int64     `json:"price_per_unit"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// SellCapacityChanged is emitted when an owner overwrites sell capacity.
type SellCapacityChanged struct {
	StationID    int64     `json:"station_id"`
	SellCapacity int64     `json:"sell_capacity"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// TargetReserveChanged is emitted when an owner overwrites the target
// reserve rate.
type TargetReserveChanged struct {
	StationID     int64     `json:"station_id"`
	TargetReserve int64     `json:"target_reserve"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// OwnerChanged is emitted when station ownership is reassigned.
type OwnerChanged struct {
	StationID     int64     `json:"station_id"`
	PreviousOwner string    `json:"previous_owner"`
	NewOwner      string    `json:"new_owner"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// StateChanged is emitted when the lifecycle state moves.
type StateChanged struct {
	StationID     int64     `json:"station_id"`
	PreviousState string    `json:"previous_state"`
	State         string    `json:"state"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// WhitelistChanged is emitted when the administrator admits or revokes
// an organization.
type WhitelistChanged struct {
	Identity   string    `json:"identity"`
	Allowed    bool      `json:"allowed"`
	OccurredAt time.Time `json:"occurred_at"`
}
