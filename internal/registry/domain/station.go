package registry

import (
	"fmt"
	"time"
)

// GenerationType classifies the primary energy source of a station.
type GenerationType string

const (
	GenerationSolar       GenerationType = "solar"
	GenerationGeothermal  GenerationType = "geothermal"
	GenerationWind        GenerationType = "wind"
	GenerationBiomass     GenerationType = "biomass"
	GenerationHydropower  GenerationType = "hydropower"
	GenerationNuclear     GenerationType = "nuclear"
	GenerationCoal        GenerationType = "coal"
	GenerationDiesel      GenerationType = "diesel"
	GenerationHydrocarbon GenerationType = "hydrocarbon"
)

var generationTypes = map[GenerationType]struct{}{
	GenerationSolar:       {},
	GenerationGeothermal:  {},
	GenerationWind:        {},
	GenerationBiomass:     {},
	GenerationHydropower:  {},
	GenerationNuclear:     {},
	GenerationCoal:        {},
	GenerationDiesel:      {},
	GenerationHydrocarbon: {},
}

// ParseGenerationType validates a generation type string.
func ParseGenerationType(value string) (GenerationType, error) {
	gt := GenerationType(value)
	if _, ok := generationTypes[gt]; !ok {
		return "", fmt.Errorf("%w: generation type %q", ErrInvalidArgument, value)
	}
	return gt, nil
}

// LifecycleState tracks the operational state of a station. Transitions
// are owner-driven and unconstrained; dismantled stations stay in the
// registry as historic markers and may still change state.
type LifecycleState string

const (
	StateInstalled        LifecycleState = "installed"
	StateMonitored        LifecycleState = "monitored"
	StateUnderMaintenance LifecycleState = "under_maintenance"
	StateDismantled       LifecycleState = "dismantled"
	StateOnline           LifecycleState = "online"
)

var lifecycleStates = map[LifecycleState]struct{}{
	StateInstalled:        {},
	StateMonitored:        {},
	StateUnderMaintenance: {},
	StateDismantled:       {},
	StateOnline:           {},
}

// ParseLifecycleState validates a lifecycle state string.
func ParseLifecycleState(value string) (LifecycleState, error) {
	st := LifecycleState(value)
	if _, ok := lifecycleStates[st]; !ok {
		return "", fmt.Errorf("%w: lifecycle state %q", ErrInvalidArgument, value)
	}
	return st, nil
}

// Coordinates holds a fixed-point geographic position in micro-degrees.
type Coordinates struct {
	Latitude  int64 `json:"latitude"`
	Longitude int64 `json:"longitude"`
}

// Surcharge is the administrator-set per-unit fee. Unset and zero are
// distinct states.
type Surcharge struct {
	Amount int64 `json:"amount"`
	Set    bool  `json:"set"`
}

// Station is a registered power-generation asset. The identifier is
// dense, zero-based and immutable once assigned; all quantities are
// scaled integers.
type Station struct {
	ID                int64          `json:"id"`
	Coordinates       Coordinates    `json:"coordinates"`
	InstalledCapacity int64          `json:"installed_capacity"`
	SellCapacity      int64          `json:"sell_capacity"`
	Surcharge         Surcharge      `json:"surcharge"`
	TargetReserve     int64          `json:"target_reserve"`
	PricePerUnit      int64          `json:"price_per_unit"`
	TimeCreated       time.Time      `json:"time_created"`
	LastUpdated       time.Time      `json:"last_updated"`
	GenerationType    GenerationType `json:"generation_type"`
	State             LifecycleState `json:"state"`
	Organization      string         `json:"organization"`
}

// Validate checks station invariants.
func (s Station) Validate() error {
	if s.ID < 0 {
		return fmt.Errorf("%w: negative id", ErrInvalidArgument)
	}
	if s.InstalledCapacity < 0 {
		return fmt.Errorf("%w: negative installed capacity", ErrInvalidArgument)
	}
	if s.SellCapacity < 0 {
		return fmt.Errorf("%w: negative sell capacity", ErrInvalidArgument)
	}
	if s.TargetReserve < 0 {
		return fmt.Errorf("%w: negative target reserve", ErrInvalidArgument)
	}
	if s.PricePerUnit < 0 {
		return fmt.Errorf("%w: negative price per unit", ErrInvalidArgument)
	}
	if s.Organization == "" {
		return fmt.Errorf("%w: empty organization", ErrInvalidArgument)
	}
	if _, ok := generationTypes[s.GenerationType]; !ok {
		return fmt.Errorf("%w: generation type %q", ErrInvalidArgument, s.GenerationType)
	}
	if _, ok := lifecycleStates[s.State]; !ok {
		return fmt.Errorf("%w: lifecycle state %q", ErrInvalidArgument, s.State)
	}
	if s.LastUpdated.Before(s.TimeCreated) {
		return fmt.Errorf("%w: last updated precedes creation", ErrInvalidArgument)
	}
	return nil
}
