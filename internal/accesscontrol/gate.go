// Package accesscontrol evaluates caller identity against the three
// authorization predicates gating every mutating operation. Predicates
// are side-effect free and run against a ledger Reader, so services can
// evaluate them inside the same unit of work as the mutation they guard.
package accesscontrol

import (
	"context"
	"errors"
	"fmt"

	"gridmarket/internal/ledger"
	registry "gridmarket/internal/registry/domain"
)

// ErrUnauthorized is returned when a required predicate is false.
var ErrUnauthorized = errors.New("accesscontrol: unauthorized")

// IsAdministrator reports whether caller is the singleton administrator.
func IsAdministrator(ctx context.Context, reader ledger.Reader, caller string) (bool, error) {
	admin, err := reader.Administrator(ctx)
	if err != nil {
		if errors.Is(err, ledger.ErrAdministratorUnset) {
			return false, nil
		}
		return false, err
	}
	return caller != "" && caller == admin, nil
}

// IsWhitelisted reports whitelist membership; unknown identities are not
// admitted.
func IsWhitelisted(ctx context.Context, reader ledger.Reader, caller string) (bool, error) {
	if caller == "" {
		return false, nil
	}
	return reader.IsWhitelisted(ctx, caller)
}

// IsStationOwner reports whether caller is the owning organization of
// the station. Only the true owner may act; station existence must be
// established by the caller beforehand.
func IsStationOwner(station registry.Station, caller string) bool {
	return caller != "" && caller == station.Organization
}

// RequireAdministrator fails with ErrUnauthorized unless caller is the
// administrator.
func RequireAdministrator(ctx context.Context, reader ledger.Reader, caller string) error {
	ok, err := IsAdministrator(ctx, reader, caller)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s is not the administrator", ErrUnauthorized, caller)
	}
	return nil
}

// RequireWhitelisted fails with ErrUnauthorized unless caller is admitted.
func RequireWhitelisted(ctx context.Context, reader ledger.Reader, caller string) error {
	ok, err := IsWhitelisted(ctx, reader, caller)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s is not whitelisted", ErrUnauthorized, caller)
	}
	return nil
}

// RequireStationOwner fails with ErrUnauthorized unless caller owns the
// station.
func RequireStationOwner(station registry.Station, caller string) error {
	if !IsStationOwner(station, caller) {
		return fmt.Errorf("%w: %s does not own station %d", ErrUnauthorized, caller, station.ID)
	}
	return nil
}
