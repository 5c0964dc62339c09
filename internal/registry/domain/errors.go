package registry

import "errors"

var (
	// ErrNotFound is returned when a station id is not in the registry.
	ErrNotFound = errors.New("registry: station not found")
	// ErrInvalidArgument is returned for malformed inputs and
	// out-of-range pagination windows.
	ErrInvalidArgument = errors.New("registry: invalid argument")
)
