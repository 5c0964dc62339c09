package servicelog

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidArgument is returned for malformed service log inputs.
var ErrInvalidArgument = errors.New("servicelog: invalid argument")

// Record is a single maintenance/report entry. Records are append-only
// and never mutated or removed once written.
type Record struct {
	ReportedAt time.Time `json:"reported_at"`
	ReportRef  string    `json:"report_ref"`
}

// Validate checks record invariants.
func (r Record) Validate() error {
	if r.ReportRef == "" {
		return fmt.Errorf("%w: empty report ref", ErrInvalidArgument)
	}
	if r.ReportedAt.IsZero() {
		return fmt.Errorf("%w: zero report time", ErrInvalidArgument)
	}
	return nil
}
