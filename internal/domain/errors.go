package domain

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrBookingNotFound      = errors.New("booking not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidOverride      = errors.New("invalid admin PIN")
	ErrFullyUtilized        = errors.New("pass fully utilized")
	ErrCapacityExceeded     = errors.New("capacity exceeded")
)

// CapacityError reports why an admission was refused and how much room the
// booking has left. It unwraps to ErrFullyUtilized or ErrCapacityExceeded.
type CapacityError struct {
	Reason    error
	Allowed   int
	Entered   int
	Remaining int
	Requested int
}

func (e *CapacityError) Error() string {
	if errors.Is(e.Reason, ErrFullyUtilized) {
		return fmt.Sprintf("pass fully utilized: %d of %d entered", e.Entered, e.Allowed)
	}
	return fmt.Sprintf("cannot enter %d people, only %d remaining", e.Requested, e.Remaining)
}

func (e *CapacityError) Unwrap() error { return e.Reason }
