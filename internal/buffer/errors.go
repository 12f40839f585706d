package buffer

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation error")

	// ErrCapacity matches every *CapacityError.
	ErrCapacity = errors.New("capacity error")
)

// ValidationError reports an operation rejected before any computation,
// e.g. a wrong encoding, mismatched dimensions or a zero dimension.
type ValidationError struct {
	Op     string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid input: %s", e.Op, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a *ValidationError with a formatted reason.
func Invalid(op, format string, args ...interface{}) error {
	return &ValidationError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// CapacityError reports an image that does not fit a fixed-size region.
type CapacityError struct {
	Op       string
	Need     int
	Capacity int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: need %d bytes, capacity is %d", e.Op, e.Need, e.Capacity)
}

func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacity
}
