package services

import (
	"errors"
	"fmt"
)

// Error taxonomy for the engine. Handlers map these to HTTP statuses; nothing
// below this layer returns a transport-specific error.
var (
	// ErrParse means no usable time span could be extracted from the input
	// after both parser tiers. No record is created.
	ErrParse = errors.New("no usable time span extracted")

	// ErrNotFound means a referenced record or goal id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition means an illegal goal status change was requested.
	// The goal is left unchanged.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrReconciliationConflict means the per-goal critical section could not
	// be acquired within the bounded wait. The caller retries the whole
	// mutation; nothing was applied.
	ErrReconciliationConflict = errors.New("reconciliation conflict")

	// ErrValidation covers malformed request payloads.
	ErrValidation = errors.New("validation failed")
)

func parseErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrParse, fmt.Sprintf(format, args...))
}

func validationErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
