package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited is returned when an actor exceeds the admission window
	// for an operation. No side effects occur.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadySettled guards refund/withdraw idempotency: the
	// contribution's funds already left custody.
	ErrAlreadySettled = errors.New("contribution already settled")

	// ErrAlreadySwept is returned when a sweep is requested twice.
	ErrAlreadySwept = errors.New("contribution already swept")
)

// ValidationError rejects malformed or out-of-range input before any side
// effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func validationErr(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a validation rejection.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
