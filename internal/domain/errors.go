package domain

import "errors"

var (
	// ErrNotFound: the operation targets an id the store does not have.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable: network or backend failure, possibly transient.
	ErrUnavailable = errors.New("store unavailable")
	// ErrConstraint: the store rejected the write (duplicate key and similar).
	ErrConstraint = errors.New("constraint violation")
	// ErrValidation: the input is not a valid record; nothing was written.
	ErrValidation = errors.New("validation failed")
	// ErrPartialFailure: a multi-step operation stopped part way.
	ErrPartialFailure = errors.New("partial failure")
)

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
