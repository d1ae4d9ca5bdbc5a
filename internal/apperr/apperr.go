// Package apperr holds the error kinds shared by the scheduling and booking
// packages. Domain packages declare their own sentinels with New so callers can
// match either the specific error or its kind with errors.Is.
package apperr

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrSlotUnavailable    = errors.New("slot no longer available")
	ErrInvalidTemplate    = errors.New("invalid schedule template")
	ErrTransientStore     = errors.New("transient store failure")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrInvalidInput       = errors.New("invalid input")
	ErrConflict           = errors.New("conflict")
)

type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// New returns a sentinel with its own message that also matches kind.
func New(kind error, msg string) error {
	return &kindError{msg: msg, kind: kind}
}

type transientError struct {
	err error
}

func (e *transientError) Error() string   { return e.err.Error() }
func (e *transientError) Unwrap() []error { return []error{ErrTransientStore, e.err} }

// Transient marks a store failure as retryable. Errors that already carry a
// domain kind are returned unchanged.
func Transient(err error) error {
	if err == nil || IsDomain(err) || errors.Is(err, ErrTransientStore) {
		return err
	}
	return &transientError{err: err}
}

// IsDomain reports whether err is an expected outcome rather than a store failure.
func IsDomain(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSlotUnavailable) ||
		errors.Is(err, ErrInvalidTemplate) ||
		errors.Is(err, ErrInvariantViolation) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrConflict)
}
