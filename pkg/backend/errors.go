// Package backend classifies storage failures for callers that decide
// whether to retry.
//
// A Temporary failure may succeed if the caller starts a new transaction and
// tries again, for example after a write conflict. A Permanent failure will not.
// Nothing in this module retries on its own.
package backend

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// TemporaryError marks a retryable failure
type TemporaryError struct {
	cause error
}

// Error implements error
func (e *TemporaryError) Error() string {
	return fmt.Sprintf("temporary backend failure: %v", e.cause)
}

// Unwrap returns the underlying failure
func (e *TemporaryError) Unwrap() error {
	return e.cause
}

// Cause returns the underlying failure for errors.Cause
func (e *TemporaryError) Cause() error {
	return e.cause
}

// PermanentError marks a failure that will not go away on retry
type PermanentError struct {
	cause error
}

// Error implements error
func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent backend failure: %v", e.cause)
}

// Unwrap returns the underlying failure
func (e *PermanentError) Unwrap() error {
	return e.cause
}

// Cause returns the underlying failure for errors.Cause
func (e *PermanentError) Cause() error {
	return e.cause
}

// Temporary wraps err as a retryable failure. It returns nil for a nil err and
// leaves an already classified error alone.
func Temporary(err error) error {
	if err == nil {
		return nil
	}
	if IsTemporary(err) || IsPermanent(err) {
		return err
	}
	return &TemporaryError{cause: errors.WithStack(err)}
}

// Permanent wraps err as a non-retryable failure. It returns nil for a nil err
// and leaves an already classified error alone.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	if IsTemporary(err) || IsPermanent(err) {
		return err
	}
	return &PermanentError{cause: errors.WithStack(err)}
}

// Permanentf builds a new permanent failure from a format string. A %w verb
// keeps the wrapped error reachable through errors.Is.
func Permanentf(format string, args ...interface{}) error {
	return &PermanentError{cause: errors.WithStack(fmt.Errorf(format, args...))}
}

// IsTemporary reports whether err carries a retryable classification
func IsTemporary(err error) bool {
	var t *TemporaryError
	return stderrors.As(err, &t)
}

// IsPermanent reports whether err carries a non-retryable classification
func IsPermanent(err error) bool {
	var p *PermanentError
	return stderrors.As(err, &p)
}
