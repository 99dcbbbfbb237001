// Package stageerr classifies pipeline stage failures as transient or
// permanent so the retry policy and the provider clients agree on what is
// worth retrying.
package stageerr

import (
	"errors"
	"fmt"
	"net/http"
)

// FailureKind classifies a stage failure for the retry policy.
type FailureKind int

const (
	// FailureTransient covers timeouts, rate limits and upstream 5xx; the
	// stage is retried within its attempt budget.
	FailureTransient FailureKind = iota
	// FailurePermanent covers malformed input and unparseable responses;
	// retrying cannot help, the stage fails immediately.
	FailurePermanent
)

// StageError wraps a stage failure with its classification.
type StageError struct {
	Kind FailureKind
	Err  error
}

func (e *StageError) Error() string {
	if e.Kind == FailurePermanent {
		return fmt.Sprintf("permanent: %v", e.Err)
	}
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Transient marks err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Kind: FailureTransient, Err: err}
}

// Permanent marks err as not retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Kind: FailurePermanent, Err: err}
}

// Transientf is Transient with formatting.
func Transientf(format string, args ...any) error {
	return &StageError{Kind: FailureTransient, Err: fmt.Errorf(format, args...)}
}

// Permanentf is Permanent with formatting.
func Permanentf(format string, args ...any) error {
	return &StageError{Kind: FailurePermanent, Err: fmt.Errorf(format, args...)}
}

// IsTransient reports whether err should be retried. Unclassified errors are
// treated as transient so plain network failures get the retry budget.
func IsTransient(err error) bool {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind == FailureTransient
	}
	return true
}

// FromStatus classifies an upstream HTTP status code. Rate limiting and
// server-side failures are worth retrying, every other non-2xx is not.
func FromStatus(code int, body string) error {
	switch {
	case code == http.StatusTooManyRequests:
		return Transientf("upstream rate limited (%d): %s", code, body)
	case code >= 500:
		return Transientf("upstream error (%d): %s", code, body)
	default:
		return Permanentf("upstream rejected request (%d): %s", code, body)
	}
}
