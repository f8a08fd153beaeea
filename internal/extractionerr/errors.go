// Package extractionerr defines the closed taxonomy of error kinds that
// propagate across the LLM client, throttle, and orchestrator layers. Call
// sites classify on Kind, never on transport-level codes or string
// matching.
package extractionerr

import (
	"errors"
	"fmt"
)

// Kind is a closed enumeration of the error conditions named in the
// extraction pipeline's error-handling design.
type Kind string

const (
	KindInvalidInput  Kind = "invalid_input"
	KindTimeout       Kind = "timeout"
	KindTransport     Kind = "transport"
	KindServerError   Kind = "server_error"
	KindMalformedJSON Kind = "malformed_json"
	KindModelNotReady Kind = "model_not_ready"
	KindCircuitOpen   Kind = "circuit_open"
	KindWaveFailure   Kind = "wave_failure"
	KindCancelled     Kind = "cancelled"
)

// Error wraps an underlying error with a classification Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Newf creates a classified error from a format string.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from err, or "" if err is not (or does not wrap)
// an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether a Kind represents a condition worth retrying.
// Circuit-open and invalid-input are never retryable; timeouts, transport
// errors, and 5xx server errors are.
func Retryable(kind Kind) bool {
	switch kind {
	case KindTimeout, KindTransport, KindServerError, KindModelNotReady:
		return true
	default:
		return false
	}
}

var (
	// ErrNilDocument is returned by the router when handed a nil document.
	ErrNilDocument = New(KindInvalidInput, fmt.Errorf("document text is nil"))
)
