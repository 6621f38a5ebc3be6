// Package bberr classifies errors into the handling policy a caller should
// apply (retry, fail fast, absorb, or crash), per the error taxonomy each
// component of this system follows.
package bberr

import (
	"errors"
	"fmt"
)

// Kind is the handling policy for an error.
type Kind int

const (
	// KindTransient is retryable: transport error, timeout, 5xx, deadlock
	// or serialization conflict, bus disconnect.
	KindTransient Kind = iota
	// KindClient is not retryable and not a service failure: 4xx, schema
	// validation failure, missing required config, unknown detector type.
	KindClient
	// KindDataQuality is handled, not raised: an unusable input that the
	// caller should route to its designated failure path, not log as a bug.
	KindDataQuality
	// KindLogical indicates a bug or corrupt state: impossible enum value,
	// unique constraint violation on a path that should have been idempotent.
	KindLogical
	// KindFatal means the service cannot continue: exit after publishing
	// an unhealthy status.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindClient:
		return "client"
	case KindDataQuality:
		return "data_quality"
	case KindLogical:
		return "logical"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a Kind and the component that raised
// it, so callers several layers up can decide policy without re-deriving it
// from the concrete error type.
type Error struct {
	Kind      Kind
	Component string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s[%s]: %v", e.Component, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err as a classified error. Returns nil if err is nil.
func New(kind Kind, component string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Component: component, Err: err}
}

// Newf is New with a formatted message instead of a wrapped error.
func Newf(kind Kind, component, format string, args ...any) error {
	return &Error{Kind: kind, Component: component, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of err, or KindLogical if err was never classified
// (an unclassified error reaching a policy decision point is itself a bug).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindLogical
}

// IsRetryable reports whether the caller should retry err.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}
