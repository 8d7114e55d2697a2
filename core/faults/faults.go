// Package faults defines the failure taxonomy shared across the engine
// boundary. Callers translate these kinds into user-facing explanations, so
// every fault carries a message that stands on its own.
package faults

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the calling layer.
type Kind string

const (
	// NotFound means a referenced driver or block does not exist or is
	// outside tenant scope.
	NotFound Kind = "not_found"
	// InvalidRange means a query requested more than the allowed date span.
	InvalidRange Kind = "invalid_range"
	// UpstreamUnavailable means an external collaborator could not be
	// reached or returned malformed data.
	UpstreamUnavailable Kind = "upstream_unavailable"
	// StateConflict means session state no longer matches the request, e.g.
	// assigning a block that is already taken.
	StateConflict Kind = "state_conflict"
	// ParseFailure means an input value could not be interpreted.
	ParseFailure Kind = "parse_failure"
)

// Fault is a structured error with a kind and a human-readable message.
type Fault struct {
	Kind    Kind
	Message string
	wrapped error
}

func (f *Fault) Error() string {
	if f.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.wrapped)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Fault) Unwrap() error { return f.wrapped }

// New creates a Fault with the given kind and formatted message.
func New(kind Kind, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a Fault around err, keeping it available via errors.Unwrap.
func Wrap(err error, kind Kind, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...), wrapped: err}
}

// KindOf returns the kind of err if it is (or wraps) a Fault, or an empty
// kind otherwise.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool { return KindOf(err) == kind }
