// Package evalerr defines the error kinds that abort an evaluation.
package evalerr

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Every failure surfaced by an evaluation wraps one of these.
var (
	// ErrCollaboratorUnavailable marks a failed call to a metrics, catalog or price API.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	// ErrNoWorkloadData marks an evaluation window without a single load sample.
	ErrNoWorkloadData = errors.New("no workload data in evaluation window")
	// ErrMalformedCatalogEntry marks a price or instance catalog entry missing an expected attribute.
	ErrMalformedCatalogEntry = errors.New("malformed catalog entry")
)

// Error wraps an underlying failure with the operation and phase it happened in.
type Error struct {
	Op    string // Operation that failed, e.g. "GetResourceMetrics"
	Phase string // Evaluation phase, e.g. "metrics", "catalog", "pricing"
	Kind  error  // One of the sentinel kinds
	Err   error  // Underlying error, may be nil
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err)
	}
	if e.Phase != "" {
		return fmt.Sprintf("%s during %s: %s", e.Op, e.Phase, msg)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New creates an Error of the given kind.
func New(op, phase string, kind, err error) *Error {
	return &Error{Op: op, Phase: phase, Kind: kind, Err: err}
}

// Collaborator wraps a failed external call. A nil err yields nil.
func Collaborator(op, phase string, err error) error {
	if err == nil {
		return nil
	}
	return New(op, phase, ErrCollaboratorUnavailable, err)
}

// Malformed reports catalog drift for the named entry.
func Malformed(op, phase, format string, args ...any) error {
	return New(op, phase, ErrMalformedCatalogEntry, fmt.Errorf(format, args...))
}

// KindOf returns the sentinel kind wrapped by err, or nil.
func KindOf(err error) error {
	for _, kind := range []error{ErrCollaboratorUnavailable, ErrNoWorkloadData, ErrMalformedCatalogEntry} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
