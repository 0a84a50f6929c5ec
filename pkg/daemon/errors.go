package daemon

import (
	"errors"
	"fmt"

	"github.com/fraser-isbester/aurora-advisor/pkg/evalerr"
)

var (
	ErrDaemonStopped    = errors.New("daemon stopped")
	ErrInvalidConfig    = errors.New("invalid daemon configuration")
	ErrEvaluationFailed = errors.New("evaluation failed")
)

// DaemonError wraps errors with the operation and phase they occurred in
type DaemonError struct {
	Op    string // Operation that failed
	Err   error  // Underlying error
	Phase string // Phase of daemon operation (startup, running, shutdown)
}

func (e *DaemonError) Error() string {
	if e.Phase != "" {
		return fmt.Sprintf("daemon %s during %s: %s", e.Op, e.Phase, e.Err)
	}
	return fmt.Sprintf("daemon %s: %s", e.Op, e.Err)
}

func (e *DaemonError) Unwrap() error {
	return e.Err
}

// NewDaemonError creates a new DaemonError with context
func NewDaemonError(op, phase string, err error) *DaemonError {
	return &DaemonError{
		Op:    op,
		Phase: phase,
		Err:   err,
	}
}

// WrapError wraps an error with daemon context
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DaemonError{Op: op, Err: err}
}

// IsRecoverable reports whether the next cycle may succeed where this one
// failed: collaborator outages and windows without load clear on their own,
// malformed catalog entries and configuration errors do not.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, ErrInvalidConfig) || errors.Is(err, evalerr.ErrMalformedCatalogEntry) {
		return false
	}
	return errors.Is(err, evalerr.ErrCollaboratorUnavailable) || errors.Is(err, evalerr.ErrNoWorkloadData)
}
