package aggregator

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for management operations. They are wrapped with the
// offending backend name.
var (
	ErrAlreadyExists  = errors.New("backend already exists")
	ErrUnknownBackend = errors.New("unknown backend")
)

// InvalidNameError reports a backend identifier that cannot be used for
// namespacing.
type InvalidNameError struct {
	Name   string
	Reason string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid backend name %q: %s", e.Name, e.Reason)
}

// ConnectionError reports a failure to reach a backend.
type ConnectionError struct {
	Backend string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to backend %s failed: %v", e.Backend, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// NotFoundError reports an unknown public capability name at call time.
type NotFoundError struct {
	Kind CapabilityKind
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// ConflictError reports a name collision under the error conflict policy.
type ConflictError struct {
	Kind      CapabilityKind
	Name      string
	Holder    string
	Candidate string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q from backend %s conflicts with backend %s", e.Kind, e.Name, e.Candidate, e.Holder)
}

// NotInitializedError is returned by operations attempted before
// initialization completed or after shutdown.
type NotInitializedError struct {
	Operation string
	State     State
}

func (e *NotInitializedError) Error() string {
	return fmt.Sprintf("%s: aggregator not initialized (state %s)", e.Operation, e.State)
}

// TimeoutError reports a backend load that exceeded its allotted time.
type TimeoutError struct {
	Backend string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("loading backend %s timed out after %s", e.Backend, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return e.Err }
