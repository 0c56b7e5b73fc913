// Package errors implements the §7 error taxonomy as typed, wrapping Go
// errors: a private struct carrying a message and an optional cause, a
// pair of New/NewCausedBy constructors, and an As* predicate built from a
// generic errors.As helper (the idiom used throughout knitfab's
// pkg/domain/errors/k8serrors).
package errors

import (
	"errors"
	"fmt"
)

func as[E error](err error) bool {
	if err == nil {
		return false
	}
	p := new(E)
	return errors.As(err, p)
}

type wrapping struct {
	message  string
	causedBy error
}

func (w wrapping) format() string {
	if w.causedBy == nil {
		return w.message
	}
	if w.message == "" {
		return fmt.Sprintf("caused by: %v", w.causedBy)
	}
	return fmt.Sprintf("%s / caused by: %v", w.message, w.causedBy)
}

// ValidationError: bad pipeline descriptor. Surface, no run created.
type ValidationError wrapping

var AsValidationError = as[*ValidationError]

func NewValidationError(message string) error { return &ValidationError{message: message} }
func NewValidationErrorCausedBy(message string, err error) error {
	return &ValidationError{message: message, causedBy: err}
}
func (e *ValidationError) Error() string { return wrapping(*e).format() }
func (e *ValidationError) Unwrap() error { return e.causedBy }

// CycleDetected: the DAG contains a cycle; names one offending node.
type CycleDetected wrapping

var AsCycleDetected = as[*CycleDetected]

func NewCycleDetected(node string) error {
	return &CycleDetected{message: fmt.Sprintf("cycle detected at task %q", node)}
}
func (e *CycleDetected) Error() string { return wrapping(*e).format() }
func (e *CycleDetected) Unwrap() error { return e.causedBy }

// UnknownDependency: a `depends` reference did not resolve by name.
type UnknownDependency wrapping

var AsUnknownDependency = as[*UnknownDependency]

func NewUnknownDependency(task, dependsOn string) error {
	return &UnknownDependency{
		message: fmt.Sprintf("task %q depends on unknown task %q", task, dependsOn),
	}
}
func (e *UnknownDependency) Error() string { return wrapping(*e).format() }
func (e *UnknownDependency) Unwrap() error { return e.causedBy }

// UnsupportedResourceKind: no Handler is registered for a task's resource
// kind. Marks the task FAILED, per §4.5/§7.
type UnsupportedResourceKind wrapping

var AsUnsupportedResourceKind = as[*UnsupportedResourceKind]

func NewUnsupportedResourceKind(kind string) error {
	return &UnsupportedResourceKind{message: fmt.Sprintf("unsupported resource kind %q", kind)}
}
func (e *UnsupportedResourceKind) Error() string { return wrapping(*e).format() }
func (e *UnsupportedResourceKind) Unwrap() error { return e.causedBy }

// SubmitError: Handler-side failure to submit a workload. Retried
// bounded, then the task is marked FAILED.
type SubmitError wrapping

var AsSubmitError = as[*SubmitError]

func NewSubmitError(message string) error { return &SubmitError{message: message} }
func NewSubmitErrorCausedBy(message string, err error) error {
	return &SubmitError{message: message, causedBy: err}
}
func (e *SubmitError) Error() string { return wrapping(*e).format() }
func (e *SubmitError) Unwrap() error { return e.causedBy }

// ObserveError: transient failure to observe a workload's status. Retried
// unboundedly with backoff.
type ObserveError wrapping

var AsObserveError = as[*ObserveError]

func NewObserveErrorCausedBy(message string, err error) error {
	return &ObserveError{message: message, causedBy: err}
}
func (e *ObserveError) Error() string { return wrapping(*e).format() }
func (e *ObserveError) Unwrap() error { return e.causedBy }

// StoreError: Jobs Store call failed. Fails the current reconciliation
// step; retried on the next tick.
type StoreError wrapping

var AsStoreError = as[*StoreError]

func NewStoreErrorCausedBy(message string, err error) error {
	return &StoreError{message: message, causedBy: err}
}
func (e *StoreError) Error() string { return wrapping(*e).format() }
func (e *StoreError) Unwrap() error { return e.causedBy }

// CleanupError: partial failure deleting a cluster resource. Recorded,
// but does not block entering TERMINATED.
type CleanupError wrapping

var AsCleanupError = as[*CleanupError]

func NewCleanupErrorCausedBy(message string, err error) error {
	return &CleanupError{message: message, causedBy: err}
}
func (e *CleanupError) Error() string { return wrapping(*e).format() }
func (e *CleanupError) Unwrap() error { return e.causedBy }

// ErrCancelRequested is a cooperative interrupt signal, not a failure: it
// is checked with errors.Is and never surfaced as an error to a caller.
var ErrCancelRequested = errors.New("cancellation requested")
