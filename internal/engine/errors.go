package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/ignis/internal/ir"
)

// Shape is the declared kind and dependency set of an action. It is what
// the journal remembers about an action besides its outcome.
type Shape struct {
	Kind         ir.Kind  `json:"kind"`
	Dependencies []string `json:"dependencies"`
}

func (s Shape) String() string {
	return fmt.Sprintf("%s after [%s]", s.Kind, strings.Join(s.Dependencies, ", "))
}

// RedefinitionError is returned by Reconcile when an action id now names a
// different kind or dependency set than the one recorded in the journal.
// A run is refused while any redefinition exists.
type RedefinitionError struct {
	ActionID string
	Recorded Shape
	Declared Shape
}

func (e *RedefinitionError) Error() string {
	return fmt.Sprintf("action %s was redefined: journal has %s, declaration has %s",
		e.ActionID, e.Recorded, e.Declared)
}

// InvariantError reports an internal inconsistency, such as resolving a
// reference to a dependency that has not succeeded. It always indicates a
// bug, never a user or chain error.
type InvariantError struct {
	ActionID string
	Message  string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated for %s: %s", e.ActionID, e.Message)
}

// InfrastructureError wraps a failure of the journal or the executor
// transport. It aborts the run: nothing more is dispatched and the error is
// returned after in-flight actions drain.
type InfrastructureError struct {
	Op       string
	ActionID string
	Err      error
}

func (e *InfrastructureError) Error() string {
	if e.ActionID != "" {
		return fmt.Sprintf("%s (%s): %v", e.Op, e.ActionID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}

// PendingError is returned by an executor when the outcome of a submitted
// action is not yet known. Token identifies the submission for Poll.
type PendingError struct {
	Token   string
	Message string
}

func (e *PendingError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("pending %s: %s", e.Token, e.Message)
	}
	return fmt.Sprintf("pending %s", e.Token)
}

// UnavailableError is returned by an executor that could not reach the
// target at all. Unlike an execution error, nothing was submitted.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("executor unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// ResolveError reports a reference whose path does not exist in the
// dependency's recorded result. The referring action fails with kind
// "resolve".
type ResolveError struct {
	Ref ir.Ref
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("reference %s does not match the result of %s", e.Ref, e.Ref.Action)
}

// IsRedefinition returns true if err contains a RedefinitionError.
func IsRedefinition(err error) bool {
	var target *RedefinitionError
	return errors.As(err, &target)
}

// IsInfrastructure returns true if err contains an InfrastructureError.
func IsInfrastructure(err error) bool {
	var target *InfrastructureError
	return errors.As(err, &target)
}

// IsInvariant returns true if err contains an InvariantError.
func IsInvariant(err error) bool {
	var target *InvariantError
	return errors.As(err, &target)
}
