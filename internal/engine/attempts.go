package engine

import (
	"errors"
	"fmt"
)

// AttemptLimit caps how many times one action may be dispatched over the
// whole life of a deployment journal.
//
// A retry disposition normally dispatches again on every run. With a
// limit, an action whose journal attempt already reached it is reported
// failed without calling the executor, and its dependents are held. This
// stops a permanently failing action from being resubmitted forever.
//
// A zero limit means unlimited.
type AttemptLimit struct {
	max int64
}

// NewAttemptLimit creates a limit of max attempts; 0 disables the limit.
func NewAttemptLimit(max int64) AttemptLimit {
	return AttemptLimit{max: max}
}

// Check returns an *AttemptsExceededError when one more dispatch after
// previous attempts would go over the limit.
func (l AttemptLimit) Check(actionID string, previous int64) error {
	if l.max <= 0 || previous < l.max {
		return nil
	}
	return &AttemptsExceededError{
		ActionID: actionID,
		Attempts: previous,
		Limit:    l.max,
	}
}

// Max returns the configured limit.
func (l AttemptLimit) Max() int64 {
	return l.max
}

// AttemptsExceededError is returned when an action reached the attempt
// limit. It is recorded in the report as an execution failure.
type AttemptsExceededError struct {
	ActionID string
	Attempts int64
	Limit    int64
}

func (e *AttemptsExceededError) Error() string {
	return fmt.Sprintf("action %s reached the attempt limit: %d attempts >= %d",
		e.ActionID, e.Attempts, e.Limit)
}

// IsAttemptsExceeded returns true if err contains an AttemptsExceededError.
func IsAttemptsExceeded(err error) bool {
	var target *AttemptsExceededError
	return errors.As(err, &target)
}
