package ir

import "fmt"

// Status is the last-known state of an action in the journal.
type Status string

const (
	StatusNotStarted Status = "not-started"
	StatusStarted    Status = "started"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

// ValidStatuses defines allowed journal statuses.
var ValidStatuses = map[Status]bool{
	StatusNotStarted: true,
	StatusStarted:    true,
	StatusSuccess:    true,
	StatusFailed:     true,
}

// IsTerminal reports whether the status is a recorded outcome.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// ErrorKind distinguishes why an action failed.
type ErrorKind string

const (
	ErrorKindExecution ErrorKind = "execution"
	ErrorKindTimeout   ErrorKind = "timeout"
	ErrorKindPending   ErrorKind = "pending"
	ErrorKindResolve   ErrorKind = "resolve"
)

// ActionError is the captured failure detail of a failed action.
type ActionError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// JournalEntry is the persisted record of one action for one deployment.
//
// Kind, Dependencies and InputsHash capture the declared shape the entry was
// written for, so a later build can be compared against it.
//
// INVARIANTS:
//   - Result is non-nil iff Status == StatusSuccess
//   - Error is non-nil iff Status == StatusFailed
//   - Attempt never decreases for a key
type JournalEntry struct {
	Deployment     DeploymentID `json:"deployment"`
	IdempotencyKey string       `json:"idempotency_key"`
	ActionID       string       `json:"action_id"`
	Kind           Kind         `json:"kind"`
	Dependencies   []string     `json:"dependencies"`
	InputsHash     string       `json:"inputs_hash"`
	Status         Status       `json:"status"`
	Result         Value        `json:"result,omitempty"`
	Error          *ActionError `json:"error,omitempty"`
	Attempt        int64        `json:"attempt"`
	RunID          string       `json:"run_id"`
	Seq            int64        `json:"seq"`
}

// Validate checks the status/result/error invariants.
func (e *JournalEntry) Validate() error {
	if !ValidStatuses[e.Status] {
		return fmt.Errorf("journal entry %s: invalid status %q", e.ActionID, e.Status)
	}
	if e.IdempotencyKey == "" {
		return fmt.Errorf("journal entry %s: idempotency key is required", e.ActionID)
	}
	switch e.Status {
	case StatusSuccess:
		if e.Result == nil {
			return fmt.Errorf("journal entry %s: success requires a result", e.ActionID)
		}
		if e.Error != nil {
			return fmt.Errorf("journal entry %s: success must not carry an error", e.ActionID)
		}
	case StatusFailed:
		if e.Error == nil {
			return fmt.Errorf("journal entry %s: failed requires an error", e.ActionID)
		}
		if e.Result != nil {
			return fmt.Errorf("journal entry %s: failed must not carry a result", e.ActionID)
		}
	default:
		if e.Result != nil || e.Error != nil {
			return fmt.Errorf("journal entry %s: %s must not carry a result or error", e.ActionID, e.Status)
		}
	}
	return nil
}

// RunRecord is the history row of one orchestrator invocation.
type RunRecord struct {
	RunID       string       `json:"run_id"`
	Deployment  DeploymentID `json:"deployment"`
	Status      string       `json:"status"`
	StartedSeq  int64        `json:"started_seq"`
	FinishedSeq int64        `json:"finished_seq"`
}

// DeploymentSummary counts journal entries by status for one identity.
type DeploymentSummary struct {
	Deployment DeploymentID     `json:"deployment"`
	Counts     map[Status]int64 `json:"counts"`
}
