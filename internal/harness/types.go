package harness

import "github.com/roach88/ignis/internal/engine"

// RunOutcome is what one run of a scenario produced.
type RunOutcome struct {
	// Index is 1-based.
	Index int `json:"index"`

	// Report is nil when the run failed before scheduling.
	Report *engine.Report `json:"report,omitempty"`

	// Err is the error Deploy returned, if any.
	Err string `json:"error,omitempty"`

	// Executed lists the action ids that reached the executor during this
	// run, in call order.
	Executed []string `json:"executed"`
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	Runs []RunOutcome `json:"runs"`

	// Calls lists every executor call across all runs.
	Calls []string `json:"calls"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Runs:   []RunOutcome{},
		Calls:  []string{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// LastReport returns the report of the last run that produced one.
func (r *Result) LastReport() *engine.Report {
	for i := len(r.Runs) - 1; i >= 0; i-- {
		if r.Runs[i].Report != nil {
			return r.Runs[i].Report
		}
	}
	return nil
}
