package engine

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/roach88/ignis/internal/ir"
)

// ActionStatus is the final status of an action in a run report.
type ActionStatus string

const (
	ActionSuccess   ActionStatus = "success"
	ActionSkipped   ActionStatus = "skipped"
	ActionFailed    ActionStatus = "failed"
	ActionHeld      ActionStatus = "held"
	ActionCancelled ActionStatus = "cancelled"
)

// OverallStatus summarizes a run.
type OverallStatus string

const (
	// OverallSuccess: every action succeeded in this run or was skipped.
	OverallSuccess OverallStatus = "success"
	// OverallPartialFailure: at least one action failed, was held or was
	// never dispatched.
	OverallPartialFailure OverallStatus = "partial-failure"
)

// ActionReport is the outcome of one action.
type ActionReport struct {
	ActionID string          `json:"action_id"`
	Kind     ir.Kind         `json:"kind"`
	Status   ActionStatus    `json:"status"`
	Attempt  int64           `json:"attempt,omitempty"`
	Result   ir.Value        `json:"result,omitempty"`
	Error    *ir.ActionError `json:"error,omitempty"`
	HeldBy   string          `json:"held_by,omitempty"`
	Exports  []string        `json:"exports,omitempty"`

	Duration time.Duration `json:"-"`
}

// Report is the result of one run.
//
// Actions are listed in the graph's topological order. Exports maps the
// root module's exported names to results, and only contains names whose
// action succeeded or was skipped.
type Report struct {
	Deployment ir.DeploymentID     `json:"deployment"`
	RunID      string              `json:"run_id"`
	Overall    OverallStatus       `json:"overall"`
	Cancelled  bool                `json:"cancelled,omitempty"`
	Actions    []ActionReport      `json:"actions"`
	Exports    map[string]ir.Value `json:"exports"`
	Failed     []string            `json:"failed,omitempty"`
	Held       []string            `json:"held,omitempty"`
	Warnings   []string            `json:"warnings,omitempty"`
}

// Action returns the report of one action.
func (r *Report) Action(id string) (ActionReport, bool) {
	for _, a := range r.Actions {
		if a.ActionID == id {
			return a, true
		}
	}
	return ActionReport{}, false
}

// Count returns how many actions ended with the given status.
func (r *Report) Count(status ActionStatus) int {
	n := 0
	for _, a := range r.Actions {
		if a.Status == status {
			n++
		}
	}
	return n
}

// Succeeded reports whether the run ended with every action succeeded or
// skipped.
func (r *Report) Succeeded() bool {
	return r.Overall == OverallSuccess
}

// finalize derives the overall status and summary lists from Actions.
func (r *Report) finalize(g *ir.Graph) {
	r.Exports = make(map[string]ir.Value)
	r.Failed = nil
	r.Held = nil
	r.Overall = OverallSuccess

	for i := range r.Actions {
		a := &r.Actions[i]
		a.Exports = g.ExportedAs(a.ActionID)
		switch a.Status {
		case ActionSuccess, ActionSkipped:
			for _, name := range a.Exports {
				r.Exports[name] = a.Result
			}
		case ActionFailed:
			r.Failed = append(r.Failed, a.ActionID)
			r.Overall = OverallPartialFailure
		case ActionHeld:
			r.Held = append(r.Held, a.ActionID)
			r.Overall = OverallPartialFailure
		default:
			r.Overall = OverallPartialFailure
		}
	}
}

// WriteText renders the report for a terminal.
func (r *Report) WriteText(w io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Deployment %s (run %s)\n\n", r.Deployment, r.RunID)
	for _, a := range r.Actions {
		fmt.Fprintf(&b, "  %-9s  %s", a.Status, a.ActionID)
		switch {
		case a.Error != nil:
			fmt.Fprintf(&b, "  %s", a.Error.Error())
		case a.HeldBy != "":
			fmt.Fprintf(&b, "  held by %s", a.HeldBy)
		}
		b.WriteString("\n")
	}

	if len(r.Exports) > 0 {
		b.WriteString("\nExports:\n")
		for _, name := range slices.Sorted(maps.Keys(r.Exports)) {
			data, err := ir.MarshalValue(r.Exports[name])
			if err != nil {
				return fmt.Errorf("render export %s: %w", name, err)
			}
			fmt.Fprintf(&b, "  %s = %s\n", name, data)
		}
	}

	for _, warning := range r.Warnings {
		fmt.Fprintf(&b, "\nwarning: %s", warning)
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nOverall: %s", r.Overall)
	if r.Overall != OverallSuccess {
		fmt.Fprintf(&b, " (%d failed, %d held, %d cancelled)",
			len(r.Failed), len(r.Held), r.Count(ActionCancelled))
	}
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}
