package engine

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/ignis/internal/ir"
)

// DispositionKind is the reconciler's decision for one action.
type DispositionKind string

const (
	// DispositionSkip: the journal records success for the same shape.
	DispositionSkip DispositionKind = "skip"
	// DispositionRetry: the last attempt failed or never recorded an outcome.
	DispositionRetry DispositionKind = "retry"
	// DispositionExecute: the action was never dispatched.
	DispositionExecute DispositionKind = "execute"
)

// Disposition pairs an action with its reconciled decision. Entry is the
// journal entry the decision was based on, nil when there is none.
type Disposition struct {
	ActionID       string           `json:"action_id"`
	Kind           DispositionKind  `json:"disposition"`
	IdempotencyKey string           `json:"idempotency_key"`
	Reason         string           `json:"reason"`
	Entry          *ir.JournalEntry `json:"-"`
}

// Plan is the reconciled view of a graph against one deployment journal.
type Plan struct {
	Deployment   ir.DeploymentID `json:"deployment"`
	Dispositions []Disposition   `json:"dispositions"` // graph topological order
	Orphans      []string        `json:"orphans,omitempty"`
	Warnings     []string        `json:"warnings,omitempty"`

	byID map[string]int
	err  error // redefinitions; a refused plan cannot be run
}

// Disposition returns the decision for an action id.
func (p *Plan) Disposition(id string) (Disposition, bool) {
	i, ok := p.byID[id]
	if !ok {
		return Disposition{}, false
	}
	return p.Dispositions[i], true
}

// Count returns how many actions received the given decision.
func (p *Plan) Count(kind DispositionKind) int {
	n := 0
	for _, d := range p.Dispositions {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

// Reconcile compares a graph with the journal entries of one deployment
// and assigns every action exactly one disposition.
//
// Reconcile is pure. Every action is examined even after a redefinition is
// found, so the returned error (an errors.Join of *RedefinitionError) names
// all of them. The plan is returned alongside the error for reporting; it
// must not be executed.
//
// Entries whose key matches no action are listed in Plan.Orphans and left
// untouched.
func Reconcile(g *ir.Graph, dep ir.DeploymentID, entries []ir.JournalEntry) (*Plan, error) {
	if err := dep.Validate(); err != nil {
		return nil, err
	}

	byKey := make(map[string]*ir.JournalEntry, len(entries))
	for i := range entries {
		byKey[entries[i].IdempotencyKey] = &entries[i]
	}

	plan := &Plan{
		Deployment:   dep,
		Dispositions: make([]Disposition, 0, len(g.Order)),
		byID:         make(map[string]int, len(g.Order)),
	}

	var redefinitions []error
	seen := make(map[string]bool, len(g.Order))
	for _, id := range g.Order {
		action := g.Actions[id]
		key, err := ir.IdempotencyKey(id, dep)
		if err != nil {
			return nil, fmt.Errorf("reconcile %s: %w", id, err)
		}
		seen[key] = true

		d := Disposition{ActionID: id, IdempotencyKey: key}
		entry, found := byKey[key]
		switch {
		case !found:
			d.Kind = DispositionExecute
			d.Reason = "no journal entry"

		case !sameShape(entry, action):
			redefinitions = append(redefinitions, &RedefinitionError{
				ActionID: id,
				Recorded: Shape{Kind: entry.Kind, Dependencies: sortedCopy(entry.Dependencies)},
				Declared: Shape{Kind: action.Kind, Dependencies: sortedCopy(action.Dependencies)},
			})
			d.Entry = entry
			d.Kind = DispositionExecute
			d.Reason = "redefined"

		default:
			d.Entry = entry
			switch entry.Status {
			case ir.StatusSuccess:
				d.Kind = DispositionSkip
				d.Reason = "already succeeded"
				if h, err := ir.InputsHash(action.Inputs); err == nil && entry.InputsHash != "" && h != entry.InputsHash {
					plan.Warnings = append(plan.Warnings, fmt.Sprintf(
						"inputs of %s changed since it succeeded; keeping the recorded result", id))
				}
			case ir.StatusFailed:
				d.Kind = DispositionRetry
				d.Reason = "previous attempt failed"
				if entry.Error != nil {
					d.Reason += ": " + entry.Error.Error()
				}
			case ir.StatusStarted:
				d.Kind = DispositionRetry
				d.Reason = "interrupted before an outcome was recorded"
			default:
				d.Kind = DispositionExecute
				d.Reason = "scheduled but never dispatched"
			}
		}

		plan.byID[id] = len(plan.Dispositions)
		plan.Dispositions = append(plan.Dispositions, d)
	}

	for _, e := range entries {
		if !seen[e.IdempotencyKey] {
			plan.Orphans = append(plan.Orphans, e.ActionID)
		}
	}

	if len(redefinitions) > 0 {
		plan.err = errors.Join(redefinitions...)
		return plan, plan.err
	}
	return plan, nil
}

func sameShape(e *ir.JournalEntry, a *ir.Action) bool {
	return e.Kind == a.Kind && slices.Equal(sortedCopy(e.Dependencies), sortedCopy(a.Dependencies))
}

func sortedCopy(s []string) []string {
	out := slices.Clone(s)
	if out == nil {
		out = []string{}
	}
	slices.Sort(out)
	return out
}
