package engine

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/ignis/internal/ir"
)

// In-memory states an action passes through before it has a final
// ActionStatus. Never reported.
const (
	actionPending ActionStatus = "pending"
	actionRunning ActionStatus = "running"
)

// run is the coordinator's state for one Run call.
type run struct {
	id    string
	dep   ir.DeploymentID
	graph *ir.Graph
	plan  *Plan
	clock *Clock
	queue *outcomeQueue
	log   *slog.Logger

	state      map[string]ActionStatus
	reports    map[string]*ActionReport
	results    map[string]ir.Value // success or skipped, by action id
	waiting    map[string]int      // dependencies not yet satisfied
	dependents map[string][]string
	position   map[string]int
	inputsHash map[string]string

	ready     []string // sorted by position
	inFlight  int
	cancelled bool
	fatal     error
}

func newRun(runID string, g *ir.Graph, plan *Plan, clock *Clock, logger *slog.Logger) (*run, error) {
	if len(plan.Dispositions) != len(g.Order) {
		return nil, fmt.Errorf("plan for %s has %d actions, graph has %d",
			plan.Deployment, len(plan.Dispositions), len(g.Order))
	}

	n := len(g.Order)
	r := &run{
		id:         runID,
		dep:        plan.Deployment,
		graph:      g,
		plan:       plan,
		clock:      clock,
		queue:      newOutcomeQueue(),
		log:        logger.With("run_id", runID, "deployment", plan.Deployment.String()),
		state:      make(map[string]ActionStatus, n),
		reports:    make(map[string]*ActionReport, n),
		results:    make(map[string]ir.Value, n),
		waiting:    make(map[string]int, n),
		dependents: make(map[string][]string, n),
		position:   make(map[string]int, n),
		inputsHash: make(map[string]string, n),
	}

	for i, id := range g.Order {
		action := g.Actions[id]
		d, ok := plan.Disposition(id)
		if !ok {
			return nil, &InvariantError{ActionID: id, Message: "no disposition in plan"}
		}
		h, err := ir.InputsHash(action.Inputs)
		if err != nil {
			return nil, fmt.Errorf("hash inputs of %s: %w", id, err)
		}

		r.position[id] = i
		r.inputsHash[id] = h
		rep := &ActionReport{ActionID: id, Kind: action.Kind}
		r.reports[id] = rep

		if d.Kind == DispositionSkip {
			r.state[id] = ActionSkipped
			rep.Status = ActionSkipped
			rep.Result = d.Entry.Result
			rep.Attempt = d.Entry.Attempt
			r.results[id] = d.Entry.Result
		} else {
			r.state[id] = actionPending
		}
	}

	for _, id := range g.Order {
		for _, dep := range g.Actions[id].Dependencies {
			r.dependents[dep] = append(r.dependents[dep], id)
			if r.state[dep] != ActionSkipped {
				r.waiting[id]++
			}
		}
	}
	return r, nil
}

func (r *run) pushReady(id string) {
	r.ready = append(r.ready, id)
	slices.SortFunc(r.ready, func(a, b string) int {
		return cmp.Compare(r.position[a], r.position[b])
	})
}

func (r *run) popReady() string {
	id := r.ready[0]
	r.ready = r.ready[1:]
	return id
}

// hold marks every undispatched action downstream of failed as held.
// Skipped actions stop the walk: their recorded result still stands.
func (r *run) hold(failed string) []string {
	var held []string
	stack := []string{failed}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range r.dependents[cur] {
			if r.state[next] != actionPending {
				continue
			}
			r.state[next] = ActionHeld
			r.reports[next].Status = ActionHeld
			r.reports[next].HeldBy = failed
			held = append(held, next)
			stack = append(stack, next)
		}
	}
	return held
}

func (r *run) cancel() {
	r.cancelled = true
	r.log.Warn("run cancelled; waiting for in-flight actions",
		"in_flight", r.inFlight,
		"event", "run_cancel",
	)
}

// cancelRemaining gives every undispatched action the cancelled status.
func (r *run) cancelRemaining() {
	for _, id := range r.graph.Order {
		if r.state[id] == actionPending || r.state[id] == actionRunning {
			r.state[id] = ActionCancelled
			r.reports[id].Status = ActionCancelled
		}
	}
	r.ready = nil
}

func (r *run) report() *Report {
	rep := &Report{
		Deployment: r.dep,
		RunID:      r.id,
		Cancelled:  r.cancelled,
		Actions:    make([]ActionReport, 0, len(r.graph.Order)),
	}
	for _, id := range r.graph.Order {
		rep.Actions = append(rep.Actions, *r.reports[id])
	}
	rep.Warnings = append(rep.Warnings, r.plan.Warnings...)
	for _, orphan := range r.plan.Orphans {
		rep.Warnings = append(rep.Warnings,
			fmt.Sprintf("journal entry for %s matches no declared action; left untouched", orphan))
	}
	rep.finalize(r.graph)
	return rep
}
