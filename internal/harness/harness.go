package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/ignis/internal/engine"
	"github.com/roach88/ignis/internal/ir"
	"github.com/roach88/ignis/internal/store"
	"github.com/roach88/ignis/internal/target"
	"github.com/roach88/ignis/internal/testutil"
)

// Harness holds the state shared by the runs of one scenario.
type Harness struct {
	scenario *Scenario
	graph    *ir.Graph
	dep      ir.DeploymentID
	store    *store.Store
	journal  *testutil.FaultyJournal
	sim      *target.Simulator
	engine   *engine.Engine
	logger   *slog.Logger
}

// Run executes a scenario against a fresh in-memory journal and returns
// the result. The error is non-nil only when the scenario could not be
// set up (for example, its module does not build); run failures are
// reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	g, err := scenario.graph()
	if err != nil {
		return nil, fmt.Errorf("failed to build module: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		scenario: scenario,
		graph:    g,
		dep:      ir.DeploymentID{Module: g.Module, Environment: scenario.environment()},
		store:    st,
		journal:  testutil.NewFaultyJournal(st),
		sim:      target.NewSimulator(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	opts := []engine.EngineOption{
		engine.WithLogger(h.logger),
		engine.WithRunIDGenerator(engine.NewSequentialGenerator(scenario.Name)),
		engine.WithConcurrency(scenario.concurrency()),
		engine.WithPollInterval(0),
	}
	if scenario.MaxAttempts > 0 {
		opts = append(opts, engine.WithMaxAttempts(int64(scenario.MaxAttempts)))
	}
	h.engine = engine.New(h.journal, h.sim, opts...)

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Runs {
		outcome := h.executeRun(ctx, i+1, step)
		result.Runs = append(result.Runs, outcome)
		for _, msg := range checkExpect(outcome, step.Expect) {
			result.AddError(msg)
		}
	}
	result.Calls = h.sim.Executed()

	actx := &AssertionContext{
		Ctx:        ctx,
		Journal:    st,
		Deployment: h.dep,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// executeRun applies the step's faults, deploys once and clears the
// faults again.
func (h *Harness) executeRun(ctx context.Context, index int, step RunStep) RunOutcome {
	for id, fault := range step.Faults {
		if fault == FaultCrash {
			h.journal.FailPut(id, ir.StatusSuccess)
			continue
		}
		f, _ := target.ParseFault(fault) // validated on load
		h.sim.SetFault(id, f)
	}
	defer func() {
		h.sim.ClearFaults()
		h.journal.Heal()
	}()

	before := len(h.sim.Calls())
	report, err := h.engine.Deploy(ctx, h.graph, h.dep.Environment)

	outcome := RunOutcome{
		Index:    index,
		Report:   report,
		Executed: h.sim.Executed()[before:],
	}
	if err != nil {
		outcome.Err = err.Error()
	}

	h.logger.Info("scenario run completed",
		"scenario", h.scenario.Name,
		"run", index,
		"executed", len(outcome.Executed),
		"error", outcome.Err,
	)
	return outcome
}

// checkExpect compares one run against its expect clause.
func checkExpect(out RunOutcome, exp *Expect) []string {
	var errs []string
	prefix := fmt.Sprintf("run %d", out.Index)

	var wantErr string
	if exp != nil {
		wantErr = exp.Error
	}
	switch {
	case wantErr == "" && out.Err != "":
		errs = append(errs, fmt.Sprintf("%s: unexpected error: %s", prefix, out.Err))
	case wantErr != "" && !strings.Contains(out.Err, wantErr):
		errs = append(errs, fmt.Sprintf("%s: expected error containing %q, got %q", prefix, wantErr, out.Err))
	}
	if exp == nil {
		return errs
	}

	if out.Report == nil {
		if exp.Overall != "" || len(exp.Actions) > 0 {
			errs = append(errs, fmt.Sprintf("%s: no report produced", prefix))
		}
	} else {
		if exp.Overall != "" && string(out.Report.Overall) != exp.Overall {
			errs = append(errs, fmt.Sprintf("%s: overall = %s, expected %s", prefix, out.Report.Overall, exp.Overall))
		}
		for _, id := range sortedKeys(exp.Actions) {
			want := exp.Actions[id]
			a, ok := out.Report.Action(id)
			if !ok {
				errs = append(errs, fmt.Sprintf("%s: action %s not in report", prefix, id))
				continue
			}
			if string(a.Status) != want {
				errs = append(errs, fmt.Sprintf("%s: action %s = %s, expected %s", prefix, id, a.Status, want))
			}
		}
	}

	if exp.Executed != nil && !slices.Equal(out.Executed, exp.Executed) {
		errs = append(errs, fmt.Sprintf("%s: executed %v, expected %v", prefix, out.Executed, exp.Executed))
	}
	return errs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
