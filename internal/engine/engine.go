package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/ignis/internal/ir"
)

const (
	// DefaultConcurrency is the number of actions dispatched at once.
	DefaultConcurrency = 4

	// DefaultPollInterval is the delay between polls of a pending action.
	DefaultPollInterval = 2 * time.Second
)

// Engine walks an action graph against a journal and an executor.
//
// One Engine may run many deployments, but runs of the SAME deployment
// must not overlap: the journal has a single writer per deployment.
//
// Thread-safety model:
//   - Plan(), Deploy(), Run(): safe from any goroutine for distinct deployments
//   - inside Run, a single coordinator goroutine owns all action state;
//     workers only touch the journal and the executor
type Engine struct {
	journal  Journal
	executor Executor
	logger   *slog.Logger
	metrics  *Metrics
	runIDs   RunIDGenerator
	guard    *DispatchGuard
	attempts AttemptLimit

	concurrency   int
	actionTimeout time.Duration
	pollInterval  time.Duration
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithConcurrency bounds how many actions are in flight at once.
// Values below 1 are treated as 1.
func WithConcurrency(n int) EngineOption {
	return func(e *Engine) {
		if n < 1 {
			n = 1
		}
		e.concurrency = n
	}
}

// WithActionTimeout bounds each executor call, polling included.
// Zero (the default) means no timeout.
func WithActionTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.actionTimeout = d
	}
}

// WithPollInterval sets the delay between polls of a pending action.
func WithPollInterval(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.pollInterval = d
	}
}

// WithMaxAttempts caps the dispatches of one action across all runs.
// Zero (the default) means unlimited.
func WithMaxAttempts(n int64) EngineOption {
	return func(e *Engine) {
		e.attempts = NewAttemptLimit(n)
	}
}

// WithRunIDGenerator replaces the UUIDv7 run id generator.
// Use NewFixedGenerator in tests for stable reports.
func WithRunIDGenerator(g RunIDGenerator) EngineOption {
	return func(e *Engine) {
		e.runIDs = g
	}
}

// WithMetrics records scheduler metrics into m.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine over a journal and an executor.
func New(j Journal, ex Executor, opts ...EngineOption) *Engine {
	e := &Engine{
		journal:      j,
		executor:     ex,
		logger:       slog.Default(),
		runIDs:       UUIDv7Generator{},
		guard:        NewDispatchGuard(),
		concurrency:  DefaultConcurrency,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Plan reconciles g against the journal of (g.Module, env) without
// writing anything.
func (e *Engine) Plan(ctx context.Context, g *ir.Graph, env string) (*Plan, error) {
	dep := ir.DeploymentID{Module: g.Module, Environment: env}
	if err := dep.Validate(); err != nil {
		return nil, err
	}
	entries, err := e.journal.ListAll(ctx, dep)
	if err != nil {
		return nil, &InfrastructureError{Op: "list journal", Err: err}
	}
	return Reconcile(g, dep, entries)
}

// Deploy reconciles g against the journal and runs the resulting plan.
// A redefinition refuses the run before anything is written.
func (e *Engine) Deploy(ctx context.Context, g *ir.Graph, env string) (*Report, error) {
	plan, err := e.Plan(ctx, g, env)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, g, plan)
}

// Run executes a reconciled plan.
//
// Run returns once every action has a final status. Cancelling ctx stops
// new dispatches; actions already in flight run to completion and their
// outcome is journaled. An infrastructure failure does the same and is
// returned as an *InfrastructureError together with the partial report.
//
// The returned report is nil only when the run could not start.
func (e *Engine) Run(ctx context.Context, g *ir.Graph, plan *Plan) (*Report, error) {
	if plan == nil {
		return nil, fmt.Errorf("run %s: plan is required", g.Module)
	}
	if plan.err != nil {
		return nil, plan.err
	}

	// Bookkeeping writes must land even when ctx is cancelled.
	wctx := context.WithoutCancel(ctx)
	dep := plan.Deployment

	maxSeq, err := e.journal.MaxSeq(wctx, dep)
	if err != nil {
		return nil, &InfrastructureError{Op: "read journal seq", Err: err}
	}
	clock := NewClockAt(maxSeq)

	if _, err := recoverInterruptedRuns(wctx, e.journal, dep, clock, e.logger); err != nil {
		return nil, &InfrastructureError{Op: "recover runs", Err: err}
	}

	runID := e.runIDs.Generate()
	r, err := newRun(runID, g, plan, clock, e.logger)
	if err != nil {
		return nil, err
	}

	if err := e.journal.BeginRun(wctx, ir.RunRecord{
		RunID:      runID,
		Deployment: dep,
		Status:     RunStatusRunning,
		StartedSeq: clock.Next(),
	}); err != nil {
		return nil, &InfrastructureError{Op: "begin run", Err: err}
	}

	r.log.Info("run starting",
		"event", "run_start",
		"actions", g.Len(),
		"skip", plan.Count(DispositionSkip),
		"retry", plan.Count(DispositionRetry),
		"execute", plan.Count(DispositionExecute),
	)

	runErr := e.coordinate(ctx, r)
	e.guard.Clear(runID)

	report := r.report()
	for _, a := range report.Actions {
		e.metrics.observeAction(a.Kind, a.Status, a.Duration)
	}

	status := string(report.Overall)
	switch {
	case runErr != nil:
		status = "aborted"
	case report.Cancelled:
		status = "cancelled"
	}
	finishErr := e.journal.FinishRun(wctx, runID, status, clock.Next())

	r.log.Info("run finished",
		"event", "run_finish",
		"status", status,
		"failed", len(report.Failed),
		"held", len(report.Held),
	)

	if runErr != nil {
		return report, runErr
	}
	if finishErr != nil {
		return report, &InfrastructureError{Op: "finish run", Err: finishErr}
	}
	return report, nil
}

// coordinate is the scheduler loop. It runs on the caller's goroutine and
// is the only code that reads or writes r's action state.
func (e *Engine) coordinate(ctx context.Context, r *run) error {
	var workers errgroup.Group
	workers.SetLimit(e.concurrency)

	done := ctx.Done()
	if ctx.Err() != nil {
		r.cancelled = true
		done = nil
	}

	if !r.cancelled {
		for _, id := range r.graph.Order {
			if r.state[id] == actionPending && r.waiting[id] == 0 {
				if err := e.markReady(ctx, r, id); err != nil {
					r.fatal = err
					break
				}
			}
		}
	}

	for {
		if done != nil {
			select {
			case <-done:
				r.cancel()
				done = nil
			default:
			}
		}

		for r.fatal == nil && !r.cancelled && len(r.ready) > 0 && r.inFlight < e.concurrency {
			if err := e.dispatch(ctx, r, &workers, r.popReady()); err != nil {
				r.fatal = err
			}
		}

		if r.inFlight == 0 {
			break
		}

		o, ok := r.queue.TryDequeue()
		if !ok {
			select {
			case <-done:
				r.cancel()
				done = nil
			case <-r.queue.Wait():
			}
			continue
		}
		r.inFlight--
		e.apply(ctx, r, o)
	}

	r.queue.Close()
	_ = workers.Wait()

	if r.fatal == nil && !r.cancelled {
		for _, id := range r.graph.Order {
			if r.state[id] == actionPending {
				return &InvariantError{ActionID: id, Message: "action never became ready"}
			}
		}
	}
	r.cancelRemaining()
	return r.fatal
}

// markReady moves an action into the ready set, journaling not-started
// for actions the journal has never seen.
func (e *Engine) markReady(ctx context.Context, r *run, id string) error {
	if d, _ := r.plan.Disposition(id); d.Entry == nil {
		action := r.graph.Actions[id]
		entry := ir.JournalEntry{
			Deployment:     r.dep,
			IdempotencyKey: d.IdempotencyKey,
			ActionID:       id,
			Kind:           action.Kind,
			Dependencies:   action.Dependencies,
			InputsHash:     r.inputsHash[id],
			Status:         ir.StatusNotStarted,
			RunID:          r.id,
		}
		if err := e.put(context.WithoutCancel(ctx), r.clock, &entry); err != nil {
			return &InfrastructureError{Op: "write not-started", ActionID: id, Err: err}
		}
	}
	r.pushReady(id)
	return nil
}

// job is everything a worker needs; workers never read run state.
type job struct {
	action     *ir.Action
	dep        ir.DeploymentID
	runID      string
	key        string
	inputsHash string
	inputs     ir.Object
	resolveErr error
}

func (e *Engine) dispatch(ctx context.Context, r *run, workers *errgroup.Group, id string) error {
	if e.guard.WouldRedispatch(r.id, id) {
		return &InvariantError{ActionID: id, Message: "dispatched twice in one run"}
	}

	action := r.graph.Actions[id]
	inputs, err := Resolve(id, action.Inputs, r.results)
	var resolveErr *ResolveError
	if err != nil && !errors.As(err, &resolveErr) {
		return err
	}

	d, _ := r.plan.Disposition(id)
	j := job{
		action:     action,
		dep:        r.dep,
		runID:      r.id,
		key:        d.IdempotencyKey,
		inputsHash: r.inputsHash[id],
		inputs:     inputs,
	}
	if resolveErr != nil {
		j.resolveErr = resolveErr
	}

	e.guard.Record(r.id, id)
	r.state[id] = actionRunning
	r.inFlight++

	queue, clock, log := r.queue, r.clock, r.log
	workers.Go(func() error {
		queue.Enqueue(e.work(ctx, clock, log, j))
		return nil
	})
	return nil
}

// work runs on a worker goroutine: started write, executor call, outcome
// write. The outcome is only reported after its write committed.
func (e *Engine) work(ctx context.Context, clock *Clock, log *slog.Logger, j job) outcome {
	ctx = context.WithoutCancel(ctx)
	id := j.action.ID
	o := outcome{ActionID: id}

	prev, found, err := e.journal.Get(ctx, j.dep, j.key)
	if err != nil {
		o.Fatal = &InfrastructureError{Op: "read journal", ActionID: id, Err: err}
		return o
	}
	var previous int64
	if found {
		previous = prev.Attempt
	}
	if err := e.attempts.Check(id, previous); err != nil {
		o.Status = ir.StatusFailed
		o.Attempt = previous
		o.Error = &ir.ActionError{Kind: ir.ErrorKindExecution, Message: err.Error()}
		return o
	}

	entry := ir.JournalEntry{
		Deployment:     j.dep,
		IdempotencyKey: j.key,
		ActionID:       id,
		Kind:           j.action.Kind,
		Dependencies:   j.action.Dependencies,
		InputsHash:     j.inputsHash,
		Status:         ir.StatusStarted,
		Attempt:        previous + 1,
		RunID:          j.runID,
	}
	o.Attempt = entry.Attempt
	if err := e.put(ctx, clock, &entry); err != nil {
		o.Fatal = &InfrastructureError{Op: "write started", ActionID: id, Err: err}
		return o
	}
	log.Debug("action started", "action", id, "attempt", entry.Attempt, "event", "action_start")

	start := time.Now()
	var actionErr *ir.ActionError
	var result ir.Value
	if j.resolveErr != nil {
		actionErr = &ir.ActionError{Kind: ir.ErrorKindResolve, Message: j.resolveErr.Error()}
	} else {
		v, err := e.invoke(ctx, Call{
			ActionID:       id,
			Kind:           j.action.Kind,
			Inputs:         j.inputs,
			Environment:    j.dep.Environment,
			IdempotencyKey: j.key,
			Attempt:        entry.Attempt,
		})
		if err != nil {
			ae, ok := classify(err)
			if !ok {
				o.Fatal = &InfrastructureError{Op: "execute", ActionID: id, Err: err}
				return o
			}
			actionErr = ae
		} else {
			result = v
			if result == nil {
				result = ir.Null{}
			}
		}
	}
	o.Duration = time.Since(start)

	if actionErr != nil {
		entry.Status = ir.StatusFailed
		entry.Error = actionErr
	} else {
		entry.Status = ir.StatusSuccess
		entry.Result = result
	}
	if err := e.put(ctx, clock, &entry); err != nil {
		o.Fatal = &InfrastructureError{Op: "write outcome", ActionID: id, Err: err}
		return o
	}

	o.Status = entry.Status
	o.Result = entry.Result
	o.Error = entry.Error
	return o
}

// invoke calls the executor under the action timeout and polls pending
// outcomes until they settle.
func (e *Engine) invoke(ctx context.Context, call Call) (ir.Value, error) {
	if e.actionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.actionTimeout)
		defer cancel()
	}

	v, err := callWithDeadline(ctx, func(ctx context.Context) (ir.Value, error) {
		return e.executor.Execute(ctx, call)
	})

	var pending *PendingError
	for errors.As(err, &pending) {
		poller, ok := e.executor.(Poller)
		if !ok {
			return nil, pending
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.pollInterval):
		}
		token := pending.Token
		v, err = callWithDeadline(ctx, func(ctx context.Context) (ir.Value, error) {
			return poller.Poll(ctx, call, token)
		})
		if errors.Is(err, ErrPollUnsupported) {
			return nil, pending
		}
	}
	return v, err
}

// callWithDeadline returns when fn does or when ctx's deadline passes,
// whichever is first, so an executor that ignores ctx cannot stall a
// worker past the action timeout.
func callWithDeadline(ctx context.Context, fn func(context.Context) (ir.Value, error)) (ir.Value, error) {
	if _, ok := ctx.Deadline(); !ok {
		return fn(ctx)
	}

	type result struct {
		v   ir.Value
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	select {
	case res := <-ch:
		return res.v, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) put(ctx context.Context, clock *Clock, entry *ir.JournalEntry) error {
	entry.Seq = clock.Next()
	err := e.journal.Put(ctx, *entry)
	e.metrics.observeJournalWrite(err)
	return err
}

// apply folds one worker outcome into the run state.
func (e *Engine) apply(ctx context.Context, r *run, o outcome) {
	id := o.ActionID
	rep := r.reports[id]
	rep.Attempt = o.Attempt
	rep.Duration = o.Duration

	if o.Fatal != nil {
		r.state[id] = ActionCancelled
		rep.Status = ActionCancelled
		if r.fatal == nil {
			r.fatal = o.Fatal
		}
		r.log.Error("run aborted", "action", id, "error", o.Fatal, "event", "infrastructure_error")
		return
	}

	if o.Status == ir.StatusSuccess {
		r.state[id] = ActionSuccess
		rep.Status = ActionSuccess
		rep.Result = o.Result
		r.results[id] = o.Result
		r.log.Info("action succeeded", "action", id, "attempt", o.Attempt, "event", "action_success")

		for _, next := range r.dependents[id] {
			r.waiting[next]--
			if r.waiting[next] > 0 || r.state[next] != actionPending {
				continue
			}
			if r.fatal != nil || r.cancelled {
				continue
			}
			if err := e.markReady(ctx, r, next); err != nil {
				r.fatal = err
			}
		}
		return
	}

	r.state[id] = ActionFailed
	rep.Status = ActionFailed
	rep.Error = o.Error
	held := r.hold(id)
	r.log.Warn("action failed",
		"action", id,
		"attempt", o.Attempt,
		"error", o.Error.Error(),
		"held", len(held),
		"event", "action_failed",
	)
}
