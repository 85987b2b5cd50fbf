package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/ignis/internal/ir"
)

// Call is one dispatch of an action to an executor. Inputs are fully
// resolved: they never contain references.
type Call struct {
	ActionID       string
	Kind           ir.Kind
	Inputs         ir.Object
	Environment    string
	IdempotencyKey string
	Attempt        int64
}

// Executor performs one action against the target environment.
//
// Execute is called at most once per dispatch. It returns the result on
// success, a *PendingError when the outcome is not yet known, an
// *UnavailableError when the target could not be reached, or any other
// error for an execution failure.
type Executor interface {
	Execute(ctx context.Context, call Call) (ir.Value, error)
}

// Poller is implemented by executors that can resume a pending submission.
type Poller interface {
	Poll(ctx context.Context, call Call, token string) (ir.Value, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, call Call) (ir.Value, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, call Call) (ir.Value, error) {
	return f(ctx, call)
}

// Registry routes calls to an executor per action kind.
//
// Thread-safety: Register may race with Execute; both take the lock.
type Registry struct {
	mu        sync.RWMutex
	executors map[ir.Kind]Executor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[ir.Kind]Executor)}
}

// Register sets the executor for a kind, replacing any previous one.
func (r *Registry) Register(kind ir.Kind, ex Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[kind] = ex
}

// RegisterAll sets the same executor for every kind.
func (r *Registry) RegisterAll(ex Executor) {
	for kind := range ir.ValidKinds {
		r.Register(kind, ex)
	}
}

func (r *Registry) lookup(kind ir.Kind) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ex, ok := r.executors[kind]
	if !ok {
		return nil, fmt.Errorf("no executor registered for kind %q", kind)
	}
	return ex, nil
}

// Execute dispatches to the executor registered for call.Kind. A missing
// executor is an execution error for that action, not an infrastructure
// error.
func (r *Registry) Execute(ctx context.Context, call Call) (ir.Value, error) {
	ex, err := r.lookup(call.Kind)
	if err != nil {
		return nil, err
	}
	return ex.Execute(ctx, call)
}

// ErrPollUnsupported is returned by Registry.Poll when the kind's executor
// does not implement Poller.
var ErrPollUnsupported = errors.New("executor does not support polling")

// Poll forwards to the kind's executor when it implements Poller.
func (r *Registry) Poll(ctx context.Context, call Call, token string) (ir.Value, error) {
	ex, err := r.lookup(call.Kind)
	if err != nil {
		return nil, err
	}
	p, ok := ex.(Poller)
	if !ok {
		return nil, ErrPollUnsupported
	}
	return p.Poll(ctx, call, token)
}

// classify maps an executor error to an action failure. ok is false for
// errors that must abort the run instead.
func classify(err error) (actionErr *ir.ActionError, ok bool) {
	var unavailable *UnavailableError
	if errors.As(err, &unavailable) {
		return nil, false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ir.ActionError{Kind: ir.ErrorKindTimeout, Message: "action timed out"}, true
	}
	var pending *PendingError
	if errors.As(err, &pending) {
		return &ir.ActionError{Kind: ir.ErrorKindPending, Message: pending.Error()}, true
	}
	var resolve *ResolveError
	if errors.As(err, &resolve) {
		return &ir.ActionError{Kind: ir.ErrorKindResolve, Message: resolve.Error()}, true
	}
	return &ir.ActionError{Kind: ir.ErrorKindExecution, Message: err.Error()}, true
}
