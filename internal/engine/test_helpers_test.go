package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/ignis/internal/ir"
	"github.com/roach88/ignis/internal/store"
)

// chainYAML is A -> B -> C with an independent D.
const chainYAML = `
module: M
actions:
  - id: A
    kind: deploy-instance
    contract: Token
  - id: B
    kind: deploy-instance
    contract: Vault
    args: ["${A.address}"]
  - id: C
    kind: invoke-method
    target: B
    method: init
    args: ["${A.address}"]
  - id: D
    kind: deploy-instance
    contract: Registry
exports:
  vault: B
  registry: D
`

const testEnv = "sepolia"

// fakeExecutor returns {address, contract} for every call unless a
// behavior is registered for the action id.
//
// Thread-safety: safe for concurrent use.
type fakeExecutor struct {
	mu        sync.Mutex
	calls     []Call
	behaviors map[string]func(ctx context.Context, call Call) (ir.Value, error)

	inFlight    int
	maxInFlight int
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{behaviors: make(map[string]func(context.Context, Call) (ir.Value, error))}
}

func (f *fakeExecutor) on(actionID string, fn func(ctx context.Context, call Call) (ir.Value, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.behaviors[actionID] = fn
}

func (f *fakeExecutor) failOn(actionID, message string) {
	f.on(actionID, func(context.Context, Call) (ir.Value, error) {
		return nil, errors.New(message)
	})
}

func (f *fakeExecutor) reset(actionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.behaviors, actionID)
}

func (f *fakeExecutor) Execute(ctx context.Context, call Call) (ir.Value, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	fn := f.behaviors[call.ActionID]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if fn != nil {
		return fn(ctx, call)
	}
	return defaultResult(call), nil
}

func defaultResult(call Call) ir.Value {
	out := ir.Object{"tx": ir.String("0xtx-" + call.ActionID)}
	if c, ok := call.Inputs["contract"].(ir.String); ok {
		out["contract"] = c
		out["address"] = ir.String(fmt.Sprintf("0x%s-%s", call.Environment, c))
	}
	return out
}

// executed returns the action ids called so far, in call order.
func (f *fakeExecutor) executed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, len(f.calls))
	for i, c := range f.calls {
		ids[i] = c.ActionID
	}
	return ids
}

func (f *fakeExecutor) callsFor(actionID string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if c.ActionID == actionID {
			out = append(out, c)
		}
	}
	return out
}

// pollingExecutor returns pending for every Execute and settles on the
// n-th Poll.
type pollingExecutor struct {
	mu       sync.Mutex
	polls    int
	settleAt int
}

func (p *pollingExecutor) Execute(_ context.Context, call Call) (ir.Value, error) {
	return nil, &PendingError{Token: "0xpending-" + call.ActionID}
}

func (p *pollingExecutor) Poll(_ context.Context, call Call, token string) (ir.Value, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polls++
	if p.polls < p.settleAt {
		return nil, &PendingError{Token: token}
	}
	return ir.Object{"tx": ir.String(token)}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(j Journal, ex Executor, opts ...EngineOption) *Engine {
	base := []EngineOption{
		WithLogger(discardLogger()),
		WithRunIDGenerator(NewSequentialGenerator("run")),
		WithPollInterval(0),
	}
	return New(j, ex, append(base, opts...)...)
}

func entryFor(t *testing.T, s *store.Store, actionID string) (ir.JournalEntry, bool) {
	t.Helper()
	dep := ir.DeploymentID{Module: "M", Environment: testEnv}
	e, found, err := s.Get(context.Background(), dep, ir.MustIdempotencyKey(actionID, dep))
	require.NoError(t, err)
	return e, found
}

func statusesOf(r *Report) map[string]ActionStatus {
	out := make(map[string]ActionStatus, len(r.Actions))
	for _, a := range r.Actions {
		out[a.ActionID] = a.Status
	}
	return out
}
