// Package target provides executors that stand in for a live chain.
//
// Simulator is an in-process, deterministic chain: the same call always
// yields the same address and transaction hash, whatever order calls
// arrive in. It backs `ignis deploy --target sim` and the scenario harness.
package target

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/roach88/ignis/internal/engine"
	"github.com/roach88/ignis/internal/ir"
)

// contract is one deployed or referenced instance on a simulated chain.
type contract struct {
	name    string
	storage map[string]ir.Value // method name -> last args
}

// chain is the state of one environment.
type chain struct {
	contracts map[string]*contract // by address
	balances  map[string]int64
	txCount   int64
}

// pendingTx is a submission whose outcome Poll will reveal.
type pendingTx struct {
	result ir.Value
	polls  int
}

// Simulator executes actions against in-memory chains, one per
// environment.
//
// Addresses derive from (environment, contract, idempotency key) and
// transaction hashes from (idempotency key, attempt), so reports are
// reproducible under any concurrency.
//
// Thread-safety: safe for concurrent use.
type Simulator struct {
	mu          sync.Mutex
	chains      map[string]*chain
	faults      map[string]Fault
	pending     map[string]*pendingTx
	calls       []engine.Call
	settleAfter int
}

// SimulatorOption configures a Simulator.
type SimulatorOption func(*Simulator)

// WithSettleAfter sets how many polls a pending submission needs before it
// settles. Default 1.
func WithSettleAfter(n int) SimulatorOption {
	return func(s *Simulator) {
		if n < 1 {
			n = 1
		}
		s.settleAfter = n
	}
}

// NewSimulator creates an empty simulator.
func NewSimulator(opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		chains:      make(map[string]*chain),
		faults:      make(map[string]Fault),
		pending:     make(map[string]*pendingTx),
		settleAfter: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetFault injects f for every call of actionID until cleared.
func (s *Simulator) SetFault(actionID string, f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[actionID] = f
}

// ClearFaults removes every injected fault. Chain state is kept.
func (s *Simulator) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.faults)
}

// Calls returns every Execute call so far, in arrival order.
func (s *Simulator) Calls() []engine.Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]engine.Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Executed returns the action ids of every Execute call, in arrival order.
func (s *Simulator) Executed() []string {
	calls := s.Calls()
	ids := make([]string, len(calls))
	for i, c := range calls {
		ids[i] = c.ActionID
	}
	return ids
}

// TxCount returns how many transactions an environment has accepted.
func (s *Simulator) TxCount(env string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.chains[env]; ok {
		return c.txCount
	}
	return 0
}

// Balance returns the value sent to addr in env.
func (s *Simulator) Balance(env, addr string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.chains[env]; ok {
		return c.balances[addr]
	}
	return 0
}

// ContractAt returns the contract name known at addr in env.
func (s *Simulator) ContractAt(env, addr string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chains[env]
	if !ok {
		return "", false
	}
	k, ok := c.contracts[addr]
	if !ok {
		return "", false
	}
	return k.name, true
}

// Execute implements engine.Executor.
func (s *Simulator) Execute(ctx context.Context, call engine.Call) (ir.Value, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	fault := s.faults[call.ActionID]
	s.mu.Unlock()

	switch fault {
	case FaultUnavailable:
		return nil, &engine.UnavailableError{Err: fmt.Errorf("simulated node for %s is unreachable", call.Environment)}
	case FaultTimeout:
		if _, ok := ctx.Deadline(); !ok {
			return nil, fmt.Errorf("submit %s: %w", call.ActionID, context.DeadlineExceeded)
		}
		<-ctx.Done()
		return nil, ctx.Err()
	case FaultFail:
		return nil, fmt.Errorf("execution reverted: injected failure for %s", call.ActionID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.apply(call)
	if err != nil {
		return nil, err
	}

	if fault == FaultPending {
		token := txHash(call)
		s.pending[token] = &pendingTx{result: result}
		return nil, &engine.PendingError{Token: token, Message: "transaction submitted, not yet mined"}
	}
	return result, nil
}

// Poll implements engine.Poller.
func (s *Simulator) Poll(_ context.Context, call engine.Call, token string) (ir.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[token]
	if !ok {
		return nil, fmt.Errorf("unknown transaction %s for %s", token, call.ActionID)
	}
	p.polls++
	if p.polls < s.settleAfter {
		return nil, &engine.PendingError{Token: token}
	}
	delete(s.pending, token)
	return p.result, nil
}

// apply mutates chain state for one call. Callers hold s.mu.
func (s *Simulator) apply(call engine.Call) (ir.Value, error) {
	c := s.chain(call.Environment)

	switch call.Kind {
	case ir.KindDeployInstance:
		name, err := stringInput(call, "contract")
		if err != nil {
			return nil, err
		}
		addr := deriveAddress(call.Environment, name, call.IdempotencyKey)
		c.contracts[addr] = &contract{name: name, storage: make(map[string]ir.Value)}
		c.txCount++
		return ir.Object{
			"address":  ir.String(addr),
			"contract": ir.String(name),
			"tx":       ir.String(txHash(call)),
		}, nil

	case ir.KindStaticReference:
		name, err := stringInput(call, "contract")
		if err != nil {
			return nil, err
		}
		addr, err := stringInput(call, "address")
		if err != nil {
			return nil, err
		}
		if _, ok := c.contracts[addr]; !ok {
			c.contracts[addr] = &contract{name: name, storage: make(map[string]ir.Value)}
		}
		return ir.Object{"address": ir.String(addr), "contract": ir.String(name)}, nil

	case ir.KindInvokeMethod:
		target, method, err := s.targetOf(c, call)
		if err != nil {
			return nil, err
		}
		target.storage[method] = argsOf(call)
		c.txCount++
		return ir.Object{"tx": ir.String(txHash(call))}, nil

	case ir.KindReadValue:
		target, method, err := s.targetOf(c, call)
		if err != nil {
			return nil, err
		}
		// A read of "fee" observes the last "setFee" call.
		if args, ok := target.storage["set"+capitalize(method)].(ir.Array); ok && len(args) > 0 {
			return ir.Object{"value": args[0]}, nil
		}
		return ir.Object{}, nil

	case ir.KindSendValue:
		to, err := addressOf(call.Inputs["to"])
		if err != nil {
			return nil, fmt.Errorf("send-value %s: %w", call.ActionID, err)
		}
		c.balances[to] += amountOf(call.Inputs["value"])
		c.txCount++
		return ir.Object{"tx": ir.String(txHash(call))}, nil

	default:
		return nil, fmt.Errorf("simulator cannot execute kind %q", call.Kind)
	}
}

func (s *Simulator) chain(env string) *chain {
	c, ok := s.chains[env]
	if !ok {
		c = &chain{
			contracts: make(map[string]*contract),
			balances:  make(map[string]int64),
		}
		s.chains[env] = c
	}
	return c
}

func (s *Simulator) targetOf(c *chain, call engine.Call) (*contract, string, error) {
	addr, err := addressOf(call.Inputs["target"])
	if err != nil {
		return nil, "", fmt.Errorf("%s %s: %w", call.Kind, call.ActionID, err)
	}
	// The address may come from a previous process; adopt it.
	target, ok := c.contracts[addr]
	if !ok {
		target = &contract{storage: make(map[string]ir.Value)}
		c.contracts[addr] = target
	}
	method, err := stringInput(call, "method")
	if err != nil {
		return nil, "", err
	}
	return target, method, nil
}

func stringInput(call engine.Call, name string) (string, error) {
	v, ok := call.Inputs[name].(ir.String)
	if !ok {
		return "", fmt.Errorf("%s %s: input %q must be a string", call.Kind, call.ActionID, name)
	}
	return string(v), nil
}

// addressOf accepts a bare address or a deploy result carrying one.
func addressOf(v ir.Value) (string, error) {
	switch val := v.(type) {
	case ir.String:
		return string(val), nil
	case ir.Object:
		if addr, ok := val["address"].(ir.String); ok {
			return string(addr), nil
		}
	}
	return "", errors.New("no address")
}

func argsOf(call engine.Call) ir.Value {
	if args, ok := call.Inputs["args"].(ir.Array); ok {
		return args
	}
	return ir.Array{}
}

func amountOf(v ir.Value) int64 {
	switch val := v.(type) {
	case ir.Int:
		return int64(val)
	case ir.String:
		var n int64
		if _, err := fmt.Sscan(string(val), &n); err == nil {
			return n
		}
	}
	return 0
}

func deriveAddress(env, contractName, key string) string {
	sum := sha256.Sum256([]byte("ignis/sim/address\x00" + env + "\x00" + contractName + "\x00" + key))
	return "0x" + hex.EncodeToString(sum[:20])
}

func txHash(call engine.Call) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("ignis/sim/tx\x00%s\x00%d", call.IdempotencyKey, call.Attempt)))
	return "0x" + hex.EncodeToString(sum[:])
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
