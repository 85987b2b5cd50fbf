package target

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ignis/internal/engine"
	"github.com/roach88/ignis/internal/ir"
)

func deployCall(env, contractName, key string) engine.Call {
	return engine.Call{
		ActionID:       "M#" + contractName,
		Kind:           ir.KindDeployInstance,
		Inputs:         ir.Object{"contract": ir.String(contractName), "args": ir.Array{}},
		Environment:    env,
		IdempotencyKey: key,
		Attempt:        1,
	}
}

func TestSimulator_DeployIsDeterministic(t *testing.T) {
	a := NewSimulator()
	b := NewSimulator()

	// Unrelated traffic first on b must not change the address.
	_, err := b.Execute(context.Background(), deployCall("sepolia", "Other", "k0"))
	require.NoError(t, err)

	ra, err := a.Execute(context.Background(), deployCall("sepolia", "Token", "k1"))
	require.NoError(t, err)
	rb, err := b.Execute(context.Background(), deployCall("sepolia", "Token", "k1"))
	require.NoError(t, err)

	assert.Equal(t, ra, rb)
	obj := ra.(ir.Object)
	addr := string(obj["address"].(ir.String))
	assert.Len(t, addr, 42)
	assert.Equal(t, ir.String("Token"), obj["contract"])

	name, ok := a.ContractAt("sepolia", addr)
	require.True(t, ok)
	assert.Equal(t, "Token", name)
}

func TestSimulator_EnvironmentsAreSeparate(t *testing.T) {
	s := NewSimulator()
	r1, err := s.Execute(context.Background(), deployCall("sepolia", "Token", "k1"))
	require.NoError(t, err)
	r2, err := s.Execute(context.Background(), deployCall("mainnet", "Token", "k1"))
	require.NoError(t, err)

	assert.NotEqual(t, r1.(ir.Object)["address"], r2.(ir.Object)["address"])
	assert.Equal(t, int64(1), s.TxCount("sepolia"))
	assert.Equal(t, int64(1), s.TxCount("mainnet"))
	assert.Equal(t, int64(0), s.TxCount("holesky"))
}

func TestSimulator_InvokeThenRead(t *testing.T) {
	s := NewSimulator()
	ctx := context.Background()
	deployed, err := s.Execute(ctx, deployCall("sepolia", "Market", "k1"))
	require.NoError(t, err)

	_, err = s.Execute(ctx, engine.Call{
		ActionID:    "M#Market.setFee",
		Kind:        ir.KindInvokeMethod,
		Inputs:      ir.Object{"target": deployed, "method": ir.String("setFee"), "args": ir.Array{ir.Int(250)}},
		Environment: "sepolia",
	})
	require.NoError(t, err)

	read, err := s.Execute(ctx, engine.Call{
		ActionID:    "M#fee",
		Kind:        ir.KindReadValue,
		Inputs:      ir.Object{"target": deployed, "method": ir.String("fee"), "args": ir.Array{}},
		Environment: "sepolia",
	})
	require.NoError(t, err)
	assert.Equal(t, ir.Object{"value": ir.Int(250)}, read)

	empty, err := s.Execute(ctx, engine.Call{
		ActionID:    "M#owner",
		Kind:        ir.KindReadValue,
		Inputs:      ir.Object{"target": deployed, "method": ir.String("owner")},
		Environment: "sepolia",
	})
	require.NoError(t, err)
	assert.Equal(t, ir.Object{}, empty)
}

func TestSimulator_StaticReferenceAndSend(t *testing.T) {
	s := NewSimulator()
	ctx := context.Background()

	ref, err := s.Execute(ctx, engine.Call{
		ActionID:    "M#WETH",
		Kind:        ir.KindStaticReference,
		Inputs:      ir.Object{"contract": ir.String("WETH"), "address": ir.String("0xweth")},
		Environment: "sepolia",
	})
	require.NoError(t, err)
	assert.Equal(t, ir.Object{"address": ir.String("0xweth"), "contract": ir.String("WETH")}, ref)
	assert.Equal(t, int64(0), s.TxCount("sepolia"), "a reference is not a transaction")

	_, err = s.Execute(ctx, engine.Call{
		ActionID:    "M#SendValue_1",
		Kind:        ir.KindSendValue,
		Inputs:      ir.Object{"to": ref, "value": ir.String("1000")},
		Environment: "sepolia",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), s.Balance("sepolia", "0xweth"))
}

func TestSimulator_Faults(t *testing.T) {
	s := NewSimulator()
	ctx := context.Background()
	call := deployCall("sepolia", "Token", "k1")

	s.SetFault(call.ActionID, FaultFail)
	_, err := s.Execute(ctx, call)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reverted")

	s.SetFault(call.ActionID, FaultUnavailable)
	_, err = s.Execute(ctx, call)
	var unavailable *engine.UnavailableError
	assert.True(t, errors.As(err, &unavailable))

	s.SetFault(call.ActionID, FaultTimeout)
	_, err = s.Execute(ctx, call)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	tctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = s.Execute(tctx, call)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	s.ClearFaults()
	_, err = s.Execute(ctx, call)
	assert.NoError(t, err)
	assert.Len(t, s.Executed(), 5)
}

func TestSimulator_PendingSettlesOnPoll(t *testing.T) {
	s := NewSimulator(WithSettleAfter(2))
	ctx := context.Background()
	call := deployCall("sepolia", "Token", "k1")
	s.SetFault(call.ActionID, FaultPending)

	_, err := s.Execute(ctx, call)
	var pending *engine.PendingError
	require.True(t, errors.As(err, &pending))

	_, err = s.Poll(ctx, call, pending.Token)
	require.True(t, errors.As(err, &pending), "first poll is still pending")

	v, err := s.Poll(ctx, call, pending.Token)
	require.NoError(t, err)
	assert.Equal(t, ir.String("Token"), v.(ir.Object)["contract"])

	_, err = s.Poll(ctx, call, pending.Token)
	assert.Error(t, err, "a settled transaction is forgotten")
}

func TestParseFaultSpec(t *testing.T) {
	tests := []struct {
		arg     string
		id      string
		fault   Fault
		wantErr bool
	}{
		{arg: "M#Token", id: "M#Token", fault: FaultFail},
		{arg: "M#Token=timeout", id: "M#Token", fault: FaultTimeout},
		{arg: " M#Token = pending ", id: "M#Token", fault: FaultPending},
		{arg: "M#Token=explode", wantErr: true},
		{arg: "=fail", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			id, fault, err := ParseFaultSpec(tt.arg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.fault, fault)
		})
	}
}
