package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ignis/internal/ir"
	"github.com/roach88/ignis/internal/testutil"
)

var reconcileDep = ir.DeploymentID{Module: "M", Environment: testEnv}

// recorded builds the journal entry the scheduler would have written for
// an action of g.
func recorded(g *ir.Graph, id string, status ir.Status, attempt int64) ir.JournalEntry {
	a := g.Actions[id]
	e := ir.JournalEntry{
		Deployment:     reconcileDep,
		IdempotencyKey: ir.MustIdempotencyKey(id, reconcileDep),
		ActionID:       id,
		Kind:           a.Kind,
		Dependencies:   a.Dependencies,
		InputsHash:     ir.MustInputsHash(a.Inputs),
		Status:         status,
		Attempt:        attempt,
		RunID:          "run-0",
	}
	switch status {
	case ir.StatusSuccess:
		e.Result = ir.Object{"address": ir.String("0x" + a.Name)}
	case ir.StatusFailed:
		e.Error = &ir.ActionError{Kind: ir.ErrorKindExecution, Message: "reverted"}
	}
	return e
}

func TestReconcile_EmptyJournal(t *testing.T) {
	g := testutil.BuildGraph(t, chainYAML)

	plan, err := Reconcile(g, reconcileDep, nil)
	require.NoError(t, err)

	require.Len(t, plan.Dispositions, 4)
	for i, d := range plan.Dispositions {
		assert.Equal(t, g.Order[i], d.ActionID)
		assert.Equal(t, DispositionExecute, d.Kind)
		assert.Nil(t, d.Entry)
		assert.Equal(t, ir.MustIdempotencyKey(d.ActionID, reconcileDep), d.IdempotencyKey)
	}
	assert.Empty(t, plan.Orphans)
	assert.Empty(t, plan.Warnings)
}

func TestReconcile_OneDispositionPerStatus(t *testing.T) {
	g := testutil.BuildGraph(t, chainYAML)
	entries := []ir.JournalEntry{
		recorded(g, "M#A", ir.StatusSuccess, 1),
		recorded(g, "M#B", ir.StatusFailed, 2),
		recorded(g, "M#C", ir.StatusStarted, 1),
		recorded(g, "M#D", ir.StatusNotStarted, 0),
	}

	plan, err := Reconcile(g, reconcileDep, entries)
	require.NoError(t, err)

	tests := []struct {
		id     string
		kind   DispositionKind
		reason string
	}{
		{"M#A", DispositionSkip, "already succeeded"},
		{"M#B", DispositionRetry, "previous attempt failed: execution: reverted"},
		{"M#C", DispositionRetry, "interrupted before an outcome was recorded"},
		{"M#D", DispositionExecute, "scheduled but never dispatched"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			d, ok := plan.Disposition(tt.id)
			require.True(t, ok)
			assert.Equal(t, tt.kind, d.Kind)
			assert.Equal(t, tt.reason, d.Reason)
			require.NotNil(t, d.Entry)
			assert.Equal(t, tt.id, d.Entry.ActionID)
		})
	}

	assert.Equal(t, 1, plan.Count(DispositionSkip))
	assert.Equal(t, 2, plan.Count(DispositionRetry))
	assert.Equal(t, 1, plan.Count(DispositionExecute))
}

func TestReconcile_RedefinitionReportsEveryAction(t *testing.T) {
	g := testutil.BuildGraph(t, chainYAML)

	changedKind := recorded(g, "M#A", ir.StatusSuccess, 1)
	changedKind.Kind = ir.KindStaticReference
	changedDeps := recorded(g, "M#C", ir.StatusFailed, 1)
	changedDeps.Dependencies = []string{"M#A"}

	plan, err := Reconcile(g, reconcileDep, []ir.JournalEntry{changedKind, changedDeps})
	require.Error(t, err)
	require.NotNil(t, plan, "the plan is still returned for reporting")

	var redefs []*RedefinitionError
	for _, e := range err.(interface{ Unwrap() []error }).Unwrap() {
		var r *RedefinitionError
		require.True(t, errors.As(e, &r))
		redefs = append(redefs, r)
	}
	require.Len(t, redefs, 2)

	assert.Equal(t, "M#A", redefs[0].ActionID)
	assert.Equal(t, ir.KindStaticReference, redefs[0].Recorded.Kind)
	assert.Equal(t, ir.KindDeployInstance, redefs[0].Declared.Kind)

	assert.Equal(t, "M#C", redefs[1].ActionID)
	assert.Equal(t, []string{"M#A"}, redefs[1].Recorded.Dependencies)
	assert.Equal(t, []string{"M#A", "M#B"}, redefs[1].Declared.Dependencies)
	assert.Contains(t, redefs[1].Error(), "journal has invoke-method after [M#A]")
}

func TestReconcile_DependencyOrderIsIrrelevant(t *testing.T) {
	g := testutil.BuildGraph(t, chainYAML)
	e := recorded(g, "M#C", ir.StatusSuccess, 1)
	e.Dependencies = []string{"M#B", "M#A"}

	plan, err := Reconcile(g, reconcileDep, []ir.JournalEntry{e})
	require.NoError(t, err)
	d, _ := plan.Disposition("M#C")
	assert.Equal(t, DispositionSkip, d.Kind)
}

func TestReconcile_InputsDriftWarnsOnly(t *testing.T) {
	g := testutil.BuildGraph(t, chainYAML)
	e := recorded(g, "M#D", ir.StatusSuccess, 1)
	e.InputsHash = "stale"

	plan, err := Reconcile(g, reconcileDep, []ir.JournalEntry{e})
	require.NoError(t, err)

	d, _ := plan.Disposition("M#D")
	assert.Equal(t, DispositionSkip, d.Kind)
	require.Len(t, plan.Warnings, 1)
	assert.Contains(t, plan.Warnings[0], "M#D")
}

func TestReconcile_Orphans(t *testing.T) {
	g := testutil.BuildGraph(t, chainYAML)
	orphan := recorded(g, "M#A", ir.StatusSuccess, 1)
	orphan.ActionID = "M#Removed"
	orphan.IdempotencyKey = ir.MustIdempotencyKey("M#Removed", reconcileDep)

	plan, err := Reconcile(g, reconcileDep, []ir.JournalEntry{orphan})
	require.NoError(t, err)
	assert.Equal(t, []string{"M#Removed"}, plan.Orphans)
	assert.Equal(t, 4, plan.Count(DispositionExecute))
}

func TestReconcile_KeysAreScopedByEnvironment(t *testing.T) {
	g := testutil.BuildGraph(t, chainYAML)
	entries := []ir.JournalEntry{recorded(g, "M#A", ir.StatusSuccess, 1)}

	other := ir.DeploymentID{Module: "M", Environment: "mainnet"}
	plan, err := Reconcile(g, other, entries)
	require.NoError(t, err)

	d, _ := plan.Disposition("M#A")
	assert.Equal(t, DispositionExecute, d.Kind)
	assert.Equal(t, []string{"M#A"}, plan.Orphans)
}

func TestReconcile_InvalidDeployment(t *testing.T) {
	g := testutil.BuildGraph(t, chainYAML)
	_, err := Reconcile(g, ir.DeploymentID{Module: "M"}, nil)
	require.Error(t, err)
}

func TestPlan_DispositionUnknown(t *testing.T) {
	g := testutil.BuildGraph(t, chainYAML)
	plan, err := Reconcile(g, reconcileDep, nil)
	require.NoError(t, err)

	_, ok := plan.Disposition("M#nope")
	assert.False(t, ok)
}
