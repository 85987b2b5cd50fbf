package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ignis/internal/ir"
)

func TestResolve_ReplacesNestedRefs(t *testing.T) {
	results := map[string]ir.Value{
		"M#Token": ir.Object{"address": ir.String("0xtoken"), "meta": ir.Object{"decimals": ir.Int(18)}},
		"M#Vault": ir.Object{"address": ir.String("0xvault")},
	}
	inputs := ir.Object{
		"contract": ir.String("Router"),
		"args": ir.Array{
			ir.Ref{Action: "M#Token", Path: []string{"address"}},
			ir.Object{"vault": ir.Ref{Action: "M#Vault", Path: []string{"address"}}},
			ir.Ref{Action: "M#Token", Path: []string{"meta", "decimals"}},
		},
		"target": ir.Ref{Action: "M#Vault"},
	}

	got, err := Resolve("M#Router", inputs, results)
	require.NoError(t, err)

	assert.Equal(t, ir.Object{
		"contract": ir.String("Router"),
		"args": ir.Array{
			ir.String("0xtoken"),
			ir.Object{"vault": ir.String("0xvault")},
			ir.Int(18),
		},
		"target": ir.Object{"address": ir.String("0xvault")},
	}, got)
	assert.Empty(t, ir.Refs(got))

	// The declared inputs are untouched.
	assert.Equal(t, ir.Ref{Action: "M#Vault"}, inputs["target"])
}

func TestResolve_MissingPathIsResolveError(t *testing.T) {
	results := map[string]ir.Value{"M#Token": ir.Object{"address": ir.String("0xtoken")}}
	inputs := ir.Object{"args": ir.Array{ir.Ref{Action: "M#Token", Path: []string{"owner"}}}}

	_, err := Resolve("M#Vault", inputs, results)
	require.Error(t, err)

	var re *ResolveError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "M#Token", re.Ref.Action)
	assert.False(t, IsInvariant(err))
}

func TestResolve_UnsatisfiedDependencyIsInvariant(t *testing.T) {
	inputs := ir.Object{"target": ir.Ref{Action: "M#Token"}}

	_, err := Resolve("M#Vault", inputs, map[string]ir.Value{})
	require.Error(t, err)
	assert.True(t, IsInvariant(err))
	assert.Contains(t, err.Error(), "M#Token")
}

func TestResolve_NoRefs(t *testing.T) {
	inputs := ir.Object{"to": ir.String("0xabc"), "value": ir.String("1")}
	got, err := Resolve("M#SendValue_1", inputs, nil)
	require.NoError(t, err)
	assert.Equal(t, inputs, got)
}
