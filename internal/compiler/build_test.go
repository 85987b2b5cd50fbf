package compiler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ignis/internal/ir"
)

func TestBuildSingleDeploy(t *testing.T) {
	decl := &Declaration{
		Module:  "TokenModule",
		Actions: []ActionDecl{{Kind: "deploy-instance", Contract: "NFTMarketplace"}},
		Exports: map[string]string{"token": "NFTMarketplace"},
	}

	g, err := Build(decl)
	require.NoError(t, err)

	require.Equal(t, 1, g.Len())
	a := g.Action("TokenModule#NFTMarketplace")
	require.NotNil(t, a)
	assert.Equal(t, ir.KindDeployInstance, a.Kind)
	assert.Equal(t, "NFTMarketplace", a.Name)
	assert.Empty(t, a.Dependencies)
	assert.Equal(t, ir.Object{"contract": ir.String("NFTMarketplace"), "args": ir.Array{}}, a.Inputs)
	assert.Equal(t, map[string]string{"token": "TokenModule#NFTMarketplace"}, g.Exports)
	assert.Equal(t, []string{"TokenModule#NFTMarketplace"}, g.Order)
}

func TestBuildChain(t *testing.T) {
	decl := &Declaration{
		Module: "M",
		Actions: []ActionDecl{
			{ID: "C", Kind: "invoke-method", Target: "A", Method: "init", Args: []any{"${B.address}"}},
			{ID: "A", Kind: "deploy-instance", Contract: "Token"},
			{ID: "B", Kind: "deploy-instance", Contract: "Vault", Args: []any{"${A.address}", 5}},
		},
	}

	g, err := Build(decl)
	require.NoError(t, err)

	assert.Equal(t, []string{"M#A", "M#B", "M#C"}, g.Order)
	assert.Equal(t, []string{"M#A"}, g.Action("M#B").Dependencies)
	assert.Equal(t, []string{"M#A", "M#B"}, g.Action("M#C").Dependencies)
	assert.Equal(t, []string{"M#B", "M#C"}, g.Dependents["M#A"])

	assert.Equal(t, ir.Array{ir.Ref{Action: "M#A", Path: []string{"address"}}, ir.Int(5)},
		g.Action("M#B").Inputs["args"])
	assert.Equal(t, ir.Ref{Action: "M#A"}, g.Action("M#C").Inputs["target"])
}

func TestBuildDeterministic(t *testing.T) {
	decl := func() *Declaration {
		return &Declaration{
			Module: "M",
			Actions: []ActionDecl{
				{ID: "z", Kind: "deploy-instance", Contract: "Z"},
				{ID: "a", Kind: "deploy-instance", Contract: "A"},
				{ID: "m", Kind: "invoke-method", Target: "z", Method: "f", Args: []any{"${a}"}},
			},
		}
	}

	g1, err := Build(decl())
	require.NoError(t, err)
	g2, err := Build(decl())
	require.NoError(t, err)

	assert.Equal(t, g1.Order, g2.Order)
	assert.Equal(t, []string{"M#a", "M#z", "M#m"}, g1.Order)
	for id, a := range g1.Actions {
		assert.Equal(t, ir.MustInputsHash(a.Inputs), ir.MustInputsHash(g2.Actions[id].Inputs))
	}
}

func TestBuildDefaultNames(t *testing.T) {
	decl := &Declaration{
		Module: "M",
		Actions: []ActionDecl{
			{Kind: "deploy-instance", Contract: "Token"},
			{Kind: "invoke-method", Target: "Token", Method: "mint"},
			{Kind: "read-value", Target: "Token", Method: "totalSupply", After: []string{"Token.mint"}},
			{Kind: "send-value", To: "${Token.address}", Value: "100"},
			{Kind: "send-value", To: "0xabc", Value: 1},
			{Kind: "static-reference", Contract: "Registry", Address: "0x01"},
		},
	}

	g, err := Build(decl)
	require.NoError(t, err)

	for _, id := range []string{
		"M#Token", "M#Token.mint", "M#Token.totalSupply",
		"M#SendValue_1", "M#SendValue_2", "M#Registry",
	} {
		assert.NotNil(t, g.Action(id), id)
	}
	assert.Equal(t, []string{"M#Token", "M#Token.mint"}, g.Action("M#Token.totalSupply").Dependencies)
}

func TestBuildDottedNameFollowedByPath(t *testing.T) {
	decl := &Declaration{
		Module: "M",
		Actions: []ActionDecl{
			{Kind: "deploy-instance", Contract: "Token"},
			{Kind: "read-value", Target: "Token", Method: "owner"},
			{ID: "pay", Kind: "send-value", To: "${Token.owner.value}", Value: 1},
		},
	}

	g, err := Build(decl)
	require.NoError(t, err)
	assert.Equal(t, ir.Ref{Action: "M#Token.owner", Path: []string{"value"}}, g.Action("M#pay").Inputs["to"])
}

func TestBuildEscapedLiteral(t *testing.T) {
	decl := &Declaration{
		Module:  "M",
		Actions: []ActionDecl{{Kind: "deploy-instance", Contract: "Greeter", Args: []any{"$${name}"}}},
	}

	g, err := Build(decl)
	require.NoError(t, err)
	assert.Equal(t, ir.Array{ir.String("${name}")}, g.Action("M#Greeter").Inputs["args"])
	assert.Empty(t, g.Action("M#Greeter").Dependencies)
}

func TestBuildUnresolvedReference(t *testing.T) {
	decl := &Declaration{
		Module: "M",
		Actions: []ActionDecl{
			{ID: "a", Kind: "deploy-instance", Contract: "A", Args: []any{"${missing.address}"}},
		},
	}

	_, err := Build(decl)
	require.Error(t, err)
	assert.True(t, IsUnresolvedReference(err))

	var unresolved *UnresolvedReferenceError
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, "${missing.address}", unresolved.Reference)
	assert.Equal(t, "a", unresolved.Action)
}

func TestBuildUnresolvedExportAndAfter(t *testing.T) {
	decl := &Declaration{
		Module:  "M",
		Actions: []ActionDecl{{ID: "a", Kind: "deploy-instance", Contract: "A", After: []string{"ghost"}}},
		Exports: map[string]string{"x": "nope"},
	}

	_, err := Build(decl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unresolved reference "ghost"`)
	assert.Contains(t, err.Error(), `export refers to unknown action "nope"`)
}

func TestBuildCycle(t *testing.T) {
	decl := &Declaration{
		Module: "M",
		Actions: []ActionDecl{
			{ID: "a", Kind: "deploy-instance", Contract: "A", Args: []any{"${b.address}"}},
			{ID: "b", Kind: "deploy-instance", Contract: "B", Args: []any{"${a.address}"}},
			{ID: "c", Kind: "deploy-instance", Contract: "C"},
		},
	}

	_, err := Build(decl)
	require.Error(t, err)
	assert.True(t, IsCyclicDependency(err))

	var cyc *CyclicDependencyError
	require.True(t, errors.As(err, &cyc))
	assert.Equal(t, []string{"M#a", "M#b", "M#a"}, cyc.Cycle)
	assert.Equal(t, "cyclic dependency: M#a -> M#b -> M#a", cyc.Error())
}

func TestBuildSelfCycle(t *testing.T) {
	decl := &Declaration{
		Module:  "M",
		Actions: []ActionDecl{{ID: "a", Kind: "deploy-instance", Contract: "A", After: []string{"a"}}},
	}

	_, err := Build(decl)
	var cyc *CyclicDependencyError
	require.True(t, errors.As(err, &cyc))
	assert.Equal(t, []string{"M#a", "M#a"}, cyc.Cycle)
}

func TestBuildLongCycleReportsShortestPath(t *testing.T) {
	decl := &Declaration{
		Module: "M",
		Actions: []ActionDecl{
			{ID: "a", Kind: "deploy-instance", Contract: "A", After: []string{"b"}},
			{ID: "b", Kind: "deploy-instance", Contract: "B", After: []string{"c"}},
			{ID: "c", Kind: "deploy-instance", Contract: "C", After: []string{"a"}},
		},
	}

	_, err := Build(decl)
	var cyc *CyclicDependencyError
	require.True(t, errors.As(err, &cyc))
	assert.Equal(t, []string{"M#a", "M#b", "M#c", "M#a"}, cyc.Cycle)
}

func TestBuildDuplicateAction(t *testing.T) {
	decl := &Declaration{
		Module: "M",
		Actions: []ActionDecl{
			{Kind: "deploy-instance", Contract: "Token"},
			{Kind: "deploy-instance", Contract: "Token"},
		},
	}

	_, err := Build(decl)
	var dup *DuplicateActionError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "Token", dup.Name)
}

func TestBuildInvalidActions(t *testing.T) {
	tests := []struct {
		name  string
		decl  ActionDecl
		field string
	}{
		{"unknown kind", ActionDecl{ID: "x", Kind: "destroy"}, "kind"},
		{"deploy without contract", ActionDecl{ID: "x", Kind: "deploy-instance"}, "contract"},
		{"read with value", ActionDecl{ID: "x", Kind: "read-value", Target: "T", Method: "m", Value: 1}, "value"},
		{"static without address", ActionDecl{Kind: "static-reference", Contract: "R"}, "address"},
		{"send without to", ActionDecl{Kind: "send-value", Value: 1}, "to"},
		{"float arg", ActionDecl{ID: "x", Kind: "deploy-instance", Contract: "C", Args: []any{1.5}}, "args[0]"},
		{"embedded reference", ActionDecl{ID: "x", Kind: "deploy-instance", Contract: "C", Args: []any{"at ${T}"}}, "args[0]"},
		{"bad name", ActionDecl{ID: "a#b", Kind: "deploy-instance", Contract: "C"}, "id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decl := &Declaration{
				Module: "M",
				Actions: []ActionDecl{
					{ID: "T", Kind: "deploy-instance", Contract: "T"},
					tt.decl,
				},
			}
			_, err := Build(decl)
			var invalid *InvalidActionError
			require.True(t, errors.As(err, &invalid), "got %v", err)
			assert.Equal(t, tt.field, invalid.Field)
		})
	}
}

func TestBuildCollectsAllErrors(t *testing.T) {
	decl := &Declaration{
		Module: "M",
		Actions: []ActionDecl{
			{ID: "a", Kind: "deploy-instance"},
			{ID: "b", Kind: "deploy-instance", Contract: "B", Args: []any{"${nope}"}},
		},
	}

	_, err := Build(decl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "action a: contract: required")
	assert.Contains(t, err.Error(), `action b: unresolved reference "${nope}"`)
}

func TestBuildSubmodules(t *testing.T) {
	tokenModule := Declaration{
		Module:  "TokenModule",
		Actions: []ActionDecl{{Kind: "deploy-instance", Contract: "Token"}},
		Exports: map[string]string{"token": "Token"},
	}
	decl := &Declaration{
		Module:  "App",
		Modules: []Declaration{tokenModule},
		Actions: []ActionDecl{
			{Kind: "deploy-instance", Contract: "Exchange", Args: []any{"${TokenModule.token.address}"}},
		},
		Exports: map[string]string{"exchange": "Exchange", "token": "TokenModule.token"},
	}

	g, err := Build(decl)
	require.NoError(t, err)

	assert.Equal(t, []string{"TokenModule#Token", "App#Exchange"}, g.Order)
	assert.Equal(t, ir.Array{ir.Ref{Action: "TokenModule#Token", Path: []string{"address"}}},
		g.Action("App#Exchange").Inputs["args"])
	assert.Equal(t, "TokenModule#Token", g.Exports["token"])
	assert.Equal(t, "TokenModule", g.Action("TokenModule#Token").Module)
}

func TestBuildSharedSubmoduleBuiltOnce(t *testing.T) {
	shared := Declaration{
		Module:  "Shared",
		Actions: []ActionDecl{{Kind: "deploy-instance", Contract: "Lib"}},
		Exports: map[string]string{"lib": "Lib"},
	}
	decl := &Declaration{
		Module: "Root",
		Modules: []Declaration{
			{
				Module:  "Left",
				Modules: []Declaration{shared},
				Actions: []ActionDecl{{Kind: "deploy-instance", Contract: "L", Args: []any{"${Shared.lib}"}}},
			},
			{
				Module:  "Right",
				Modules: []Declaration{shared},
				Actions: []ActionDecl{{Kind: "deploy-instance", Contract: "R", Args: []any{"${Shared.lib}"}}},
			},
		},
		Actions: []ActionDecl{{Kind: "deploy-instance", Contract: "Top"}},
	}

	g, err := Build(decl)
	require.NoError(t, err)
	assert.Equal(t, 4, g.Len())
	assert.Equal(t, []string{"Left#L", "Right#R"}, g.Dependents["Shared#Lib"])
}

func TestBuildDuplicateModule(t *testing.T) {
	decl := &Declaration{
		Module: "Root",
		Modules: []Declaration{
			{Module: "Shared", Actions: []ActionDecl{{Kind: "deploy-instance", Contract: "A"}}},
			{Module: "Shared", Actions: []ActionDecl{{Kind: "deploy-instance", Contract: "B"}}},
		},
	}

	_, err := Build(decl)
	var dup *DuplicateModuleError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "Shared", dup.Module)
}

func TestBuildNilDeclaration(t *testing.T) {
	_, err := Build(nil)
	assert.Error(t, err)
}
