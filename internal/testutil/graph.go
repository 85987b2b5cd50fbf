package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/ignis/internal/compiler"
	"github.com/roach88/ignis/internal/ir"
)

// BuildGraph compiles a YAML declaration, failing the test on any error.
func BuildGraph(t *testing.T, src string) *ir.Graph {
	t.Helper()
	decl, err := compiler.Parse([]byte(src), compiler.FormatYAML, "test.yaml")
	require.NoError(t, err)
	g, err := compiler.Build(decl)
	require.NoError(t, err)
	return g
}
