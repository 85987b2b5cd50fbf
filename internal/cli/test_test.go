package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scenariosDir = filepath.Join("testdata", "scenarios")

func runTestCmd(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := runTestCmd(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	out, err := runTestCmd(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
	assert.Contains(t, out, "Error [E002]")
}

func TestTestCommandPasses(t *testing.T) {
	out, err := runTestCmd(t, "text", scenariosDir)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ fresh_deploy\n")
	assert.Contains(t, out, "✓ retry_after_revert\n")
	assert.Contains(t, out, "2 passed, 0 failed, 2 total")
}

func TestTestCommandFilter(t *testing.T) {
	out, err := runTestCmd(t, "text", scenariosDir, "--filter", "retry_*")
	require.NoError(t, err)

	assert.Contains(t, out, "retry_after_revert")
	assert.NotContains(t, out, "fresh_deploy")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommandEmptyDir(t *testing.T) {
	out, err := runTestCmd(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(`
name: wrong_expectation
module:
  module: Solo
  actions:
    - kind: deploy-instance
      contract: Solo
runs:
  - faults: { "Solo#Solo": fail }
    expect:
      overall: success
`), 0o644))

	out, err := runTestCmd(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong_expectation")
	assert.Contains(t, out, "0 passed, 1 failed, 1 total")
}

func TestTestCommandUpdateWritesGolden(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "solo.yaml"), []byte(`
name: solo
module:
  module: Solo
  actions:
    - kind: deploy-instance
      contract: Solo
runs:
  - expect:
      overall: success
`), 0o644))

	out, err := runTestCmd(t, "text", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ solo (golden updated)")

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "solo.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(golden), "success    Solo#Solo")

	// A second run compares against the file just written.
	out, err = runTestCmd(t, "text", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ solo\n")
}

func TestTestCommandJSON(t *testing.T) {
	out, err := runTestCmd(t, "json", scenariosDir)
	require.NoError(t, err)

	resp := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	data := dataMap(t, resp)
	assert.Equal(t, float64(2), data["passed"])
	assert.Equal(t, float64(2), data["total"])
}
