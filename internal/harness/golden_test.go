package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGolden_Scenarios(t *testing.T) {
	for _, name := range []string{"retry_after_revert", "crash_after_submit"} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)
			require.NoError(t, RunWithGolden(t, s))
		})
	}
}

func TestSnapshot_Stable(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "retry_after_revert.yaml"))
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := Snapshot(s, first)
	require.NoError(t, err)
	b, err := Snapshot(s, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.True(t, strings.HasPrefix(string(a), "Scenario retry_after_revert\n"))
}

func TestSnapshot_RunWithoutReport(t *testing.T) {
	s := &Scenario{Name: "x"}
	r := NewResult()
	r.Runs = append(r.Runs, RunOutcome{Index: 1, Executed: []string{}, Err: "refused"})

	data, err := Snapshot(s, r)
	require.NoError(t, err)
	assert.Equal(t, "Scenario x\n\n=== run 1 ===\nexecuted: []\nerror: refused\n", string(data))
}

func TestRunSuite_TestdataScenarios(t *testing.T) {
	suite, err := RunSuite(filepath.Join("testdata", "scenarios"), SuiteOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, suite.Total)
	assert.Equal(t, 3, suite.Passed, suite.Scenarios)
	assert.Zero(t, suite.Failed)
	for _, sc := range suite.Scenarios {
		assert.NotContains(t, sc.File, "modules")
	}
}

func TestRunSuite_Filter(t *testing.T) {
	suite, err := RunSuite(filepath.Join("testdata", "scenarios"), SuiteOptions{Filter: "crash_*"})
	require.NoError(t, err)
	require.Equal(t, 1, suite.Total)
	assert.Equal(t, "crash_after_submit", suite.Scenarios[0].Name)

	_, err = RunSuite(filepath.Join("testdata", "scenarios"), SuiteOptions{Filter: "["})
	require.Error(t, err)
}

func TestRunSuite_GoldenUpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	src, err := os.ReadFile(filepath.Join("testdata", "scenarios", "retry_after_revert.yaml"))
	require.NoError(t, err)
	file := filepath.Join(dir, "retry.yaml")
	require.NoError(t, os.WriteFile(file, src, 0o644))

	suite, err := RunSuite(dir, SuiteOptions{Update: true})
	require.NoError(t, err)
	require.Equal(t, 1, suite.Passed)
	assert.True(t, suite.Scenarios[0].GoldenUpdated)

	written, err := os.ReadFile(GoldenPath(file))
	require.NoError(t, err)
	want, err := os.ReadFile(filepath.Join("testdata", "golden", "retry_after_revert.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(written))

	suite, err = RunSuite(dir, SuiteOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, suite.Passed)

	require.NoError(t, os.WriteFile(GoldenPath(file), []byte("stale\n"), 0o644))
	suite, err = RunSuite(dir, SuiteOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, suite.Failed)
	assert.Contains(t, suite.Scenarios[0].Errors[0], "does not match golden file")
}

func TestRunSuite_LoadFailure(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yml"), []byte("name: [\n"), 0o644))

	suite, err := RunSuite(dir, SuiteOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, suite.Failed)
	assert.Equal(t, "bad.yml", suite.Scenarios[0].Name)
	assert.Contains(t, suite.Scenarios[0].Errors[0], "failed to load scenario")
}

func TestRunSuite_MissingDir(t *testing.T) {
	_, err := RunSuite(filepath.Join(t.TempDir(), "nope"), SuiteOptions{})
	require.Error(t, err)
}

func TestGoldenPath(t *testing.T) {
	assert.Equal(t, filepath.Join("s", "golden", "x.golden"), GoldenPath(filepath.Join("s", "x.yaml")))
}
