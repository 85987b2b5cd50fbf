package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ignis/internal/engine"
)

var (
	shopModule      = filepath.Join("testdata", "modules", "shop.yaml")
	redefinedModule = filepath.Join("testdata", "modules", "shop_redefined.yaml")
	unresolvedMod   = filepath.Join("testdata", "modules", "unresolved.yaml")
	cyclicModule    = filepath.Join("testdata", "modules", "cyclic.yaml")
)

// cliEnv is one temporary journal shared by every command a test runs.
type cliEnv struct {
	t      *testing.T
	root   *RootOptions
	runIDs engine.RunIDGenerator
}

func newCLIEnv(t *testing.T, format string) *cliEnv {
	t.Helper()
	return &cliEnv{
		t: t,
		root: &RootOptions{
			Format:   format,
			Database: filepath.Join(t.TempDir(), "ignis.db"),
		},
		runIDs: engine.NewSequentialGenerator("run"),
	}
}

// execute runs cmd and returns its stdout; logs go to a separate buffer.
func (e *cliEnv) execute(cmd *cobra.Command, args ...string) (string, error) {
	e.t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func (e *cliEnv) deploy(args ...string) (string, error) {
	e.t.Helper()
	cmd := newDeployCommand(&DeployOptions{RootOptions: e.root, RunIDs: e.runIDs})
	return e.execute(cmd, append(args, "--poll-interval", "0")...)
}

func (e *cliEnv) plan(args ...string) (string, error) {
	e.t.Helper()
	return e.execute(NewPlanCommand(e.root), args...)
}

func (e *cliEnv) status(args ...string) (string, error) {
	e.t.Helper()
	return e.execute(NewStatusCommand(e.root), args...)
}

func (e *cliEnv) reset(args ...string) (string, error) {
	e.t.Helper()
	return e.execute(NewResetCommand(e.root), args...)
}

func decodeResponse(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}

// dataMap returns the response payload as a generic JSON object.
func dataMap(t *testing.T, resp CLIResponse) map[string]any {
	t.Helper()
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is %T", resp.Data)
	return data
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}
