package harness

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders a scenario result as stable text: every run's report
// in the CLI text format, followed by the calls that run made.
func Snapshot(scenario *Scenario, result *Result) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Scenario %s\n", scenario.Name)

	for _, run := range result.Runs {
		fmt.Fprintf(&buf, "\n=== run %d ===\n", run.Index)
		if run.Report != nil {
			if err := run.Report.WriteText(&buf); err != nil {
				return nil, fmt.Errorf("render run %d: %w", run.Index, err)
			}
		}
		fmt.Fprintf(&buf, "executed: [%s]\n", strings.Join(run.Executed, ", "))
		if run.Err != "" {
			fmt.Fprintf(&buf, "error: %s\n", run.Err)
		}
	}
	return buf.Bytes(), nil
}

// RunWithGolden runs a scenario, fails t on expect or assertion errors,
// and compares the snapshot against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	return AssertGolden(t, scenario, result)
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	snapshot, err := Snapshot(scenario, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, snapshot)
	return nil
}
