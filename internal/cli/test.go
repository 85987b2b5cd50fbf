package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/ignis/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run deployment scenarios",
		Long: `Run scenario files against the simulated chain with a fresh journal
each. A scenario deploys its module one or more times, injecting faults and
checking statuses, executed actions and journal contents. Reports are
compared with golden files under <scenarios-dir>/golden when present.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  ignis test ./scenarios
  ignis test ./scenarios --filter "retry_*"
  ignis test ./scenarios --update
  ignis test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if _, err := os.Stat(scenariosDir); errors.Is(err, fs.ErrNotExist) {
		msg := fmt.Sprintf("scenarios directory not found: %s", scenariosDir)
		_ = formatter.Error(ErrCodeNotFound, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	result, err := harness.RunSuite(scenariosDir, harness.SuiteOptions{
		Filter: opts.Filter,
		Update: opts.Update,
	})
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "run scenarios", err)
	}

	if formatter.Format == "json" {
		if result.Failed > 0 {
			msg := fmt.Sprintf("%d of %d scenario(s) failed", result.Failed, result.Total)
			_ = formatter.Failure(ErrCodeScenarioFailed, msg, result)
			return NewExitError(ExitFailure, msg)
		}
		return formatter.Success(result)
	}

	return outputTestText(formatter, result)
}

func outputTestText(f *OutputFormatter, result *harness.SuiteResult) error {
	w := f.Writer
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return nil
	}

	for _, sr := range result.Scenarios {
		switch {
		case !sr.Pass:
			fmt.Fprintf(w, "✗ %s\n", sr.Name)
			for _, e := range sr.Errors {
				fmt.Fprintf(w, "  %s\n", e)
			}
		case sr.GoldenUpdated:
			fmt.Fprintf(w, "✓ %s (golden updated)\n", sr.Name)
		default:
			fmt.Fprintf(w, "✓ %s\n", sr.Name)
		}
		f.VerboseLog("  file: %s", sr.File)
	}

	fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}
