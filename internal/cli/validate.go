package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool      `json:"valid"`
	Module  string    `json:"module,omitempty"`
	Actions int       `json:"actions,omitempty"`
	Errors  []Problem `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <module-file>",
		Short: "Check a module without touching the journal",
		Long: `Decode a module file and build its action graph without opening the
journal. Every unresolved reference, duplicate name, invalid action and
dependency cycle is reported.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, modulePath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	g, err := LoadGraph(modulePath)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) && (le.Code == ErrCodeBuild || le.Code == ErrCodeDecode) {
			return outputValidationErrors(formatter, le.Problems)
		}
		return outputLoadError(formatter, err)
	}

	formatter.VerboseLog("built %s: %d action(s) in order %v", g.Module, g.Len(), g.Order)

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Module: g.Module, Actions: g.Len()})
	}
	fmt.Fprintf(formatter.Writer, "✓ Module %s valid (%d actions)\n", g.Module, g.Len())
	return nil
}

// outputValidationErrors outputs every problem found. Validation failures
// exit with code 1.
func outputValidationErrors(formatter *OutputFormatter, problems []Problem) error {
	msg := fmt.Sprintf("validation failed with %d error(s)", len(problems))

	if formatter.Format == "json" {
		_ = formatter.Failure(problems[0].Code, problems[0].Message, ValidationResult{Valid: false, Errors: problems})
		return NewExitError(ExitFailure, msg)
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, p := range problems {
		if p.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", p.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", p.Code, p.Message)
	}
	return NewExitError(ExitFailure, msg)
}
