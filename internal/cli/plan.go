package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ignis/internal/engine"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	Env string
}

// PlanResult is the JSON payload of the plan command.
type PlanResult struct {
	*engine.Plan
	Redefinitions []string `json:"redefinitions,omitempty"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan <module-file>",
		Short: "Show what a deploy would do",
		Long: `Build the module and reconcile it with the journal without executing
or writing anything. Each action is listed as execute, retry or skip.

A plan that finds redefined actions is refused (exit code 2).

Example:
  ignis plan ./shop.yaml --env sepolia`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Env, "env", "", "target environment (required)")
	_ = cmd.MarkFlagRequired("env")

	return cmd
}

func runPlan(opts *PlanOptions, modulePath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	g, err := LoadGraph(modulePath)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	formatter.VerboseLog("built %s: %d action(s)", g.Module, g.Len())

	ctx := cmd.Context()
	j, err := openJournal(ctx, opts.RootOptions)
	if err != nil {
		_ = formatter.Error(ErrCodeJournal, fmt.Sprintf("open journal %s: %v", journalName(opts.RootOptions), err), nil)
		return WrapExitError(ExitCommandError, "open journal", err)
	}
	defer closeJournal(j)

	eng := engine.New(j, nil, engine.WithLogger(newLogger(opts.RootOptions, cmd.ErrOrStderr())))
	plan, planErr := eng.Plan(ctx, g, opts.Env)
	if plan == nil {
		code := ErrCodeGeneric
		if engine.IsInfrastructure(planErr) {
			code = ErrCodeJournal
		}
		_ = formatter.Error(code, planErr.Error(), nil)
		return WrapExitError(ExitCommandError, "plan", planErr)
	}

	result := PlanResult{Plan: plan, Redefinitions: errorLines(planErr)}
	if formatter.Format == "json" {
		if planErr != nil {
			_ = formatter.Failure(ErrCodeRedefinition, "plan refused: recorded actions were redefined", result)
			return WrapExitError(ExitCommandError, "plan refused", planErr)
		}
		return formatter.Success(result)
	}

	writePlanText(formatter, result)
	if planErr != nil {
		return WrapExitError(ExitCommandError, "plan refused", planErr)
	}
	return nil
}

func writePlanText(f *OutputFormatter, r PlanResult) {
	w := f.Writer
	fmt.Fprintf(w, "Plan for %s\n\n", r.Deployment)
	for _, d := range r.Dispositions {
		fmt.Fprintf(w, "  %-7s  %s", d.Kind, d.ActionID)
		if d.Reason != "" {
			fmt.Fprintf(w, "  %s", d.Reason)
		}
		fmt.Fprintln(w)
		f.VerboseLog("  %s key=%s", d.ActionID, d.IdempotencyKey)
	}

	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "\nwarning: %s", warning)
	}
	if len(r.Orphans) > 0 {
		fmt.Fprintf(w, "\nwarning: journal entries without a declared action: %s", strings.Join(r.Orphans, ", "))
	}
	if len(r.Warnings) > 0 || len(r.Orphans) > 0 {
		fmt.Fprintln(w)
	}

	if len(r.Redefinitions) > 0 {
		fmt.Fprintf(w, "\nError [%s]: plan refused, recorded actions were redefined\n", ErrCodeRedefinition)
		for _, line := range r.Redefinitions {
			fmt.Fprintf(w, "  %s\n", line)
		}
		return
	}

	fmt.Fprintf(w, "\n%d to execute, %d to retry, %d to skip\n",
		r.Count(engine.DispositionExecute), r.Count(engine.DispositionRetry), r.Count(engine.DispositionSkip))
}

// errorLines flattens a joined error into one message per cause.
func errorLines(err error) []string {
	if err == nil {
		return nil
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return []string{err.Error()}
	}
	var out []string
	for _, e := range joined.Unwrap() {
		out = append(out, errorLines(e)...)
	}
	return out
}
