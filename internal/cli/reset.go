package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/ignis/internal/ir"
)

// ResetOptions holds flags for the reset command.
type ResetOptions struct {
	*RootOptions
	Module string
	Env    string
	Yes    bool
}

// ResetResult is the JSON payload of the reset command.
type ResetResult struct {
	Deployment ir.DeploymentID `json:"deployment"`
	Removed    int64           `json:"removed"`
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Discard a deployment's journal",
		Long: `Delete every journal entry and run record of one deployment. The next
deploy starts from scratch and executes every action again.

Nothing on chain is touched. Reset refuses to run without --yes.

Example:
  ignis reset --module Shop --env sepolia --yes`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Module, "module", "", "module name (required)")
	cmd.Flags().StringVar(&opts.Env, "env", "", "environment name (required)")
	cmd.Flags().BoolVar(&opts.Yes, "yes", false, "confirm the reset")
	_ = cmd.MarkFlagRequired("module")
	_ = cmd.MarkFlagRequired("env")

	return cmd
}

func runReset(opts *ResetOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	dep := ir.DeploymentID{Module: opts.Module, Environment: opts.Env}

	if err := dep.Validate(); err != nil {
		_ = formatter.Error(ErrCodeInvalidFlag, err.Error(), nil)
		return WrapExitError(ExitCommandError, "reset", err)
	}
	if !opts.Yes {
		msg := fmt.Sprintf("refusing to reset %s without --yes", dep)
		_ = formatter.Error(ErrCodeInvalidFlag, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	ctx := cmd.Context()
	j, err := openJournal(ctx, opts.RootOptions)
	if err != nil {
		_ = formatter.Error(ErrCodeJournal, fmt.Sprintf("open journal %s: %v", journalName(opts.RootOptions), err), nil)
		return WrapExitError(ExitCommandError, "open journal", err)
	}
	defer closeJournal(j)

	removed, err := j.Reset(ctx, dep)
	if err != nil {
		_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitCommandError, "reset journal", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(ResetResult{Deployment: dep, Removed: removed})
	}
	fmt.Fprintf(formatter.Writer, "Removed %d journal entries for %s\n", removed, dep)
	return nil
}
