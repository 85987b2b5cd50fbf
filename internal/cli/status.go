package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ignis/internal/ir"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Module string
	Env    string
	Runs   int // recent runs to show
}

// JournalLine is one journal entry in the status timeline.
type JournalLine struct {
	Seq            int64           `json:"seq"`
	ActionID       string          `json:"action_id"`
	Status         ir.Status       `json:"status"`
	Attempt        int64           `json:"attempt"`
	RunID          string          `json:"run_id"`
	IdempotencyKey string          `json:"idempotency_key"`
	Result         ir.Value        `json:"result,omitempty"`
	Error          *ir.ActionError `json:"error,omitempty"`
}

// StatusStats counts a deployment's entries by status.
type StatusStats struct {
	Total      int `json:"total"`
	Success    int `json:"success"`
	Failed     int `json:"failed"`
	Started    int `json:"started"`
	NotStarted int `json:"not_started"`
	Incomplete int `json:"incomplete"`
}

// StatusResult is the status of one deployment.
type StatusResult struct {
	Deployment ir.DeploymentID `json:"deployment"`
	Journal    []JournalLine   `json:"journal"`
	Runs       []ir.RunRecord  `json:"runs"`
	Stats      StatusStats     `json:"stats"`
}

// DeploymentsResult lists every deployment in the journal.
type DeploymentsResult struct {
	Deployments []ir.DeploymentSummary `json:"deployments"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show journal entries and recent runs",
		Long: `Show what the journal records for a deployment: one line per action in
write order, the most recent runs and a count by status.

Without --module and --env, list every deployment in the journal.

Example:
  ignis status
  ignis status --module Shop --env sepolia
  ignis status --module Shop --env sepolia --runs 3 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Module, "module", "", "module name")
	cmd.Flags().StringVar(&opts.Env, "env", "", "environment name")
	cmd.Flags().IntVar(&opts.Runs, "runs", 10, "number of recent runs to show")
	cmd.MarkFlagsRequiredTogether("module", "env")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	j, err := openJournal(ctx, opts.RootOptions)
	if err != nil {
		_ = formatter.Error(ErrCodeJournal, fmt.Sprintf("open journal %s: %v", journalName(opts.RootOptions), err), nil)
		return WrapExitError(ExitCommandError, "open journal", err)
	}
	defer closeJournal(j)

	if opts.Module == "" {
		summaries, err := j.ListDeployments(ctx)
		if err != nil {
			_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
			return WrapExitError(ExitCommandError, "list deployments", err)
		}
		if formatter.Format == "json" {
			if summaries == nil {
				summaries = []ir.DeploymentSummary{}
			}
			return formatter.Success(DeploymentsResult{Deployments: summaries})
		}
		writeDeploymentsText(formatter.Writer, summaries)
		return nil
	}

	dep := ir.DeploymentID{Module: opts.Module, Environment: opts.Env}
	if err := dep.Validate(); err != nil {
		_ = formatter.Error(ErrCodeInvalidFlag, err.Error(), nil)
		return WrapExitError(ExitCommandError, "status", err)
	}

	entries, err := j.ListAll(ctx, dep)
	if err != nil {
		_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitCommandError, "list journal", err)
	}
	incomplete, err := j.ListIncomplete(ctx, dep)
	if err != nil {
		_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitCommandError, "list incomplete", err)
	}
	runs, err := j.ListRuns(ctx, dep, opts.Runs)
	if err != nil {
		_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitCommandError, "list runs", err)
	}

	result := buildStatus(dep, entries, runs)
	result.Stats.Incomplete = len(incomplete)

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	writeStatusText(formatter.Writer, result, opts.Verbose)
	return nil
}

func buildStatus(dep ir.DeploymentID, entries []ir.JournalEntry, runs []ir.RunRecord) StatusResult {
	result := StatusResult{
		Deployment: dep,
		Journal:    make([]JournalLine, 0, len(entries)),
		Runs:       runs,
	}
	if result.Runs == nil {
		result.Runs = []ir.RunRecord{}
	}

	for _, e := range entries {
		result.Journal = append(result.Journal, JournalLine{
			Seq:            e.Seq,
			ActionID:       e.ActionID,
			Status:         e.Status,
			Attempt:        e.Attempt,
			RunID:          e.RunID,
			IdempotencyKey: e.IdempotencyKey,
			Result:         e.Result,
			Error:          e.Error,
		})
		switch e.Status {
		case ir.StatusSuccess:
			result.Stats.Success++
		case ir.StatusFailed:
			result.Stats.Failed++
		case ir.StatusStarted:
			result.Stats.Started++
		case ir.StatusNotStarted:
			result.Stats.NotStarted++
		}
	}
	result.Stats.Total = len(entries)
	return result
}

func writeDeploymentsText(w io.Writer, summaries []ir.DeploymentSummary) {
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No deployments recorded.")
		return
	}

	fmt.Fprintln(w, "=== Deployments ===")
	for _, s := range summaries {
		fmt.Fprintf(w, "  %-30s  %s\n", s.Deployment, formatCounts(s.Counts))
	}
}

func writeStatusText(w io.Writer, result StatusResult, verbose bool) {
	fmt.Fprintf(w, "Deployment %s\n\n", result.Deployment)

	fmt.Fprintln(w, "=== Journal ===")
	if len(result.Journal) == 0 {
		fmt.Fprintln(w, "  (no entries)")
	}
	for _, line := range result.Journal {
		fmt.Fprintf(w, "  [%d] %-11s  %s  attempt %d  run %s\n",
			line.Seq, line.Status, line.ActionID, line.Attempt, truncateID(line.RunID))
		if line.Error != nil {
			fmt.Fprintf(w, "       Error: %s\n", line.Error.Error())
		}
		if verbose {
			if line.Result != nil {
				if data, err := ir.MarshalValue(line.Result); err == nil {
					fmt.Fprintf(w, "       Result: %s\n", data)
				}
			}
			fmt.Fprintf(w, "       Key: %s\n", truncateID(line.IdempotencyKey))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Runs ===")
	if len(result.Runs) == 0 {
		fmt.Fprintln(w, "  (no runs)")
	}
	for _, r := range result.Runs {
		fmt.Fprintf(w, "  %s  %-15s  seq %d..%d\n", truncateID(r.RunID), r.Status, r.StartedSeq, r.FinishedSeq)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Entries:     %d\n", result.Stats.Total)
	fmt.Fprintf(w, "  Success:     %d\n", result.Stats.Success)
	fmt.Fprintf(w, "  Failed:      %d\n", result.Stats.Failed)
	fmt.Fprintf(w, "  Started:     %d\n", result.Stats.Started)
	fmt.Fprintf(w, "  Not started: %d\n", result.Stats.NotStarted)
	if result.Stats.Incomplete > 0 {
		fmt.Fprintf(w, "  %d action(s) will be retried or executed on the next deploy\n", result.Stats.Incomplete)
	}
}

// formatCounts renders status counts in a fixed order.
func formatCounts(counts map[ir.Status]int64) string {
	order := []ir.Status{ir.StatusSuccess, ir.StatusFailed, ir.StatusStarted, ir.StatusNotStarted}
	var parts []string
	for _, s := range order {
		if n := counts[s]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", s, n))
		}
	}
	if len(parts) == 0 {
		return "(empty)"
	}
	return strings.Join(parts, " ")
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
