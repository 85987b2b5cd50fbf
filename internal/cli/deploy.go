package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/ignis/internal/engine"
	"github.com/roach88/ignis/internal/ir"
	"github.com/roach88/ignis/internal/target"
)

// TargetSim selects the in-process simulated chain.
const TargetSim = "sim"

// DeployOptions holds flags for the deploy command.
type DeployOptions struct {
	*RootOptions
	Env             string
	Concurrency     int
	Timeout         time.Duration
	PollInterval    time.Duration
	MaxAttempts     int64
	Target          string
	Faults          []string
	MetricsTextfile string

	// RunIDs overrides the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator

	// Executor overrides the executor chosen by Target (for testing).
	Executor engine.Executor
}

// NewDeployCommand creates the deploy command.
func NewDeployCommand(rootOpts *RootOptions) *cobra.Command {
	return newDeployCommand(&DeployOptions{RootOptions: rootOpts})
}

func newDeployCommand(opts *DeployOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy <module-file>",
		Short: "Deploy a module, resuming from the journal",
		Long: `Build the module's action graph, reconcile it with the journal and
execute every action that has not yet succeeded.

Actions already recorded as successful are skipped. Failed or interrupted
actions are retried. Dependents of a failed action are held until a later
run succeeds.

Exit codes:
  0 - every action succeeded or was skipped
  1 - one or more actions failed, were held or were cancelled
  2 - command error (bad module, redefinition, journal or node failure)

Example:
  ignis deploy ./shop.yaml --env sepolia
  ignis deploy ./shop.yaml --env sepolia --fail Shop#Market=fail
  ignis deploy ./shop.yaml --env ci --postgres postgres://ci@db/ignis`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Env, "env", "", "target environment (required)")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", engine.DefaultConcurrency, "maximum actions in flight")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "per-action timeout including polling (0 = none)")
	cmd.Flags().DurationVar(&opts.PollInterval, "poll-interval", engine.DefaultPollInterval, "delay between polls of a pending transaction")
	cmd.Flags().Int64Var(&opts.MaxAttempts, "max-attempts", 0, "dispatches allowed per action across runs (0 = unlimited)")
	cmd.Flags().StringVar(&opts.Target, "target", TargetSim, "executor target (sim)")
	cmd.Flags().StringArrayVar(&opts.Faults, "fail", nil, "inject a simulator fault, action-id[=fail|timeout|pending|unavailable] (repeatable)")
	cmd.Flags().StringVar(&opts.MetricsTextfile, "metrics-textfile", "", "write prometheus metrics to this file after the run")
	_ = cmd.MarkFlagRequired("env")

	return cmd
}

func runDeploy(opts *DeployOptions, modulePath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	dep := ir.DeploymentID{Environment: opts.Env}

	g, err := LoadGraph(modulePath)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	dep.Module = g.Module
	logger.Info("module built", "module", g.Module, "actions", g.Len())

	ex, err := buildExecutor(opts)
	if err != nil {
		_ = formatter.Error(ErrCodeInvalidFlag, err.Error(), nil)
		return WrapExitError(ExitCommandError, "configure target", err)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	j, err := openJournal(ctx, opts.RootOptions)
	if err != nil {
		_ = formatter.Error(ErrCodeJournal, fmt.Sprintf("open journal %s: %v", journalName(opts.RootOptions), err), nil)
		return WrapExitError(ExitCommandError, "open journal", err)
	}
	defer closeJournal(j)

	var reg *prometheus.Registry
	engineOpts := []engine.EngineOption{
		engine.WithLogger(logger),
		engine.WithConcurrency(opts.Concurrency),
		engine.WithActionTimeout(opts.Timeout),
		engine.WithPollInterval(opts.PollInterval),
		engine.WithMaxAttempts(opts.MaxAttempts),
	}
	if opts.RunIDs != nil {
		engineOpts = append(engineOpts, engine.WithRunIDGenerator(opts.RunIDs))
	}
	if opts.MetricsTextfile != "" {
		reg = prometheus.NewRegistry()
		engineOpts = append(engineOpts, engine.WithMetrics(engine.NewMetrics(reg)))
	}
	eng := engine.New(j, ex, engineOpts...)

	logger.Info("deploy starting", "deployment", dep, "journal", journalName(opts.RootOptions))
	report, runErr := eng.Deploy(ctx, g, opts.Env)

	if reg != nil {
		if err := engine.WriteTextfile(opts.MetricsTextfile, reg); err != nil {
			logger.Error("write metrics textfile", "path", opts.MetricsTextfile, "error", err)
		}
	}

	if runErr != nil {
		return outputDeployError(formatter, report, runErr)
	}
	return outputReport(formatter, report)
}

// buildExecutor returns the executor selected by --target with any
// --fail faults applied.
func buildExecutor(opts *DeployOptions) (engine.Executor, error) {
	if opts.Executor != nil {
		if len(opts.Faults) > 0 {
			return nil, errors.New("--fail requires --target sim")
		}
		return opts.Executor, nil
	}
	if opts.Target != TargetSim {
		return nil, fmt.Errorf("unknown target %q (available: %s)", opts.Target, TargetSim)
	}

	sim := target.NewSimulator()
	for _, arg := range opts.Faults {
		id, fault, err := target.ParseFaultSpec(arg)
		if err != nil {
			return nil, err
		}
		sim.SetFault(id, fault)
	}
	return sim, nil
}

// signalContext cancels on SIGINT or SIGTERM. A cancelled deploy stops
// dispatching; in-flight actions finish and are journaled.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, stopping dispatch", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

func outputReport(f *OutputFormatter, report *engine.Report) error {
	if f.Format == "json" {
		if report.Succeeded() {
			return f.Success(report)
		}
		_ = f.Failure(ErrCodeDeployFailed, failureMessage(report), report)
		return NewExitError(ExitFailure, failureMessage(report))
	}

	if err := report.WriteText(f.Writer); err != nil {
		return WrapExitError(ExitCommandError, "write report", err)
	}
	if !report.Succeeded() {
		return NewExitError(ExitFailure, failureMessage(report))
	}
	return nil
}

// outputDeployError reports a deploy that could not start or was aborted.
// A partial report is still printed so the operator sees what finished.
func outputDeployError(f *OutputFormatter, report *engine.Report, err error) error {
	code := ErrCodeGeneric
	switch {
	case engine.IsRedefinition(err):
		code = ErrCodeRedefinition
	case engine.IsInfrastructure(err):
		code = ErrCodeInfrastructure
	}

	if f.Format == "json" {
		if report != nil {
			_ = f.Failure(code, err.Error(), report)
		} else {
			_ = f.Error(code, err.Error(), nil)
		}
		return WrapExitError(ExitCommandError, "deploy", err)
	}

	if report != nil {
		_ = report.WriteText(f.Writer)
		fmt.Fprintln(f.Writer)
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %v\n", code, err)
	return WrapExitError(ExitCommandError, "deploy", err)
}

func failureMessage(r *engine.Report) string {
	return fmt.Sprintf("deployment %s: %s (%d failed, %d held, %d cancelled)",
		r.Deployment, r.Overall, len(r.Failed), len(r.Held), r.Count(engine.ActionCancelled))
}
