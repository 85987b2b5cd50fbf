package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"
)

// DefaultDatabase is the SQLite journal used when neither --db nor
// --postgres is given.
const DefaultDatabase = "ignis.db"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Database string // SQLite journal path
	Postgres string // PostgreSQL DSN; overrides Database when set
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the ignis CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ignis",
		Short: "ignis - resumable contract deployments",
		Long: `Deploy a module of contract actions and resume it safely.

Every action outcome is written to a durable journal before the next step
depends on it. Re-running a deployment skips what already succeeded and
retries only what failed or was interrupted.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", DefaultDatabase, "path to the SQLite journal")
	cmd.PersistentFlags().StringVar(&opts.Postgres, "postgres", "", "PostgreSQL DSN for a shared journal (overrides --db)")

	cmd.AddCommand(NewDeployCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewResetCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// newLogger builds the text logger every command logs through.
// --verbose lowers the level to debug.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
