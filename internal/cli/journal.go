package cli

import (
	"context"
	"log/slog"

	"github.com/roach88/ignis/internal/engine"
	"github.com/roach88/ignis/internal/ir"
	"github.com/roach88/ignis/internal/store"
	"github.com/roach88/ignis/internal/store/pgstore"
)

// journal is what the commands need from a journal store. Both the SQLite
// and the PostgreSQL stores satisfy it.
type journal interface {
	engine.Journal
	ListIncomplete(ctx context.Context, dep ir.DeploymentID) ([]ir.JournalEntry, error)
	ListDeployments(ctx context.Context) ([]ir.DeploymentSummary, error)
	Reset(ctx context.Context, dep ir.DeploymentID) (int64, error)
	Close() error
}

var (
	_ journal = (*store.Store)(nil)
	_ journal = (*pgstore.Store)(nil)
)

// openJournal opens the PostgreSQL journal when --postgres is set and the
// SQLite journal at --db otherwise.
func openJournal(ctx context.Context, opts *RootOptions) (journal, error) {
	if opts.Postgres != "" {
		slog.Debug("opening journal", "backend", "postgres")
		pg, err := pgstore.Open(ctx, pgstore.DefaultConfig(opts.Postgres))
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
	path := opts.Database
	if path == "" {
		path = DefaultDatabase
	}
	slog.Debug("opening journal", "backend", "sqlite", "path", path)
	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// journalName describes the selected journal without leaking credentials.
func journalName(opts *RootOptions) string {
	if opts.Postgres != "" {
		return "postgres"
	}
	if opts.Database == "" {
		return DefaultDatabase
	}
	return opts.Database
}

func closeJournal(j journal) {
	if err := j.Close(); err != nil {
		slog.Error("error closing journal", "error", err)
	}
}
