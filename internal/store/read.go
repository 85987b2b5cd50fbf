package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/ignis/internal/ir"
)

// EntryColumns lists the journal_entries columns in the order ScanEntry
// expects them.
const EntryColumns = `module, environment, idempotency_key, action_id, kind, dependencies,
	inputs_hash, status, result, error_kind, error_message, attempt, run_id, seq`

// Get returns the entry for one idempotency key. found is false when the
// journal has no entry for it.
func (s *Store) Get(ctx context.Context, dep ir.DeploymentID, key string) (entry ir.JournalEntry, found bool, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+EntryColumns+`
		FROM journal_entries
		WHERE module = ? AND environment = ? AND idempotency_key = ?
	`, dep.Module, dep.Environment, key)

	entry, err = ScanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.JournalEntry{}, false, nil
	}
	if err != nil {
		return ir.JournalEntry{}, false, err
	}
	return entry, true, nil
}

// ListAll returns every entry of a deployment ordered by seq ASC,
// idempotency_key ASC. Returns an empty slice (not nil) for an unknown
// deployment.
func (s *Store) ListAll(ctx context.Context, dep ir.DeploymentID) ([]ir.JournalEntry, error) {
	return s.listEntries(ctx, `
		SELECT `+EntryColumns+`
		FROM journal_entries
		WHERE module = ? AND environment = ?
		ORDER BY seq ASC, idempotency_key COLLATE BINARY ASC
	`, dep.Module, dep.Environment)
}

// ListIncomplete returns entries that were scheduled or dispatched but
// never reached a recorded outcome. A later run retries them.
func (s *Store) ListIncomplete(ctx context.Context, dep ir.DeploymentID) ([]ir.JournalEntry, error) {
	return s.listEntries(ctx, `
		SELECT `+EntryColumns+`
		FROM journal_entries
		WHERE module = ? AND environment = ? AND status IN ('not-started', 'started')
		ORDER BY seq ASC, idempotency_key COLLATE BINARY ASC
	`, dep.Module, dep.Environment)
}

func (s *Store) listEntries(ctx context.Context, query string, args ...any) ([]ir.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	entries := []ir.JournalEntry{}
	for rows.Next() {
		e, err := ScanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return entries, nil
}

// MaxSeq returns the highest seq recorded for a deployment, across entries
// and runs, or 0. Used to resume the logical clock.
func (s *Store) MaxSeq(ctx context.Context, dep ir.DeploymentID) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(
			(SELECT COALESCE(MAX(seq), 0) FROM journal_entries WHERE module = ? AND environment = ?),
			(SELECT COALESCE(MAX(finished_seq), 0) FROM runs WHERE module = ? AND environment = ?)
		)
	`, dep.Module, dep.Environment, dep.Module, dep.Environment).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return seq, nil
}

// ListDeployments summarizes every deployment in the journal, ordered by
// module then environment.
func (s *Store) ListDeployments(ctx context.Context) ([]ir.DeploymentSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT module, environment, status, COUNT(*)
		FROM journal_entries
		GROUP BY module, environment, status
		ORDER BY module COLLATE BINARY ASC, environment COLLATE BINARY ASC, status ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer rows.Close()

	summaries := []ir.DeploymentSummary{}
	for rows.Next() {
		var (
			dep    ir.DeploymentID
			status string
			count  int64
		)
		if err := rows.Scan(&dep.Module, &dep.Environment, &status, &count); err != nil {
			return nil, fmt.Errorf("scan deployment: %w", err)
		}
		n := len(summaries)
		if n == 0 || summaries[n-1].Deployment != dep {
			summaries = append(summaries, ir.DeploymentSummary{
				Deployment: dep,
				Counts:     map[ir.Status]int64{},
			})
			n++
		}
		summaries[n-1].Counts[ir.Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deployments: %w", err)
	}
	return summaries, nil
}

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// ScanEntry scans one row selected with EntryColumns.
func ScanEntry(sc Scanner) (ir.JournalEntry, error) {
	var (
		e               ir.JournalEntry
		kind, status    string
		deps            string
		result          *string
		errKind, errMsg *string
	)
	if err := sc.Scan(
		&e.Deployment.Module, &e.Deployment.Environment, &e.IdempotencyKey,
		&e.ActionID, &kind, &deps, &e.InputsHash, &status,
		&result, &errKind, &errMsg, &e.Attempt, &e.RunID, &e.Seq,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.JournalEntry{}, err
		}
		return ir.JournalEntry{}, fmt.Errorf("scan journal entry: %w", err)
	}

	e.Kind = ir.Kind(kind)
	e.Status = ir.Status(status)

	var err error
	if e.Dependencies, err = UnmarshalDependencies(deps); err != nil {
		return ir.JournalEntry{}, err
	}
	if e.Result, err = UnmarshalResult(result); err != nil {
		return ir.JournalEntry{}, err
	}
	e.Error = UnmarshalError(errKind, errMsg)
	return e, nil
}
