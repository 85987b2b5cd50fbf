package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/ignis/internal/ir"
	"github.com/roach88/ignis/internal/store"
)

// Put durably upserts a journal entry. Validation and the attempt guard
// behave exactly as in store.Store.Put.
func (s *Store) Put(ctx context.Context, e ir.JournalEntry) error {
	if err := store.CheckEntry(e); err != nil {
		return err
	}
	deps, err := store.MarshalDependencies(e.Dependencies)
	if err != nil {
		return fmt.Errorf("put journal entry: %w", err)
	}
	result, err := store.MarshalResult(e.Result)
	if err != nil {
		return fmt.Errorf("put journal entry: %w", err)
	}
	errKind, errMsg := store.MarshalError(e.Error)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO journal_entries
		(module, environment, idempotency_key, action_id, kind, dependencies,
		 inputs_hash, status, result, error_kind, error_message, attempt, run_id, seq)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (module, environment, idempotency_key) DO UPDATE SET
			action_id     = EXCLUDED.action_id,
			kind          = EXCLUDED.kind,
			dependencies  = EXCLUDED.dependencies,
			inputs_hash   = EXCLUDED.inputs_hash,
			status        = EXCLUDED.status,
			result        = EXCLUDED.result,
			error_kind    = EXCLUDED.error_kind,
			error_message = EXCLUDED.error_message,
			attempt       = EXCLUDED.attempt,
			run_id        = EXCLUDED.run_id,
			seq           = EXCLUDED.seq
		WHERE EXCLUDED.attempt >= journal_entries.attempt
	`,
		e.Deployment.Module, e.Deployment.Environment, e.IdempotencyKey,
		e.ActionID, string(e.Kind), deps, e.InputsHash, string(e.Status),
		result, errKind, errMsg, e.Attempt, e.RunID, e.Seq,
	)
	if err != nil {
		return fmt.Errorf("put journal entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("put journal entry: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("put journal entry %s: %w", e.ActionID, store.ErrStaleAttempt)
	}
	return nil
}

// Get returns the entry for one idempotency key.
func (s *Store) Get(ctx context.Context, dep ir.DeploymentID, key string) (ir.JournalEntry, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+store.EntryColumns+`
		FROM journal_entries
		WHERE module = $1 AND environment = $2 AND idempotency_key = $3
	`, dep.Module, dep.Environment, key)

	e, err := store.ScanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.JournalEntry{}, false, nil
	}
	if err != nil {
		return ir.JournalEntry{}, false, err
	}
	return e, true, nil
}

// ListAll returns every entry of a deployment ordered by seq, then key
// in byte order.
func (s *Store) ListAll(ctx context.Context, dep ir.DeploymentID) ([]ir.JournalEntry, error) {
	return s.listEntries(ctx, `
		SELECT `+store.EntryColumns+`
		FROM journal_entries
		WHERE module = $1 AND environment = $2
		ORDER BY seq ASC, idempotency_key COLLATE "C" ASC
	`, dep.Module, dep.Environment)
}

// ListIncomplete returns not-started and started entries.
func (s *Store) ListIncomplete(ctx context.Context, dep ir.DeploymentID) ([]ir.JournalEntry, error) {
	return s.listEntries(ctx, `
		SELECT `+store.EntryColumns+`
		FROM journal_entries
		WHERE module = $1 AND environment = $2 AND status IN ('not-started', 'started')
		ORDER BY seq ASC, idempotency_key COLLATE "C" ASC
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
		e, err := store.ScanEntry(rows)
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

// MaxSeq returns the highest seq recorded for a deployment, or 0.
func (s *Store) MaxSeq(ctx context.Context, dep ir.DeploymentID) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT GREATEST(
			(SELECT COALESCE(MAX(seq), 0) FROM journal_entries WHERE module = $1 AND environment = $2),
			(SELECT COALESCE(MAX(finished_seq), 0) FROM runs WHERE module = $1 AND environment = $2)
		)
	`, dep.Module, dep.Environment).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return seq, nil
}

// ListDeployments summarizes every deployment, ordered by module then
// environment.
func (s *Store) ListDeployments(ctx context.Context) ([]ir.DeploymentSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT module, environment, status, COUNT(*)
		FROM journal_entries
		GROUP BY module, environment, status
		ORDER BY module COLLATE "C", environment COLLATE "C", status
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
			summaries = append(summaries, ir.DeploymentSummary{Deployment: dep, Counts: map[ir.Status]int64{}})
			n++
		}
		summaries[n-1].Counts[ir.Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deployments: %w", err)
	}
	return summaries, nil
}

// Reset deletes every entry and run of one deployment in one transaction.
func (s *Store) Reset(ctx context.Context, dep ir.DeploymentID) (int64, error) {
	if err := dep.Validate(); err != nil {
		return 0, fmt.Errorf("reset: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("reset: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM journal_entries WHERE module = $1 AND environment = $2`,
		dep.Module, dep.Environment)
	if err != nil {
		return 0, fmt.Errorf("reset: delete entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset: rows affected: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM runs WHERE module = $1 AND environment = $2`,
		dep.Module, dep.Environment); err != nil {
		return 0, fmt.Errorf("reset: delete runs: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("reset: commit: %w", err)
	}
	return n, nil
}
