package store

import (
	"context"
	"fmt"

	"github.com/roach88/ignis/internal/ir"
)

// Put durably upserts a journal entry keyed by (deployment, idempotency
// key). It returns only after the transaction commits, which with
// synchronous=FULL means the entry is on disk.
//
// Entries that break the status invariants fail with ErrInvalidEntry. An
// entry whose attempt is lower than the stored attempt fails with
// ErrStaleAttempt and leaves the row untouched.
func (s *Store) Put(ctx context.Context, e ir.JournalEntry) error {
	if err := CheckEntry(e); err != nil {
		return err
	}

	deps, err := MarshalDependencies(e.Dependencies)
	if err != nil {
		return fmt.Errorf("put journal entry: %w", err)
	}
	result, err := MarshalResult(e.Result)
	if err != nil {
		return fmt.Errorf("put journal entry: %w", err)
	}
	errKind, errMsg := MarshalError(e.Error)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put journal entry: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		INSERT INTO journal_entries
		(module, environment, idempotency_key, action_id, kind, dependencies,
		 inputs_hash, status, result, error_kind, error_message, attempt, run_id, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(module, environment, idempotency_key) DO UPDATE SET
			action_id     = excluded.action_id,
			kind          = excluded.kind,
			dependencies  = excluded.dependencies,
			inputs_hash   = excluded.inputs_hash,
			status        = excluded.status,
			result        = excluded.result,
			error_kind    = excluded.error_kind,
			error_message = excluded.error_message,
			attempt       = excluded.attempt,
			run_id        = excluded.run_id,
			seq           = excluded.seq
		WHERE excluded.attempt >= journal_entries.attempt
	`,
		e.Deployment.Module,
		e.Deployment.Environment,
		e.IdempotencyKey,
		e.ActionID,
		string(e.Kind),
		deps,
		e.InputsHash,
		string(e.Status),
		result,
		errKind,
		errMsg,
		e.Attempt,
		e.RunID,
		e.Seq,
	)
	if err != nil {
		return fmt.Errorf("put journal entry: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("put journal entry: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("put journal entry %s: %w", e.ActionID, ErrStaleAttempt)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put journal entry: commit: %w", err)
	}
	return nil
}

// Reset deletes every entry and run of one deployment and returns the
// number of entries removed. This is the only way entries leave the
// journal.
func (s *Store) Reset(ctx context.Context, dep ir.DeploymentID) (int64, error) {
	if err := dep.Validate(); err != nil {
		return 0, fmt.Errorf("reset: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("reset: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM journal_entries WHERE module = ? AND environment = ?
	`, dep.Module, dep.Environment)
	if err != nil {
		return 0, fmt.Errorf("reset: delete entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset: rows affected: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM runs WHERE module = ? AND environment = ?
	`, dep.Module, dep.Environment); err != nil {
		return 0, fmt.Errorf("reset: delete runs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("reset: commit: %w", err)
	}
	return n, nil
}
