package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/ignis/internal/ir"
)

// ErrDuplicateRun is returned by BeginRun when the run id already exists.
var ErrDuplicateRun = errors.New("run id already recorded")

// BeginRun records the start of an orchestrator run.
func (s *Store) BeginRun(ctx context.Context, run ir.RunRecord) error {
	if err := run.Deployment.Validate(); err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, module, environment, status, started_seq, finished_seq)
		VALUES ($1, $2, $3, $4, $5, 0)
	`, run.RunID, run.Deployment.Module, run.Deployment.Environment, run.Status, run.StartedSeq)
	if isUniqueViolation(err) {
		return fmt.Errorf("begin run %s: %w", run.RunID, ErrDuplicateRun)
	}
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// FinishRun stores the final status of a run.
func (s *Store) FinishRun(ctx context.Context, runID, status string, finishedSeq int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = $1, finished_seq = $2 WHERE run_id = $3`,
		status, finishedSeq, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run: unknown run %q", runID)
	}
	return nil
}

// ListRuns returns the most recent runs of a deployment, newest first.
// limit <= 0 returns all runs.
func (s *Store) ListRuns(ctx context.Context, dep ir.DeploymentID, limit int) ([]ir.RunRecord, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, module, environment, status, started_seq, finished_seq
		FROM runs
		WHERE module = $1 AND environment = $2
		ORDER BY started_seq DESC, run_id COLLATE "C" DESC
		LIMIT $3
	`, dep.Module, dep.Environment, lim)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []ir.RunRecord{}
	for rows.Next() {
		var r ir.RunRecord
		if err := rows.Scan(&r.RunID, &r.Deployment.Module, &r.Deployment.Environment,
			&r.Status, &r.StartedSeq, &r.FinishedSeq); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
