package engine

// # Resume and Idempotency
//
// Resuming a deployment is STRUCTURAL, not a special "recovery mode".
// Every run follows the same path:
//
//	[ListAll] -> [Reconcile] -> [skip | retry | execute]
//	                                      |
//	                          [Put started] -> [Execute] -> [Put outcome]
//
// Three mechanisms make a re-run safe:
//
//  1. Idempotency key: ir.IdempotencyKey(action id, deployment) is a pure
//     function, so a rebuilt graph finds the same journal rows.
//  2. Write-before-dispatch: the started entry is durable before the
//     executor is called. A crash after dispatch leaves started behind,
//     which reconciles to retry, never to skip.
//  3. Shape check: a recorded success is only reused when kind and
//     dependencies are unchanged; otherwise Reconcile refuses the run.
//
// Consider a deployment of A -> B -> C that crashes while B is in flight:
//
//	Before crash: A success, B started, C absent
//	Re-run:       A skip (result reused), B retry (attempt 2), C execute
//
// The executor is called for B again. Whether a second submission is
// harmless is the executor's concern; Call.IdempotencyKey and
// Call.Attempt are passed so it can detect the repeat.

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/ignis/internal/ir"
)

// RunStatusRunning is stored for a run between BeginRun and FinishRun.
const RunStatusRunning = "running"

// RunStatusInterrupted replaces RunStatusRunning for runs that never
// finished, typically because the process died.
const RunStatusInterrupted = "interrupted"

// recoverInterruptedRuns closes run records left in the running state by a
// previous process and returns their ids, oldest first.
func recoverInterruptedRuns(ctx context.Context, j Journal, dep ir.DeploymentID, clock *Clock, logger *slog.Logger) ([]string, error) {
	runs, err := j.ListRuns(ctx, dep, 0)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	var interrupted []string
	for i := len(runs) - 1; i >= 0; i-- {
		run := runs[i]
		if run.Status != RunStatusRunning {
			continue
		}
		if err := j.FinishRun(ctx, run.RunID, RunStatusInterrupted, clock.Next()); err != nil {
			return nil, fmt.Errorf("close interrupted run %s: %w", run.RunID, err)
		}
		logger.Warn("previous run did not finish",
			"run_id", run.RunID,
			"deployment", dep.String(),
			"event", "run_interrupted",
		)
		interrupted = append(interrupted, run.RunID)
	}
	return interrupted, nil
}
