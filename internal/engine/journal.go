package engine

import (
	"context"

	"github.com/roach88/ignis/internal/ir"
)

// Journal is the durable record the engine reads and writes.
// Implemented by store.Store (SQLite) and pgstore.Store (PostgreSQL).
//
// Put must not return until the entry is durable. The engine never retries
// a failed Put.
type Journal interface {
	Get(ctx context.Context, dep ir.DeploymentID, key string) (ir.JournalEntry, bool, error)
	Put(ctx context.Context, e ir.JournalEntry) error
	ListAll(ctx context.Context, dep ir.DeploymentID) ([]ir.JournalEntry, error)
	MaxSeq(ctx context.Context, dep ir.DeploymentID) (int64, error)

	BeginRun(ctx context.Context, run ir.RunRecord) error
	FinishRun(ctx context.Context, runID, status string, finishedSeq int64) error
	ListRuns(ctx context.Context, dep ir.DeploymentID, limit int) ([]ir.RunRecord, error)
}
