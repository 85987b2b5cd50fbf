package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/ignis/internal/ir"
)

var testDeployment = ir.DeploymentID{Module: "TokenModule", Environment: "sepolia"}

// createTestStore creates a fresh store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestEntry creates an entry with minimal required fields.
func createTestEntry(actionID string, status ir.Status, attempt, seq int64) ir.JournalEntry {
	e := ir.JournalEntry{
		Deployment:     testDeployment,
		IdempotencyKey: ir.MustIdempotencyKey(actionID, testDeployment),
		ActionID:       actionID,
		Kind:           ir.KindDeployInstance,
		Dependencies:   []string{},
		InputsHash:     "inputs",
		Status:         status,
		Attempt:        attempt,
		RunID:          "run-1",
		Seq:            seq,
	}
	switch status {
	case ir.StatusSuccess:
		e.Result = ir.Object{"address": ir.String("0x1")}
	case ir.StatusFailed:
		e.Error = &ir.ActionError{Kind: ir.ErrorKindExecution, Message: "reverted"}
	}
	return e
}
