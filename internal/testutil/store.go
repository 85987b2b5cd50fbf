package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/ignis/internal/ir"
	"github.com/roach88/ignis/internal/store"
)

// OpenStore opens a fresh SQLite journal in a temp dir, closed on cleanup.
func OpenStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// PutRecord is one journal write observed by FaultyJournal.
type PutRecord struct {
	ActionID string
	Status   ir.Status
	Attempt  int64
}

func (p PutRecord) String() string {
	return fmt.Sprintf("%s %s #%d", p.ActionID, p.Status, p.Attempt)
}

// FaultyJournal wraps a store, records every Put and fails the Puts it is
// told to. A failed Put never reaches the store, which models a process
// that died before the write committed.
//
// Thread-safety: safe for concurrent use.
type FaultyJournal struct {
	*store.Store

	mu    sync.Mutex
	puts  []PutRecord
	fails map[string]ir.Status // action id -> status whose write fails
}

// NewFaultyJournal wraps s.
func NewFaultyJournal(s *store.Store) *FaultyJournal {
	return &FaultyJournal{Store: s, fails: make(map[string]ir.Status)}
}

// FailPut makes the write of status for actionID fail. A terminal status
// fails either terminal write.
func (j *FaultyJournal) FailPut(actionID string, status ir.Status) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fails[actionID] = status
}

// Heal removes every injected failure.
func (j *FaultyJournal) Heal() {
	j.mu.Lock()
	defer j.mu.Unlock()
	clear(j.fails)
}

// Put records e and forwards it unless a failure was injected.
func (j *FaultyJournal) Put(ctx context.Context, e ir.JournalEntry) error {
	j.mu.Lock()
	j.puts = append(j.puts, PutRecord{ActionID: e.ActionID, Status: e.Status, Attempt: e.Attempt})
	status, fail := j.fails[e.ActionID]
	j.mu.Unlock()

	if fail && (status == e.Status || (status.IsTerminal() && e.Status.IsTerminal())) {
		return fmt.Errorf("injected write failure for %s (%s)", e.ActionID, e.Status)
	}
	return j.Store.Put(ctx, e)
}

// Puts returns the writes seen so far, in call order.
func (j *FaultyJournal) Puts() []PutRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]PutRecord, len(j.puts))
	copy(out, j.puts)
	return out
}

// PutsFor returns the writes for one action, in call order.
func (j *FaultyJournal) PutsFor(actionID string) []ir.Status {
	var out []ir.Status
	for _, p := range j.Puts() {
		if p.ActionID == actionID {
			out = append(out, p.Status)
		}
	}
	return out
}
