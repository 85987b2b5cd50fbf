package engine

import "sync"

// DispatchGuard enforces at-most-once dispatch per action per run.
//
// The coordinator consults the guard before handing an action to a
// worker. A second dispatch of the same action in the same run would call
// the executor twice for one journal attempt, so it is reported as an
// *InvariantError instead of being executed.
//
// CRITICAL DISTINCTION from the journal:
//   - Journal (persistent): "Has this action ever succeeded?" (skip/retry)
//   - Guard (in-memory): "Was this action already dispatched in this run?"
type DispatchGuard struct {
	mu      sync.Mutex
	history map[string]map[string]bool // map[run_id]map[action_id]bool
}

// NewDispatchGuard creates an empty guard.
func NewDispatchGuard() *DispatchGuard {
	return &DispatchGuard{
		history: make(map[string]map[string]bool),
	}
}

// WouldRedispatch reports whether actionID was already dispatched in runID.
func (g *DispatchGuard) WouldRedispatch(runID, actionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.history[runID] == nil {
		return false
	}
	return g.history[runID][actionID]
}

// Record marks actionID as dispatched in runID.
func (g *DispatchGuard) Record(runID, actionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.history[runID] == nil {
		g.history[runID] = make(map[string]bool)
	}
	g.history[runID][actionID] = true
}

// Clear drops the history of a finished run.
func (g *DispatchGuard) Clear(runID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.history, runID)
}

// RunSize returns the number of actions recorded for a run.
func (g *DispatchGuard) RunSize(runID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.history[runID])
}
