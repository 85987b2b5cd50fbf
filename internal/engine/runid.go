package engine

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// RunIDGenerator names orchestrator runs. Every journal write of a run
// carries its id. Implemented by UUIDv7Generator (production),
// FixedGenerator and SequentialGenerator (tests).
type RunIDGenerator interface {
	Generate() string
}

// UUIDv7Generator is the default generator. Its ids sort by creation
// time, so runs of a deployment list in the order they began. Safe for
// concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator hands out a fixed list of run ids, one per Deploy. A test
// that deploys more often than it planned for panics.
type FixedGenerator struct {
	mu   sync.Mutex
	ids  []string
	next int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next id.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.next == len(g.ids) {
		panic(fmt.Sprintf("FixedGenerator: only %d run id(s) configured", len(g.ids)))
	}
	id := g.ids[g.next]
	g.next++
	return id
}

// SequentialGenerator returns "<prefix>-1", "<prefix>-2", ... without limit.
// Used by the scenario harness where the number of runs is data driven.
type SequentialGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialGenerator creates a generator with the given prefix.
func NewSequentialGenerator(prefix string) *SequentialGenerator {
	return &SequentialGenerator{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
