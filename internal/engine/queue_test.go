package engine

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ignis/internal/ir"
)

func TestOutcomeQueue_EnqueueDequeue(t *testing.T) {
	q := newOutcomeQueue()

	ok := q.Enqueue(outcome{ActionID: "M#a", Status: ir.StatusSuccess})
	require.True(t, ok, "enqueue should succeed")

	got, ok := q.TryDequeue()
	require.True(t, ok, "dequeue should succeed")
	assert.Equal(t, "M#a", got.ActionID)
	assert.Equal(t, ir.StatusSuccess, got.Status)
}

func TestOutcomeQueue_FIFO(t *testing.T) {
	q := newOutcomeQueue()

	for _, id := range []string{"A", "B", "C"} {
		q.Enqueue(outcome{ActionID: id})
	}

	for _, want := range []string{"A", "B", "C"} {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, got.ActionID)
	}
}

func TestOutcomeQueue_TryDequeue_Empty(t *testing.T) {
	q := newOutcomeQueue()

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestOutcomeQueue_WaitSignals(t *testing.T) {
	q := newOutcomeQueue()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Enqueue(outcome{ActionID: "late"})
	}()

	select {
	case <-q.Wait():
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, "late", got.ActionID)
	case <-time.After(time.Second):
		t.Fatal("wait did not signal")
	}
}

func TestOutcomeQueue_CloseWakesWaiters(t *testing.T) {
	q := newOutcomeQueue()
	q.Close()

	select {
	case <-q.Wait():
	case <-time.After(100 * time.Millisecond):
		t.Fatal("wait did not unblock after close")
	}

	assert.False(t, q.Enqueue(outcome{ActionID: "after-close"}), "enqueue after close should return false")
	q.Close() // second close is a no-op
}

func TestOutcomeQueue_Len(t *testing.T) {
	q := newOutcomeQueue()
	assert.Equal(t, 0, q.Len())

	q.Enqueue(outcome{ActionID: "1"})
	q.Enqueue(outcome{ActionID: "2"})
	assert.Equal(t, 2, q.Len())

	q.TryDequeue()
	assert.Equal(t, 1, q.Len())
}

func TestOutcomeQueue_ConcurrentProducers(t *testing.T) {
	q := newOutcomeQueue()

	const producers = 10
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(outcome{ActionID: fmt.Sprintf("%d-%d", p, i)})
			}
		}(p)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for {
		o, ok := q.TryDequeue()
		if !ok {
			break
		}
		seen[o.ActionID] = true
	}
	assert.Len(t, seen, producers*perProducer)
}
