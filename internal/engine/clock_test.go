package engine

import (
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClock_StartsAtZero(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
}

func TestClock_ResumesAfterJournalMax(t *testing.T) {
	// The engine seeds the clock with the journal's MaxSeq; the first write
	// of the new run must land strictly after it.
	c := NewClockAt(41)
	assert.Equal(t, int64(41), c.Current())
	assert.Equal(t, int64(42), c.Next())
	assert.Equal(t, int64(43), c.Next())
	assert.Equal(t, int64(43), c.Current())
}

func TestClock_ConcurrentWorkersGetDistinctSeqs(t *testing.T) {
	c := NewClockAt(10)
	const workers = 16
	const writes = 250

	var mu sync.Mutex
	var all []int64
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int64, 0, writes)
			for range writes {
				local = append(local, c.Next())
			}
			// Each worker observes its own writes in increasing order.
			assert.True(t, slices.IsSorted(local))
			mu.Lock()
			all = append(all, local...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, all, workers*writes)
	slices.Sort(all)
	assert.Equal(t, int64(11), all[0])
	assert.Equal(t, int64(10+workers*writes), all[len(all)-1])
	assert.Len(t, slices.Compact(all), workers*writes, "no seq handed out twice")
	assert.Equal(t, int64(10+workers*writes), c.Current())
}
