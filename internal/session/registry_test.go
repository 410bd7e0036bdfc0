package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestRegistry_LazyCreateAndLookup(t *testing.T) {
	r := NewRegistry(8)

	_, ok := r.Lookup("missing")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len(), "lookup must not create sessions")

	r.With("a", func(s *State) { s.CommitCost(0.2) })
	r.With("a", func(s *State) { s.RecordIntervention() })

	snap, ok := r.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, 0.2, snap.CumulativeCost)
	assert.Equal(t, 1, snap.Interventions)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_ConcurrentSameSession(t *testing.T) {
	r := NewRegistry(0)

	const workers = 50
	const perWorker = 100
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				r.With("shared", func(s *State) {
					s.CommitCost(0.001)
					s.RecordIntervention()
				})
			}
		}()
	}
	wg.Wait()

	snap, ok := r.Lookup("shared")
	require.True(t, ok)
	assert.Equal(t, workers*perWorker, snap.Interventions)
	assert.InDelta(t, float64(workers*perWorker)*0.001, snap.CumulativeCost, 1e-6)
}

func TestRegistry_ConcurrentDistinctSessions(t *testing.T) {
	r := NewRegistry(4)

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.With(fmt.Sprintf("s-%d", i), func(s *State) { s.RecordIntervention() })
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 200, r.Len())
	assert.Equal(t, 200, r.TotalInterventions())
}

func TestRegistry_Sweep(t *testing.T) {
	r := NewRegistry(4)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	r.With("old", func(*State) {})
	now = now.Add(10 * time.Minute)
	r.With("fresh", func(*State) {})

	removed := r.Sweep(5 * time.Minute)
	assert.Equal(t, 1, removed)

	_, ok := r.Lookup("old")
	assert.False(t, ok)
	_, ok = r.Lookup("fresh")
	assert.True(t, ok)

	// A swept id starts over with a fresh state.
	r.With("old", func(s *State) { assert.Equal(t, 0.0, s.CumulativeCost()) })
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_SweeperStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := NewRegistry(4)
	r.StartSweeper(time.Hour, 10*time.Millisecond)
	r.StartSweeper(time.Hour, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	r.Stop()
	r.Stop()
}

func TestRegistry_SweeperDisabled(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := NewRegistry(4)
	r.StartSweeper(0, time.Millisecond)
	r.Stop()
}
