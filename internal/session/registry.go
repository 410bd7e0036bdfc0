package session

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
)

// DefaultShards is used when NewRegistry is given a non-positive shard count.
const DefaultShards = 64

// Registry maps session ids to State.
//
// DESIGN: Lock-striped. A shard lock guards only the id→entry map and is held
// for a map lookup; the per-entry mutex guards the State itself. Two requests
// for different sessions never contend on a State lock, and requests in the
// same session serialize on exactly one mutex.
type Registry struct {
	shards []registryShard
	now    func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

type registryShard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	mu      sync.Mutex
	state   *State
	deleted bool
}

// NewRegistry creates an empty registry with the given number of shards.
func NewRegistry(shards int) *Registry {
	if shards <= 0 {
		shards = DefaultShards
	}
	r := &Registry{
		shards: make([]registryShard, shards),
		now:    time.Now,
	}
	for i := range r.shards {
		r.shards[i].entries = make(map[string]*entry)
	}
	return r
}

func (r *Registry) shardFor(id string) *registryShard {
	return &r.shards[xxhash.Sum64String(id)%uint64(len(r.shards))]
}

// With runs fn with exclusive access to the session's State, creating it on
// first use. fn must not block on I/O.
func (r *Registry) With(id string, fn func(*State)) {
	for {
		e := r.getOrCreate(id)
		e.mu.Lock()
		if e.deleted {
			// Swept between lookup and lock; retry against a fresh entry.
			e.mu.Unlock()
			continue
		}
		e.state.touchedAt = r.now()
		fn(e.state)
		e.mu.Unlock()
		return
	}
}

func (r *Registry) getOrCreate(id string) *entry {
	sh := r.shardFor(id)

	sh.mu.RLock()
	e, ok := sh.entries[id]
	sh.mu.RUnlock()
	if ok {
		return e
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e, ok := sh.entries[id]; ok {
		return e
	}
	e = &entry{state: newState(id, r.now())}
	sh.entries[id] = e
	return e
}

// Lookup returns a snapshot of an existing session without creating one.
func (r *Registry) Lookup(id string) (Snapshot, bool) {
	sh := r.shardFor(id)
	sh.mu.RLock()
	e, ok := sh.entries[id]
	sh.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return Snapshot{}, false
	}
	return e.state.Snapshot(), true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}

// Range calls fn with a snapshot of every session. Order is unspecified.
func (r *Registry) Range(fn func(Snapshot)) {
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.RLock()
		entries := make([]*entry, 0, len(sh.entries))
		for _, e := range sh.entries {
			entries = append(entries, e)
		}
		sh.mu.RUnlock()

		for _, e := range entries {
			e.mu.Lock()
			if !e.deleted {
				snap := e.state.Snapshot()
				e.mu.Unlock()
				fn(snap)
				continue
			}
			e.mu.Unlock()
		}
	}
}

// TotalInterventions sums intervention counts across sessions.
func (r *Registry) TotalInterventions() int {
	total := 0
	r.Range(func(s Snapshot) { total += s.Interventions })
	return total
}

// =============================================================================
// IDLE EXPIRY
// =============================================================================

// StartSweeper removes sessions idle for longer than ttl, checking every interval.
// Calling it more than once, or with a non-positive ttl, is a no-op.
func (r *Registry) StartSweeper(ttl, interval time.Duration) {
	if ttl <= 0 || r.stopCh != nil {
		return
	}
	if interval <= 0 {
		interval = ttl / 2
	}
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})

	go func() {
		defer close(r.doneCh)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				if n := r.Sweep(ttl); n > 0 {
					log.Debug().Int("removed", n).Dur("idle_ttl", ttl).Msg("session sweeper: removed idle sessions")
				}
			}
		}
	}()
}

// Sweep removes every session untouched for longer than ttl and returns the count.
func (r *Registry) Sweep(ttl time.Duration) int {
	cutoff := r.now().Add(-ttl)
	removed := 0
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.Lock()
		for id, e := range sh.entries {
			// TryLock skips sessions with a request in flight; they are not idle.
			if !e.mu.TryLock() {
				continue
			}
			if e.state.touchedAt.Before(cutoff) {
				e.deleted = true
				delete(sh.entries, id)
				removed++
			}
			e.mu.Unlock()
		}
		sh.mu.Unlock()
	}
	return removed
}

// Stop halts the sweeper goroutine, if running, and waits for it to exit.
func (r *Registry) Stop() {
	if r.stopCh == nil {
		return
	}
	r.stopOnce.Do(func() {
		close(r.stopCh)
		<-r.doneCh
	})
}
