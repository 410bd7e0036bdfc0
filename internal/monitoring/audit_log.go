// Package monitoring - audit_log.go keeps the most recent interventions in memory.
//
// DESIGN: Bounded FIFO of AuditCapacity entries with copy-shift eviction.
// Append fans the entry out to:
//   - subscribers (live websocket feed), non-blocking; slow readers drop entries
//   - sinks (JSONL, SQLite archive), called after the lock is released
//
// Each append takes a ticket under mu; sink writes run in ticket order, so
// sinks see entries in the same order as the in-memory log.
package monitoring

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultAuditCapacity is the number of entries kept when NewAuditLog gets 0.
const DefaultAuditCapacity = 50

// AuditLog is a process-wide ring of intervention entries.
type AuditLog struct {
	mu       sync.RWMutex
	entries  []InterventionEntry
	capacity int

	subs    map[int]chan InterventionEntry
	nextSub int

	sinks    []AuditSink
	sinkMu   sync.Mutex
	sinkTurn *sync.Cond // signalled on sinkMu when sinkNext advances
	sinkNext uint64
	appended uint64 // next ticket, guarded by mu
	now      func() time.Time
}

// NewAuditLog creates an audit log. Pass no sinks for a memory-only log.
func NewAuditLog(capacity int, sinks ...AuditSink) *AuditLog {
	if capacity <= 0 {
		capacity = DefaultAuditCapacity
	}
	l := &AuditLog{
		entries:  make([]InterventionEntry, 0, capacity),
		capacity: capacity,
		subs:     make(map[int]chan InterventionEntry),
		sinks:    sinks,
		now:      time.Now,
	}
	l.sinkTurn = sync.NewCond(&l.sinkMu)
	return l
}

// Append stores entry, filling ID and Timestamp when empty, and returns the stored copy.
func (l *AuditLog) Append(entry InterventionEntry) InterventionEntry {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now().UTC()
	}

	l.mu.Lock()
	if len(l.entries) >= l.capacity {
		// Shift: drop oldest
		copy(l.entries, l.entries[1:])
		l.entries[len(l.entries)-1] = entry
	} else {
		l.entries = append(l.entries, entry)
	}
	for _, ch := range l.subs {
		select {
		case ch <- entry:
		default:
		}
	}
	sinks := l.sinks
	ticket := l.appended
	l.appended++
	l.mu.Unlock()

	if len(sinks) == 0 {
		return entry
	}

	l.sinkMu.Lock()
	for l.sinkNext != ticket {
		l.sinkTurn.Wait()
	}
	for _, s := range sinks {
		if err := s.Record(entry); err != nil {
			log.Warn().Err(err).Str("entry_id", entry.ID).Msg("audit: sink write failed")
		}
	}
	l.sinkNext++
	l.sinkTurn.Broadcast()
	l.sinkMu.Unlock()
	return entry
}

// Snapshot returns a copy of all entries, oldest first.
func (l *AuditLog) Snapshot() []InterventionEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]InterventionEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries held.
func (l *AuditLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// RecentForSession returns up to n entries for one session (newest first).
func (l *AuditLog) RecentForSession(sessionID string, n int) []InterventionEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 {
		return nil
	}
	var result []InterventionEntry
	for i := len(l.entries) - 1; i >= 0 && len(result) < n; i-- {
		if l.entries[i].SessionID == sessionID {
			result = append(result, l.entries[i])
		}
	}
	return result
}

// CountByReason tallies the held entries per reason.
func (l *AuditLog) CountByReason() map[Reason]int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[Reason]int)
	for _, e := range l.entries {
		out[e.Reason]++
	}
	return out
}

// Subscribe returns a channel receiving every subsequent entry and a cancel
// func that unregisters and closes it. buffer < 1 is treated as 1.
func (l *AuditLog) Subscribe(buffer int) (<-chan InterventionEntry, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan InterventionEntry, buffer)

	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = ch
	l.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			close(ch)
			l.mu.Unlock()
		})
	}
	return ch, cancel
}

// Subscribers returns the number of live subscriptions.
func (l *AuditLog) Subscribers() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subs)
}
