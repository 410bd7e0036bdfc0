// Package session holds per-conversation interception state.
//
// DESIGN: A State is owned by the Registry and is only ever touched while the
// registry holds that session's mutex. State itself is not safe for
// concurrent use.
//
// Two detectors share the same sliding-window policy:
//   - semantic: adjacent embeddings must satisfy dot >= 1 - threshold
//   - fuzzy:    adjacent texts must satisfy Jaccard >= 1 - threshold
//
// Each detector appends to its own history. A turn with no embedding only
// advances the text window.
package session

import (
	"time"

	"github.com/mandyss10/Sentinel/internal/scorer"
)

// MaxHistory is the sliding window size for both histories.
const MaxHistory = 5

// Embedding is a vector returned by the embedding provider.
type Embedding []float32

// ThrottlePolicy parameterizes CheckEconomicThrottle.
type ThrottlePolicy struct {
	CeilingUSD      float64 `yaml:"ceiling_usd" validate:"gt=0"`
	SpikeMultiplier float64 `yaml:"spike_multiplier" validate:"gt=1"`
	SpikeFloorUSD   float64 `yaml:"spike_floor_usd" validate:"gte=0"`
}

// State is the mutable record for one session.
type State struct {
	ID string

	embeddingHistory []Embedding
	textHistory      []string

	cumulativeCost float64
	lastCost       float64
	interventions  int

	createdAt time.Time
	touchedAt time.Time
}

// Snapshot is a read-only copy of a session for the query interface.
type Snapshot struct {
	ID             string    `json:"session_id"`
	CumulativeCost float64   `json:"cumulative_cost"`
	LastCost       float64   `json:"last_cost"`
	Interventions  int       `json:"interventions"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivity   time.Time `json:"last_activity"`
}

func newState(id string, now time.Time) *State {
	return &State{
		ID:               id,
		embeddingHistory: make([]Embedding, 0, MaxHistory),
		textHistory:      make([]string, 0, MaxHistory),
		createdAt:        now,
		touchedAt:        now,
	}
}

// CheckSemanticLoop appends emb and reports whether the last turns embeddings
// are pairwise near-identical in sequence.
func (s *State) CheckSemanticLoop(emb Embedding, threshold float64, turns int) bool {
	s.embeddingHistory = pushBounded(s.embeddingHistory, emb)
	return windowLoops(s.embeddingHistory, threshold, turns, func(a, b Embedding) float64 {
		return scorer.VectorSimilarity(a, b)
	})
}

// CheckFuzzyLoop is CheckSemanticLoop over raw text with token overlap.
func (s *State) CheckFuzzyLoop(text string, threshold float64, turns int) bool {
	s.textHistory = pushBounded(s.textHistory, text)
	return windowLoops(s.textHistory, threshold, turns, scorer.TextOverlapSimilarity)
}

// CheckEconomicThrottle reports whether a turn costing current should be
// throttled. It does not mutate state; see CommitCost.
func (s *State) CheckEconomicThrottle(current float64, p ThrottlePolicy) bool {
	if s.cumulativeCost > p.CeilingUSD {
		return true
	}
	return s.lastCost > 0 && current > s.lastCost*p.SpikeMultiplier && current > p.SpikeFloorUSD
}

// CommitCost records a completed turn. Negative costs are treated as zero so
// cumulativeCost never decreases.
func (s *State) CommitCost(current float64) {
	if current < 0 {
		current = 0
	}
	s.cumulativeCost += current
	s.lastCost = current
}

// RecordIntervention bumps the intervention counter.
func (s *State) RecordIntervention() {
	s.interventions++
}

// CumulativeCost returns the running cost total.
func (s *State) CumulativeCost() float64 { return s.cumulativeCost }

// LastCost returns the most recently committed turn cost.
func (s *State) LastCost() float64 { return s.lastCost }

// Interventions returns the number of interventions in this session.
func (s *State) Interventions() int { return s.interventions }

// HistoryLen returns the embedding and text window lengths.
func (s *State) HistoryLen() (embeddings, texts int) {
	return len(s.embeddingHistory), len(s.textHistory)
}

// Snapshot returns a copy safe to hand out after the lock is released.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		ID:             s.ID,
		CumulativeCost: s.cumulativeCost,
		LastCost:       s.lastCost,
		Interventions:  s.interventions,
		CreatedAt:      s.createdAt,
		LastActivity:   s.touchedAt,
	}
}

// pushBounded appends v, dropping the oldest entry beyond MaxHistory.
func pushBounded[T any](h []T, v T) []T {
	if len(h) >= MaxHistory {
		copy(h, h[1:])
		h = h[:MaxHistory-1]
	}
	return append(h, v)
}

// windowLoops checks every adjacent pair of the last turns entries.
func windowLoops[T any](h []T, threshold float64, turns int, sim func(a, b T) float64) bool {
	if turns < 2 || len(h) < turns {
		return false
	}
	window := h[len(h)-turns:]
	bound := 1 - threshold
	for i := 0; i < len(window)-1; i++ {
		if sim(window[i], window[i+1]) < bound {
			return false
		}
	}
	return true
}
