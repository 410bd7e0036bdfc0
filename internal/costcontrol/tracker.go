package costcontrol

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Tracker accumulates upstream spend across all sessions.
type Tracker struct {
	mu      sync.RWMutex
	byModel map[string]*ModelSpend

	// Stored as cost * 1e9 (nano-dollars) to use atomic int64 ops
	globalCostNano int64
}

// NewTracker creates an empty spend tracker.
func NewTracker() *Tracker {
	return &Tracker{byModel: make(map[string]*ModelSpend)}
}

// RecordCost adds one priced turn. Non-positive costs still count the request.
func (t *Tracker) RecordCost(model string, cost float64) {
	if cost > 0 {
		atomic.AddInt64(&t.globalCostNano, int64(cost*1e9))
	} else {
		cost = 0
	}

	if model == "" {
		model = "unknown"
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.byModel[model]
	if !ok {
		s = &ModelSpend{Model: model}
		t.byModel[model] = s
	}
	s.CostUSD += cost
	s.RequestCount++
}

// GlobalCost returns total accumulated cost across all sessions.
func (t *Tracker) GlobalCost() float64 {
	return float64(atomic.LoadInt64(&t.globalCostNano)) / 1e9
}

// ByModel returns per-model spend, highest cost first.
func (t *Tracker) ByModel() []ModelSpend {
	t.mu.RLock()
	out := make([]ModelSpend, 0, len(t.byModel))
	for _, s := range t.byModel {
		out = append(out, *s)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CostUSD != out[j].CostUSD {
			return out[i].CostUSD > out[j].CostUSD
		}
		return out[i].Model < out[j].Model
	})
	return out
}
