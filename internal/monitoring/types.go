// Package monitoring - types.go defines shared types.
//
// DESIGN: These types are used by interceptor/, gateway/ and store/.
// Defined here ONCE to avoid duplication and circular imports.
//
// TYPES:
//   - Reason:            Why the proxy intervened
//   - InterventionEntry: One immutable audit record
//   - AuditSink:         Secondary destination for audit records
package monitoring

import "time"

// =============================================================================
// INTERVENTION REASONS
// =============================================================================

// Reason identifies which detector intervened.
type Reason string

const (
	ReasonSemanticLoop     Reason = "semantic_loop"
	ReasonFuzzyLoop        Reason = "fuzzy_loop"
	ReasonDataLeak         Reason = "data_leak"
	ReasonEconomicThrottle Reason = "economic_throttle"
)

// Label returns the human-readable form used in logs and notices.
func (r Reason) Label() string {
	switch r {
	case ReasonSemanticLoop:
		return "Semantic Loop"
	case ReasonFuzzyLoop:
		return "Fuzzy Loop"
	case ReasonDataLeak:
		return "Data Leak"
	case ReasonEconomicThrottle:
		return "Economic Throttle"
	default:
		return string(r)
	}
}

// =============================================================================
// AUDIT RECORDS
// =============================================================================

// InterventionEntry is one audit record. Entries are never modified after Append.
type InterventionEntry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	SessionID  string    `json:"session_id"`
	RequestID  string    `json:"request_id,omitempty"`
	Model      string    `json:"model,omitempty"`
	Reason     Reason    `json:"reason"`
	Snippet    string    `json:"snippet"`
	SavingsUSD float64   `json:"estimated_savings_usd"`
}

// AuditSink receives every appended entry after the in-memory log is updated.
type AuditSink interface {
	Record(entry InterventionEntry) error
}
