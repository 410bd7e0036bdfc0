package interceptor

import (
	"github.com/mandyss10/Sentinel/internal/costcontrol"
	"github.com/mandyss10/Sentinel/internal/monitoring"
)

// StatusHealthy is the only status the stats payload reports.
const StatusHealthy = "Healthy"

// Stats is the control-plane summary.
//
// InterventionsByReason covers only the entries still held in the audit log;
// TotalInterventions counts every intervention since start.
type Stats struct {
	ActiveSessions        int                       `json:"active_sessions"`
	TotalSavedUSD         float64                   `json:"total_saved_usd"`
	TotalInterventions    int                       `json:"total_interventions"`
	Status                string                    `json:"status"`
	InterventionsByReason map[monitoring.Reason]int `json:"interventions_by_reason"`
	TotalSpendUSD         float64                   `json:"total_spend_usd"`
	SpendByModel          []costcontrol.ModelSpend  `json:"spend_by_model,omitempty"`
}

// SessionAudit is the per-session view returned by AuditSession.
type SessionAudit struct {
	SessionID      string                         `json:"session_id"`
	CumulativeCost float64                        `json:"cumulative_cost"`
	Interventions  int                            `json:"interventions"`
	Recent         []monitoring.InterventionEntry `json:"recent,omitempty"`
}

// recentPerSession bounds SessionAudit.Recent.
const recentPerSession = 10

// Stats returns process-wide counters.
func (p *Pipeline) Stats() Stats {
	stats := Stats{
		ActiveSessions:        p.registry.Len(),
		TotalSavedUSD:         p.TotalSavings(),
		TotalInterventions:    p.registry.TotalInterventions(),
		Status:                StatusHealthy,
		InterventionsByReason: p.audit.CountByReason(),
	}
	if p.spend != nil {
		stats.TotalSpendUSD = p.spend.GlobalCost()
		stats.SpendByModel = p.spend.ByModel()
	}
	return stats
}

// AuditSession returns one session's totals. found is false for sessions
// never seen or already swept.
func (p *Pipeline) AuditSession(id string) (SessionAudit, bool) {
	snap, ok := p.registry.Lookup(id)
	if !ok {
		return SessionAudit{}, false
	}
	return SessionAudit{
		SessionID:      snap.ID,
		CumulativeCost: snap.CumulativeCost,
		Interventions:  snap.Interventions,
		Recent:         p.audit.RecentForSession(id, recentPerSession),
	}, true
}

// RecentLogs returns the in-memory audit log, oldest first.
func (p *Pipeline) RecentLogs() []monitoring.InterventionEntry {
	return p.audit.Snapshot()
}

// TotalSavings converts the fixed-point counter (micro-dollars) to USD.
func (p *Pipeline) TotalSavings() float64 {
	return p.savings.TotalUSD()
}

// Audit exposes the log for live subscribers.
func (p *Pipeline) Audit() *monitoring.AuditLog {
	return p.audit
}
