// Package gateway - stats.go exposes the query interface over plain HTTP.
//
// GET /stats, /v1/audit/sessions/{id} and /v1/audit/logs return the same
// payloads as the JSON-RPC methods get_sentinel_stats, audit_session and
// recent_logs. /v1/audit/archive/totals aggregates the SQLite archive, which
// outlives the 50-entry in-memory log.
package gateway

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/mandyss10/Sentinel/internal/monitoring"
	"github.com/mandyss10/Sentinel/internal/store"
)

// LogsResponse wraps audit entries.
type LogsResponse struct {
	Entries []monitoring.InterventionEntry `json:"entries"`
}

// TotalsResponse is the archive aggregate by reason.
type TotalsResponse struct {
	Reasons       []store.ReasonCount `json:"reasons"`
	Interventions int                 `json:"interventions"`
	TotalSavedUSD float64             `json:"total_saved_usd"`
}

func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, g.pipeline.Stats())
}

func (g *Gateway) handleAuditSession(w http.ResponseWriter, r *http.Request) {
	audit, ok := g.pipeline.AuditSession(r.PathValue("id"))
	if !ok {
		g.writeError(w, "session not found", http.StatusNotFound)
		return
	}
	g.writeJSON(w, audit)
}

func (g *Gateway) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, LogsResponse{Entries: g.pipeline.RecentLogs()})
}

// handleAuditArchive reads the SQLite archive, newest first.
func (g *Gateway) handleAuditArchive(w http.ResponseWriter, r *http.Request) {
	if g.archive == nil {
		g.writeError(w, "audit archive is not enabled", http.StatusNotFound)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			g.writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := g.archive.Query(r.Context(), r.URL.Query().Get("session_id"), limit)
	if err != nil {
		log.Error().Err(err).Msg("archive query failed")
		g.writeError(w, "archive query failed", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []monitoring.InterventionEntry{}
	}
	g.writeJSON(w, LogsResponse{Entries: entries})
}

func (g *Gateway) handleArchiveTotals(w http.ResponseWriter, r *http.Request) {
	if g.archive == nil {
		g.writeError(w, "audit archive is not enabled", http.StatusNotFound)
		return
	}

	totals, err := g.archive.Totals(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("archive totals failed")
		g.writeError(w, "archive query failed", http.StatusInternalServerError)
		return
	}

	resp := TotalsResponse{Reasons: totals}
	if resp.Reasons == nil {
		resp.Reasons = []store.ReasonCount{}
	}
	for _, rc := range totals {
		resp.Interventions += rc.Count
		resp.TotalSavedUSD += rc.SavingsUSD
	}
	g.writeJSON(w, resp)
}
