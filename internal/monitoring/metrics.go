// Package monitoring - metrics.go exports Prometheus metrics.
//
// DESIGN: Counters are incremented by the pipeline; gauges that mirror state
// owned elsewhere (savings, active sessions) are GaugeFuncs read at scrape time.
//   - requests_total{outcome}:          forwarded, blocked, rewritten, upstream_error
//   - interventions_total{reason}:      one per audit entry
//   - upstream_duration_seconds{provider}
//   - embedding_failures_total
//   - saved_usd, active_sessions, uptime_seconds
package monitoring

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "sentinel"

// Request outcomes used as the requests_total label.
const (
	OutcomeForwarded     = "forwarded"
	OutcomeBlocked       = "blocked"
	OutcomeRewritten     = "rewritten"
	OutcomeUpstreamError = "upstream_error"
)

// Metrics holds all Prometheus metrics for Sentinel.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	startedAt time.Time

	RequestsTotal      *prometheus.CounterVec
	InterventionsTotal *prometheus.CounterVec
	UpstreamDuration   *prometheus.HistogramVec
	EmbeddingFailures  prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
// savedUSD and activeSessions are sampled on every scrape.
func NewMetrics(reg prometheus.Registerer, savedUSD func() float64, activeSessions func() int) *Metrics {
	m := &Metrics{
		startedAt: time.Now(),
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "requests_total",
				Help:      "Chat completion requests by outcome",
			},
			[]string{"outcome"},
		),
		InterventionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "interventions_total",
				Help:      "Interventions by reason",
			},
			[]string{"reason"},
		),
		UpstreamDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "upstream_duration_seconds",
				Help:      "Upstream chat completion latency",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"provider"},
		),
		EmbeddingFailures: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "embedding_failures_total",
				Help:      "Embedding calls that failed and fell back to fuzzy matching",
			},
		),
	}

	promauto.With(reg).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "saved_usd",
			Help:      "Estimated USD saved by interventions since start",
		},
		savedUSD,
	)
	promauto.With(reg).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_sessions",
			Help:      "Sessions currently held in the registry",
		},
		func() float64 { return float64(activeSessions()) },
	)
	promauto.With(reg).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the proxy started",
		},
		func() float64 { return time.Since(m.startedAt).Seconds() },
	)
	return m
}

// RecordRequest counts one chat request.
func (m *Metrics) RecordRequest(outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
}

// RecordIntervention counts one audit entry.
func (m *Metrics) RecordIntervention(r Reason) {
	if m == nil {
		return
	}
	m.InterventionsTotal.WithLabelValues(string(r)).Inc()
}

// ObserveUpstream records one upstream round trip.
func (m *Metrics) ObserveUpstream(provider string, d time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordEmbeddingFailure counts a failed embedding call.
func (m *Metrics) RecordEmbeddingFailure() {
	if m == nil {
		return
	}
	m.EmbeddingFailures.Inc()
}

// StartedAt returns when the metrics were created.
func (m *Metrics) StartedAt() time.Time {
	if m == nil {
		return time.Time{}
	}
	return m.startedAt
}

// Uptime returns a human-readable uptime.
func (m *Metrics) Uptime() string {
	if m == nil {
		return ""
	}
	return formatDuration(time.Since(m.startedAt))
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
