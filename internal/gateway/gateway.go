// Package gateway is the HTTP shell around the interception pipeline.
//
// DESIGN: One net/http server, one goroutine per request. Routes:
//   - POST /v1/chat/completions   proxied through interceptor.Pipeline
//   - POST /mcp                   JSON-RPC 2.0 control plane
//   - GET  /stats, /v1/audit/*    the same queries over plain HTTP
//   - GET  /v1/audit/stream       websocket feed of new audit entries
//   - GET  /health, /metrics
//
// The gateway owns no interception state; everything it reports comes from
// the Pipeline (and the optional SQLite archive).
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/mandyss10/Sentinel/internal/config"
	"github.com/mandyss10/Sentinel/internal/interceptor"
	"github.com/mandyss10/Sentinel/internal/monitoring"
	"github.com/mandyss10/Sentinel/internal/store"
)

// ArchiveReader queries the durable intervention archive.
type ArchiveReader interface {
	Query(ctx context.Context, sessionID string, limit int) ([]monitoring.InterventionEntry, error)
	Totals(ctx context.Context) ([]store.ReasonCount, error)
}

// Options are the components the gateway serves.
type Options struct {
	Pipeline *interceptor.Pipeline // required
	Archive  ArchiveReader         // nil: /v1/audit/archive* return 404
	Gatherer prometheus.Gatherer   // nil: no /metrics
	Metrics  *monitoring.Metrics   // nil: /health omits uptime
}

// Gateway serves the proxy and its control plane.
type Gateway struct {
	cfg      *config.Config
	pipeline *interceptor.Pipeline
	archive  ArchiveReader
	gatherer prometheus.Gatherer
	metrics  *monitoring.Metrics

	handler http.Handler
	server  *http.Server

	// closing is closed on Shutdown so hijacked websocket handlers exit.
	closing   chan struct{}
	closeOnce sync.Once
	streams   sync.WaitGroup
}

// New builds a gateway. The server is not started.
func New(cfg *config.Config, opts Options) (*Gateway, error) {
	if cfg == nil {
		return nil, errors.New("gateway: nil config")
	}
	if opts.Pipeline == nil {
		return nil, errors.New("gateway: nil pipeline")
	}

	g := &Gateway{
		cfg:      cfg,
		pipeline: opts.Pipeline,
		archive:  opts.Archive,
		gatherer: opts.Gatherer,
		metrics:  opts.Metrics,
		closing:  make(chan struct{}),
	}
	g.handler = g.routes()
	g.server = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           g.handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: config.DefaultReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	return g, nil
}

// Handler returns the root handler, for tests and embedding.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/chat/completions", g.handleProxy)
	mux.HandleFunc("POST /mcp", g.handleMCP)

	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /stats", g.handleStats)
	mux.HandleFunc("GET /v1/audit/sessions/{id}", g.handleAuditSession)
	mux.HandleFunc("GET /v1/audit/logs", g.handleAuditLogs)
	mux.HandleFunc("GET /v1/audit/archive", g.handleAuditArchive)
	mux.HandleFunc("GET /v1/audit/archive/totals", g.handleArchiveTotals)
	mux.HandleFunc("GET /v1/audit/stream", g.handleAuditStream)

	if g.cfg.Metrics.Enabled && g.gatherer != nil {
		path := g.cfg.Metrics.Path
		if path == "" {
			path = config.DefaultMetricsPath
		}
		mux.Handle("GET "+path, promhttp.HandlerFor(g.gatherer, promhttp.HandlerOpts{}))
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.URL.Path = normalizeOpenAIPath(r.URL.Path)
		mux.ServeHTTP(w, r)
	})
}

// Start listens until Shutdown is called.
func (g *Gateway) Start() error {
	log.Info().Str("addr", g.server.Addr).Msg("sentinel listening")
	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, closes live audit streams and waits for
// in-flight requests until ctx expires.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.closeOnce.Do(func() { close(g.closing) })

	err := g.server.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		g.streams.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}
