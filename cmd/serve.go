package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mandyss10/Sentinel/internal/config"
	"github.com/mandyss10/Sentinel/internal/costcontrol"
	"github.com/mandyss10/Sentinel/internal/embedding"
	"github.com/mandyss10/Sentinel/internal/gateway"
	"github.com/mandyss10/Sentinel/internal/interceptor"
	"github.com/mandyss10/Sentinel/internal/monitoring"
	"github.com/mandyss10/Sentinel/internal/session"
	"github.com/mandyss10/Sentinel/internal/store"
	"github.com/mandyss10/Sentinel/internal/upstream"
	"github.com/mandyss10/Sentinel/internal/utils"
)

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the proxy server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cfgFile)
		if err != nil {
			return err
		}
		if portFlag > 0 {
			cfg.Server.Port = portFlag
		}

		logCloser, err := setupLogging(cfg.Logging, debugFlag)
		if err != nil {
			return err
		}
		defer func() { _ = logCloser.Close() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&portFlag, "port", "p", 0, "listen port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

// server is everything serve builds from a Config.
type server struct {
	gateway  *gateway.Gateway
	registry *session.Registry
	closers  []io.Closer
}

// Close releases the sweeper and audit sinks.
func (s *server) Close() error {
	s.registry.Stop()
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// buildServer wires the pipeline and gateway from cfg.
func buildServer(ctx context.Context, cfg *config.Config) (*server, error) {
	srv := &server{registry: session.NewRegistry(cfg.Sessions.Shards)}

	var sinks []monitoring.AuditSink
	var archive *store.Archive
	if cfg.Audit.ArchivePath != "" {
		a, err := store.Open(cfg.Audit.ArchivePath)
		if err != nil {
			return nil, fmt.Errorf("opening audit archive: %w", err)
		}
		archive = a
		sinks = append(sinks, a)
		srv.closers = append(srv.closers, a)
	}
	if cfg.Audit.JSONLPath != "" {
		j, err := monitoring.NewJSONLSink(cfg.Audit.JSONLPath)
		if err != nil {
			_ = srv.Close()
			return nil, err
		}
		sinks = append(sinks, j)
		srv.closers = append(srv.closers, j)
	}

	audit := monitoring.NewAuditLog(config.AuditCapacity, sinks...)
	savings := monitoring.NewSavingsCounter()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg, savings.TotalUSD, srv.registry.Len)

	router, err := newRouter(cfg.Upstream)
	if err != nil {
		_ = srv.Close()
		return nil, err
	}

	embedder, err := embedding.New(ctx, embedding.Config{
		Provider: cfg.Embedding.Provider,
		Endpoint: cfg.Embedding.Endpoint,
		Model:    cfg.Embedding.Model,
		APIKey:   cfg.Embedding.APIKey,
		Timeout:  cfg.Embedding.Timeout,
	})
	if err != nil {
		_ = srv.Close()
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	deps := interceptor.Deps{
		Registry:  srv.registry,
		Audit:     audit,
		Savings:   savings,
		Chat:      upstream.NewClient(router, upstream.WithMaxResponseSize(config.MaxResponseSize)),
		Pricer:    costcontrol.NewPricer(cfg.Pricing),
		Policy:    interceptor.PolicyFromConfig(cfg.Policy),
		Estimator: costcontrol.NewEstimator(cfg.Pricing.Estimator),
		Metrics:   metrics,
		Spend:     costcontrol.NewTracker(),
	}
	if _, none := embedder.(embedding.None); !none {
		deps.Embedder = embedder
	}

	pipeline, err := interceptor.New(deps)
	if err != nil {
		_ = srv.Close()
		return nil, err
	}

	opts := gateway.Options{Pipeline: pipeline, Gatherer: reg, Metrics: metrics}
	if archive != nil {
		opts.Archive = archive
	}
	gw, err := gateway.New(cfg, opts)
	if err != nil {
		_ = srv.Close()
		return nil, err
	}
	srv.gateway = gw

	if cfg.Sessions.IdleTTL > 0 {
		srv.registry.StartSweeper(cfg.Sessions.IdleTTL, config.DefaultSweepInterval)
	}

	log.Info().
		Str("embedding", embedder.Name()).
		Strs("providers", router.Providers()).
		Str("default_provider", cfg.Upstream.DefaultProvider).
		Str("archive", cfg.Audit.ArchivePath).
		Dur("idle_ttl", cfg.Sessions.IdleTTL).
		Msg("sentinel configured")
	return srv, nil
}

func newRouter(c config.UpstreamConfig) (*upstream.Router, error) {
	providers := make([]upstream.Provider, 0, len(c.Providers))
	for name, p := range c.Providers {
		providers = append(providers, upstream.Provider{
			Name:     name,
			Endpoint: p.Endpoint,
			APIKey:   p.APIKey,
			Timeout:  p.Timeout,
		})
		log.Debug().Str("provider", name).Str("endpoint", p.Endpoint).Str("api_key", utils.MaskKey(p.APIKey)).Msg("upstream provider")
	}
	routes := make([]upstream.Route, 0, len(c.Routes))
	for _, r := range c.Routes {
		routes = append(routes, upstream.Route{ModelPrefix: r.ModelPrefix, Provider: r.Provider})
	}
	router, err := upstream.NewRouter(providers, routes, c.DefaultProvider)
	if err != nil {
		return nil, fmt.Errorf("configuring upstream: %w", err)
	}
	return router, nil
}

// runServe serves until ctx is cancelled, then shuts down gracefully.
func runServe(ctx context.Context, cfg *config.Config) error {
	srv, err := buildServer(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			log.Warn().Err(err).Msg("closing resources")
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.gateway.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.DefaultShutdownTimeout)
		defer cancel()
		return srv.gateway.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
