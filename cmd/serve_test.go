package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mandyss10/Sentinel/internal/config"
)

func TestLoadConfig_DefaultsWithoutFile(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultPort, cfg.Server.Port)
	assert.Equal(t, "none", cfg.Embedding.Provider)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 4100\npolicy:\n  throttle:\n    ceiling_usd: 2.5\n"), 0600))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 4100, cfg.Server.Port)
	assert.InDelta(t, 2.5, cfg.Policy.Throttle.CeilingUSD, 1e-9)
}

func TestBuildServer_WiresEverything(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Audit.ArchivePath = filepath.Join(dir, "audit.db")
	cfg.Audit.JSONLPath = filepath.Join(dir, "audit.jsonl")
	cfg.Pricing.Estimator = "heuristic"

	srv, err := buildServer(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { require.NoError(t, srv.Close()) }()

	ts := httptest.NewServer(srv.gateway.Handler())
	defer ts.Close()

	for _, path := range []string{"/health", "/stats", "/v1/audit/logs", "/v1/audit/archive", "/v1/audit/archive/totals", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err, path)
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
	assert.FileExists(t, cfg.Audit.JSONLPath)
}

func TestBuildServer_BadRoute(t *testing.T) {
	cfg := config.Default()
	cfg.Upstream.DefaultProvider = "missing"

	_, err := buildServer(context.Background(), cfg)
	assert.Error(t, err)
}

func TestSetupLogging_File(t *testing.T) {
	orig := log.Logger
	t.Cleanup(func() { log.Logger = orig })

	path := filepath.Join(t.TempDir(), "sentinel.log")
	closer, err := setupLogging(config.LoggingConfig{Level: "info", Format: "json", Output: path}, false)
	require.NoError(t, err)

	log.Info().Str("k", "v").Msg("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
	assert.Contains(t, string(data), `"k":"v"`)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, out.String(), "sentinel "+Version)
}
