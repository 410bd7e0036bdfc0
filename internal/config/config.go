// Package config - config.go defines the Sentinel configuration and its loaders.
//
// DESIGN: One YAML document configures the whole proxy. Values may reference
// environment variables as ${VAR} or ${VAR:-default}; .env files are loaded
// first so secrets never have to live in the YAML itself.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the top-level configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Policy    PolicyConfig    `yaml:"policy"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Audit     AuditConfig     `yaml:"audit"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port" validate:"gte=1,lte=65535"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// UpstreamConfig lists the chat providers and how requests are routed to them.
type UpstreamConfig struct {
	DefaultProvider string                    `yaml:"default_provider" validate:"required"`
	Providers       map[string]ProviderConfig `yaml:"providers" validate:"required,min=1,dive"`
	Routes          []RouteRule               `yaml:"routes" validate:"dive"`
}

// ProviderConfig is a single OpenAI-compatible chat endpoint.
type ProviderConfig struct {
	Endpoint string        `yaml:"endpoint" validate:"required,url"`
	APIKey   string        `yaml:"api_key"` // empty = forward the caller's Authorization header
	Timeout  time.Duration `yaml:"timeout"`
}

// RouteRule sends models whose name starts with ModelPrefix to Provider.
type RouteRule struct {
	ModelPrefix string `yaml:"model_prefix" validate:"required"`
	Provider    string `yaml:"provider" validate:"required"`
}

// EmbeddingConfig selects the embedding backend for the semantic detector.
type EmbeddingConfig struct {
	Provider string        `yaml:"provider" validate:"oneof=openai ollama genai none"`
	Endpoint string        `yaml:"endpoint" validate:"omitempty,url"`
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DetectorConfig parameterizes one loop detector.
type DetectorConfig struct {
	Threshold float64 `yaml:"threshold" validate:"gte=0,lte=1"`
	Turns     int     `yaml:"turns" validate:"gte=2,lte=5"`
}

// PolicyConfig holds every intervention knob.
type PolicyConfig struct {
	Semantic         DetectorConfig `yaml:"semantic"`
	Fuzzy            DetectorConfig `yaml:"fuzzy"`
	Throttle         ThrottlePolicy `yaml:"throttle"`
	LeakMarkers      []string       `yaml:"leak_markers" validate:"dive,required"`
	NominalSavingUSD float64        `yaml:"nominal_saving_usd" validate:"gte=0"`
}

// AuditConfig controls where intervention entries go besides the in-memory log.
type AuditConfig struct {
	ArchivePath string `yaml:"archive_path"` // SQLite file, empty = disabled
	JSONLPath   string `yaml:"jsonl_path"`   // append-only JSONL, empty = disabled
}

// SessionsConfig controls the session registry.
type SessionsConfig struct {
	IdleTTL time.Duration `yaml:"idle_ttl" validate:"gte=0"` // 0 = sessions live for the process lifetime
	Shards  int           `yaml:"shards" validate:"gte=1,lte=4096"`
}

// LoggingConfig controls zerolog output.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=auto json console"`
	Output string `yaml:"output"` // stdout, stderr or a file path
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"omitempty,startswith=/"`
}

// TokenEstimator selects how prompt tokens are estimated for avoided-cost savings.
type TokenEstimator string

const (
	EstimatorTiktoken  TokenEstimator = "tiktoken"
	EstimatorHeuristic TokenEstimator = "heuristic"
)

// Default returns a configuration that proxies to OpenAI with Groq routing
// for open-weight models and no embedding provider.
func Default() *Config {
	routes := make([]RouteRule, 0, len(DefaultGroqModelPrefixes))
	for _, p := range DefaultGroqModelPrefixes {
		routes = append(routes, RouteRule{ModelPrefix: p, Provider: "groq"})
	}

	return &Config{
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         DefaultPort,
			WriteTimeout: DefaultServerWriteTimeout,
		},
		Upstream: UpstreamConfig{
			DefaultProvider: "openai",
			Providers: map[string]ProviderConfig{
				"openai": {Endpoint: DefaultOpenAIEndpoint, APIKey: os.Getenv("OPENAI_API_KEY"), Timeout: DefaultUpstreamTimeout},
				"groq":   {Endpoint: DefaultGroqEndpoint, APIKey: os.Getenv("GROQ_API_KEY"), Timeout: DefaultUpstreamTimeout},
			},
			Routes: routes,
		},
		Embedding: EmbeddingConfig{
			Provider: "none",
			Timeout:  DefaultEmbeddingTimeout,
		},
		Policy: PolicyConfig{
			Semantic: DetectorConfig{Threshold: DefaultSemanticThreshold, Turns: DefaultSemanticTurns},
			Fuzzy:    DetectorConfig{Threshold: DefaultFuzzyThreshold, Turns: DefaultFuzzyTurns},
			Throttle: ThrottlePolicy{
				CeilingUSD:      DefaultCeilingUSD,
				SpikeMultiplier: DefaultSpikeMultiplier,
				SpikeFloorUSD:   DefaultSpikeFloorUSD,
			},
			LeakMarkers:      append([]string(nil), DefaultLeakMarkers...),
			NominalSavingUSD: DefaultNominalSavingUSD,
		},
		Pricing: PricingConfig{
			Estimator:     string(EstimatorTiktoken),
			InputPerMTok:  DefaultInputPerMTok,
			OutputPerMTok: DefaultOutputPerMTok,
		},
		Sessions: SessionsConfig{Shards: DefaultShardCount},
		Logging:  LoggingConfig{Level: "info", Format: "auto", Output: "stdout"},
		Metrics:  MetricsConfig{Enabled: true, Path: DefaultMetricsPath},
	}
}

// LoadFromFile reads, expands and validates a YAML config file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses YAML on top of Default(), so a config only has to
// name what it changes.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := Default()
	expanded := ExpandEnvWithDefaults(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyProviderDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyProviderDefaults fills per-provider fields left empty in the YAML.
func (c *Config) applyProviderDefaults() {
	for name, p := range c.Upstream.Providers {
		if p.Timeout == 0 {
			p.Timeout = DefaultUpstreamTimeout
		}
		c.Upstream.Providers[name] = p
	}

	if c.Embedding.Timeout == 0 {
		c.Embedding.Timeout = DefaultEmbeddingTimeout
	}
	if c.Embedding.Model == "" {
		switch c.Embedding.Provider {
		case "openai":
			c.Embedding.Model = DefaultOpenAIEmbeddingModel
		case "ollama":
			c.Embedding.Model = DefaultOllamaEmbeddingModel
		case "genai":
			c.Embedding.Model = DefaultGenAIEmbeddingModel
		}
	}
	if c.Embedding.Endpoint == "" {
		switch c.Embedding.Provider {
		case "openai":
			c.Embedding.Endpoint = DefaultOpenAIEndpoint
		case "ollama":
			c.Embedding.Endpoint = DefaultOllamaEndpoint
		}
	}
}

// =============================================================================
// ENVIRONMENT
// =============================================================================

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnvWithDefaults replaces ${VAR} and ${VAR:-default}.
// Unset variables without a default expand to the empty string.
func ExpandEnvWithDefaults(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envPattern.FindStringSubmatch(match)
		if v, ok := os.LookupEnv(groups[1]); ok && v != "" {
			return v
		}
		return groups[2]
	})
}

// LoadEnvFiles loads .env from the working directory and the user config dir.
// Missing files are ignored and already-set variables win.
func LoadEnvFiles() {
	paths := []string{".env"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "sentinel", ".env"))
	}
	for _, p := range paths {
		_ = godotenv.Load(p)
	}
}
