// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be defined here.
// Detector and throttle defaults are policy knobs; the window size and audit
// capacity are structural and not configurable.
package config

import "time"

// =============================================================================
// LOOP DETECTION
// =============================================================================

// DefaultSemanticThreshold is the allowed distance from 1.0 for two adjacent
// embeddings to count as the same turn (similarity >= 0.98).
const DefaultSemanticThreshold = 0.02

// DefaultSemanticTurns is how many consecutive near-identical turns trip the
// semantic detector.
const DefaultSemanticTurns = 3

// DefaultFuzzyThreshold is looser than the semantic one: Jaccard overlap is
// noisier than embedding similarity (overlap >= 0.8).
const DefaultFuzzyThreshold = 0.2

// DefaultFuzzyTurns mirrors DefaultSemanticTurns.
const DefaultFuzzyTurns = 3

// MinDetectorTurns and MaxDetectorTurns bound the turns parameter.
// A window larger than the session history (5) could never trip.
const (
	MinDetectorTurns = 2
	MaxDetectorTurns = 5
)

// =============================================================================
// ECONOMIC THROTTLE
// =============================================================================

// DefaultCeilingUSD is the cumulative per-session spend above which every
// further turn is throttled.
const DefaultCeilingUSD = 10.0

// DefaultSpikeMultiplier flags a turn costing more than N times the previous one.
const DefaultSpikeMultiplier = 5.0

// DefaultSpikeFloorUSD keeps tiny turns from tripping the spike rule.
const DefaultSpikeFloorUSD = 0.10

// =============================================================================
// LEAK DETECTION
// =============================================================================

// DefaultLeakMarkers are substrings that must never reach the client.
var DefaultLeakMarkers = []string{"SYSTEM_PROMPT:", "API_KEY="}

// =============================================================================
// SAVINGS AND PRICING
// =============================================================================

// DefaultNominalSavingUSD is credited per blocked turn when no better estimate exists.
const DefaultNominalSavingUSD = 0.05

// DefaultInputPerMTok and DefaultOutputPerMTok price tokens for models
// without an explicit pricing entry.
const (
	DefaultInputPerMTok  = 0.15
	DefaultOutputPerMTok = 0.60
)

// =============================================================================
// AUDIT AND SESSIONS
// =============================================================================

// AuditCapacity is the number of intervention entries kept in memory.
const AuditCapacity = 50

// DefaultShardCount is the number of registry lock stripes.
const DefaultShardCount = 64

// DefaultSweepInterval is how often the idle-session sweeper runs when enabled.
const DefaultSweepInterval = 1 * time.Minute

// =============================================================================
// HTTP AND NETWORKING
// =============================================================================

// DefaultPort is the listen port when none is configured.
const DefaultPort = 3000

// DefaultUpstreamTimeout bounds a single upstream chat completion.
const DefaultUpstreamTimeout = 120 * time.Second

// DefaultEmbeddingTimeout bounds a single embedding call. Kept short since
// the detector falls back to fuzzy matching on failure.
const DefaultEmbeddingTimeout = 10 * time.Second

// MaxRequestBodySize is the maximum allowed request body (50MB).
const MaxRequestBodySize = 50 * 1024 * 1024

// MaxResponseSize is the maximum allowed upstream response body (50MB).
const MaxResponseSize = 50 * 1024 * 1024

// MaxErrorBodyLogLen limits error response body in logs to prevent bloat.
const MaxErrorBodyLogLen = 500

// DefaultServerWriteTimeout for HTTP server.
const DefaultServerWriteTimeout = 10 * time.Minute

// DefaultShutdownTimeout is how long in-flight requests get on shutdown.
const DefaultShutdownTimeout = 15 * time.Second

// DefaultReadHeaderTimeout bounds slow clients sending headers.
const DefaultReadHeaderTimeout = 10 * time.Second

// MaxControlBodySize caps JSON-RPC request bodies.
const MaxControlBodySize = 1 << 20

// DefaultMetricsPath serves Prometheus metrics.
const DefaultMetricsPath = "/metrics"

// =============================================================================
// PROVIDERS
// =============================================================================

const (
	DefaultOpenAIEndpoint = "https://api.openai.com"
	DefaultGroqEndpoint   = "https://api.groq.com/openai"
	DefaultOllamaEndpoint = "http://localhost:11434"

	DefaultOpenAIEmbeddingModel = "text-embedding-3-small"
	DefaultOllamaEmbeddingModel = "nomic-embed-text"
	DefaultGenAIEmbeddingModel  = "gemini-embedding-001"
)

// DefaultGroqModelPrefixes route open-weight model names to Groq.
var DefaultGroqModelPrefixes = []string{"llama", "mixtral", "gemma"}
