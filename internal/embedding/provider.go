// Package embedding turns user utterances into vectors for the semantic loop detector.
//
// DESIGN: Providers are best-effort. Any failure (transport, auth, empty
// vector) is reported as an error wrapping ErrUnavailable and the caller
// falls back to fuzzy text matching. Providers never retry.
//
// Backends:
//   - openai: /v1/embeddings (any OpenAI-compatible endpoint)
//   - ollama: local /api/embeddings
//   - genai:  Gemini embeddings via google.golang.org/genai
//   - none:   always unavailable (fuzzy-only mode)
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable is wrapped by every provider failure.
var ErrUnavailable = errors.New("embedding unavailable")

// Provider generates an embedding for one piece of text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Name() string
}

// Config selects and parameterizes a provider.
type Config struct {
	Provider string
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// New builds the provider named by cfg.Provider.
func New(ctx context.Context, cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg.Endpoint, cfg.Model, cfg.APIKey, WithTimeout(cfg.Timeout)), nil
	case "ollama":
		return NewOllama(cfg.Endpoint, cfg.Model, WithTimeout(cfg.Timeout)), nil
	case "genai":
		return NewGenAI(ctx, cfg.APIKey, cfg.Model, cfg.Endpoint, WithTimeout(cfg.Timeout))
	case "none", "":
		return None{}, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// unavailable wraps err so errors.Is(err, ErrUnavailable) holds.
func unavailable(provider string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, provider, err)
}

// checkVector rejects empty results.
func checkVector(provider string, v []float32) ([]float32, error) {
	if len(v) == 0 {
		return nil, unavailable(provider, errors.New("empty embedding"))
	}
	return v, nil
}

// None is the fuzzy-only provider.
type None struct{}

// Embed always fails.
func (None) Embed(context.Context, string) ([]float32, error) {
	return nil, unavailable("none", errors.New("no embedding provider configured"))
}

// Name returns "none".
func (None) Name() string { return "none" }
