package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Ollama calls a local Ollama server.
type Ollama struct {
	endpoint string
	model    string
	client   *http.Client
}

// NewOllama creates an Ollama embedding provider.
func NewOllama(endpoint, model string, opts ...Option) *Ollama {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	return &Ollama{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		client:   newHTTPClient(opts),
	}
}

// Embed generates an embedding for a single text.
func (e *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := postJSON(ctx, e.client, e.endpoint+"/api/embeddings", nil, ollamaEmbedRequest{
		Model:  e.model,
		Prompt: text,
	})
	if err != nil {
		return nil, unavailable(e.Name(), err)
	}

	var result ollamaEmbedResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, unavailable(e.Name(), fmt.Errorf("decoding response: %w", err))
	}
	return checkVector(e.Name(), result.Embedding)
}

// Name returns the provider name.
func (e *Ollama) Name() string {
	return fmt.Sprintf("ollama:%s", e.model)
}

// =============================================================================
// OLLAMA API TYPES
// =============================================================================

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}
