package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// GenAI generates embeddings using Google's Gemini API.
type GenAI struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGenAI creates a Gemini embedding provider. endpoint overrides the API
// base URL when non-empty.
func NewGenAI(ctx context.Context, apiKey, model, endpoint string, opts ...Option) (*GenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("genai API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}

	hc := newHTTPClient(opts)
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  hc,
		HTTPOptions: genai.HTTPOptions{BaseURL: endpoint},
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &GenAI{client: client, model: model, timeout: hc.Timeout}, nil
}

// Embed generates a SEMANTIC_SIMILARITY embedding for text.
func (g *GenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	result, err := g.client.Models.EmbedContent(ctx, g.model, genai.Text(text), &genai.EmbedContentConfig{
		TaskType: "SEMANTIC_SIMILARITY",
	})
	if err != nil {
		return nil, unavailable(g.Name(), err)
	}
	if result == nil || len(result.Embeddings) == 0 || result.Embeddings[0] == nil {
		return nil, unavailable(g.Name(), errors.New("no embeddings returned"))
	}
	return checkVector(g.Name(), result.Embeddings[0].Values)
}

// Name returns the provider name.
func (g *GenAI) Name() string {
	return fmt.Sprintf("genai:%s", g.model)
}
