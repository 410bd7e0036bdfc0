package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// OpenAI calls an OpenAI-compatible /v1/embeddings endpoint.
type OpenAI struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
}

// NewOpenAI creates an OpenAI embedding provider. endpoint is the API base
// (e.g. https://api.openai.com).
func NewOpenAI(endpoint, model, apiKey string, opts ...Option) *OpenAI {
	if endpoint == "" {
		endpoint = "https://api.openai.com"
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &OpenAI{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		apiKey:   apiKey,
		client:   newHTTPClient(opts),
	}
}

// Embed returns data[0].embedding.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	headers := map[string]string{}
	if o.apiKey != "" {
		headers["Authorization"] = "Bearer " + o.apiKey
	}

	body, err := postJSON(ctx, o.client, o.endpoint+"/v1/embeddings", headers, map[string]string{
		"input": text,
		"model": o.model,
	})
	if err != nil {
		return nil, unavailable(o.Name(), err)
	}

	raw := gjson.GetBytes(body, "data.0.embedding")
	if !raw.IsArray() {
		return nil, unavailable(o.Name(), errors.New("response missing data[0].embedding"))
	}
	values := raw.Array()
	vec := make([]float32, len(values))
	for i, v := range values {
		vec[i] = float32(v.Float())
	}
	return checkVector(o.Name(), vec)
}

// Name returns the provider name.
func (o *OpenAI) Name() string {
	return fmt.Sprintf("openai:%s", o.model)
}
