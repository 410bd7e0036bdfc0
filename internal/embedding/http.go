package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxEmbeddingResponse bounds provider responses (a 3072-dim vector is ~60KB of JSON).
const maxEmbeddingResponse = 4 * 1024 * 1024

const defaultTimeout = 10 * time.Second

// Option configures an HTTP-backed provider.
type Option func(*http.Client)

// WithTimeout sets the HTTP client timeout. Zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(c *http.Client) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

// WithHTTPClient replaces the transport, keeping the configured timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *http.Client) {
		timeout := c.Timeout
		*c = *hc
		if c.Timeout == 0 {
			c.Timeout = timeout
		}
	}
}

func newHTTPClient(opts []Option) *http.Client {
	c := &http.Client{Timeout: defaultTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// postJSON sends payload and returns the response body on 200.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxEmbeddingResponse))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if len(data) > 200 {
			data = data[:200]
		}
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(data))
	}
	return data, nil
}
