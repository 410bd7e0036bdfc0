package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/sjson"

	"github.com/mandyss10/Sentinel/internal/utils"
)

// ErrTransport marks failures where no upstream response was obtained.
var ErrTransport = errors.New("upstream transport failure")

// ErrResponseTooLarge is wrapped (with ErrTransport) when the upstream body
// exceeds the configured limit.
var ErrResponseTooLarge = errors.New("upstream response too large")

// HeaderProvider selects a provider explicitly.
const HeaderProvider = "X-Sentinel-Provider"

const (
	chatCompletionsPath    = "/v1/chat/completions"
	defaultMaxResponseSize = 50 * 1024 * 1024
	defaultTimeout         = 120 * time.Second
)

// forwardedHeaders are copied from the caller when present.
var forwardedHeaders = []string{"Authorization", "OpenAI-Organization", "OpenAI-Project", "Accept"}

// Request is a chat completion to forward.
type Request struct {
	Body   []byte
	Header http.Header // caller headers; only forwardedHeaders are used
	Model  string
}

// Response is a fully read upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Provider   string
	Latency    time.Duration
}

// Client forwards requests to the provider chosen by its Router.
type Client struct {
	router          *Router
	httpClient      *http.Client
	maxResponseSize int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxResponseSize bounds the upstream body; larger bodies fail with
// ErrResponseTooLarge.
func WithMaxResponseSize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxResponseSize = n
		}
	}
}

// NewClient creates a chat client.
func NewClient(router *Router, opts ...Option) *Client {
	c := &Client{
		router:          router,
		httpClient:      &http.Client{Timeout: defaultTimeout},
		maxResponseSize: defaultMaxResponseSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete forwards req and returns the upstream response whatever its status.
// The error wraps ErrTransport when no response could be obtained, or
// ErrUnknownProvider when the provider hint is not configured.
func (c *Client) Complete(ctx context.Context, req *Request) (*Response, error) {
	var hint string
	if req.Header != nil {
		hint = req.Header.Get(HeaderProvider)
	}
	provider, model, err := c.router.Resolve(req.Model, hint)
	if err != nil {
		return nil, err
	}

	body := req.Body
	if model != req.Model {
		// "groq/llama-3" → "llama-3"
		if rewritten, err := sjson.SetBytes(body, "model", model); err == nil {
			body = rewritten
		}
	}

	if provider.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, provider.Timeout)
		defer cancel()
	}

	targetURL := provider.Endpoint + chatCompletionsPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %w", ErrTransport, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for _, h := range forwardedHeaders {
		if v := req.Header.Get(h); v != "" {
			httpReq.Header.Set(h, v)
		}
	}
	if provider.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+provider.APIKey)
	}

	log.Debug().
		Str("provider", provider.Name).
		Str("target_url", targetURL).
		Str("model", model).
		Str("authorization", utils.MaskKey(httpReq.Header.Get("Authorization"))).
		Msg("forwarding request")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.Error().Err(err).Str("provider", provider.Name).Msg("upstream request failed")
		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, provider.Name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrTransport, err)
	}
	if int64(len(respBody)) > c.maxResponseSize {
		log.Error().Str("provider", provider.Name).Int64("limit", c.maxResponseSize).Msg("upstream response too large")
		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, provider.Name, ErrResponseTooLarge)
	}
	latency := time.Since(start)

	if resp.StatusCode >= 400 {
		log.Warn().
			Int("status", resp.StatusCode).
			Str("provider", provider.Name).
			Str("response", utils.Truncate(string(respBody), 500)).
			Msg("upstream error response")
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       respBody,
		Provider:   provider.Name,
		Latency:    latency,
	}, nil
}
