// Package upstream forwards chat completions to OpenAI-compatible providers.
//
// DESIGN: Provider selection, in priority order:
//  1. X-Sentinel-Provider request header
//  2. "provider/model" prefix on the model name (prefix stripped before forwarding)
//  3. first routing rule whose model prefix matches (llama/mixtral/gemma → groq)
//  4. the default provider
package upstream

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownProvider is returned when X-Sentinel-Provider names no configured provider.
var ErrUnknownProvider = errors.New("unknown provider")

// Provider is one OpenAI-compatible chat endpoint.
type Provider struct {
	Name     string
	Endpoint string        // API base, e.g. https://api.groq.com/openai
	APIKey   string        // empty = forward the caller's Authorization header
	Timeout  time.Duration // 0 = client default
}

// Route sends models whose name starts with ModelPrefix to Provider.
type Route struct {
	ModelPrefix string
	Provider    string
}

// Router resolves which provider serves a request.
type Router struct {
	providers       map[string]Provider
	routes          []Route
	defaultProvider string
}

// NewRouter validates that every reference names a known provider.
func NewRouter(providers []Provider, routes []Route, defaultProvider string) (*Router, error) {
	r := &Router{
		providers:       make(map[string]Provider, len(providers)),
		routes:          routes,
		defaultProvider: defaultProvider,
	}
	for _, p := range providers {
		p.Endpoint = strings.TrimRight(p.Endpoint, "/")
		r.providers[p.Name] = p
	}
	if _, ok := r.providers[defaultProvider]; !ok {
		return nil, fmt.Errorf("default provider %q is not configured", defaultProvider)
	}
	for _, rt := range routes {
		if _, ok := r.providers[rt.Provider]; !ok {
			return nil, fmt.Errorf("route %q targets unknown provider %q", rt.ModelPrefix, rt.Provider)
		}
	}
	return r, nil
}

// Resolve picks the provider for model. hint is the X-Sentinel-Provider header
// value; an unknown hint is an error rather than a silent fallback.
// The returned model has any "provider/" prefix removed.
func (r *Router) Resolve(model, hint string) (Provider, string, error) {
	if hint != "" {
		p, ok := r.providers[strings.ToLower(hint)]
		if !ok {
			return Provider{}, model, fmt.Errorf("%w %q", ErrUnknownProvider, hint)
		}
		return p, model, nil
	}

	if name, rest, ok := strings.Cut(model, "/"); ok {
		if p, known := r.providers[name]; known {
			return p, rest, nil
		}
	}

	lower := strings.ToLower(model)
	for _, rt := range r.routes {
		if strings.HasPrefix(lower, strings.ToLower(rt.ModelPrefix)) {
			return r.providers[rt.Provider], model, nil
		}
	}
	return r.providers[r.defaultProvider], model, nil
}

// Providers returns the configured provider names.
func (r *Router) Providers() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
