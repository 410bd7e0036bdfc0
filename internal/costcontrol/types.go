// Package costcontrol prices upstream turns and tracks spend.
//
// DESIGN: Pricing is per million tokens, looked up by model name with a
// longest-prefix match and a flat default for unknown models. The per-session
// spend limit (economic throttle) lives in internal/session; this package
// only answers "what did that turn cost" and "what have we spent overall".
package costcontrol

import "fmt"

// PricingConfig holds pricing and token estimation settings.
type PricingConfig struct {
	Estimator     string                  `yaml:"token_estimator" validate:"oneof=tiktoken heuristic"`
	InputPerMTok  float64                 `yaml:"input_per_mtok" validate:"gte=0"`  // default for unlisted models
	OutputPerMTok float64                 `yaml:"output_per_mtok" validate:"gte=0"` // default for unlisted models
	Models        map[string]ModelPricing `yaml:"models" validate:"dive"`           // key = exact name or prefix
}

// Validate checks pricing configuration.
func (c *PricingConfig) Validate() error {
	if c.InputPerMTok < 0 || c.OutputPerMTok < 0 {
		return fmt.Errorf("pricing: default rates must be >= 0, got %f/%f", c.InputPerMTok, c.OutputPerMTok)
	}
	for name, p := range c.Models {
		if p.InputPerMTok < 0 || p.OutputPerMTok < 0 {
			return fmt.Errorf("pricing.models[%s]: rates must be >= 0", name)
		}
	}
	return nil
}

// ModelPricing holds per-million-token pricing for a model.
type ModelPricing struct {
	InputPerMTok  float64 `yaml:"input_per_mtok" validate:"gte=0"`  // USD per million input tokens
	OutputPerMTok float64 `yaml:"output_per_mtok" validate:"gte=0"` // USD per million output tokens
}

// ModelSpend is a read-only per-model spend summary.
type ModelSpend struct {
	Model        string  `json:"model"`
	CostUSD      float64 `json:"cost_usd"`
	RequestCount int     `json:"request_count"`
}
