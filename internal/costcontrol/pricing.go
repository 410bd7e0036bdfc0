package costcontrol

import "strings"

// Pricer resolves per-model pricing.
type Pricer struct {
	defaultPricing ModelPricing
	table          map[string]ModelPricing
}

// NewPricer builds a Pricer from config. Zero default rates stay zero.
func NewPricer(cfg PricingConfig) *Pricer {
	table := make(map[string]ModelPricing, len(cfg.Models))
	for name, p := range cfg.Models {
		table[name] = p
	}
	return &Pricer{
		defaultPricing: ModelPricing{InputPerMTok: cfg.InputPerMTok, OutputPerMTok: cfg.OutputPerMTok},
		table:          table,
	}
}

// For returns pricing for a model.
// Tries exact match, then prefix/family match (longest prefix wins), then default.
func (p *Pricer) For(model string) ModelPricing {
	// Exact match
	if mp, ok := p.table[model]; ok {
		return mp
	}

	// Family/prefix match (longest prefix wins)
	bestPrefix := ""
	var bestPricing ModelPricing
	for prefix, mp := range p.table {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(bestPrefix) {
			bestPrefix = prefix
			bestPricing = mp
		}
	}
	if bestPrefix != "" {
		return bestPricing
	}

	return p.defaultPricing
}

// Cost prices a turn for model.
func (p *Pricer) Cost(model string, promptTokens, completionTokens int) float64 {
	return CalculateCost(promptTokens, completionTokens, p.For(model))
}

// CalculateCost computes the cost in USD from token counts.
// Negative counts are treated as zero.
func CalculateCost(inputTokens, outputTokens int, pricing ModelPricing) float64 {
	inputTokens = max(inputTokens, 0)
	outputTokens = max(outputTokens, 0)
	inputCost := float64(inputTokens) / 1_000_000 * pricing.InputPerMTok
	outputCost := float64(outputTokens) / 1_000_000 * pricing.OutputPerMTok
	return inputCost + outputCost
}
