// Package pricing estimates completion cost in USD from token counts. Prices
// are per 1000 tokens. Unknown models yield a nil estimate; callers must
// propagate nil rather than treating it as zero.
package pricing

import (
	"fmt"
	"strings"
)

// ModelPricing holds per-1k-token prices for one model.
type ModelPricing struct {
	InputPrice  float64
	OutputPrice float64
}

// CalculateCost computes the cost of a single call.
func (p ModelPricing) CalculateCost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1000*p.InputPrice + float64(outputTokens)/1000*p.OutputPrice
}

// modelPricing maps base model names to prices. Versioned names
// (gpt-4o-2024-05-01) and provider-prefixed names (openai/gpt-4o) are
// resolved by Get.
var modelPricing = map[string]ModelPricing{
	// OpenAI
	"gpt-4o":        {InputPrice: 0.0025, OutputPrice: 0.01},
	"gpt-4o-mini":   {InputPrice: 0.00015, OutputPrice: 0.0006},
	"gpt-4-turbo":   {InputPrice: 0.01, OutputPrice: 0.03},
	"gpt-4":         {InputPrice: 0.03, OutputPrice: 0.06},
	"gpt-3.5-turbo": {InputPrice: 0.0005, OutputPrice: 0.0015},
	"o1":            {InputPrice: 0.015, OutputPrice: 0.06},
	"o1-mini":       {InputPrice: 0.0011, OutputPrice: 0.0044},

	// Anthropic
	"claude-3-5-sonnet": {InputPrice: 0.003, OutputPrice: 0.015},
	"claude-3-5-haiku":  {InputPrice: 0.0008, OutputPrice: 0.004},
	"claude-3-opus":     {InputPrice: 0.015, OutputPrice: 0.075},
	"claude-3-sonnet":   {InputPrice: 0.003, OutputPrice: 0.015},
	"claude-3-haiku":    {InputPrice: 0.00025, OutputPrice: 0.00125},

	// Google
	"gemini-1.5-pro":   {InputPrice: 0.00125, OutputPrice: 0.005},
	"gemini-1.5-flash": {InputPrice: 0.000075, OutputPrice: 0.0003},
	"gemini-2.0-flash": {InputPrice: 0.0001, OutputPrice: 0.0004},
	"gemini-2.5-flash": {InputPrice: 0.0003, OutputPrice: 0.0025},
	"gemini-2.5-pro":   {InputPrice: 0.00125, OutputPrice: 0.01},

	// Mistral
	"mistral-large": {InputPrice: 0.002, OutputPrice: 0.006},
	"mistral-small": {InputPrice: 0.0002, OutputPrice: 0.0006},
	"mixtral-8x7b":  {InputPrice: 0.00045, OutputPrice: 0.0007},
}

// Override installs or replaces the pricing for a base model name. Called
// from config wiring at startup, before any completions run.
func Override(model string, p ModelPricing) {
	modelPricing[model] = p
}

// Get resolves pricing for a model name. Resolution order: exact match,
// then provider-prefix stripping ("openai/gpt-4o" -> "gpt-4o"), then
// version-suffix stripping ("gpt-4o-2024-05-01" -> "gpt-4o"). Returns nil
// for unknown models.
func Get(model string) *ModelPricing {
	if model == "" {
		return nil
	}

	// Provider prefixes appear before the first slash.
	if _, after, found := strings.Cut(model, "/"); found {
		model = after
	}

	// Strip trailing "-segment" pieces until a known base name remains.
	for name := model; name != ""; {
		if p, ok := modelPricing[name]; ok {
			return &p
		}
		idx := strings.LastIndex(name, "-")
		if idx < 0 {
			break
		}
		name = name[:idx]
	}
	return nil
}

// EstimateCost returns the estimated USD cost for one backend call, or nil
// when the model is not in the pricing table.
func EstimateCost(model string, inputTokens, outputTokens int) *float64 {
	p := Get(model)
	if p == nil {
		return nil
	}
	cost := p.CalculateCost(inputTokens, outputTokens)
	return &cost
}

// FormatCost renders a cost for logs and summaries. Nil formats as
// "unknown".
func FormatCost(cost *float64) string {
	if cost == nil {
		return "unknown"
	}
	return fmt.Sprintf("$%.4f", *cost)
}
