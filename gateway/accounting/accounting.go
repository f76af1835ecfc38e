// Package accounting computes the cost and timing figures attached to a
// terminal Response: per-million-token pricing lookups against the model
// registry, the hosted cost multiplier, and the display-formatting rules for
// a USD amount.
package accounting

import (
	"fmt"
	"math"

	"github.com/Knetic/govaluate"

	"github.com/taipm/llmgateway/gateway"
	"github.com/taipm/llmgateway/gateway/registry"
)

// Multiplier is the hosted cost multiplier: either a literal factor or a
// govaluate expression evaluated against {tier, region}, for operators who
// want a conditional multiplier instead of one fixed number.
type Multiplier struct {
	Literal    float64
	Expression string
	Tier       string
	Region     string
}

// Fixed builds a literal Multiplier (the common case: one environment
// value, no conditions).
func Fixed(value float64) Multiplier {
	return Multiplier{Literal: value}
}

// Resolve evaluates the multiplier. An empty Expression returns Literal
// unchanged, so the zero Multiplier resolves to 0; ComputeCost treats a
// factor of 0 as "no markup" and leaves the cost as is.
func (m Multiplier) Resolve() (float64, error) {
	if m.Expression == "" {
		return m.Literal, nil
	}
	expr, err := govaluate.NewEvaluableExpression(m.Expression)
	if err != nil {
		return 0, fmt.Errorf("accounting: invalid hosted multiplier expression: %w", err)
	}
	result, err := expr.Evaluate(map[string]interface{}{
		"tier":   m.Tier,
		"region": m.Region,
	})
	if err != nil {
		return 0, fmt.Errorf("accounting: evaluate hosted multiplier: %w", err)
	}
	factor, ok := result.(float64)
	if !ok {
		return 0, fmt.Errorf("accounting: hosted multiplier expression did not evaluate to a number")
	}
	return factor, nil
}

// ComputeCost looks up the model's pricing in reg, applies the cached-input
// discount (when context was supplied and the model publishes one) before
// the hosted multiplier, and rounds to 8 decimal places (spec §4.G).
func ComputeCost(reg *registry.Registry, modelID string, tokens gateway.TokenUsage, cachedPromptTokens int, hasContext bool, multiplier Multiplier) (*gateway.Cost, error) {
	pricing, ok := reg.Pricing(modelID)
	if !ok {
		return nil, nil
	}

	inputRate := pricing.Input
	promptTokens := float64(tokens.Prompt)

	var cachedCost float64
	if hasContext && pricing.CachedInput > 0 && cachedPromptTokens > 0 {
		cached := float64(cachedPromptTokens)
		if cached > promptTokens {
			cached = promptTokens
		}
		promptTokens -= cached
		cachedCost = cached / 1_000_000 * pricing.CachedInput
	}

	usd := (promptTokens*inputRate + float64(tokens.Completion)*pricing.Output) / 1_000_000
	usd += cachedCost

	factor, err := multiplier.Resolve()
	if err != nil {
		return nil, err
	}
	if factor != 0 {
		usd *= factor
	}

	usd = math.Round(usd*1e8) / 1e8

	return &gateway.Cost{USD: usd, Formatted: Format(usd)}, nil
}

// Format renders usd for display per spec §4.G: at or above $1, two decimal
// places; at or above 1 cent, three; at or above a tenth of a cent, four;
// below that, enough fixed-point digits to show the first significant
// figure plus two more. Exactly zero renders as "$0"; Format is never
// called for a nil Cost (that renders as "—" by the caller).
func Format(usd float64) string {
	if usd == 0 {
		return "$0"
	}
	abs := math.Abs(usd)
	switch {
	case abs >= 1:
		return fmt.Sprintf("$%.2f", usd)
	case abs >= 0.01:
		return fmt.Sprintf("$%.3f", usd)
	case abs >= 0.001:
		return fmt.Sprintf("$%.4f", usd)
	default:
		digits := firstSignificantDigit(abs) + 2
		return fmt.Sprintf("$%.*f", digits, usd)
	}
}

// firstSignificantDigit returns the number of fractional digits needed to
// reach abs's first nonzero digit (e.g. 0.00042 -> 4).
func firstSignificantDigit(abs float64) int {
	if abs <= 0 {
		return 2
	}
	digits := 0
	for abs < 1 {
		abs *= 10
		digits++
		if digits > 20 {
			break
		}
	}
	return digits
}

// FormatOrDash renders cost for display, returning "—" for a nil Cost
// (spec §4.G: null/undefined -> "—").
func FormatOrDash(cost *gateway.Cost) string {
	if cost == nil {
		return "—"
	}
	return cost.Formatted
}
