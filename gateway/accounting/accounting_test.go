package accounting

import (
	"testing"

	"github.com/taipm/llmgateway/gateway"
	"github.com/taipm/llmgateway/gateway/registry"
)

func TestComputeCostAppliesCachedDiscount(t *testing.T) {
	reg := registry.New()
	tokens := gateway.TokenUsage{Prompt: 1000, Completion: 500, Total: 1500}

	cost, err := ComputeCost(reg, "gpt-4o-mini", tokens, 400, true, Fixed(1))
	if err != nil {
		t.Fatalf("ComputeCost failed: %v", err)
	}
	if cost == nil {
		t.Fatal("expected a cost")
	}

	// 600 uncached prompt tokens at 0.15/M + 400 cached at 0.075/M + 500
	// completion tokens at 0.60/M.
	want := (600*0.15+400*0.075+500*0.60)/1_000_000
	if diff := cost.USD - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("USD = %v, want %v", cost.USD, want)
	}
}

func TestComputeCostNoContextSkipsCachedDiscount(t *testing.T) {
	reg := registry.New()
	tokens := gateway.TokenUsage{Prompt: 1000, Completion: 500, Total: 1500}

	cost, err := ComputeCost(reg, "gpt-4o-mini", tokens, 400, false, Fixed(1))
	if err != nil {
		t.Fatalf("ComputeCost failed: %v", err)
	}
	want := (1000*0.15 + 500*0.60) / 1_000_000
	if diff := cost.USD - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("USD = %v, want %v", cost.USD, want)
	}
}

func TestComputeCostAppliesMultiplier(t *testing.T) {
	reg := registry.New()
	tokens := gateway.TokenUsage{Prompt: 1000, Completion: 0, Total: 1000}

	cost, err := ComputeCost(reg, "gpt-4o-mini", tokens, 0, false, Fixed(2))
	if err != nil {
		t.Fatalf("ComputeCost failed: %v", err)
	}
	want := 2 * (1000 * 0.15 / 1_000_000)
	if diff := cost.USD - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("USD = %v, want %v", cost.USD, want)
	}
}

func TestComputeCostUnknownModelReturnsNil(t *testing.T) {
	reg := registry.New()
	cost, err := ComputeCost(reg, "totally-unknown-model", gateway.TokenUsage{}, 0, false, Fixed(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cost != nil {
		t.Fatalf("expected nil cost for unknown model, got %+v", cost)
	}
}

func TestMultiplierExpression(t *testing.T) {
	m := Multiplier{Expression: `tier == "enterprise" ? 1.5 : 1.0`, Tier: "enterprise"}
	factor, err := m.Resolve()
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if factor != 1.5 {
		t.Errorf("factor = %v, want 1.5", factor)
	}
}

func TestFormat(t *testing.T) {
	cases := []struct {
		usd  float64
		want string
	}{
		{0, "$0"},
		{1.5, "$1.50"},
		{0.023, "$0.023"},
		{0.0041, "$0.0041"},
		{0.00042, "$0.000420"},
	}
	for _, c := range cases {
		if got := Format(c.usd); got != c.want {
			t.Errorf("Format(%v) = %q, want %q", c.usd, got, c.want)
		}
	}
}

func TestFormatOrDash(t *testing.T) {
	if got := FormatOrDash(nil); got != "—" {
		t.Errorf("FormatOrDash(nil) = %q, want em dash", got)
	}
	cost := &gateway.Cost{USD: 1, Formatted: "$1.00"}
	if got := FormatOrDash(cost); got != "$1.00" {
		t.Errorf("FormatOrDash = %q, want $1.00", got)
	}
}
