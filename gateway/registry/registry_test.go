package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderOfExactMatch(t *testing.T) {
	r := New()
	assert.Equal(t, "openai", r.ProviderOf("gpt-4o"))
	assert.Equal(t, "anthropic", r.ProviderOf("claude-sonnet-4-0"))
	assert.Equal(t, "google", r.ProviderOf("gemini-2.0-flash"))
}

func TestProviderOfRegexFallback(t *testing.T) {
	r := New()
	assert.Equal(t, "openai", r.ProviderOf("gpt-4o-2026-preview"))
	assert.Equal(t, "anthropic", r.ProviderOf("claude-4-unreleased"))
}

func TestProviderOfDefaultsToOllama(t *testing.T) {
	r := New()
	assert.Equal(t, "ollama", r.ProviderOf("my-custom-local-model"))
}

func TestSupportsTemperatureReasoningModel(t *testing.T) {
	r := New()
	assert.False(t, r.SupportsTemperature("o1"))
	assert.False(t, r.SupportsTemperature("deepseek-r1"))
	assert.True(t, r.SupportsTemperature("gpt-4o"))
}

func TestSupportsToolUsageControlDowngrade(t *testing.T) {
	r := New()
	assert.False(t, r.SupportsToolUsageControl("cerebras"))
	assert.False(t, r.SupportsToolUsageControl("groq"))
	assert.True(t, r.SupportsToolUsageControl("anthropic"))
}

func TestUpdateOllamaModelsCopyOnWrite(t *testing.T) {
	r := New()
	r.UpdateOllamaModels([]string{"llama3.1", "qwen2.5"})
	p, ok := r.Pricing("llama3.1")
	require.True(t, ok)
	assert.Equal(t, 0.0, p.Input)
}

func TestUpdateOllamaModelsConcurrentWithReads(t *testing.T) {
	// Regression guard for spec §5: the Ollama model slot must be safe for
	// concurrent ProviderOf/Pricing reads while UpdateOllamaModels swaps it
	// copy-on-write. Run under `go test -race`.
	r := New()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			r.UpdateOllamaModels([]string{"llama3.1", "qwen2.5"})
		}
	}()
	for i := 0; i < 50; i++ {
		r.ProviderOf("llama3.1")
		r.SupportsToolUsageControl("ollama")
	}
	<-done
}

func TestLoadYAMLOverridesPricing(t *testing.T) {
	r := New()
	err := r.LoadYAML([]byte(`
providers:
  openai:
    models:
      - id: gpt-4o
        input: 9.99
        output: 20.00
`))
	require.NoError(t, err)
	p, ok := r.Pricing("gpt-4o")
	require.True(t, ok)
	assert.Equal(t, 9.99, p.Input)
}
