package registry

import "regexp"

func tempRange(min, max float64) *TemperatureRange {
	return &TemperatureRange{Min: min, Max: max}
}

func pattern(expr string) *regexp.Regexp {
	return regexp.MustCompile(expr)
}

// defaultProviders is the static model/capability table. It is deliberately
// not exhaustive of every model a provider serves — only the ones commonly
// routed through the gateway — and is meant to be supplemented by
// LoadYAML for operator-specific overrides.
func defaultProviders() []*Provider {
	return []*Provider{
		{
			ID:           "openai",
			DisplayName:  "OpenAI",
			DefaultModel: "gpt-4o",
			Patterns:     []*regexp.Regexp{pattern(`(?i)^gpt-|^o1|^o3|^o4`)},
			Models: []Model{
				{ID: "gpt-4o", Pricing: Pricing{Input: 2.50, CachedInput: 1.25, Output: 10.00, UpdatedAt: "2025-01"}, Capability: Capability{Temperature: tempRange(0, 2), ToolUsageControl: true}},
				{ID: "gpt-4o-mini", Pricing: Pricing{Input: 0.15, CachedInput: 0.075, Output: 0.60, UpdatedAt: "2025-01"}, Capability: Capability{Temperature: tempRange(0, 2), ToolUsageControl: true}},
				{ID: "o1", Pricing: Pricing{Input: 15.00, CachedInput: 7.50, Output: 60.00, UpdatedAt: "2025-01"}, Capability: Capability{ToolUsageControl: true}},
				{ID: "o3", Pricing: Pricing{Input: 10.00, CachedInput: 2.50, Output: 40.00, UpdatedAt: "2025-01"}, Capability: Capability{ToolUsageControl: true}},
				{ID: "o4-mini", Pricing: Pricing{Input: 1.10, CachedInput: 0.275, Output: 4.40, UpdatedAt: "2025-01"}, Capability: Capability{ToolUsageControl: true}},
			},
		},
		{
			ID:           "azure",
			DisplayName:  "Azure OpenAI",
			DefaultModel: "gpt-4o",
			Patterns:     []*regexp.Regexp{pattern(`(?i)^azure/`)},
			Models: []Model{
				{ID: "gpt-4o", Pricing: Pricing{Input: 2.50, CachedInput: 1.25, Output: 10.00, UpdatedAt: "2025-01"}, Capability: Capability{Temperature: tempRange(0, 2), ToolUsageControl: true}},
			},
		},
		{
			ID:           "anthropic",
			DisplayName:  "Anthropic",
			DefaultModel: "claude-sonnet-4-0",
			Patterns:     []*regexp.Regexp{pattern(`(?i)^claude-`)},
			Models: []Model{
				{ID: "claude-opus-4-0", Pricing: Pricing{Input: 15.00, CachedInput: 1.50, Output: 75.00, UpdatedAt: "2025-05"}, Capability: Capability{Temperature: tempRange(0, 1), ToolUsageControl: true}},
				{ID: "claude-sonnet-4-0", Pricing: Pricing{Input: 3.00, CachedInput: 0.30, Output: 15.00, UpdatedAt: "2025-05"}, Capability: Capability{Temperature: tempRange(0, 1), ToolUsageControl: true}},
				{ID: "claude-haiku-3-5", Pricing: Pricing{Input: 0.80, CachedInput: 0.08, Output: 4.00, UpdatedAt: "2025-05"}, Capability: Capability{Temperature: tempRange(0, 1), ToolUsageControl: true}},
			},
		},
		{
			ID:           "google",
			DisplayName:  "Google Gemini",
			DefaultModel: "gemini-2.0-flash",
			Patterns:     []*regexp.Regexp{pattern(`(?i)^gemini-`)},
			Models: []Model{
				{ID: "gemini-2.0-flash", Pricing: Pricing{Input: 0.10, CachedInput: 0.025, Output: 0.40, UpdatedAt: "2025-02"}, Capability: Capability{Temperature: tempRange(0, 2), ToolUsageControl: true}},
				{ID: "gemini-1.5-pro", Pricing: Pricing{Input: 1.25, CachedInput: 0.3125, Output: 5.00, UpdatedAt: "2024-09"}, Capability: Capability{Temperature: tempRange(0, 2), ToolUsageControl: true}},
			},
		},
		{
			ID:           "xai",
			DisplayName:  "xAI",
			DefaultModel: "grok-3",
			Patterns:     []*regexp.Regexp{pattern(`(?i)^grok-`)},
			Models: []Model{
				{ID: "grok-3", Pricing: Pricing{Input: 3.00, Output: 15.00, UpdatedAt: "2025-02"}, Capability: Capability{Temperature: tempRange(0, 2), ToolUsageControl: true}},
				{ID: "grok-3-mini", Pricing: Pricing{Input: 0.30, Output: 0.50, UpdatedAt: "2025-02"}, Capability: Capability{Temperature: tempRange(0, 2), ToolUsageControl: true}},
			},
		},
		{
			ID:           "cerebras",
			DisplayName:  "Cerebras",
			DefaultModel: "llama3.1-70b",
			Patterns:     []*regexp.Regexp{pattern(`(?i)^llama3`)},
			Models: []Model{
				{ID: "llama3.1-70b", Pricing: Pricing{Input: 0.60, Output: 0.60, UpdatedAt: "2025-01"}, Capability: Capability{Temperature: tempRange(0, 1.5), ToolUsageControl: false}},
				{ID: "llama3.1-8b", Pricing: Pricing{Input: 0.10, Output: 0.10, UpdatedAt: "2025-01"}, Capability: Capability{Temperature: tempRange(0, 1.5), ToolUsageControl: false}},
			},
		},
		{
			ID:           "deepseek",
			DisplayName:  "DeepSeek",
			DefaultModel: "deepseek-chat",
			Patterns:     []*regexp.Regexp{pattern(`(?i)^deepseek-`)},
			Models: []Model{
				{ID: "deepseek-chat", Pricing: Pricing{Input: 0.27, CachedInput: 0.07, Output: 1.10, UpdatedAt: "2025-01"}, Capability: Capability{Temperature: tempRange(0, 2), ToolUsageControl: true}},
				{ID: "deepseek-r1", Pricing: Pricing{Input: 0.55, CachedInput: 0.14, Output: 2.19, UpdatedAt: "2025-01"}, Capability: Capability{ToolUsageControl: true}},
			},
		},
		{
			ID:           "groq",
			DisplayName:  "Groq",
			DefaultModel: "llama-3.3-70b-versatile",
			Patterns:     []*regexp.Regexp{pattern(`(?i)^llama-3\.3`)},
			Models: []Model{
				{ID: "llama-3.3-70b-versatile", Pricing: Pricing{Input: 0.59, Output: 0.79, UpdatedAt: "2025-01"}, Capability: Capability{Temperature: tempRange(0, 2), ToolUsageControl: false}},
			},
		},
		{
			ID:           "ollama",
			DisplayName:  "Ollama",
			DefaultModel: "llama3.1",
			Models:       []Model{},
		},
	}
}
