// Package registry holds the static model-and-capability table: which
// provider a model id belongs to, its per-million-token pricing, and which
// knobs (temperature, tool-usage control) it supports. It is read-only after
// construction except for the Ollama model list, which is swapped
// copy-on-write as new models are discovered.
package registry

import (
	"regexp"
	"strings"
	"sync/atomic"
)

// Pricing is USD-per-million-token pricing for one model.
type Pricing struct {
	Input       float64
	CachedInput float64 // 0 means "no cached-input discount published"
	Output      float64
	UpdatedAt   string
}

// TemperatureRange is the [Min, Max] temperature a model accepts.
type TemperatureRange struct {
	Min, Max float64
}

// Capability describes what a model supports beyond plain chat completion.
type Capability struct {
	Temperature       *TemperatureRange
	ToolUsageControl  bool
	ComputerUse       bool
}

// Model is one entry in a provider's model list.
type Model struct {
	ID         string
	Pricing    Pricing
	Capability Capability
}

// Provider is one backend entry: its display name, default/ordered models,
// and the regex patterns used to resolve an unknown model id to it. Models
// is read-only after construction for every provider except Ollama's,
// which UpdateOllamaModels swaps copy-on-write via models (spec §5); the
// Models field stays for callers that built a Provider literal directly
// (e.g. LoadYAML) and is what modelList returns until a snapshot has been
// stored in models.
type Provider struct {
	ID           string
	DisplayName  string
	DefaultModel string
	Models       []Model
	Patterns     []*regexp.Regexp

	models atomic.Pointer[[]Model]
}

// modelList returns the provider's current model list: the atomically
// swapped copy-on-write slice if one has been stored (Ollama, after
// discovery), otherwise the static Models field.
func (p *Provider) modelList() []Model {
	if snap := p.models.Load(); snap != nil {
		return *snap
	}
	return p.Models
}

func (p *Provider) model(id string) (Model, bool) {
	lower := strings.ToLower(id)
	for _, m := range p.modelList() {
		if strings.ToLower(m.ID) == lower {
			return m, true
		}
	}
	return Model{}, false
}

// setModels atomically replaces the provider's model list (copy-on-write:
// the caller must pass a freshly built slice it will not mutate further).
func (p *Provider) setModels(models []Model) {
	p.models.Store(&models)
}

// Registry is the static table of providers plus the dynamically discovered
// Ollama model list.
type Registry struct {
	providers       []*Provider
	byID            map[string]*Provider
	embeddingPrices map[string]Pricing
}

// New builds the default registry covering OpenAI, Azure OpenAI, Anthropic,
// Google Gemini, xAI, Cerebras, DeepSeek, Groq, and Ollama.
func New() *Registry {
	r := &Registry{
		embeddingPrices: map[string]Pricing{
			"text-embedding-3-small": {Input: 0.02},
			"text-embedding-3-large": {Input: 0.13},
		},
	}
	r.providers = defaultProviders()
	r.byID = make(map[string]*Provider, len(r.providers))
	for _, p := range r.providers {
		r.byID[p.ID] = p
	}
	return r
}

// ProviderOf resolves a model id to a provider: exact case-insensitive
// match first, then the first provider whose regex matches, falling back to
// "ollama" when nothing matches (Ollama serves arbitrary local model names).
func (r *Registry) ProviderOf(modelID string) string {
	for _, p := range r.providers {
		if _, ok := p.model(modelID); ok {
			return p.ID
		}
	}
	for _, p := range r.providers {
		for _, pattern := range p.Patterns {
			if pattern.MatchString(modelID) {
				return p.ID
			}
		}
	}
	return "ollama"
}

// Pricing looks up per-million-token pricing for a model: the chat-model
// table first, then the separate embedding-price table.
func (r *Registry) Pricing(modelID string) (Pricing, bool) {
	for _, p := range r.providers {
		if m, ok := p.model(modelID); ok {
			return m.Pricing, true
		}
	}
	if p, ok := r.embeddingPrices[modelID]; ok {
		return p, true
	}
	return Pricing{}, false
}

// SupportsTemperature reports whether the model declares a temperature
// range at all.
func (r *Registry) SupportsTemperature(modelID string) bool {
	for _, p := range r.providers {
		if m, ok := p.model(modelID); ok {
			return m.Capability.Temperature != nil
		}
	}
	return true // unknown models (e.g. freshly-pulled Ollama models) default to supported
}

// MaxTemperature returns the model's maximum accepted temperature, or 2.0 if
// unknown.
func (r *Registry) MaxTemperature(modelID string) float64 {
	for _, p := range r.providers {
		if m, ok := p.model(modelID); ok && m.Capability.Temperature != nil {
			return m.Capability.Temperature.Max
		}
	}
	return 2.0
}

// SupportsToolUsageControl reports whether a provider honors force/none
// tool_choice steering (as opposed to downgrading force to auto).
func (r *Registry) SupportsToolUsageControl(providerID string) bool {
	if p, ok := r.byID[providerID]; ok {
		if models := p.modelList(); len(models) > 0 {
			return models[0].Capability.ToolUsageControl
		}
	}
	switch providerID {
	case "cerebras", "groq", "ollama":
		return false
	default:
		return true
	}
}

// UpdateOllamaModels replaces the dynamically discovered Ollama model list.
// Appended models carry zero pricing and empty capabilities, since Ollama
// serves arbitrary local models the static table cannot know about ahead of
// time. The swap is copy-on-write: a fresh slice is built, then the pointer
// is stored atomically so concurrent readers never see a torn list.
func (r *Registry) UpdateOllamaModels(ids []string) {
	models := make([]Model, 0, len(ids))
	for _, id := range ids {
		models = append(models, Model{ID: id})
	}
	if p, ok := r.byID["ollama"]; ok {
		p.setModels(models)
	}
}
