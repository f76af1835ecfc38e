package registry

import (
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

// yamlDocument is the on-disk shape of an operator override file: pricing
// and capability updates keyed by provider id, without touching the regex
// fallback patterns (those stay in code).
type yamlDocument struct {
	Providers map[string]yamlProvider `yaml:"providers"`
}

type yamlProvider struct {
	Models []yamlModel `yaml:"models"`
}

type yamlModel struct {
	ID          string   `yaml:"id"`
	Input       float64  `yaml:"input"`
	CachedInput float64  `yaml:"cached_input"`
	Output      float64  `yaml:"output"`
	UpdatedAt   string   `yaml:"updated_at"`
	TempMin     *float64 `yaml:"temp_min"`
	TempMax     *float64 `yaml:"temp_max"`
	ToolUsageControl bool `yaml:"tool_usage_control"`
}

// LoadYAML merges pricing/capability overrides from a YAML document into
// the registry, upserting models by id within their provider. It lets
// operators correct pricing or add newly released models without a rebuild,
// mirroring how the teacher's config loader layers YAML settings over
// compiled defaults.
func (r *Registry) LoadYAML(data []byte) error {
	var doc yamlDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("registry: parse override yaml: %w", err)
	}

	for providerID, override := range doc.Providers {
		p, ok := r.byID[providerID]
		if !ok {
			p = &Provider{ID: providerID, DisplayName: providerID, Patterns: []*regexp.Regexp{}}
			r.providers = append(r.providers, p)
			r.byID[providerID] = p
		}
		for _, m := range override.Models {
			upsertModel(p, toModel(m))
		}
	}
	return nil
}

func toModel(m yamlModel) Model {
	model := Model{
		ID: m.ID,
		Pricing: Pricing{
			Input:       m.Input,
			CachedInput: m.CachedInput,
			Output:      m.Output,
			UpdatedAt:   m.UpdatedAt,
		},
		Capability: Capability{ToolUsageControl: m.ToolUsageControl},
	}
	if m.TempMin != nil && m.TempMax != nil {
		model.Capability.Temperature = &TemperatureRange{Min: *m.TempMin, Max: *m.TempMax}
	}
	return model
}

func upsertModel(p *Provider, m Model) {
	for i, existing := range p.Models {
		if existing.ID == m.ID {
			p.Models[i] = m
			return
		}
	}
	p.Models = append(p.Models, m)
}
