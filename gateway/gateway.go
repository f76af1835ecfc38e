package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/taipm/llmgateway/gateway/accounting"
	"github.com/taipm/llmgateway/gateway/log"
	"github.com/taipm/llmgateway/gateway/orchestrator"
	"github.com/taipm/llmgateway/gateway/planner"
	"github.com/taipm/llmgateway/gateway/providers/anthropic"
	"github.com/taipm/llmgateway/gateway/providers/gemini"
	"github.com/taipm/llmgateway/gateway/providers/ollama"
	"github.com/taipm/llmgateway/gateway/providers/openai"
	"github.com/taipm/llmgateway/gateway/ratelimit"
	"github.com/taipm/llmgateway/gateway/registry"
	"github.com/taipm/llmgateway/gateway/sanitize"
	"github.com/taipm/llmgateway/gateway/telemetry"
	"github.com/taipm/llmgateway/gateway/tools"
)

// profile is everything the Gateway needs to orchestrate one provider
// beyond the Adapter itself: how it wants tool steering rendered, whether
// it honors force/none at all, and whether it rejects native structured
// output alongside tools (spec §4.C, §4.D).
type profile struct {
	steer                 orchestrator.Steer
	supportsForce         bool
	deferStructuredOutput bool
}

var profiles = map[string]profile{
	"openai":    {steer: openAIChoice, supportsForce: true, deferStructuredOutput: false},
	"azure":     {steer: openAIChoice, supportsForce: true, deferStructuredOutput: false},
	"anthropic": {steer: anthropicChoice, supportsForce: true, deferStructuredOutput: true},
	"google":    {steer: geminiChoice, supportsForce: true, deferStructuredOutput: true},
	"xai":       {steer: openAIChoice, supportsForce: true, deferStructuredOutput: true},
	"cerebras":  {steer: openAIChoice, supportsForce: false, deferStructuredOutput: false},
	"deepseek":  {steer: openAIChoice, supportsForce: true, deferStructuredOutput: false},
	"groq":      {steer: openAIChoice, supportsForce: false, deferStructuredOutput: false},
	"ollama":    {steer: openAIChoice, supportsForce: false, deferStructuredOutput: false},
}

func openAIChoice(s planner.Steering) (interface{}, bool) {
	return planner.OpenAIToolChoice(s), false
}

func anthropicChoice(s planner.Steering) (interface{}, bool) {
	return planner.AnthropicToolChoice(s)
}

func geminiChoice(s planner.Steering) (interface{}, bool) {
	return planner.GeminiToolConfig(s), false
}

// Gateway is the provider-agnostic entry point (spec §6). It is safe for
// concurrent use: every field is either read-only after New or internally
// synchronized (the lazily-built adapter cache).
type Gateway struct {
	cfg Config

	mu       sync.Mutex
	adapters map[string]Adapter
}

// New builds a Gateway. Unset fields in Config default to environment
// variables and no-op collaborators (see defaultConfig).
func New(opts ...Option) *Gateway {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Gateway{cfg: cfg, adapters: make(map[string]Adapter)}
}

// ExecuteProviderRequest is the upstream API (spec §6): resolve providerID
// (or the request's model, when providerID is empty) to an adapter, sanitize
// and plan the request, and drive the tool-calling orchestrator. It returns
// a *Response for non-streaming requests and a *StreamingExecution when
// req.Stream is set.
func (g *Gateway) ExecuteProviderRequest(ctx context.Context, providerID string, req Request) (interface{}, error) {
	if providerID == "" {
		providerID = g.cfg.Registry.ProviderOf(req.Model)
	}
	prof, ok := profiles[providerID]
	if !ok {
		return nil, ErrUnknownProvider
	}

	apiKey, err := g.resolveAPIKey(ctx, providerID, req.APIKey)
	if err != nil {
		return nil, err
	}

	adapter, err := g.adapterFor(ctx, providerID, apiKey, req)
	if err != nil {
		return nil, fmt.Errorf("gateway: build %s adapter: %w", providerID, err)
	}

	sanitized, err := sanitize.Prepare(req, g.cfg.Registry)
	if err != nil {
		return nil, err
	}
	if providerID == "azure" {
		sanitized.Model = strings.TrimPrefix(sanitized.Model, "azure/")
	}

	if g.cfg.RateObserver != nil {
		g.cfg.RateObserver.Record(providerID)
	}

	opts := orchestrator.Options{
		Adapter:               adapter,
		Steer:                 prof.steer,
		Exec:                  tools.Execute(g.cfg.Exec),
		Logger:                g.cfg.Logger,
		ProviderID:            providerID,
		SupportsForce:         prof.supportsForce,
		DeferStructuredOutput: prof.deferStructuredOutput,
		ToolParams:            boundParams(req.Tools),
		Moderated:             true,
		Registry:              g.cfg.Registry,
		Multiplier:            accounting.Fixed(g.cfg.Hosted.GetCostMultiplier()),
		Dedup:                 g.cfg.Dedup,
		RequestID:             req.WorkflowID + "\x00" + req.ChatID,
		Tracer:                g.cfg.Tracer,
		Metrics:               g.cfg.Metrics,
	}

	if sanitized.Stream {
		return orchestrator.RunStream(ctx, sanitized, opts)
	}
	return orchestrator.Run(ctx, sanitized, opts)
}

// boundParams projects each tool's pre-bound Params for the orchestrator's
// merge-under-model-arguments step (spec §3).
func boundParams(toolList []Tool) map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{}, len(toolList))
	for _, t := range toolList {
		if len(t.Params) > 0 {
			out[t.ID] = t.Params
		}
	}
	return out
}

// resolveAPIKey prefers the caller-supplied Request.APIKey; hosted OpenAI
// and Anthropic fall back to the rotating key provider when the caller
// didn't supply one, per spec §5. When the rotating provider fails or is
// not used, the key configured on the Gateway for that provider is used;
// for OpenAI, Anthropic, Google, xAI, Cerebras, DeepSeek and Groq an empty
// configured key fails the request with ErrMissingCredential.
func (g *Gateway) resolveAPIKey(ctx context.Context, providerID, callerKey string) (string, error) {
	if callerKey != "" {
		return callerKey, nil
	}
	if g.cfg.RotatingKeys != nil && (providerID == "openai" || providerID == "anthropic") {
		if key, err := g.cfg.RotatingKeys.GetRotatingAPIKey(ctx, providerID); err == nil && key != "" {
			return key, nil
		}
	}
	switch providerID {
	case "openai":
		return g.cfg.OpenAIAPIKey, nonEmpty(g.cfg.OpenAIAPIKey)
	case "azure":
		return g.cfg.OpenAIAPIKey, nil // Azure accepts the same credential slot; endpoint carries the distinction
	case "anthropic":
		return g.cfg.AnthropicAPIKey, nonEmpty(g.cfg.AnthropicAPIKey)
	case "google":
		return g.cfg.GoogleAPIKey, nonEmpty(g.cfg.GoogleAPIKey)
	case "xai":
		return g.cfg.XAIAPIKey, nonEmpty(g.cfg.XAIAPIKey)
	case "cerebras":
		return g.cfg.CerebrasAPIKey, nonEmpty(g.cfg.CerebrasAPIKey)
	case "deepseek":
		return g.cfg.DeepSeekAPIKey, nonEmpty(g.cfg.DeepSeekAPIKey)
	case "groq":
		return g.cfg.GroqAPIKey, nonEmpty(g.cfg.GroqAPIKey)
	case "ollama":
		return "ollama", nil // Ollama ignores the key; the wire client still wants a non-empty string
	default:
		return "", ErrUnknownProvider
	}
}

func nonEmpty(s string) error {
	if s == "" {
		return ErrMissingCredential
	}
	return nil
}

// adapterFor returns a cached Adapter, building and storing one on first
// use. Every provider but Azure is keyed only by providerID (the API key is
// fixed for a Gateway's lifetime once resolved); Azure's adapter bakes its
// endpoint, deployment, and api-version into the wire client at construction
// time (openai.NewAzure), and all three are per-request fields (spec §3,
// §4.D), so the cache key folds them in too — otherwise a Gateway reused
// across two requests naming different Azure deployments would silently
// keep routing every later request to whichever deployment it saw first.
// Google's client additionally needs a context to dial with.
func (g *Gateway) adapterFor(ctx context.Context, providerID, apiKey string, req Request) (Adapter, error) {
	cacheKey := providerID
	var azureEndpoint, azureAPIVersion, azureDeployment string
	if providerID == "azure" {
		azureEndpoint = req.AzureEndpoint
		if azureEndpoint == "" {
			azureEndpoint = g.cfg.AzureEndpoint
		}
		azureAPIVersion = req.AzureAPIVersion
		if azureAPIVersion == "" {
			azureAPIVersion = g.cfg.AzureAPIVersion
		}
		azureDeployment = strings.TrimPrefix(req.Model, "azure/")
		cacheKey = strings.Join([]string{providerID, azureEndpoint, azureDeployment, azureAPIVersion}, "\x00")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if a, ok := g.adapters[cacheKey]; ok {
		return a, nil
	}

	var a Adapter
	switch providerID {
	case "openai":
		a = openai.New(apiKey, "")
	case "azure":
		a = openai.NewAzure(apiKey, azureEndpoint, azureDeployment, azureAPIVersion)
	case "anthropic":
		a = anthropic.New(apiKey)
	case "google":
		adapter, err := gemini.New(ctx, apiKey)
		if err != nil {
			return nil, err
		}
		a = adapter
	case "xai":
		a = openai.New(apiKey, "https://api.x.ai/v1")
	case "cerebras":
		a = openai.New(apiKey, "https://api.cerebras.ai/v1")
	case "deepseek":
		a = openai.New(apiKey, "https://api.deepseek.com")
	case "groq":
		a = openai.New(apiKey, "https://api.groq.com/openai/v1")
	case "ollama":
		a = ollama.New(g.cfg.OllamaURL)
	default:
		return nil, ErrUnknownProvider
	}

	g.adapters[cacheKey] = a
	return a, nil
}

// Registry exposes the Gateway's model/capability registry, e.g. for
// Ollama model discovery to feed back into UpdateOllamaModels.
func (g *Gateway) Registry() *registry.Registry { return g.cfg.Registry }

// Logger exposes the Gateway's configured Logger.
func (g *Gateway) Logger() log.Logger { return g.cfg.Logger }

// Tracer exposes the Gateway's configured telemetry Tracer.
func (g *Gateway) Tracer() telemetry.Tracer { return g.cfg.Tracer }

// Metrics exposes the Gateway's configured telemetry Metrics recorder.
func (g *Gateway) Metrics() telemetry.Metrics { return g.cfg.Metrics }

// RateObserver exposes the Gateway's request-rate Observer, if configured.
func (g *Gateway) RateObserver() *ratelimit.Observer { return g.cfg.RateObserver }
