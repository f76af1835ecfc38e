package gateway

import (
	"context"
	"os"

	"github.com/taipm/llmgateway/gateway/idempotency"
	"github.com/taipm/llmgateway/gateway/log"
	"github.com/taipm/llmgateway/gateway/ratelimit"
	"github.com/taipm/llmgateway/gateway/registry"
	"github.com/taipm/llmgateway/gateway/telemetry"
)

// RotatingKeyProvider mirrors spec §6's rotating API-key contract: a
// hosted deployment fetches a pooled key per provider. It is consulted only
// when the caller supplied no key on the Request; when it fails, the key
// configured for that provider is used instead (see Gateway.resolveAPIKey).
type RotatingKeyProvider interface {
	GetRotatingAPIKey(ctx context.Context, providerID string) (string, error)
}

// HostFlags answers the two environment questions accounting needs (spec
// §6): whether this deployment is the hosted one, and its cost multiplier.
type HostFlags interface {
	IsHosted() bool
	GetCostMultiplier() float64
}

// staticHostFlags is the default HostFlags: never hosted, multiplier 1.
type staticHostFlags struct {
	hosted     bool
	multiplier float64
}

func (f staticHostFlags) IsHosted() bool             { return f.hosted }
func (f staticHostFlags) GetCostMultiplier() float64 { return f.multiplier }

// Config configures a Gateway. Zero value is usable: every provider key
// defaults to its conventional environment variable, Ollama defaults to
// OLLAMA_URL or localhost, and logging/telemetry/rate-observation default
// to no-ops.
type Config struct {
	OpenAIAPIKey    string
	AnthropicAPIKey string
	GoogleAPIKey    string
	XAIAPIKey       string
	CerebrasAPIKey  string
	DeepSeekAPIKey  string
	GroqAPIKey      string

	OllamaURL string

	AzureEndpoint   string
	AzureAPIVersion string

	Registry     *registry.Registry
	Logger       log.Logger
	Tracer       telemetry.Tracer
	Metrics      telemetry.Metrics
	RateObserver *ratelimit.Observer
	RotatingKeys RotatingKeyProvider
	Hosted       HostFlags

	// Exec is the external tool registry entry point (spec §6). Required
	// to use any tool-bearing request; a Gateway with no Exec still serves
	// tool-free requests.
	Exec ExecuteTool

	// Dedup extends the orchestrator's duplicate-tool-call guard across
	// gateway replicas via a shared backend (typically an
	// idempotency.RedisGuard). Default is idempotency.Noop: dedup stays
	// process-local.
	Dedup idempotency.Guard
}

// ExecuteTool is the external tool registry contract (spec §6): look up a
// tool by name, execute it, and report success/failure. The gateway never
// inspects the output for side effects.
type ExecuteTool func(ctx context.Context, name string, params map[string]interface{}, moderated bool) (ToolResult, error)

// Option configures a Config when building a Gateway with New.
type Option func(*Config)

// WithOpenAIKey sets the OpenAI API key, overriding OPENAI_API_KEY.
func WithOpenAIKey(key string) Option { return func(c *Config) { c.OpenAIAPIKey = key } }

// WithAnthropicKey sets the Anthropic API key, overriding ANTHROPIC_API_KEY.
func WithAnthropicKey(key string) Option { return func(c *Config) { c.AnthropicAPIKey = key } }

// WithGoogleKey sets the Google Gemini API key, overriding GOOGLE_API_KEY.
func WithGoogleKey(key string) Option { return func(c *Config) { c.GoogleAPIKey = key } }

// WithXAIKey sets the xAI API key, overriding XAI_API_KEY.
func WithXAIKey(key string) Option { return func(c *Config) { c.XAIAPIKey = key } }

// WithCerebrasKey sets the Cerebras API key, overriding CEREBRAS_API_KEY.
func WithCerebrasKey(key string) Option { return func(c *Config) { c.CerebrasAPIKey = key } }

// WithDeepSeekKey sets the DeepSeek API key, overriding DEEPSEEK_API_KEY.
func WithDeepSeekKey(key string) Option { return func(c *Config) { c.DeepSeekAPIKey = key } }

// WithGroqKey sets the Groq API key, overriding GROQ_API_KEY.
func WithGroqKey(key string) Option { return func(c *Config) { c.GroqAPIKey = key } }

// WithOllamaURL overrides the Ollama server address (default: OLLAMA_URL,
// else http://localhost:11434, per spec §6).
func WithOllamaURL(url string) Option { return func(c *Config) { c.OllamaURL = url } }

// WithAzure sets the Azure OpenAI endpoint and api-version, overriding
// AZURE_OPENAI_ENDPOINT / AZURE_OPENAI_API_VERSION.
func WithAzure(endpoint, apiVersion string) Option {
	return func(c *Config) { c.AzureEndpoint = endpoint; c.AzureAPIVersion = apiVersion }
}

// WithRegistry replaces the default model/capability registry.
func WithRegistry(r *registry.Registry) Option { return func(c *Config) { c.Registry = r } }

// WithLogger attaches a structured Logger; default is a no-op.
func WithLogger(l log.Logger) Option { return func(c *Config) { c.Logger = l } }

// WithTelemetry attaches a Tracer and Metrics; either may be nil to leave
// the corresponding concern at its no-op default.
func WithTelemetry(t telemetry.Tracer, m telemetry.Metrics) Option {
	return func(c *Config) { c.Tracer = t; c.Metrics = m }
}

// WithRateObserver attaches a request-rate Observer (spec §5/§6: reporting
// only, never enforced).
func WithRateObserver(o *ratelimit.Observer) Option { return func(c *Config) { c.RateObserver = o } }

// WithRotatingKeys attaches a RotatingKeyProvider for hosted OpenAI/
// Anthropic key rotation (spec §5).
func WithRotatingKeys(p RotatingKeyProvider) Option { return func(c *Config) { c.RotatingKeys = p } }

// WithHostFlags attaches the hosted-environment flags (spec §6: isHosted,
// getCostMultiplier). Default is "not hosted, multiplier 1".
func WithHostFlags(f HostFlags) Option { return func(c *Config) { c.Hosted = f } }

// WithCostMultiplier is shorthand for WithHostFlags when the caller only
// needs a fixed multiplier and is not hosted.
func WithCostMultiplier(multiplier float64) Option {
	return func(c *Config) { c.Hosted = staticHostFlags{hosted: false, multiplier: multiplier} }
}

// WithExecuteTool attaches the external tool registry entry point.
func WithExecuteTool(exec ExecuteTool) Option { return func(c *Config) { c.Exec = exec } }

// WithDedup attaches a distributed idempotency.Guard (e.g. an
// idempotency.RedisGuard) so concurrent gateway replicas share one
// duplicate-tool-call guard per request. Default is idempotency.Noop.
func WithDedup(g idempotency.Guard) Option { return func(c *Config) { c.Dedup = g } }

func defaultConfig() Config {
	return Config{
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		GoogleAPIKey:    os.Getenv("GOOGLE_API_KEY"),
		XAIAPIKey:       os.Getenv("XAI_API_KEY"),
		CerebrasAPIKey:  os.Getenv("CEREBRAS_API_KEY"),
		DeepSeekAPIKey:  os.Getenv("DEEPSEEK_API_KEY"),
		GroqAPIKey:      os.Getenv("GROQ_API_KEY"),
		OllamaURL:       envOr("OLLAMA_URL", "http://localhost:11434"),
		AzureEndpoint:   os.Getenv("AZURE_OPENAI_ENDPOINT"),
		AzureAPIVersion: envOr("AZURE_OPENAI_API_VERSION", "2024-07-01-preview"),
		Registry:        registry.New(),
		Logger:          log.Noop{},
		Tracer:          telemetry.Noop{},
		Metrics:         telemetry.NoopMetrics{},
		Hosted:          staticHostFlags{hosted: false, multiplier: 1},
		Dedup:           idempotency.Noop{},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
