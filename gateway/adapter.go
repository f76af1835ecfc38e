package gateway

import "context"

// WireRequest is the sanitized, planner-steered request an Adapter actually
// sends: Request plus the resolved tool_choice/toolConfig value (already in
// the target provider's own shape) and the forced-queue-derived tool list.
type WireRequest struct {
	Request
	// ToolChoice is the provider-native steering value built by
	// gateway/planner (an OpenAI tool_choice object/string, an Anthropic
	// tool_choice object, or nil to omit it entirely, or a Gemini
	// toolConfig map). Adapters type-assert to the shape they expect.
	ToolChoice interface{}
}

// Adapter is implemented once per backend family (OpenAI-compatible,
// Anthropic, Gemini). The orchestrator drives it one iteration at a time; it
// never knows which backend it is talking to.
type Adapter interface {
	// ExecuteRequest performs one non-streaming model round-trip.
	ExecuteRequest(ctx context.Context, req WireRequest) (AdapterResult, error)

	// ExecuteStream performs one streaming model round-trip. The returned
	// StreamingExecution's Stream yields assistant text (and tool-call event
	// frames, if req.StreamToolCalls); Execution.ToolCalls is only reliably
	// populated after the stream has been fully drained.
	ExecuteStream(ctx context.Context, req WireRequest) (*StreamingExecution, error)
}

// AdapterResult is one model round-trip's raw outcome, before the
// orchestrator folds it into the accumulated Response.
type AdapterResult struct {
	Content   string
	ToolCalls []ToolCall
	Tokens    TokenUsage
	// CachedPromptTokens is the subset of Tokens.Prompt served from a
	// provider-side prompt cache, used for the cached-input cost discount.
	CachedPromptTokens int
	FinishReason       string
}
