// Package gateway provides a provider-agnostic LLM request gateway. It
// normalizes chat-completion requests across heterogeneous backends (OpenAI,
// Azure OpenAI, Anthropic, Google Gemini, xAI, Cerebras, DeepSeek, Groq,
// Ollama) and drives the multi-turn tool-calling loop, streaming fan-out,
// forced-tool sequencing, structured-output coercion, and cost/timing
// accounting on top of them.
package gateway

import "time"

// Turn identifies who produced a message in a conversation.
type Turn string

const (
	TurnSystem    Turn = "system"
	TurnUser      Turn = "user"
	TurnAssistant Turn = "assistant"
	TurnTool      Turn = "tool"
)

// UsageControl governs whether the model may, must, or may never call a
// given tool on the next turn.
type UsageControl string

const (
	UsageAuto  UsageControl = "auto"
	UsageForce UsageControl = "force"
	UsageNone  UsageControl = "none"
)

// Message is one canonical conversation turn. Assistant turns that carry a
// tool call populate ToolCalls; tool-result turns populate ToolCallID and
// Content holds the (possibly JSON) result.
type Message struct {
	Role       Turn
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// Tool is a function the model may call, along with the workflow's control
// over whether it must, may, or must never be used this turn.
type Tool struct {
	ID          string
	Description string
	Parameters  map[string]interface{} // JSON schema
	Params      map[string]interface{} // pre-bound key/value pairs
	UsageControl UsageControl
}

// ToolCall is a normalized tool invocation request from the model,
// regardless of wire format.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// ToolResult is the outcome of one tool execution.
type ToolResult struct {
	Success bool
	Output  string
	Error   string
}

// ExecutedToolCall pairs a ToolCall with its timing and outcome, as recorded
// on the final Response.
type ExecutedToolCall struct {
	ToolCall
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Result    string
	Success   bool
}

// ResponseFormat describes the structured-output contract requested by the
// caller. Exactly one of Schema or Fields should be populated; Fields is the
// legacy shape that the sanitizer rewrites into system-prompt instructions.
type ResponseFormat struct {
	// Schema is a native JSON Schema object (optionally under a "schema" key,
	// or a bare {"type":"object","properties":{...}} document). When set,
	// adapters attach it directly.
	Schema map[string]interface{}

	// Fields is the legacy shape: a flat description of expected fields.
	Fields []FieldSpec
}

// FieldSpec describes one field of a legacy structured-output request.
type FieldSpec struct {
	Name        string
	Type        string
	Description string
	Properties  []FieldSpec // nested object fields
}

// Empty reports whether the response format carries no instructions at all.
func (rf *ResponseFormat) Empty() bool {
	return rf == nil || (len(rf.Schema) == 0 && len(rf.Fields) == 0)
}

// Request is the canonical, provider-agnostic description of one turn. It is
// immutable once passed to ExecuteProviderRequest: the gateway never mutates
// the caller's value, only derives new ones (see gateway/sanitize).
type Request struct {
	Model string

	SystemPrompt string
	// Context, when non-empty, is prepended as a leading user turn.
	Context string
	Messages []Message

	Tools          []Tool
	ResponseFormat *ResponseFormat

	Temperature *float64
	MaxTokens   int

	Stream          bool
	StreamToolCalls bool

	APIKey string

	AzureEndpoint   string
	AzureAPIVersion string

	WorkflowID string
	ChatID     string
	EnvVars    map[string]string
}

// TokenUsage tracks prompt/completion/total token counts for one or more
// accumulated model round-trips.
type TokenUsage struct {
	Prompt     int
	Completion int
	Total      int
}

// SegmentType distinguishes a model round-trip from a tool execution in the
// timing ledger.
type SegmentType string

const (
	SegmentModel SegmentType = "model"
	SegmentTool  SegmentType = "tool"
)

// TimeSegment is one timed span of work. The Response's TimeSegments slice is
// append-only and chronologically ordered by StartTime.
type TimeSegment struct {
	Type      SegmentType
	Name      string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// Timing aggregates the segments recorded for one request.
type Timing struct {
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
	ModelTime         time.Duration
	ToolsTime         time.Duration
	FirstResponseTime time.Duration
	Iterations        int
	TimeSegments      []TimeSegment
}

// Cost is the computed USD cost of a request, alongside a human-readable
// formatted string (see gateway/accounting).
type Cost struct {
	USD       float64
	Formatted string
}

// Response is the terminal, uniform result of a non-streaming
// ExecuteProviderRequest call.
type Response struct {
	Content string
	Model   string

	Tokens TokenUsage

	ToolCalls   []ExecutedToolCall
	ToolResults []ToolResult

	Timing Timing
	Cost   *Cost

	IsStreaming bool
}

// ToolCallEventKind enumerates the structured event frames interleaved in a
// streamToolCalls-enabled byte stream.
type ToolCallEventKind string

const (
	EventToolCallDetected  ToolCallEventKind = "tool_call_detected"
	EventToolCallsStart    ToolCallEventKind = "tool_calls_start"
	EventToolCallComplete  ToolCallEventKind = "tool_call_complete"
)

// ToolCallEvent is one structured frame multiplexed into a byte stream when
// the caller requested StreamToolCalls.
type ToolCallEvent struct {
	Type        ToolCallEventKind
	ToolCall    *ToolCallEventData
	ToolCalls   []ToolCallEventData
}

// ToolCallEventData is the per-call payload of a ToolCallEvent.
type ToolCallEventData struct {
	ID          string
	Name        string
	DisplayName string
	Arguments   map[string]interface{}
}

// StreamingExecution is returned instead of a Response when the caller
// requests streaming. Stream yields assistant text (and, if enabled, tool
// call event frames); Execution is the partially-filled Response record,
// completed once the stream is drained.
type StreamingExecution struct {
	Stream    *ByteStream
	Execution *Response
}
