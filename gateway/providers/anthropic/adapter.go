// Package anthropic adapts the gateway's canonical Request to Anthropic's
// Messages API. Non-streaming calls go through anthropic-sdk-go; streaming
// calls talk to the same endpoint over raw HTTP, since Anthropic's
// content_block_delta/input_json_delta framing is simplest to decode as
// line-oriented SSE (see gateway/stream.AnthropicProducer).
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"

	"github.com/taipm/llmgateway/gateway"
	gwstream "github.com/taipm/llmgateway/gateway/stream"
)

const defaultBaseURL = "https://api.anthropic.com"

// Adapter wraps an anthropic-sdk-go client for synchronous calls, and an
// *http.Client for the raw-SSE streaming path.
type Adapter struct {
	client  *anthropic.Client
	http    *http.Client
	apiKey  string
	baseURL string
}

// New builds an Adapter for the given API key.
func New(apiKey string) *Adapter {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Adapter{client: &client, http: &http.Client{}, apiKey: apiKey, baseURL: defaultBaseURL}
}

func convertMessages(req gateway.Request) []anthropic.MessageParam {
	var msgs []anthropic.MessageParam
	if req.Context != "" {
		msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(req.Context)))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case gateway.TurnUser:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case gateway.TurnAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.ToolCalls)+1)
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			msgs = append(msgs, anthropic.NewAssistantMessage(blocks...))
		case gateway.TurnTool:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		}
	}
	return msgs
}

func convertTools(tools []gateway.Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := anthropic.ToolInputSchemaParam{}
		if t.Parameters != nil {
			if props, ok := t.Parameters["properties"]; ok {
				schema.Properties = props
			}
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.ID,
				Description: anthropic.String(t.Description),
				InputSchema: schema,
			},
		})
	}
	return out
}

func (a *Adapter) buildParams(req gateway.WireRequest) anthropic.MessageNewParams {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	msgs := convertMessages(req.Request)
	systemPrompt := req.SystemPrompt

	// Anthropic has no native response_format: when the caller wants
	// structured output and there are no tools, fold a rigid JSON template
	// plus negative rules into the system prompt instead (spec §4.D). When
	// tools are present, schema enforcement is deferred to the orchestrator's
	// final tools-free call, which re-enters here with Tools empty.
	if len(req.Tools) == 0 && req.ResponseFormat != nil && len(req.ResponseFormat.Schema) > 0 {
		if appendix := structuredOutputAppendix(req.ResponseFormat.Schema); appendix != "" {
			if systemPrompt != "" {
				systemPrompt += "\n\n" + appendix
			} else {
				systemPrompt = appendix
			}
		}
	}

	// Anthropic rejects an empty Messages array outright (spec §4.D, §8).
	// When nothing survived conversion, fold the system prompt into a
	// single synthetic user turn and drop the system field; when there was
	// no system prompt either, inject a bare "Hello" turn.
	if len(msgs) == 0 {
		if systemPrompt != "" {
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(systemPrompt)))
			systemPrompt = ""
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock("Hello")))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  msgs,
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}
	// Anthropic rejects tool_choice:"none" outright — gateway/planner
	// already resolved this to (nil, omit=true) and the wire request only
	// carries a non-nil value when it must be sent.
	if req.ToolChoice != nil {
		if raw, err := json.Marshal(req.ToolChoice); err == nil {
			_ = json.Unmarshal(raw, &params.ToolChoice)
		}
	}
	return params
}

// ExecuteRequest performs one non-streaming Messages.New call.
func (a *Adapter) ExecuteRequest(ctx context.Context, req gateway.WireRequest) (gateway.AdapterResult, error) {
	params := a.buildParams(req)

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return gateway.AdapterResult{}, fmt.Errorf("anthropic: messages.new: %w", err)
	}

	result := gateway.AdapterResult{
		FinishReason: string(msg.StopReason),
		Tokens: gateway.TokenUsage{
			Prompt:     int(msg.Usage.InputTokens),
			Completion: int(msg.Usage.OutputTokens),
			Total:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
		CachedPromptTokens: int(msg.Usage.CacheReadInputTokens),
	}

	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			result.Content += variant.Text
		case anthropic.ToolUseBlock:
			var args map[string]interface{}
			if len(variant.Input) > 0 {
				_ = json.Unmarshal(variant.Input, &args)
			}
			id := variant.ID
			if id == "" {
				id = fmt.Sprintf("%s-%d-%s", variant.Name, time.Now().UnixMilli(), uuid.NewString()[:8])
			}
			result.ToolCalls = append(result.ToolCalls, gateway.ToolCall{ID: id, Name: variant.Name, Arguments: args})
		}
	}

	return result, nil
}

// streamRequestBody renders the wire request body for the raw-HTTP SSE path
// (stream:true is not expressible through the SDK's typed params the way
// this adapter wants to consume it, so it reuses the SDK's MessageNewParams
// only up to JSON marshaling and adds the stream flag).
func (a *Adapter) streamRequestBody(req gateway.WireRequest) ([]byte, error) {
	params := a.buildParams(req)
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	body["stream"] = true
	return json.Marshal(body)
}

// ExecuteStream performs one streaming Messages call over raw HTTP, feeding
// the SSE body through gateway/stream.AnthropicProducer.
func (a *Adapter) ExecuteStream(ctx context.Context, req gateway.WireRequest) (*gateway.StreamingExecution, error) {
	body, err := a.streamRequestBody(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic: encode streaming request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: build streaming request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: streaming request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("anthropic: streaming API %d: %s", resp.StatusCode, string(msg))
	}

	bs := gwstream.Pipe(ctx, gwstream.AnthropicProducer{}, resp.Body, req.StreamToolCalls)

	return &gateway.StreamingExecution{
		Stream:    bs,
		Execution: &gateway.Response{Model: req.Model, IsStreaming: true},
	}, nil
}

// structuredOutputAppendix renders schema (a native JSON Schema, optionally
// wrapped under a "schema" key) as a system-prompt instruction: a rigid JSON
// template, one description line per top-level field, and five negative
// rules, since Anthropic has no response_format knob of its own (spec §4.D).
func structuredOutputAppendix(schema map[string]interface{}) string {
	body := schema
	if nested, ok := schema["schema"].(map[string]interface{}); ok {
		body = nested
	}
	props, _ := body["properties"].(map[string]interface{})
	if len(props) == 0 {
		return ""
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	template := make(map[string]interface{}, len(names))
	var descriptions []string
	for _, name := range names {
		field, _ := props[name].(map[string]interface{})
		typ, _ := field["type"].(string)
		if typ == "" {
			typ = "string"
		}
		template[name] = placeholderFor(typ)
		line := fmt.Sprintf("- %q (%s)", name, typ)
		if desc, ok := field["description"].(string); ok && desc != "" {
			line += ": " + desc
		}
		descriptions = append(descriptions, line)
	}

	rendered, err := json.MarshalIndent(template, "", "  ")
	if err != nil {
		return ""
	}

	var b strings.Builder
	b.WriteString("Respond with a single JSON object matching exactly this shape:\n")
	b.Write(rendered)
	b.WriteString("\n\nField descriptions:\n")
	b.WriteString(strings.Join(descriptions, "\n"))
	b.WriteString("\n\nRules:\n")
	b.WriteString("1. Output only the JSON object — no prose before or after it.\n")
	b.WriteString("2. Do not wrap the object in an array.\n")
	b.WriteString("3. Do not add extra fields beyond the ones listed above.\n")
	b.WriteString("4. The output must be syntactically valid JSON.\n")
	b.WriteString("5. Every field listed above must be present, even if the value is empty.")
	return b.String()
}

// placeholderFor returns an example value for typ, used to render the rigid
// JSON template in structuredOutputAppendix.
func placeholderFor(typ string) interface{} {
	switch typ {
	case "integer", "number":
		return 0
	case "boolean":
		return false
	case "array":
		return []interface{}{}
	case "object":
		return map[string]interface{}{}
	default:
		return "string"
	}
}
