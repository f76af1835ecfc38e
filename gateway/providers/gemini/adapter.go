// Package gemini adapts the gateway's canonical Request to the Google
// Generative AI Go SDK. Gemini differs from the OpenAI family in several
// structural ways the adapter must bridge: system prompt via
// SystemInstruction, "model" instead of "assistant", temperature capped at
// 1, tool steering via toolConfig.functionCallingConfig, and a chat
// session (history + last turn) rather than a flat message array.
package gemini

import (
	"context"
	"fmt"
	"io"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/taipm/llmgateway/gateway"
	gwstream "github.com/taipm/llmgateway/gateway/stream"
)

// Adapter wraps a genai.Client.
type Adapter struct {
	client *genai.Client
}

// New builds an Adapter for the given API key.
func New(ctx context.Context, apiKey string) (*Adapter, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &Adapter{client: client}, nil
}

// Close releases the underlying client.
func (a *Adapter) Close() error { return a.client.Close() }

func (a *Adapter) configureModel(model *genai.GenerativeModel, req gateway.WireRequest) {
	if req.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemPrompt)}}
	}
	if req.Temperature != nil {
		temp := float32(*req.Temperature)
		if temp > 1.0 {
			temp = 1.0
		}
		model.SetTemperature(temp)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		model.Tools = convertTools(req.Tools)
	}
	if cfg, ok := req.ToolChoice.(map[string]interface{}); ok {
		model.ToolConfig = convertToolConfig(cfg)
	}

	// Structured output and tools are mutually exclusive on the wire (spec
	// §4.D): responseSchema is wired only when this call carries no tools;
	// a ResponseFormat that arrives alongside tools is not sent.
	if req.ResponseFormat != nil && len(req.ResponseFormat.Schema) > 0 && len(req.Tools) == 0 {
		body := req.ResponseFormat.Schema
		if nested, ok := body["schema"].(map[string]interface{}); ok {
			body = nested
		}
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = convertSchema(CleanSchema(body))
	}
}

func convertToolConfig(cfg map[string]interface{}) *genai.ToolConfig {
	fc, _ := cfg["functionCallingConfig"].(map[string]interface{})
	mode := genai.FunctionCallingAuto
	switch fc["mode"] {
	case "NONE":
		mode = genai.FunctionCallingNone
	case "ANY":
		mode = genai.FunctionCallingAny
	}
	tc := &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: mode}}
	if names, ok := fc["allowedFunctionNames"].([]string); ok {
		tc.FunctionCallingConfig.AllowedFunctionNames = names
	}
	return tc
}

func convertTools(tools []gateway.Tool) []*genai.Tool {
	out := make([]*genai.Tool, 0, len(tools))
	for _, t := range tools {
		schema := convertSchema(CleanSchema(t.Parameters))
		out = append(out, &genai.Tool{
			FunctionDeclarations: []*genai.FunctionDeclaration{{
				Name:        t.ID,
				Description: t.Description,
				Parameters:  schema,
			}},
		})
	}
	return out
}

// CleanSchema returns a deep copy of schema with every "additionalProperties"
// and "default" key recursively removed (spec §4.D, §8 round-trip law:
// Gemini rejects both keywords in function-declaration and responseSchema
// documents). It never mutates its input, and is idempotent: cleaning an
// already-clean schema returns an equivalent copy.
func CleanSchema(schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return nil
	}
	out := make(map[string]interface{}, len(schema))
	for k, v := range schema {
		if k == "additionalProperties" || k == "default" {
			continue
		}
		out[k] = cleanValue(v)
	}
	return out
}

func cleanValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return CleanSchema(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = cleanValue(e)
		}
		return out
	default:
		return val
	}
}

// convertSchema converts a JSON-Schema-shaped map into Gemini's genai.Schema.
// Only the subset the gateway's Tool.Parameters ever uses (object type with
// typed properties) is handled; anything unrecognized degrades to a bare
// object schema rather than failing the request. Callers must pass an
// already-CleanSchema'd map.
func convertSchema(params map[string]interface{}) *genai.Schema {
	schema := &genai.Schema{Type: genai.TypeObject}
	if params == nil {
		return schema
	}
	props, _ := params["properties"].(map[string]interface{})
	if len(props) == 0 {
		return schema
	}
	schema.Properties = map[string]*genai.Schema{}
	for name, raw := range props {
		def, _ := raw.(map[string]interface{})
		schema.Properties[name] = fieldSchema(def)
	}
	if req, ok := params["required"].([]interface{}); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	return schema
}

func fieldSchema(def map[string]interface{}) *genai.Schema {
	s := &genai.Schema{Type: genai.TypeString}
	switch def["type"] {
	case "number":
		s.Type = genai.TypeNumber
	case "integer":
		s.Type = genai.TypeInteger
	case "boolean":
		s.Type = genai.TypeBoolean
	case "array":
		s.Type = genai.TypeArray
		s.Items = &genai.Schema{Type: genai.TypeString}
	case "object":
		s.Type = genai.TypeObject
		if nestedProps, ok := def["properties"].(map[string]interface{}); ok {
			s.Properties = map[string]*genai.Schema{}
			for name, raw := range nestedProps {
				nested, _ := raw.(map[string]interface{})
				s.Properties[name] = fieldSchema(nested)
			}
		}
	}
	if desc, ok := def["description"].(string); ok {
		s.Description = desc
	}
	return s
}

// convertContents renders the canonical conversation as Gemini's role-
// alternating []*genai.Content: "user" for user turns and fed-back tool
// results (prefixed "Function result: ", spec §4.D), "model" for assistant
// turns (their text plus any function calls they made, so a forced-tool
// follow-up call sees its own prior tool_use in history).
func convertContents(req gateway.Request) []*genai.Content {
	var out []*genai.Content
	if req.Context != "" {
		out = append(out, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(req.Context)}})
	}
	for _, m := range req.Messages {
		switch m.Role {
		case gateway.TurnUser:
			out = append(out, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		case gateway.TurnSystem:
			out = append(out, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		case gateway.TurnAssistant:
			var parts []genai.Part
			if m.Content != "" {
				parts = append(parts, genai.Text(m.Content))
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: tc.Arguments})
			}
			if len(parts) == 0 {
				parts = append(parts, genai.Text(""))
			}
			out = append(out, &genai.Content{Role: "model", Parts: parts})
		case gateway.TurnTool:
			out = append(out, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text("Function result: " + m.Content)}})
		}
	}
	return out
}

func extractToolCalls(candidate *genai.Candidate) []gateway.ToolCall {
	var calls []gateway.ToolCall
	if candidate.Content == nil {
		return calls
	}
	for _, part := range candidate.Content.Parts {
		if fc, ok := part.(genai.FunctionCall); ok {
			args := make(map[string]interface{}, len(fc.Args))
			for k, v := range fc.Args {
				args[k] = v
			}
			calls = append(calls, gateway.ToolCall{Name: fc.Name, Arguments: args})
		}
	}
	return calls
}

// chatTurns splits the converted conversation into history (everything but
// the last turn) and the parts of the final turn, which is what gets sent
// as this call's new message. An empty conversation is disallowed by
// Gemini's chat session the same way it is by Anthropic (spec §3), so when
// there are no messages and no context a lone "Hello" turn is sent; the
// system prompt, if any, stays in SystemInstruction.
func chatTurns(req gateway.Request) (history []*genai.Content, lastParts []genai.Part) {
	contents := convertContents(req)
	if len(contents) == 0 {
		return nil, []genai.Part{genai.Text("Hello")}
	}
	last := contents[len(contents)-1]
	return contents[:len(contents)-1], last.Parts
}

// ExecuteRequest performs one non-streaming GenerateContent call over a chat
// session so the full conversation history (including prior tool calls and
// results) travels with the request.
func (a *Adapter) ExecuteRequest(ctx context.Context, req gateway.WireRequest) (gateway.AdapterResult, error) {
	model := a.client.GenerativeModel(req.Model)
	a.configureModel(model, req)

	history, lastParts := chatTurns(req.Request)
	cs := model.StartChat()
	cs.History = history

	resp, err := cs.SendMessage(ctx, lastParts...)
	if err != nil {
		return gateway.AdapterResult{}, fmt.Errorf("gemini: generate content: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return gateway.AdapterResult{}, fmt.Errorf("gemini: empty candidates in response")
	}

	candidate := resp.Candidates[0]
	result := gateway.AdapterResult{
		FinishReason: candidate.FinishReason.String(),
		ToolCalls:    extractToolCalls(candidate),
	}
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				result.Content += string(txt)
			}
		}
	}
	if resp.UsageMetadata != nil {
		result.Tokens = gateway.TokenUsage{
			Prompt:     int(resp.UsageMetadata.PromptTokenCount),
			Completion: int(resp.UsageMetadata.CandidatesTokenCount),
			Total:      int(resp.UsageMetadata.TotalTokenCount),
		}
		result.CachedPromptTokens = int(resp.UsageMetadata.CachedContentTokenCount)
	}
	return result, nil
}

// ExecuteStream performs one streaming GenerateContentStream call. The SDK
// hands back an iterator of partial responses rather than raw bytes, so this
// drives it directly into a manual ByteStream; a function-call part, once
// seen, ends text streaming for that turn (Gemini does not interleave text
// after a function call within one candidate) — the stream is closed
// without forwarding the call's arguments as text; only when
// StreamToolCalls is set is a tool_call_detected event frame written for it
// (spec §4.D/§4.F).
func (a *Adapter) ExecuteStream(ctx context.Context, req gateway.WireRequest) (*gateway.StreamingExecution, error) {
	model := a.client.GenerativeModel(req.Model)
	a.configureModel(model, req)

	history, lastParts := chatTurns(req.Request)
	cs := model.StartChat()
	cs.History = history

	iter := cs.SendMessageStream(ctx, lastParts...)
	execution := &gateway.Response{Model: req.Model, IsStreaming: true}

	bs := gwstream.Manual(func(w *io.PipeWriter) ([]gateway.ToolCall, error) {
		defer w.Close()

		var calls []gateway.ToolCall
		var content []byte

		for {
			chunk, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return calls, fmt.Errorf("gemini: streaming: %w", err)
			}
			if len(chunk.Candidates) == 0 {
				continue
			}
			candidate := chunk.Candidates[0]
			if candidate.Content == nil {
				continue
			}
			functionCallSeen := false
			for _, part := range candidate.Content.Parts {
				switch v := part.(type) {
				case genai.Text:
					content = append(content, v...)
					if _, err := io.WriteString(w, string(v)); err != nil {
						return calls, err
					}
				case genai.FunctionCall:
					functionCallSeen = true
					args := make(map[string]interface{}, len(v.Args))
					for k, val := range v.Args {
						args[k] = val
					}
					call := gateway.ToolCall{Name: v.Name, Arguments: args}
					calls = append(calls, call)
					if req.StreamToolCalls {
						frame, err := gwstream.EncodeToolCallEvent(gateway.ToolCallEvent{
							Type:     gateway.EventToolCallDetected,
							ToolCall: &gateway.ToolCallEventData{Name: v.Name, DisplayName: v.Name, Arguments: args},
						})
						if err != nil {
							return calls, err
						}
						if _, err := io.WriteString(w, frame); err != nil {
							return calls, err
						}
					}
				}
			}
			if chunk.UsageMetadata != nil {
				execution.Tokens = gateway.TokenUsage{
					Prompt:     int(chunk.UsageMetadata.PromptTokenCount),
					Completion: int(chunk.UsageMetadata.CandidatesTokenCount),
					Total:      int(chunk.UsageMetadata.TotalTokenCount),
				}
			}
			if functionCallSeen {
				// A function call ends user-visible text for this turn; stop
				// draining rather than risk forwarding trailing prose the
				// model attaches after its own call.
				break
			}
		}
		execution.Content = string(content)
		return calls, nil
	})

	return &gateway.StreamingExecution{Stream: bs, Execution: execution}, nil
}
