// Package openai adapts the gateway's canonical Request to the
// OpenAI-compatible chat/completions wire shape. The same Adapter serves
// OpenAI, Azure OpenAI (via baseURL + api-version), xAI, Cerebras, DeepSeek,
// Groq, and Ollama (via its OpenAI-compatible endpoint) — they differ only
// in base URL, auth header, and which steering modes they honor.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	oai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/taipm/llmgateway/gateway"
	gwstream "github.com/taipm/llmgateway/gateway/stream"
)

// Adapter wraps an openai-go client pointed at any OpenAI-compatible
// endpoint.
type Adapter struct {
	client *oai.Client
}

// New builds an Adapter. baseURL is empty for api.openai.com; set it for
// xAI, Cerebras, DeepSeek, Groq, or a local Ollama server. Azure OpenAI
// needs its deployment path and api-version query string too — use
// NewAzure instead.
func New(apiKey, baseURL string) *Adapter {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := oai.NewClient(opts...)
	return &Adapter{client: &client}
}

// NewAzure builds an Adapter pointed at an Azure OpenAI deployment.
// deployment is the portion of the model id after "azure/" (spec §4.D: "the
// portion after azure/ is used as the model field"); the resulting base URL
// already embeds the deployment path, and api-version travels as a query
// parameter on every request.
func NewAzure(apiKey, endpoint, deployment, apiVersion string) *Adapter {
	baseURL := strings.TrimRight(endpoint, "/") + "/openai/deployments/" + deployment
	client := oai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithQuery("api-version", apiVersion),
		option.WithHeader("api-key", apiKey),
	)
	return &Adapter{client: &client}
}

func (a *Adapter) buildParams(req gateway.WireRequest) oai.ChatCompletionNewParams {
	params := oai.ChatCompletionNewParams{
		Model:    oai.ChatModel(req.Model),
		Messages: convertMessages(req.Request),
	}

	if req.Temperature != nil {
		params.Temperature = oai.Float(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = oai.Int(int64(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}
	if req.ToolChoice != nil {
		if raw, err := json.Marshal(req.ToolChoice); err == nil {
			_ = json.Unmarshal(raw, &params.ToolChoice)
		}
	}
	if req.ResponseFormat != nil && len(req.ResponseFormat.Schema) > 0 {
		if raw, err := json.Marshal(req.ResponseFormat.Schema); err == nil {
			_ = json.Unmarshal(raw, &params.ResponseFormat)
		}
	}

	return params
}

func convertMessages(req gateway.Request) []oai.ChatCompletionMessageParamUnion {
	var msgs []oai.ChatCompletionMessageParamUnion

	if req.SystemPrompt != "" {
		msgs = append(msgs, oai.SystemMessage(req.SystemPrompt))
	}
	if req.Context != "" {
		msgs = append(msgs, oai.UserMessage(req.Context))
	}

	for _, m := range req.Messages {
		switch m.Role {
		case gateway.TurnSystem:
			msgs = append(msgs, oai.SystemMessage(m.Content))
		case gateway.TurnUser:
			msgs = append(msgs, oai.UserMessage(m.Content))
		case gateway.TurnAssistant:
			if len(m.ToolCalls) == 0 {
				msgs = append(msgs, oai.AssistantMessage(m.Content))
				continue
			}
			calls := make([]oai.ChatCompletionMessageToolCallUnionParam, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				args, _ := json.Marshal(tc.Arguments)
				calls = append(calls, oai.ChatCompletionMessageFunctionToolCallParam{
					ID: tc.ID,
					Function: oai.ChatCompletionMessageFunctionToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(args),
					},
				}.ToUnion())
			}
			asst := oai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
			if m.Content != "" {
				asst.Content.OfString = oai.String(m.Content)
			}
			msgs = append(msgs, oai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case gateway.TurnTool:
			msgs = append(msgs, oai.ToolMessage(m.Content, m.ToolCallID))
		}
	}
	return msgs
}

func convertTools(tools []gateway.Tool) []oai.ChatCompletionToolUnionParam {
	out := make([]oai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var params oai.FunctionParameters
		if t.Parameters != nil {
			params = t.Parameters
		}
		out = append(out, oai.ChatCompletionFunctionTool(oai.FunctionDefinitionParam{
			Name:        t.ID,
			Description: oai.String(t.Description),
			Parameters:  params,
		}))
	}
	return out
}

// ExecuteRequest performs one non-streaming chat/completions call.
func (a *Adapter) ExecuteRequest(ctx context.Context, req gateway.WireRequest) (gateway.AdapterResult, error) {
	params := a.buildParams(req)

	completion, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return gateway.AdapterResult{}, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return gateway.AdapterResult{}, fmt.Errorf("openai: empty choices in response")
	}

	choice := completion.Choices[0]
	result := gateway.AdapterResult{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Tokens: gateway.TokenUsage{
			Prompt:     int(completion.Usage.PromptTokens),
			Completion: int(completion.Usage.CompletionTokens),
			Total:      int(completion.Usage.TotalTokens),
		},
	}
	if completion.Usage.PromptTokensDetails.CachedTokens > 0 {
		result.CachedPromptTokens = int(completion.Usage.PromptTokensDetails.CachedTokens)
	}

	for _, tc := range choice.Message.ToolCalls {
		var args map[string]interface{}
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		result.ToolCalls = append(result.ToolCalls, gateway.ToolCall{
			ID: tc.ID, Name: tc.Function.Name, Arguments: args,
		})
	}

	return result, nil
}

// ExecuteStream performs one streaming chat/completions call. openai-go's
// streaming client already decodes SSE for us, so this drives its iterator
// directly into a manual ByteStream rather than going through
// gateway/stream's raw-bytes Producer (that one serves backends whose
// streaming endpoint we talk to over raw HTTP).
func (a *Adapter) ExecuteStream(ctx context.Context, req gateway.WireRequest) (*gateway.StreamingExecution, error) {
	params := a.buildParams(req)
	oaiStream := a.client.Chat.Completions.NewStreaming(ctx, params)

	type toolAccum struct {
		id, name string
		args     []byte
	}

	execution := &gateway.Response{Model: req.Model, IsStreaming: true}

	bs := gwstream.Manual(func(w *io.PipeWriter) ([]gateway.ToolCall, error) {
		defer w.Close()

		var slots []*toolAccum
		var content []byte

		for oaiStream.Next() {
			chunk := oaiStream.Current()

			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta
			if delta.Content != "" {
				content = append(content, delta.Content...)
				if _, err := io.WriteString(w, delta.Content); err != nil {
					return nil, err
				}
			}
			for _, tc := range delta.ToolCalls {
				for len(slots) <= int(tc.Index) {
					slots = append(slots, &toolAccum{})
				}
				s := slots[tc.Index]
				if tc.ID != "" {
					s.id = tc.ID
				}
				if tc.Function.Name != "" {
					s.name = tc.Function.Name
					if req.StreamToolCalls {
						frame, err := gwstream.EncodeToolCallEvent(gateway.ToolCallEvent{
							Type:     gateway.EventToolCallDetected,
							ToolCall: &gateway.ToolCallEventData{ID: s.id, Name: s.name, DisplayName: s.name},
						})
						if err != nil {
							return nil, err
						}
						if _, err := io.WriteString(w, frame); err != nil {
							return nil, err
						}
					}
				}
				s.args = append(s.args, []byte(tc.Function.Arguments)...)
			}
			if chunk.Usage.TotalTokens > 0 {
				execution.Tokens = gateway.TokenUsage{
					Prompt:     int(chunk.Usage.PromptTokens),
					Completion: int(chunk.Usage.CompletionTokens),
					Total:      int(chunk.Usage.TotalTokens),
				}
			}
		}
		if err := oaiStream.Err(); err != nil {
			return nil, fmt.Errorf("openai: streaming: %w", err)
		}

		calls := make([]gateway.ToolCall, 0, len(slots))
		for _, s := range slots {
			if s.name == "" {
				continue
			}
			var args map[string]interface{}
			_ = json.Unmarshal(s.args, &args)
			calls = append(calls, gateway.ToolCall{ID: s.id, Name: s.name, Arguments: args})
		}
		execution.Content = string(content)
		return calls, nil
	})

	return &gateway.StreamingExecution{Stream: bs, Execution: execution}, nil
}
