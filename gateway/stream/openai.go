package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/taipm/llmgateway/gateway"
)

// OpenAIProducer decodes the OpenAI-family (OpenAI, Azure, xAI, Cerebras,
// DeepSeek, Groq) chat/completions SSE stream: "data: {...}" lines carrying
// choices[0].delta.content and, across several chunks, an accumulating
// choices[0].delta.tool_calls array keyed by index.
type OpenAIProducer struct{}

type oaiFunctionDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type oaiToolCallDelta struct {
	Index    int              `json:"index"`
	ID       string           `json:"id,omitempty"`
	Function oaiFunctionDelta `json:"function"`
}

type oaiDelta struct {
	Content   string             `json:"content,omitempty"`
	ToolCalls []oaiToolCallDelta `json:"tool_calls,omitempty"`
}

type oaiStreamChunk struct {
	Choices []struct {
		Delta        oaiDelta `json:"delta"`
		FinishReason string   `json:"finish_reason"`
	} `json:"choices"`
}

type oaiToolAccum struct {
	id, name string
	args     strings.Builder
}

func (OpenAIProducer) Run(ctx context.Context, upstream io.Reader, w io.Writer, toolEvents bool) ([]gateway.ToolCall, error) {
	var slots []*oaiToolAccum

	sc := bufio.NewScanner(upstream)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for sc.Scan() {
		select {
		case <-ctx.Done():
			return finalizeOpenAI(slots), ctx.Err()
		default:
		}

		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk oaiStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil || len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta

		if delta.Content != "" {
			if _, err := io.WriteString(w, delta.Content); err != nil {
				return finalizeOpenAI(slots), err
			}
		}

		for _, tc := range delta.ToolCalls {
			for len(slots) <= tc.Index {
				slots = append(slots, &oaiToolAccum{})
			}
			s := slots[tc.Index]
			if tc.ID != "" {
				s.id = tc.ID
			}
			if tc.Function.Name != "" {
				s.name = tc.Function.Name
				if toolEvents {
					ev := gateway.ToolCallEvent{
						Type: gateway.EventToolCallDetected,
						ToolCall: &gateway.ToolCallEventData{
							ID: s.id, Name: s.name, DisplayName: s.name,
						},
					}
					if err := writeEvent(w, ev); err != nil {
						return finalizeOpenAI(slots), err
					}
				}
			}
			s.args.WriteString(tc.Function.Arguments)
		}
	}
	if err := sc.Err(); err != nil {
		return finalizeOpenAI(slots), fmt.Errorf("stream: openai scanner: %w", err)
	}
	return finalizeOpenAI(slots), nil
}

func finalizeOpenAI(slots []*oaiToolAccum) []gateway.ToolCall {
	out := make([]gateway.ToolCall, 0, len(slots))
	for _, s := range slots {
		if s.name == "" {
			continue
		}
		var args map[string]interface{}
		if raw := s.args.String(); raw != "" {
			_ = json.Unmarshal([]byte(raw), &args)
		}
		out = append(out, gateway.ToolCall{ID: s.id, Name: s.name, Arguments: args})
	}
	return out
}

func writeEvent(w io.Writer, ev gateway.ToolCallEvent) error {
	frame, err := EncodeToolCallEvent(ev)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, frame)
	return err
}
