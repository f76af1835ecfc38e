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

// AnthropicProducer decodes the Anthropic Messages streaming format: typed
// "event: " lines followed by "data: {...}" payloads. Text arrives via
// content_block_delta/text_delta; tool_use blocks accumulate their input
// across content_block_delta/input_json_delta events and close on
// content_block_stop.
type AnthropicProducer struct{}

type anthContentBlock struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type anthDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

type anthSSEEvent struct {
	ContentBlock *anthContentBlock `json:"content_block,omitempty"`
	Delta        *anthDelta        `json:"delta,omitempty"`
}

// toolDisplayNames maps known tool ids to a human-friendly label for the
// tool_call_detected/tool_call_complete event frames. Unrecognized ids fall
// back to their raw name.
var toolDisplayNames = map[string]string{
	"get_time":     "Current Time",
	"web_search":   "Web Search",
	"http_request": "HTTP Request",
	"read_file":    "Read File",
	"write_file":   "Write File",
	"calculator":   "Calculator",
	"run_workflow": "Run Workflow",
}

func displayName(name string) string {
	if dn, ok := toolDisplayNames[name]; ok {
		return dn
	}
	return name
}

func (AnthropicProducer) Run(ctx context.Context, upstream io.Reader, w io.Writer, toolEvents bool) ([]gateway.ToolCall, error) {
	var (
		toolCalls       []gateway.ToolCall
		currentID       string
		currentName     string
		currentInput    strings.Builder
		eventType       string
		startedToolRun  bool
	)

	sc := bufio.NewScanner(upstream)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for sc.Scan() {
		select {
		case <-ctx.Done():
			return toolCalls, ctx.Err()
		default:
		}

		line := sc.Text()

		if strings.HasPrefix(line, "event: ") {
			eventType = strings.TrimPrefix(line, "event: ")
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var event anthSSEEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}

		switch eventType {
		case "content_block_start":
			if event.ContentBlock != nil && event.ContentBlock.Type == "tool_use" {
				currentID = event.ContentBlock.ID
				currentName = event.ContentBlock.Name
				currentInput.Reset()
				if toolEvents {
					if !startedToolRun {
						startedToolRun = true
						if err := writeEvent(w, gateway.ToolCallEvent{Type: gateway.EventToolCallsStart}); err != nil {
							return toolCalls, err
						}
					}
					if err := writeEvent(w, gateway.ToolCallEvent{
						Type:     gateway.EventToolCallDetected,
						ToolCall: &gateway.ToolCallEventData{ID: currentID, Name: currentName, DisplayName: displayName(currentName)},
					}); err != nil {
						return toolCalls, err
					}
				}
			}

		case "content_block_delta":
			if event.Delta == nil {
				continue
			}
			switch event.Delta.Type {
			case "text_delta":
				if event.Delta.Text != "" {
					if _, err := io.WriteString(w, event.Delta.Text); err != nil {
						return toolCalls, err
					}
				}
			case "input_json_delta":
				currentInput.WriteString(event.Delta.PartialJSON)
			}

		case "content_block_stop":
			if currentID != "" {
				var args map[string]interface{}
				if raw := currentInput.String(); raw != "" {
					_ = json.Unmarshal([]byte(raw), &args)
				}
				toolCalls = append(toolCalls, gateway.ToolCall{ID: currentID, Name: currentName, Arguments: args})
				if toolEvents {
					if err := writeEvent(w, gateway.ToolCallEvent{
						Type:     gateway.EventToolCallComplete,
						ToolCall: &gateway.ToolCallEventData{ID: currentID, Name: currentName, DisplayName: displayName(currentName), Arguments: args},
					}); err != nil {
						return toolCalls, err
					}
				}
				currentID, currentName = "", ""
				currentInput.Reset()
			}

		case "message_stop":
			if err := sc.Err(); err != nil {
				return toolCalls, fmt.Errorf("stream: anthropic scanner: %w", err)
			}
			return toolCalls, nil
		}
	}
	if err := sc.Err(); err != nil {
		return toolCalls, fmt.Errorf("stream: anthropic scanner: %w", err)
	}
	return toolCalls, nil
}
