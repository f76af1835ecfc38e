package openai

import (
	"testing"

	"github.com/taipm/llmgateway/gateway"
)

func TestConvertMessagesOrdersSystemContextThenConversation(t *testing.T) {
	req := gateway.Request{
		SystemPrompt: "You are terse.",
		Context:      "prior chat summary",
		Messages: []gateway.Message{
			{Role: gateway.TurnUser, Content: "hi"},
		},
	}

	msgs := convertMessages(req)
	if len(msgs) != 3 {
		t.Fatalf("expected system + context + user, got %d", len(msgs))
	}
	if msgs[0].OfSystem == nil {
		t.Errorf("msgs[0] should be the system prompt")
	}
	if msgs[1].OfUser == nil {
		t.Errorf("msgs[1] should be the context turn")
	}
	if msgs[2].OfUser == nil {
		t.Errorf("msgs[2] should be the user turn")
	}
}

func TestConvertMessagesAssistantToolCallHasNilContentAndToolCalls(t *testing.T) {
	req := gateway.Request{
		Messages: []gateway.Message{
			{Role: gateway.TurnAssistant, ToolCalls: []gateway.ToolCall{
				{ID: "call_1", Name: "get_weather", Arguments: map[string]interface{}{"location": "Hanoi"}},
			}},
			{Role: gateway.TurnTool, Content: "sunny, 25C", ToolCallID: "call_1"},
		},
	}

	msgs := convertMessages(req)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	asst := msgs[0].OfAssistant
	if asst == nil {
		t.Fatalf("expected an assistant message")
	}
	if asst.Content.OfString.Value != "" {
		t.Errorf("expected no content string on a tool-call-only assistant turn, got %q", asst.Content.OfString.Value)
	}
	if len(asst.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(asst.ToolCalls))
	}

	if msgs[1].OfTool == nil {
		t.Fatalf("expected a tool-role message for the fed-back result")
	}
	if msgs[1].OfTool.ToolCallID != "call_1" {
		t.Errorf("expected tool_call_id to round-trip, got %q", msgs[1].OfTool.ToolCallID)
	}
}

func TestConvertToolsCarriesParametersThrough(t *testing.T) {
	tools := convertTools([]gateway.Tool{{
		ID:          "get_weather",
		Description: "get the weather",
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"location": map[string]interface{}{"type": "string"}},
		},
	}})

	if len(tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(tools))
	}
	if tools[0].OfFunction == nil {
		t.Fatalf("expected a function-type tool")
	}
	if tools[0].OfFunction.Function.Name != "get_weather" {
		t.Errorf("tools[0].OfFunction.Function.Name = %q", tools[0].OfFunction.Function.Name)
	}
}

func TestNewAzureReturnsUsableAdapter(t *testing.T) {
	// Checks only that NewAzure yields an adapter with a client; the
	// deployment-scoped base URL it configures is not inspected here.
	a := NewAzure("key", "https://my-resource.openai.azure.com/", "gpt-4o-deploy", "2024-07-01-preview")
	if a == nil || a.client == nil {
		t.Fatalf("expected a usable adapter")
	}
}
