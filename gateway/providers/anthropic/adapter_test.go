package anthropic

import (
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/taipm/llmgateway/gateway"
)

func TestConvertMessagesRoundTripsToolCallAndResult(t *testing.T) {
	req := gateway.Request{
		Messages: []gateway.Message{
			{Role: gateway.TurnUser, Content: "weather in Hanoi?"},
			{Role: gateway.TurnAssistant, ToolCalls: []gateway.ToolCall{
				{ID: "call_1", Name: "get_weather", Arguments: map[string]interface{}{"location": "Hanoi"}},
			}},
			{Role: gateway.TurnTool, Content: "sunny, 25C", ToolCallID: "call_1"},
		},
	}

	msgs := convertMessages(req)
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Role != anthropic.MessageParamRoleUser {
		t.Errorf("msgs[0].Role = %v", msgs[0].Role)
	}
	if msgs[1].Role != anthropic.MessageParamRoleAssistant {
		t.Errorf("msgs[1].Role = %v", msgs[1].Role)
	}
	if msgs[2].Role != anthropic.MessageParamRoleUser {
		t.Errorf("tool results travel back as a user turn, got %v", msgs[2].Role)
	}
}

func TestBuildParamsInjectsHelloOnEmptyConversation(t *testing.T) {
	a := New("test-key")
	params := a.buildParams(gateway.WireRequest{Request: gateway.Request{Model: "claude-sonnet-4-0"}})

	if len(params.Messages) != 1 {
		t.Fatalf("expected exactly one synthetic turn, got %d", len(params.Messages))
	}
	if len(params.System) != 0 {
		t.Errorf("expected no system field when there was nothing to carry over, got %v", params.System)
	}
}

func TestBuildParamsFoldsSystemPromptIntoUserTurnWhenMessagesEmpty(t *testing.T) {
	a := New("test-key")
	params := a.buildParams(gateway.WireRequest{Request: gateway.Request{
		Model:        "claude-sonnet-4-0",
		SystemPrompt: "You are terse.",
	}})

	if len(params.Messages) != 1 {
		t.Fatalf("expected exactly one synthetic turn, got %d", len(params.Messages))
	}
	if len(params.System) != 0 {
		t.Errorf("expected the system field to be cleared once folded into a user turn, got %v", params.System)
	}
}

func TestBuildParamsLeavesNonemptyConversationAlone(t *testing.T) {
	a := New("test-key")
	params := a.buildParams(gateway.WireRequest{Request: gateway.Request{
		Model:        "claude-sonnet-4-0",
		SystemPrompt: "You are terse.",
		Messages:     []gateway.Message{{Role: gateway.TurnUser, Content: "hi"}},
	}})

	if len(params.Messages) != 1 {
		t.Fatalf("expected the one real turn to survive untouched, got %d", len(params.Messages))
	}
	if len(params.System) != 1 {
		t.Errorf("expected the system prompt to remain a top-level field, got %v", params.System)
	}
}

func TestStructuredOutputAppendixOnlyAppliedWithoutTools(t *testing.T) {
	a := New("test-key")
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"answer": map[string]interface{}{"type": "string", "description": "the final answer"},
		},
	}

	withoutTools := a.buildParams(gateway.WireRequest{Request: gateway.Request{
		Model:          "claude-sonnet-4-0",
		Messages:       []gateway.Message{{Role: gateway.TurnUser, Content: "hi"}},
		ResponseFormat: &gateway.ResponseFormat{Schema: schema},
	}})
	if len(withoutTools.System) != 1 || !strings.Contains(withoutTools.System[0].Text, "answer") {
		t.Fatalf("expected the schema appendix folded into the system prompt, got %v", withoutTools.System)
	}

	withTools := a.buildParams(gateway.WireRequest{Request: gateway.Request{
		Model:          "claude-sonnet-4-0",
		Messages:       []gateway.Message{{Role: gateway.TurnUser, Content: "hi"}},
		ResponseFormat: &gateway.ResponseFormat{Schema: schema},
		Tools:          []gateway.Tool{{ID: "get_time", Description: "current time"}},
	}})
	if len(withTools.System) != 0 {
		t.Errorf("expected no schema appendix while tools are in play, got %v", withTools.System)
	}
}

func TestStructuredOutputAppendixIncludesNegativeRules(t *testing.T) {
	appendix := structuredOutputAppendix(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{"type": "string"},
			"age":  map[string]interface{}{"type": "integer"},
		},
	})

	for _, want := range []string{"name", "age", "no prose", "array", "extra fields", "valid JSON", "must be present"} {
		if !strings.Contains(strings.ToLower(appendix), strings.ToLower(want)) {
			t.Errorf("expected appendix to mention %q, got:\n%s", want, appendix)
		}
	}
}

func TestConvertToolsCarriesSchemaProperties(t *testing.T) {
	tools := convertTools([]gateway.Tool{{
		ID:          "get_weather",
		Description: "get weather",
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"location": map[string]interface{}{"type": "string"}},
		},
	}})

	if len(tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(tools))
	}
	if tools[0].OfTool.Name != "get_weather" {
		t.Errorf("tools[0].OfTool.Name = %q", tools[0].OfTool.Name)
	}
}
