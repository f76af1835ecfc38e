package gemini

import (
	"testing"

	"github.com/google/generative-ai-go/genai"

	"github.com/taipm/llmgateway/gateway"
)

func TestCleanSchemaStripsAdditionalPropertiesAndDefault(t *testing.T) {
	schema := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]interface{}{
			"name": map[string]interface{}{"type": "string", "default": "anonymous"},
			"tags": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string", "additionalProperties": true},
			},
		},
	}

	cleaned := CleanSchema(schema)

	if _, ok := cleaned["additionalProperties"]; ok {
		t.Error("expected top-level additionalProperties to be stripped")
	}
	props := cleaned["properties"].(map[string]interface{})
	name := props["name"].(map[string]interface{})
	if _, ok := name["default"]; ok {
		t.Error("expected nested default to be stripped")
	}
	tags := props["tags"].(map[string]interface{})
	items := tags["items"].(map[string]interface{})
	if _, ok := items["additionalProperties"]; ok {
		t.Error("expected deeply nested additionalProperties to be stripped")
	}

	// Original must be untouched.
	if _, ok := schema["additionalProperties"]; !ok {
		t.Error("CleanSchema must not mutate its input")
	}
}

func TestCleanSchemaIdempotent(t *testing.T) {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"age": map[string]interface{}{"type": "integer"},
		},
		"required": []interface{}{"age"},
	}

	once := CleanSchema(schema)
	twice := CleanSchema(once)

	if len(once) != len(twice) {
		t.Fatalf("cleaning twice changed shape: %v vs %v", once, twice)
	}
	onceProps := once["properties"].(map[string]interface{})
	twiceProps := twice["properties"].(map[string]interface{})
	if len(onceProps) != len(twiceProps) {
		t.Fatalf("properties diverged across repeated cleaning")
	}
}

func TestCleanSchemaNil(t *testing.T) {
	if CleanSchema(nil) != nil {
		t.Error("expected nil in, nil out")
	}
}

func TestConvertSchemaBuildsObjectWithRequired(t *testing.T) {
	schema := convertSchema(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"location": map[string]interface{}{"type": "string", "description": "the city"},
			"units":    map[string]interface{}{"type": "string"},
		},
		"required": []interface{}{"location"},
	})

	if schema.Type != genai.TypeObject {
		t.Fatalf("expected object type, got %v", schema.Type)
	}
	if len(schema.Properties) != 2 {
		t.Fatalf("expected 2 properties, got %d", len(schema.Properties))
	}
	if schema.Properties["location"].Description != "the city" {
		t.Errorf("expected description to carry through")
	}
	if len(schema.Required) != 1 || schema.Required[0] != "location" {
		t.Errorf("required = %v", schema.Required)
	}
}

func TestConvertContentsRoundTripsToolCallAndResult(t *testing.T) {
	req := gateway.Request{
		Messages: []gateway.Message{
			{Role: gateway.TurnUser, Content: "weather in Hanoi?"},
			{Role: gateway.TurnAssistant, ToolCalls: []gateway.ToolCall{
				{Name: "get_weather", Arguments: map[string]interface{}{"location": "Hanoi"}},
			}},
			{Role: gateway.TurnTool, Content: "sunny, 25C", ToolCallID: "1"},
		},
	}

	contents := convertContents(req)
	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	if contents[0].Role != "user" {
		t.Errorf("contents[0].Role = %q", contents[0].Role)
	}
	if contents[1].Role != "model" {
		t.Errorf("contents[1].Role = %q", contents[1].Role)
	}
	fc, ok := contents[1].Parts[0].(genai.FunctionCall)
	if !ok || fc.Name != "get_weather" {
		t.Fatalf("expected a FunctionCall part, got %+v", contents[1].Parts)
	}
	if contents[2].Role != "user" {
		t.Errorf("contents[2].Role = %q", contents[2].Role)
	}
	text, ok := contents[2].Parts[0].(genai.Text)
	if !ok || text != "Function result: sunny, 25C" {
		t.Fatalf("expected the fed-back tool result, got %+v", contents[2].Parts)
	}
}

func TestChatTurnsSplitsHistoryFromLastTurn(t *testing.T) {
	req := gateway.Request{
		Messages: []gateway.Message{
			{Role: gateway.TurnUser, Content: "first"},
			{Role: gateway.TurnAssistant, Content: "reply"},
			{Role: gateway.TurnUser, Content: "second"},
		},
	}
	history, lastParts := chatTurns(req)
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	text, ok := lastParts[0].(genai.Text)
	if !ok || text != "second" {
		t.Fatalf("expected last turn to be 'second', got %+v", lastParts)
	}
}
