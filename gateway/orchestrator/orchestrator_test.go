package orchestrator

import (
	"context"
	"testing"

	"github.com/taipm/llmgateway/gateway"
	"github.com/taipm/llmgateway/gateway/planner"
)

// scriptedAdapter replays a fixed sequence of AdapterResults, one per
// ExecuteRequest call, so the orchestrator's loop can be driven
// deterministically without a real provider.
type scriptedAdapter struct {
	results []gateway.AdapterResult
	calls   []gateway.WireRequest
}

func (a *scriptedAdapter) ExecuteRequest(ctx context.Context, req gateway.WireRequest) (gateway.AdapterResult, error) {
	a.calls = append(a.calls, req)
	i := len(a.calls) - 1
	if i >= len(a.results) {
		return a.results[len(a.results)-1], nil
	}
	return a.results[i], nil
}

func (a *scriptedAdapter) ExecuteStream(ctx context.Context, req gateway.WireRequest) (*gateway.StreamingExecution, error) {
	panic("not used in this test")
}

func noopExec(ctx context.Context, name string, params map[string]interface{}, moderated bool) (gateway.ToolResult, error) {
	return gateway.ToolResult{Success: true, Output: "ok:" + name}, nil
}

func openAISteer(s planner.Steering) (interface{}, bool) {
	return planner.OpenAIToolChoice(s), false
}

func TestRunStopsWhenNoToolCalls(t *testing.T) {
	adapter := &scriptedAdapter{results: []gateway.AdapterResult{{Content: "hello"}}}
	resp, err := Run(context.Background(), gateway.Request{
		Model:    "gpt-4o-mini",
		Messages: []gateway.Message{{Role: gateway.TurnUser, Content: "hi"}},
	}, Options{Adapter: adapter, Steer: openAISteer, Exec: noopExec, SupportsForce: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Timing.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", resp.Timing.Iterations)
	}
}

func TestRunDrivesToolLoopToCompletion(t *testing.T) {
	adapter := &scriptedAdapter{results: []gateway.AdapterResult{
		{ToolCalls: []gateway.ToolCall{{ID: "1", Name: "get_weather", Arguments: map[string]interface{}{"location": "Hanoi"}}}},
		{Content: "It is sunny in Hanoi."},
	}}
	tool := gateway.Tool{ID: "get_weather", UsageControl: gateway.UsageForce}
	resp, err := Run(context.Background(), gateway.Request{
		Model:    "gpt-4o-mini",
		Tools:    []gateway.Tool{tool},
		Messages: []gateway.Message{{Role: gateway.TurnUser, Content: "weather?"}},
	}, Options{Adapter: adapter, Steer: openAISteer, Exec: noopExec, SupportsForce: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if resp.Content != "It is sunny in Hanoi." {
		t.Errorf("Content = %q", resp.Content)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "get_weather" {
		t.Fatalf("unexpected tool calls: %+v", resp.ToolCalls)
	}
	if len(adapter.calls) != 2 {
		t.Fatalf("expected 2 adapter calls, got %d", len(adapter.calls))
	}
}

func TestRunClosesWithToolChoiceNoneOnDuplicateSignatureInSameTurn(t *testing.T) {
	call := gateway.ToolCall{ID: "1", Name: "get_weather", Arguments: map[string]interface{}{"location": "Hanoi"}}
	dup := gateway.ToolCall{ID: "2", Name: "get_weather", Arguments: map[string]interface{}{"location": "Hanoi"}}
	adapter := &scriptedAdapter{results: []gateway.AdapterResult{
		{ToolCalls: []gateway.ToolCall{call, dup}},
		{Content: "It is sunny in Hanoi."},
	}}
	tool := gateway.Tool{ID: "get_weather"}
	resp, err := Run(context.Background(), gateway.Request{
		Model:    "gpt-4o-mini",
		Tools:    []gateway.Tool{tool},
		Messages: []gateway.Message{{Role: gateway.TurnUser, Content: "weather?"}},
	}, Options{Adapter: adapter, Steer: openAISteer, Exec: noopExec, SupportsForce: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected exactly one executed tool call, got %d", len(resp.ToolCalls))
	}
	// spec §8 scenario 6: a duplicate call signature forces one more call
	// with tool_choice "none" rather than returning the partial content the
	// duplicate-producing call left behind.
	if len(adapter.calls) != 2 {
		t.Fatalf("expected the duplicate guard to trigger one closing tool_choice:none call, got %d calls", len(adapter.calls))
	}
	if adapter.calls[1].ToolChoice != "none" {
		t.Errorf("closing call ToolChoice = %v, want %q", adapter.calls[1].ToolChoice, "none")
	}
	if resp.Content != "It is sunny in Hanoi." {
		t.Errorf("Content = %q, want the closing call's text", resp.Content)
	}
}

func TestRunClosesWithToolChoiceNoneOnDuplicateAcrossConsecutiveTurns(t *testing.T) {
	// The Cerebras-style scenario: the duplicate isn't two calls in the same
	// response, it's the same call signature repeated on the next model
	// turn after the first one already executed successfully.
	call := gateway.ToolCall{ID: "1", Name: "get_weather", Arguments: map[string]interface{}{"location": "Hanoi"}}
	adapter := &scriptedAdapter{results: []gateway.AdapterResult{
		{ToolCalls: []gateway.ToolCall{call}},
		{ToolCalls: []gateway.ToolCall{call}},
		{Content: "It is sunny in Hanoi."},
	}}
	tool := gateway.Tool{ID: "get_weather"}
	resp, err := Run(context.Background(), gateway.Request{
		Model:    "gpt-4o-mini",
		Tools:    []gateway.Tool{tool},
		Messages: []gateway.Message{{Role: gateway.TurnUser, Content: "weather?"}},
	}, Options{Adapter: adapter, Steer: openAISteer, Exec: noopExec, SupportsForce: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(adapter.calls) != 3 {
		t.Fatalf("expected the initial call, the repeat-detecting call, and a closing tool_choice:none call, got %d", len(adapter.calls))
	}
	if adapter.calls[2].ToolChoice != "none" {
		t.Errorf("closing call ToolChoice = %v, want %q", adapter.calls[2].ToolChoice, "none")
	}
	if resp.Content != "It is sunny in Hanoi." {
		t.Errorf("Content = %q, want the closing call's text", resp.Content)
	}
}

func TestRunDeferredStructuredOutputMakesFinalCall(t *testing.T) {
	adapter := &scriptedAdapter{results: []gateway.AdapterResult{
		{ToolCalls: []gateway.ToolCall{{ID: "1", Name: "get_weather", Arguments: map[string]interface{}{}}}},
		{Content: "tool phase done"},
		{Content: `{"summary":"sunny"}`},
	}}
	tool := gateway.Tool{ID: "get_weather", UsageControl: gateway.UsageForce}
	resp, err := Run(context.Background(), gateway.Request{
		Model:          "claude-sonnet-4-5",
		Tools:          []gateway.Tool{tool},
		ResponseFormat: &gateway.ResponseFormat{Schema: map[string]interface{}{"type": "object"}},
		Messages:       []gateway.Message{{Role: gateway.TurnUser, Content: "weather then summarize"}},
	}, Options{Adapter: adapter, Steer: openAISteer, Exec: noopExec, SupportsForce: true, DeferStructuredOutput: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if resp.Content != `{"summary":"sunny"}` {
		t.Errorf("Content = %q", resp.Content)
	}
	if len(adapter.calls) != 3 {
		t.Fatalf("expected 3 adapter calls (tool call, drain, final structured), got %d", len(adapter.calls))
	}
	if adapter.calls[0].ResponseFormat != nil {
		t.Error("expected ResponseFormat withheld while tools are in play")
	}
	if adapter.calls[2].ResponseFormat == nil || len(adapter.calls[2].Tools) != 0 {
		t.Error("expected the final call to carry ResponseFormat with no tools")
	}
}
