package orchestrator

import (
	"context"
	"testing"

	"github.com/taipm/llmgateway/gateway"
	"github.com/taipm/llmgateway/gateway/stream"
)

// scriptedStreamAdapter drives RunStream deterministically: tool-calling
// turns go through ExecuteRequest (mirroring the orchestrator's own
// buffer-while-forced-queue-pending policy), and the one call RunStream
// actually streams goes through ExecuteStream.
type scriptedStreamAdapter struct {
	requestResults []gateway.AdapterResult
	requestCalls   []gateway.WireRequest

	streamContent string
	streamCalls   []gateway.WireRequest
}

func (a *scriptedStreamAdapter) ExecuteRequest(ctx context.Context, req gateway.WireRequest) (gateway.AdapterResult, error) {
	a.requestCalls = append(a.requestCalls, req)
	i := len(a.requestCalls) - 1
	if i >= len(a.requestResults) {
		return a.requestResults[len(a.requestResults)-1], nil
	}
	return a.requestResults[i], nil
}

func (a *scriptedStreamAdapter) ExecuteStream(ctx context.Context, req gateway.WireRequest) (*gateway.StreamingExecution, error) {
	a.streamCalls = append(a.streamCalls, req)
	return &gateway.StreamingExecution{
		Stream:    stream.FromString(a.streamContent),
		Execution: &gateway.Response{Content: a.streamContent},
	}, nil
}

func TestRunStreamClosesWithToolChoiceNoneOnDuplicateSignature(t *testing.T) {
	call := gateway.ToolCall{ID: "1", Name: "get_weather", Arguments: map[string]interface{}{"location": "Hanoi"}}
	dup := gateway.ToolCall{ID: "2", Name: "get_weather", Arguments: map[string]interface{}{"location": "Hanoi"}}
	adapter := &scriptedStreamAdapter{
		requestResults: []gateway.AdapterResult{{ToolCalls: []gateway.ToolCall{call, dup}}},
		streamContent:  "It is sunny in Hanoi.",
	}
	tool := gateway.Tool{ID: "get_weather"}
	exec, err := RunStream(context.Background(), gateway.Request{
		Model:    "gpt-4o-mini",
		Tools:    []gateway.Tool{tool},
		Messages: []gateway.Message{{Role: gateway.TurnUser, Content: "weather?"}},
	}, Options{Adapter: adapter, Steer: openAISteer, Exec: noopExec, SupportsForce: true})
	if err != nil {
		t.Fatalf("RunStream failed: %v", err)
	}

	// The initial call surfacing the duplicate goes through ExecuteRequest;
	// the tool_choice:none closing call must be the one that actually streams.
	if len(adapter.requestCalls) != 1 {
		t.Fatalf("expected 1 buffered request call, got %d", len(adapter.requestCalls))
	}
	if len(adapter.streamCalls) != 1 {
		t.Fatalf("expected the duplicate guard to trigger exactly one streamed closing call, got %d", len(adapter.streamCalls))
	}
	if adapter.streamCalls[0].ToolChoice != "none" {
		t.Errorf("closing call ToolChoice = %v, want %q", adapter.streamCalls[0].ToolChoice, "none")
	}
	if exec.Execution.Content != "It is sunny in Hanoi." {
		t.Errorf("Execution.Content = %q, want the closing call's text", exec.Execution.Content)
	}
	if len(exec.Execution.ToolCalls) != 1 {
		t.Fatalf("expected exactly one executed tool call, got %d", len(exec.Execution.ToolCalls))
	}
}
