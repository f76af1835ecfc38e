package tools

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/taipm/llmgateway/gateway"
)

func echoExec(ctx context.Context, name string, params map[string]interface{}, moderated bool) (gateway.ToolResult, error) {
	return gateway.ToolResult{Success: true, Output: fmt.Sprintf("%s:%v", name, params["x"])}, nil
}

func TestRunSequentialPreservesOrder(t *testing.T) {
	calls := []Call{
		{ToolCall: gateway.ToolCall{Name: "a"}, Params: map[string]interface{}{"x": 1}},
		{ToolCall: gateway.ToolCall{Name: "b"}, Params: map[string]interface{}{"x": 2}},
		{ToolCall: gateway.ToolCall{Name: "c"}, Params: map[string]interface{}{"x": 3}},
	}
	out := Run(context.Background(), calls, echoExec, Options{})
	if len(out) != 3 {
		t.Fatalf("expected 3 results, got %d", len(out))
	}
	for i, name := range []string{"a", "b", "c"} {
		if out[i].Name != name {
			t.Errorf("out[%d].Name = %q, want %q", i, out[i].Name, name)
		}
	}
}

func TestRunParallelPreservesOrder(t *testing.T) {
	calls := make([]Call, 20)
	for i := range calls {
		calls[i] = Call{ToolCall: gateway.ToolCall{Name: fmt.Sprintf("tool-%d", i)}, Params: map[string]interface{}{"x": i}}
	}
	out := Run(context.Background(), calls, echoExec, Options{Parallel: true})
	if len(out) != 20 {
		t.Fatalf("expected 20 results, got %d", len(out))
	}
	for i, o := range out {
		want := fmt.Sprintf("tool-%d:%d", i, i)
		if o.Result.Output != want {
			t.Errorf("out[%d].Result.Output = %q, want %q", i, o.Result.Output, want)
		}
	}
}

func TestRunRecoversFromPanic(t *testing.T) {
	panicky := func(ctx context.Context, name string, params map[string]interface{}, moderated bool) (gateway.ToolResult, error) {
		panic("boom")
	}
	out := Run(context.Background(), []Call{{ToolCall: gateway.ToolCall{Name: "x"}}}, panicky, Options{})
	if len(out) != 1 {
		t.Fatalf("expected 1 result, got %d", len(out))
	}
	if out[0].Result.Success {
		t.Fatal("expected panic to surface as failure")
	}
}

func TestRunTimesOutSlowTool(t *testing.T) {
	slow := func(ctx context.Context, name string, params map[string]interface{}, moderated bool) (gateway.ToolResult, error) {
		select {
		case <-time.After(200 * time.Millisecond):
			return gateway.ToolResult{Success: true}, nil
		case <-ctx.Done():
			return gateway.ToolResult{}, ctx.Err()
		}
	}
	out := Run(context.Background(), []Call{{ToolCall: gateway.ToolCall{Name: "slow"}}}, slow, Options{Timeout: 10 * time.Millisecond})
	if out[0].Result.Success {
		t.Fatal("expected timeout to surface as failure")
	}
}

func TestRunEmptyReturnsNil(t *testing.T) {
	if out := Run(context.Background(), nil, echoExec, Options{}); out != nil {
		t.Errorf("expected nil, got %+v", out)
	}
}

func TestMergeParams(t *testing.T) {
	bound := map[string]interface{}{"api_key": "secret", "location": "default"}
	fromModel := map[string]interface{}{"location": "Hanoi"}
	merged := MergeParams(bound, fromModel)
	if merged["api_key"] != "secret" {
		t.Errorf("expected pre-bound api_key to survive")
	}
	if merged["location"] != "Hanoi" {
		t.Errorf("expected model-supplied location to win, got %v", merged["location"])
	}
}
