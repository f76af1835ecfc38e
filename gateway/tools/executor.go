// Package tools executes the tool calls a model requests, sequentially or
// in parallel via a bounded worker pool, and converts the results into the
// shape the orchestrator appends back to the conversation.
package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/taipm/llmgateway/gateway"
	"github.com/taipm/llmgateway/gateway/log"
	"github.com/taipm/llmgateway/gateway/telemetry"
)

// Execute is the external tool registry contract (spec §6): look up a tool
// by name, run it with the given parameters, and report success/failure.
// moderated indicates the call should go through the registry's moderation
// path; the gateway never inspects the result for side effects.
type Execute func(ctx context.Context, name string, params map[string]interface{}, moderated bool) (gateway.ToolResult, error)

// Call is one tool invocation to execute, already resolved against the
// registered Tool (merged params) and pending execution.
type Call struct {
	gateway.ToolCall
	Params map[string]interface{}
}

// Executed pairs a Call with its timed outcome.
type Executed struct {
	Call
	Start, End time.Time
	Result     gateway.ToolResult
}

// Options configures one execution round.
type Options struct {
	Parallel   bool
	MaxWorkers int           // default 10
	Timeout    time.Duration // per-call timeout, default 30s
	Moderated  bool
	Logger     log.Logger

	// Tracer and Metrics wrap each call in runOne with a span/metric. Nil
	// defaults to telemetry.Noop/NoopMetrics.
	Tracer  telemetry.Tracer
	Metrics telemetry.Metrics
}

// Run executes calls either sequentially (deterministic time-segment
// ordering — the default) or, when Options.Parallel is set, via a
// semaphore-bounded worker pool. Results are always returned in the
// original call order regardless of completion order.
func Run(ctx context.Context, calls []Call, exec Execute, opts Options) []Executed {
	if len(calls) == 0 {
		return nil
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Noop{}
	}
	if opts.Tracer == nil {
		opts.Tracer = telemetry.Noop{}
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NoopMetrics{}
	}

	if !opts.Parallel || len(calls) == 1 {
		return runSequential(ctx, calls, exec, opts, logger)
	}
	return runParallel(ctx, calls, exec, opts, logger)
}

func runSequential(ctx context.Context, calls []Call, exec Execute, opts Options, logger log.Logger) []Executed {
	out := make([]Executed, len(calls))
	for i, c := range calls {
		out[i] = runOne(ctx, c, exec, opts, logger)
	}
	return out
}

func runParallel(ctx context.Context, calls []Call, exec Execute, opts Options, logger log.Logger) []Executed {
	maxWorkers := opts.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	if len(calls) < maxWorkers {
		maxWorkers = len(calls)
	}

	sem := make(chan struct{}, maxWorkers)
	out := make([]Executed, len(calls))
	var wg sync.WaitGroup

	for i, c := range calls {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, call Call) {
			defer wg.Done()
			defer func() { <-sem }()
			out[idx] = runOne(ctx, call, exec, opts, logger)
		}(i, c)
	}
	wg.Wait()

	logger.Info(ctx, "parallel tool execution completed", log.F("count", len(calls)))
	return out
}

// runOne executes a single tool call with a timeout and panic recovery, so
// one bad handler never hangs or crashes the orchestrator.
func runOne(ctx context.Context, c Call, exec Execute, opts Options, logger log.Logger) Executed {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	spanCtx, span := opts.Tracer.Start(execCtx, "gateway.tool_execution", attribute.String("tool", c.Name))

	start := time.Now()
	done := make(chan gateway.ToolResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- gateway.ToolResult{Success: false, Error: fmt.Sprintf("tool panicked: %v", r)}
			}
		}()
		res, err := exec(spanCtx, c.Name, c.Params, opts.Moderated)
		if err != nil {
			done <- gateway.ToolResult{Success: false, Error: err.Error()}
			return
		}
		done <- res
	}()

	var result gateway.ToolResult
	select {
	case result = <-done:
	case <-execCtx.Done():
		result = gateway.ToolResult{Success: false, Error: fmt.Sprintf("tool execution timeout after %v", timeout)}
	}
	end := time.Now()

	opts.Metrics.RecordDuration("gateway.tool_execution.duration", end.Sub(start), attribute.String("tool", c.Name))
	if !result.Success {
		span.RecordError(fmt.Errorf("%s", result.Error))
		span.SetStatus(codes.Error, result.Error)
	}
	span.End()

	if result.Success {
		logger.Debug(ctx, "tool execution succeeded", log.F("tool", c.Name), log.F("duration_ms", end.Sub(start).Milliseconds()))
	} else {
		logger.Error(ctx, "tool execution failed", log.F("tool", c.Name), log.F("error", result.Error), log.F("duration_ms", end.Sub(start).Milliseconds()))
	}

	return Executed{Call: c, Start: start, End: end, Result: result}
}

// MergeParams merges a tool's pre-bound params with the model-supplied
// arguments: pre-bound values take precedence for the caller's logged view,
// but LLM-supplied values win when both exist at the same key (spec §3).
func MergeParams(bound, fromModel map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(bound)+len(fromModel))
	for k, v := range bound {
		out[k] = v
	}
	for k, v := range fromModel {
		out[k] = v
	}
	return out
}
