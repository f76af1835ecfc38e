package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/taipm/llmgateway/gateway"
	"github.com/taipm/llmgateway/gateway/idempotency"
	"github.com/taipm/llmgateway/gateway/log"
	"github.com/taipm/llmgateway/gateway/planner"
	"github.com/taipm/llmgateway/gateway/stream"
	"github.com/taipm/llmgateway/gateway/telemetry"
	"github.com/taipm/llmgateway/gateway/tools"
)

// callStream wraps one Adapter.ExecuteStream round-trip in a span, mirroring
// callModel. Unlike callModel it records no duration or token metric: the
// streamed call's usage is not known here, and RunStream records none either.
func callStream(ctx context.Context, opts Options, providerID string, w gateway.WireRequest) (*gateway.StreamingExecution, error) {
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.Noop{}
	}

	var exec *gateway.StreamingExecution
	err := telemetry.ModelRoundTrip(ctx, tracer, providerID, w.Model, func(spanCtx context.Context) error {
		var execErr error
		exec, execErr = opts.Adapter.ExecuteStream(spanCtx, w)
		return execErr
	})
	return exec, err
}

// RunStream implements the streaming policy from spec §4.E: a tool-free
// request streams its single call directly; a tool-bearing request buffers
// every iteration while the forced-tool queue still has work (tool
// arguments cannot be safely streamed to the user) and streams only the
// call made once that queue drains. If the caller never supplied forced
// tools at all, there is no drain signal to key off and the accumulated
// final response is wrapped as an already-complete stream instead — the
// same open question spec §9 flags about the Gemini adapter's mid-stream
// function-call handling applies here in the general case, and this
// gateway resolves it the same way: prefer a correct buffered result over
// guessing which call is "last".
func RunStream(ctx context.Context, req gateway.Request, opts Options) (*gateway.StreamingExecution, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Noop{}
	}
	dedup := opts.Dedup
	if dedup == nil {
		dedup = idempotency.Noop{}
	}
	requestID := opts.RequestID
	if requestID == "" {
		requestID = req.WorkflowID + "\x00" + req.ChatID
	}

	plan := planner.NewPlan(req.Tools, opts.SupportsForce)
	for _, d := range plan.Downgraded {
		logger.Warn(ctx, "tool force steering downgraded to auto", log.F("tool", d))
	}

	hasTools := len(plan.Tools) > 0
	includeRF := !(opts.DeferStructuredOutput && hasTools)

	providerID := opts.ProviderID
	if providerID == "" {
		providerID = req.Model
	}

	start := time.Now()

	if !hasTools {
		w := wire(req, req.Messages, nil, opts.Steer, plan.Steering, includeRF)
		exec, err := callStream(ctx, opts, providerID, w)
		if err != nil {
			return nil, gateway.NewProviderError(providerID, 0, "", start, err)
		}
		exec.Execution.Timing.StartTime = start
		exec.Execution.Timing.Iterations = 1
		return exec, nil
	}

	messages := append([]gateway.Message{}, req.Messages...)
	seen := map[string]bool{}
	var toolCalls []gateway.ExecutedToolCall
	var toolResults []gateway.ToolResult
	var segments []gateway.TimeSegment
	var totalTokens gateway.TokenUsage
	var cachedPromptTokens int

	steering := plan.Steering
	queue := plan.Queue

	modelStart := time.Now()
	w := wire(req, messages, plan.Tools, opts.Steer, steering, includeRF)
	result, err := callModel(ctx, opts, providerID, w)
	if err != nil {
		return nil, gateway.NewProviderError(providerID, 0, "", start, err)
	}
	modelEnd := time.Now()
	segments = append(segments, gateway.TimeSegment{Type: gateway.SegmentModel, Name: "model", StartTime: modelStart, EndTime: modelEnd, Duration: modelEnd.Sub(modelStart)})
	firstResponseTime := modelEnd.Sub(modelStart)
	accumulate(&totalTokens, &cachedPromptTokens, result)

	lastContent := result.Content
	iterations := 1

	for iteration := 0; iteration < MaxIterations; iteration++ {
		if len(result.ToolCalls) == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, gateway.NewProviderError(providerID, 0, "", start, err)
		}

		dup := false
		var calls []gateway.ToolCall
		for _, tc := range result.ToolCalls {
			sig := signature(tc)
			if seen[sig] {
				dup = true
				continue
			}
			seen[sig] = true
			if claimed, err := dedup.Claim(ctx, idempotency.Key(requestID, tc.Name, sig), dedupTTL); err != nil {
				logger.Warn(ctx, "dedup claim failed, proceeding without cross-replica guard", log.F("tool", tc.Name), log.F("error", err.Error()))
			} else if !claimed {
				dup = true
				continue
			}
			calls = append(calls, tc)
		}

		var observedNames []string
		batch := make([]tools.Call, 0, len(calls))
		for _, tc := range calls {
			observedNames = append(observedNames, tc.Name)
			bound := opts.ToolParams[tc.Name]
			batch = append(batch, tools.Call{ToolCall: tc, Params: tools.MergeParams(bound, tc.Arguments)})
		}

		executed := tools.Run(ctx, batch, opts.Exec, tools.Options{
			Parallel:  opts.ParallelTools,
			Moderated: opts.Moderated,
			Logger:    logger,
			Tracer:    opts.Tracer,
			Metrics:   opts.Metrics,
		})

		messages = append(messages, gateway.Message{Role: gateway.TurnAssistant, Content: lastContent, ToolCalls: calls})

		for _, ex := range executed {
			segments = append(segments, gateway.TimeSegment{Type: gateway.SegmentTool, Name: ex.Name, StartTime: ex.Start, EndTime: ex.End, Duration: ex.End.Sub(ex.Start)})

			content := ex.Result.Output
			if !ex.Result.Success {
				payload, _ := json.Marshal(map[string]interface{}{"error": true, "message": ex.Result.Error, "tool": ex.Name})
				content = string(payload)
			}
			messages = append(messages, gateway.Message{Role: gateway.TurnTool, Content: content, ToolCallID: ex.ID})

			toolResults = append(toolResults, ex.Result)
			toolCalls = append(toolCalls, gateway.ExecutedToolCall{
				ToolCall: ex.ToolCall, StartTime: ex.Start, EndTime: ex.End,
				Duration: ex.End.Sub(ex.Start), Result: content, Success: ex.Result.Success,
			})
		}

		if dup {
			// Duplicate-call guard (spec §8 scenario 6): force one more call
			// with tool_choice "none", and stream that closing text rather
			// than falling back to whatever partial content the duplicate-
			// producing call left behind.
			w = wire(req, messages, plan.Tools, opts.Steer, planner.Steering{Mode: planner.ModeNone}, includeRF)
			exec, err := callStream(ctx, opts, providerID, w)
			if err != nil {
				return nil, gateway.NewProviderError(providerID, 0, "", start, err)
			}
			exec.Execution.Tokens.Prompt += totalTokens.Prompt
			exec.Execution.Tokens.Completion += totalTokens.Completion
			exec.Execution.Tokens.Total += totalTokens.Total
			exec.Execution.ToolCalls = toolCalls
			exec.Execution.ToolResults = toolResults
			exec.Execution.Timing = gateway.Timing{
				StartTime:         start,
				FirstResponseTime: firstResponseTime,
				Iterations:        iterations + 1,
				TimeSegments:      segments,
			}
			return exec, nil
		}

		wasPending := !queue.Done()
		queue, steering = queue.Advance(observedNames)
		drained := wasPending && queue.Done()

		// The call right after the forced queue drains is the one spec
		// §4.E calls "the final response call": no more tools are forced,
		// so the model is expected to produce its closing text next. That
		// is the call this orchestrator streams.
		if drained {
			finalRF := includeRF
			finalTools := plan.Tools
			if opts.DeferStructuredOutput && req.ResponseFormat != nil {
				finalRF = true
				finalTools = nil
			}
			w = wire(req, messages, finalTools, opts.Steer, steering, finalRF)
			exec, err := callStream(ctx, opts, providerID, w)
			if err != nil {
				return nil, gateway.NewProviderError(providerID, 0, "", start, err)
			}
			exec.Execution.Tokens.Prompt += totalTokens.Prompt
			exec.Execution.Tokens.Completion += totalTokens.Completion
			exec.Execution.Tokens.Total += totalTokens.Total
			exec.Execution.ToolCalls = toolCalls
			exec.Execution.ToolResults = toolResults
			exec.Execution.Timing = gateway.Timing{
				StartTime:         start,
				FirstResponseTime: firstResponseTime,
				Iterations:        iterations + 1,
				TimeSegments:      segments,
			}
			return exec, nil
		}

		modelStart = time.Now()
		w = wire(req, messages, plan.Tools, opts.Steer, steering, includeRF)
		result, err = callModel(ctx, opts, providerID, w)
		if err != nil {
			return nil, gateway.NewProviderError(providerID, 0, "", start, err)
		}
		modelEnd = time.Now()
		segments = append(segments, gateway.TimeSegment{Type: gateway.SegmentModel, Name: "model", StartTime: modelStart, EndTime: modelEnd, Duration: modelEnd.Sub(modelStart)})
		accumulate(&totalTokens, &cachedPromptTokens, result)
		lastContent = result.Content
		iterations++
	}

	// No forced-tool drain occurred (only auto tools were in play, or the
	// model stopped calling tools before any force completed): there is no
	// reliable signal for which call was "final," so the already-buffered
	// result is wrapped as a completed stream rather than guessed at.
	end := time.Now()
	timing := buildTiming(start, end, firstResponseTime, iterations, segments)
	execution := &gateway.Response{
		Content: lastContent, Model: req.Model, Tokens: totalTokens,
		ToolCalls: toolCalls, ToolResults: toolResults, Timing: timing, IsStreaming: true,
	}
	return &gateway.StreamingExecution{Stream: stream.FromString(lastContent), Execution: execution}, nil
}
