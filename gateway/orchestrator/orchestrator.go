// Package orchestrator drives the multi-turn tool-calling loop: it calls an
// Adapter, extracts tool calls, executes them (via gateway/tools), advances
// the forced-tool queue, and repeats until the model stops calling tools,
// the iteration cap is hit, or a duplicate call signature is observed.
package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/taipm/llmgateway/gateway"
	"github.com/taipm/llmgateway/gateway/accounting"
	"github.com/taipm/llmgateway/gateway/idempotency"
	"github.com/taipm/llmgateway/gateway/log"
	"github.com/taipm/llmgateway/gateway/planner"
	"github.com/taipm/llmgateway/gateway/registry"
	"github.com/taipm/llmgateway/gateway/telemetry"
	"github.com/taipm/llmgateway/gateway/tools"
)

// dedupTTL bounds how long a claimed tool-call signature stays rejected for
// a replica other than the one that executed it; generous enough to cover a
// retry storm without leaking keys forever.
const dedupTTL = 5 * time.Minute

// MaxIterations bounds the tool-call loop per request (spec §4.E).
const MaxIterations = 10

// Steer resolves a planner.Steering into the provider-native tool_choice
// value an adapter's WireRequest carries. One per backend family.
type Steer func(planner.Steering) (value interface{}, omit bool)

// Options configures one orchestrated execution.
type Options struct {
	Adapter gateway.Adapter
	Steer   Steer
	Exec    tools.Execute
	Logger  log.Logger

	// Tracer and Metrics wrap each model round-trip and tool execution in
	// an optional span/metric (spec SPEC_FULL.md §3 domain stack). Nil
	// defaults to telemetry.Noop/NoopMetrics: zero overhead, no spans.
	Tracer  telemetry.Tracer
	Metrics telemetry.Metrics

	// ProviderID identifies the backend for ProviderError reporting (e.g.
	// "openai", "anthropic"). Falls back to the request's Model when empty.
	ProviderID string

	// ParallelTools enables concurrent tool execution within one iteration
	// (spec §5: only the Anthropic streaming path documents this; other
	// adapters execute sequentially for deterministic time-segment order).
	ParallelTools bool

	// SupportsForce reports whether the target provider honors force/none
	// tool_choice steering.
	SupportsForce bool

	// ToolParams are pre-bound key/value pairs per tool id, merged under
	// the model-supplied arguments before execution.
	ToolParams map[string]map[string]interface{}

	// Moderated requests moderation on every tool execution (spec §6).
	Moderated bool

	// Registry and Multiplier, when Registry is non-nil, enable cost
	// computation on the final Response (spec §4.G). Nil Registry leaves
	// Response.Cost nil.
	Registry   *registry.Registry
	Multiplier accounting.Multiplier

	// DeferStructuredOutput is set for backends that reject native
	// structured output in the same call as tools (spec §4.D: currently
	// Anthropic, Google, xAI). While tools are in play, the response format
	// is withheld from every wire request; once the tool loop naturally
	// ends, one additional tools-free call attaches it (spec §4.E
	// "final-phase rule").
	DeferStructuredOutput bool

	// Dedup, when set, extends the per-request duplicate-signature guard
	// across gateway replicas (e.g. a RedisGuard). Nil defaults to
	// idempotency.Noop, leaving only the in-process seen-set below.
	Dedup idempotency.Guard

	// RequestID scopes Dedup claims to one logical request; callers that
	// don't supply one get the request's WorkflowID and ChatID joined by a
	// NUL byte (see Run).
	RequestID string
}

// wire returns the adapter-facing WireRequest for one iteration, given the
// canonical Request, its current message history, and the planner steering.
// includeResponseFormat controls whether req.ResponseFormat travels with
// this call; it is always true unless DeferStructuredOutput is withholding
// it for a tool-bearing iteration.
func wire(base gateway.Request, messages []gateway.Message, tools_ []gateway.Tool, steer Steer, steering planner.Steering, includeResponseFormat bool) gateway.WireRequest {
	req := base
	req.Messages = messages
	req.Tools = tools_
	if !includeResponseFormat {
		req.ResponseFormat = nil
	}

	value, omit := steer(steering)
	w := gateway.WireRequest{Request: req}
	if !omit {
		w.ToolChoice = value
	}
	return w
}

func signature(tc gateway.ToolCall) string {
	args, _ := json.Marshal(tc.Arguments)
	return tc.Name + "\x00" + string(args)
}

// callModel wraps one Adapter.ExecuteRequest round-trip in a span and a
// duration/token metric (spec SPEC_FULL.md §3). Nil Tracer/Metrics fall back
// to no-ops so instrumentation costs nothing when unconfigured.
func callModel(ctx context.Context, opts Options, providerID string, w gateway.WireRequest) (gateway.AdapterResult, error) {
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.Noop{}
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NoopMetrics{}
	}

	var result gateway.AdapterResult
	start := time.Now()
	err := telemetry.ModelRoundTrip(ctx, tracer, providerID, w.Model, func(spanCtx context.Context) error {
		var execErr error
		result, execErr = opts.Adapter.ExecuteRequest(spanCtx, w)
		return execErr
	})
	elapsed := time.Since(start)

	metrics.RecordDuration("gateway.model_call.duration", elapsed, attribute.String("provider", providerID))
	if err == nil {
		metrics.IncCounter("gateway.model_call.tokens", float64(result.Tokens.Total), attribute.String("provider", providerID))
	}

	return result, err
}

// Run executes the full tool-calling loop for one Request and returns the
// terminal Response. It does not stream; see RunStream for the
// buffer-until-final-call policy.
func Run(ctx context.Context, req gateway.Request, opts Options) (*gateway.Response, error) {
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

	messages := append([]gateway.Message{}, req.Messages...)
	seen := map[string]bool{}
	var toolCalls []gateway.ExecutedToolCall
	var toolResults []gateway.ToolResult
	var segments []gateway.TimeSegment
	var totalTokens gateway.TokenUsage
	var cachedPromptTokens int

	steering := plan.Steering
	queue := plan.Queue
	hasTools := len(plan.Tools) > 0
	includeRF := !(opts.DeferStructuredOutput && hasTools)

	providerID := opts.ProviderID
	if providerID == "" {
		providerID = req.Model
	}

	start := time.Now()
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

		assistantCall := gateway.Message{Role: gateway.TurnAssistant, Content: lastContent, ToolCalls: calls}
		messages = append(messages, assistantCall)

		for _, ex := range executed {
			segments = append(segments, gateway.TimeSegment{Type: gateway.SegmentTool, Name: ex.Name, StartTime: ex.Start, EndTime: ex.End, Duration: ex.End.Sub(ex.Start)})

			var content string
			if ex.Result.Success {
				content = ex.Result.Output
			} else {
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
			// Duplicate-call guard (spec §8 scenario 6): rather than return
			// whatever partial content the duplicate-producing call left
			// behind, force one more call with tool_choice "none" so the
			// model closes out with real text instead of repeating itself.
			modelStart = time.Now()
			w = wire(req, messages, plan.Tools, opts.Steer, planner.Steering{Mode: planner.ModeNone}, includeRF)
			result, err = callModel(ctx, opts, providerID, w)
			if err != nil {
				return nil, gateway.NewProviderError(providerID, 0, "", start, err)
			}
			modelEnd = time.Now()
			segments = append(segments, gateway.TimeSegment{Type: gateway.SegmentModel, Name: "model", StartTime: modelStart, EndTime: modelEnd, Duration: modelEnd.Sub(modelStart)})
			accumulate(&totalTokens, &cachedPromptTokens, result)
			lastContent = result.Content
			iterations++
			break
		}

		queue, steering = queue.Advance(observedNames)

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

	// Final-phase rule (spec §4.E): a backend that rejected structured
	// output alongside tools gets one more tools-free call once the loop
	// is done, with the native schema finally attached.
	if opts.DeferStructuredOutput && hasTools && req.ResponseFormat != nil {
		modelStart = time.Now()
		w = wire(req, messages, nil, opts.Steer, planner.Steering{Mode: planner.ModeAuto}, true)
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

	end := time.Now()
	timing := buildTiming(start, end, firstResponseTime, iterations, segments)

	resp := &gateway.Response{
		Content:     lastContent,
		Model:       req.Model,
		Tokens:      totalTokens,
		ToolCalls:   toolCalls,
		ToolResults: toolResults,
		Timing:      timing,
	}

	if opts.Registry != nil {
		cost, err := accounting.ComputeCost(opts.Registry, req.Model, totalTokens, cachedPromptTokens, req.Context != "", opts.Multiplier)
		if err != nil {
			logger.Warn(ctx, "cost computation failed", log.F("error", err.Error()))
		} else {
			resp.Cost = cost
		}
	}

	return resp, nil
}

func accumulate(total *gateway.TokenUsage, cached *int, r gateway.AdapterResult) {
	total.Prompt += r.Tokens.Prompt
	total.Completion += r.Tokens.Completion
	total.Total += r.Tokens.Total
	*cached += r.CachedPromptTokens
}

func buildTiming(start, end time.Time, firstResponseTime time.Duration, iterations int, segments []gateway.TimeSegment) gateway.Timing {
	var modelTime, toolsTime time.Duration
	for _, s := range segments {
		switch s.Type {
		case gateway.SegmentModel:
			modelTime += s.Duration
		case gateway.SegmentTool:
			toolsTime += s.Duration
		}
	}
	return gateway.Timing{
		StartTime: start, EndTime: end, Duration: end.Sub(start),
		ModelTime: modelTime, ToolsTime: toolsTime,
		FirstResponseTime: firstResponseTime,
		Iterations:        iterations,
		TimeSegments:      segments,
	}
}
