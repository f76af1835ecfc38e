// Package telemetry provides optional OpenTelemetry span/metric
// instrumentation around each model round-trip and tool execution. It is
// off by default: Gateway is constructed with the Noop tracer unless the caller
// supplies a real one backed by a configured TracerProvider.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

func otelTracerProvider() trace.TracerProvider { return otel.GetTracerProvider() }
func otelMeterProvider() metric.MeterProvider   { return otel.GetMeterProvider() }

// Span is the subset of trace.Span the gateway needs, kept narrow so a
// no-op implementation costs nothing.
type Span interface {
	End()
	SetStatus(code codes.Code, description string)
	RecordError(err error)
	AddEvent(name string, attrs ...attribute.KeyValue)
}

// Tracer starts spans around orchestrator work: one per model round-trip,
// one per tool execution.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, Span)
}

// Metrics records counters and histograms for request volume and latency.
type Metrics interface {
	IncCounter(name string, value float64, attrs ...attribute.KeyValue)
	RecordDuration(name string, d time.Duration, attrs ...attribute.KeyValue)
}

// Noop discards every span and metric. It is the default.
type Noop struct{}

func (Noop) Start(ctx context.Context, _ string, _ ...attribute.KeyValue) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End()                                               {}
func (noopSpan) SetStatus(codes.Code, string)                        {}
func (noopSpan) RecordError(error)                                   {}
func (noopSpan) AddEvent(string, ...attribute.KeyValue)              {}

// NoopMetrics discards every metric.
type NoopMetrics struct{}

func (NoopMetrics) IncCounter(string, float64, ...attribute.KeyValue)             {}
func (NoopMetrics) RecordDuration(string, time.Duration, ...attribute.KeyValue)   {}

// OtelTracer wraps a real trace.Tracer, for callers who have configured a
// TracerProvider (via otel.SetTracerProvider or an SDK export pipeline)
// and want gateway round-trips and tool executions to show up as spans.
type OtelTracer struct {
	tracer trace.Tracer
}

// NewOtelTracer builds a Tracer delegating to the global TracerProvider
// under the given instrumentation name.
func NewOtelTracer(name string) *OtelTracer {
	return &OtelTracer{tracer: otelTracerProvider().Tracer(name)}
}

func (t *OtelTracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, Span) {
	newCtx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return newCtx, &otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End()                                  { s.span.End() }
func (s *otelSpan) SetStatus(code codes.Code, desc string) { s.span.SetStatus(code, desc) }
func (s *otelSpan) RecordError(err error)                  { s.span.RecordError(err) }
func (s *otelSpan) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// OtelMetrics wraps a real metric.Meter.
type OtelMetrics struct {
	meter metric.Meter
}

// NewOtelMetrics builds a Metrics recorder delegating to the global
// MeterProvider under the given instrumentation name.
func NewOtelMetrics(name string) *OtelMetrics {
	return &OtelMetrics{meter: otelMeterProvider().Meter(name)}
}

func (m *OtelMetrics) IncCounter(name string, value float64, attrs ...attribute.KeyValue) {
	counter, err := m.meter.Float64Counter(name)
	if err != nil {
		return
	}
	counter.Add(context.Background(), value, metric.WithAttributes(attrs...))
}

func (m *OtelMetrics) RecordDuration(name string, d time.Duration, attrs ...attribute.KeyValue) {
	hist, err := m.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	hist.Record(context.Background(), d.Seconds(), metric.WithAttributes(attrs...))
}

// ModelRoundTrip wraps one adapter call in a span, recording the provider
// and model as attributes and the outcome as span status.
func ModelRoundTrip(ctx context.Context, t Tracer, provider, model string, fn func(context.Context) error) error {
	ctx, span := t.Start(ctx, "gateway.model_round_trip",
		attribute.String("provider", provider),
		attribute.String("model", model),
	)
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return err
}

// ToolExecution wraps one tool call in a span.
func ToolExecution(ctx context.Context, t Tracer, toolName string, fn func(context.Context) error) error {
	ctx, span := t.Start(ctx, "gateway.tool_execution", attribute.String("tool", toolName))
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return err
}
