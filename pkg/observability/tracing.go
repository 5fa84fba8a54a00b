package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the name of the tracer for review operations.
	TracerName = "transcriber"
)

// Span attribute keys
const (
	AttrRunID        = "run_id"
	AttrSourceID     = "source_id"
	AttrSegmentIndex = "segment_index"
	AttrModel        = "model"
	AttrDurationMs   = "duration_ms"
	AttrInputTokens  = "input_tokens"
	AttrOutputTokens = "output_tokens"
	AttrRelevant     = "relevant"
	AttrEvidence     = "evidence_count"
	AttrErrorType    = "error_type"
	AttrRetryable    = "retryable"
)

// Span names
const (
	SpanRun      = "transcriber.run"
	SpanSegment  = "transcriber.segment"
	SpanGenerate = "transcriber.generate"
	SpanPull     = "transcriber.pull"
)

// Tracer provides tracing for review operations.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer backed by the global otel provider.
func NewTracer() *Tracer {
	return NewTracerWithProvider(otel.GetTracerProvider())
}

// NewTracerWithProvider creates a tracer from a specific provider.
func NewTracerWithProvider(tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(TracerName)}
}

// StartRunSpan starts the root span for a review run.
func (t *Tracer) StartRunSpan(ctx context.Context, runID, model string, segments int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanRun,
		trace.WithAttributes(
			attribute.String(AttrRunID, runID),
			attribute.String(AttrModel, model),
			attribute.Int("segments", segments),
		),
	)
}

// StartSegmentSpan starts a span for analyzing one segment.
func (t *Tracer) StartSegmentSpan(ctx context.Context, sourceID string, index int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanSegment,
		trace.WithAttributes(
			attribute.String(AttrSourceID, sourceID),
			attribute.Int(AttrSegmentIndex, index),
		),
	)
}

// StartLLMSpan starts a span for a generation call.
func (t *Tracer) StartLLMSpan(ctx context.Context, model string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanGenerate,
		trace.WithAttributes(
			attribute.String(AttrModel, model),
		),
	)
}

// StartPullSpan starts a span for a model download.
func (t *Tracer) StartPullSpan(ctx context.Context, model string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanPull,
		trace.WithAttributes(
			attribute.String(AttrModel, model),
		),
	)
}

// SpanHelper provides convenient methods for working with the current span.
type SpanHelper struct {
	span trace.Span
}

// NewSpanHelper creates a new span helper for the given span.
func NewSpanHelper(span trace.Span) *SpanHelper {
	return &SpanHelper{span: span}
}

// SetLLMResult sets generation result attributes.
func (h *SpanHelper) SetLLMResult(inputTokens, outputTokens int, latencyMs int64) {
	h.span.SetAttributes(
		attribute.Int(AttrInputTokens, inputTokens),
		attribute.Int(AttrOutputTokens, outputTokens),
		attribute.Int64(AttrDurationMs, latencyMs),
	)
}

// SetVerdict sets the analysis outcome attributes.
func (h *SpanHelper) SetVerdict(relevant bool, evidence int) {
	h.span.SetAttributes(
		attribute.Bool(AttrRelevant, relevant),
		attribute.Int(AttrEvidence, evidence),
	)
}

// SetError records an error on the span.
func (h *SpanHelper) SetError(err error, errorType string, retryable bool) {
	h.span.SetStatus(codes.Error, err.Error())
	h.span.SetAttributes(
		attribute.String(AttrErrorType, errorType),
		attribute.Bool(AttrRetryable, retryable),
	)
	h.span.RecordError(err)
}

// SetSuccess marks the span as successful.
func (h *SpanHelper) SetSuccess() {
	h.span.SetStatus(codes.Ok, "")
}

// AddEvent adds an event to the span.
func (h *SpanHelper) AddEvent(name string, attrs ...attribute.KeyValue) {
	h.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// GetTraceID returns the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
