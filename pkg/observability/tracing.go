// Package observability wraps OpenTelemetry tracing for migration runs.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	migerrors "github.com/vicentefritzen/petsys-migracao/pkg/errors"
)

// TracerName is the instrumentation scope for petmig spans.
const TracerName = "petmig"

// Span attribute keys.
const (
	AttrTenantID   = "tenant_id"
	AttrStage      = "stage"
	AttrPhase      = "phase"
	AttrDryRun     = "dry_run"
	AttrChunkIndex = "chunk_index"
	AttrChunkRows  = "chunk_rows"
	AttrErrorCode  = "error_code"
	AttrRetryable  = "retryable"
)

// Tracer starts spans for the stages of a run.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer uses the global provider, which is a no-op unless the binary
// installs one.
func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer(TracerName)}
}

// NewTracerWithProvider uses tp instead of the global provider.
func NewTracerWithProvider(tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(TracerName)}
}

// StartRun starts the root span of a stage run, e.g. "notes".
func (t *Tracer) StartRun(ctx context.Context, stage, tenantID string, dryRun bool) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, fmt.Sprintf("petmig.%s.run", stage),
		trace.WithAttributes(
			attribute.String(AttrStage, stage),
			attribute.String(AttrTenantID, tenantID),
			attribute.Bool(AttrDryRun, dryRun),
		),
	)
}

// StartPhase starts a span for one phase of a run, e.g. "load_reference".
func (t *Tracer) StartPhase(ctx context.Context, stage, phase string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, fmt.Sprintf("petmig.%s.%s", stage, phase),
		trace.WithAttributes(
			attribute.String(AttrStage, stage),
			attribute.String(AttrPhase, phase),
		),
	)
}

// StartChunk starts a span around one persisted chunk.
func (t *Tracer) StartChunk(ctx context.Context, stage string, index, rows int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, fmt.Sprintf("petmig.%s.persist_chunk", stage),
		trace.WithAttributes(
			attribute.String(AttrStage, stage),
			attribute.Int(AttrChunkIndex, index),
			attribute.Int(AttrChunkRows, rows),
		),
	)
}

// SpanHelper sets common attributes on a span.
type SpanHelper struct {
	span trace.Span
}

// NewSpanHelper wraps span.
func NewSpanHelper(span trace.Span) *SpanHelper {
	return &SpanHelper{span: span}
}

// SetCounts records integer counters as span attributes.
func (h *SpanHelper) SetCounts(counts map[string]int) {
	for k, v := range counts {
		h.span.SetAttributes(attribute.Int(k, v))
	}
}

// SetError marks the span failed. Migration errors contribute their code.
func (h *SpanHelper) SetError(err error) {
	if err == nil {
		return
	}
	h.span.SetStatus(codes.Error, err.Error())
	h.span.RecordError(err)
	if code := migerrors.CodeOf(err); code != "" {
		h.span.SetAttributes(
			attribute.String(AttrErrorCode, string(code)),
			attribute.Bool(AttrRetryable, migerrors.IsRetryable(code)),
		)
	}
}

// SetSuccess marks the span successful.
func (h *SpanHelper) SetSuccess() {
	h.span.SetStatus(codes.Ok, "")
}
