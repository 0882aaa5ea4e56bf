package operations

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"shockstudy/internal/infrastructure"
)

// StageTracer instruments stage execution with spans and pipeline metrics
type StageTracer struct {
	providers *infrastructure.OTelProviders
}

// NewStageTracer creates a tracer. Nil providers give a no-op tracer.
func NewStageTracer(providers *infrastructure.OTelProviders) *StageTracer {
	return &StageTracer{providers: providers}
}

// TraceRun starts the span covering a whole run
func (t *StageTracer) TraceRun(ctx context.Context, runID string, stages []string) (context.Context, trace.Span) {
	if t.providers == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.providers.Tracer.Start(ctx, "pipeline.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.StringSlice("stages", stages),
		))
}

// TraceStage starts the span of one stage
func (t *StageTracer) TraceStage(ctx context.Context, stageID string) (context.Context, trace.Span) {
	if t.providers == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.providers.StartStageSpan(ctx, stageID)
}

// RecordStage ends the stage span and records duration, outcome and ticker
// counts
func (t *StageTracer) RecordStage(ctx context.Context, span trace.Span, stageID string, duration time.Duration, out StageOutput, err error) {
	span.SetAttributes(
		attribute.Float64("stage.duration_seconds", duration.Seconds()),
		attribute.Int("stage.tickers_processed", out.Processed),
		attribute.Int("stage.tickers_skipped", out.Skipped),
		attribute.Int("stage.outputs", len(out.Files)),
	)
	if t.providers != nil {
		m := t.providers.Metrics
		m.RecordStage(ctx, stageID, duration, err)
		if err == nil {
			m.RecordTickers(ctx, stageID, out.Processed, out.Skipped)
			m.RecordDegraded(ctx, out.Degraded)
		}
	}
	infrastructure.EndSpan(span, err)
}

// Flush writes the metrics textfile when one is configured
func (t *StageTracer) Flush(path string) error {
	if t.providers == nil {
		return nil
	}
	return t.providers.WriteMetricsTextfile(path)
}
