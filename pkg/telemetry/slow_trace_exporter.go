package telemetry

import (
	"context"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

type slowTraceExporter struct {
	wrapped sdktrace.SpanExporter

	threshold time.Duration
}

var _ sdktrace.SpanExporter = (*slowTraceExporter)(nil)

// NewSlowTraceExporter returns an exporter that forwards the spans of a
// trace to exporter only if the root span of that trace in the batch lasted
// at least threshold. Slow queries keep their shard and assembly spans;
// fast ones are dropped whole.
//
// If the exporter is nil, nothing is exported.
func NewSlowTraceExporter(exporter sdktrace.SpanExporter, threshold time.Duration) sdktrace.SpanExporter {
	return &slowTraceExporter{wrapped: exporter, threshold: threshold}
}

func (t *slowTraceExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if t.wrapped == nil {
		return nil
	}

	slow := make(map[trace.TraceID]struct{})
	for _, span := range spans {
		if span.Parent().IsValid() {
			continue
		}
		if span.EndTime().Sub(span.StartTime()) >= t.threshold {
			slow[span.SpanContext().TraceID()] = struct{}{}
		}
	}

	kept := make([]sdktrace.ReadOnlySpan, 0, len(spans))
	for _, span := range spans {
		if _, ok := slow[span.SpanContext().TraceID()]; ok {
			kept = append(kept, span)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return t.wrapped.ExportSpans(ctx, kept)
}

func (t *slowTraceExporter) Shutdown(ctx context.Context) error {
	if t.wrapped == nil {
		return nil
	}
	return t.wrapped.Shutdown(ctx)
}
