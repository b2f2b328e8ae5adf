package telemetry

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestTracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp, err := NewTracerProvider(
		WithExporter(exporter),
		WithServiceName("servicename"),
		WithSamplingRatio(1),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})

	_, span := tp.Tracer("").Start(context.Background(), "test")
	TraceError(span, errors.New("boom"))
	span.End()

	require.NoError(t, tp.ForceFlush(context.Background()))
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Equal(t, "test", spans[0].Name)
	require.Equal(t, codes.Error, spans[0].Status.Code)
	require.Equal(t, "boom", spans[0].Status.Description)
}

func spanContext(traceID, spanID byte) trace.SpanContext {
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{traceID},
		SpanID:  trace.SpanID{spanID},
	})
}

func TestSlowTraceExporter(t *testing.T) {
	start := time.Now()
	stubs := tracetest.SpanStubs{
		{Name: "fast", SpanContext: spanContext(1, 1), StartTime: start, EndTime: start.Add(time.Millisecond)},
		{Name: "fast_child", SpanContext: spanContext(1, 2), Parent: spanContext(1, 1), StartTime: start, EndTime: start.Add(time.Millisecond)},
		{Name: "slow", SpanContext: spanContext(2, 3), StartTime: start, EndTime: start.Add(time.Second)},
		{Name: "slow_child", SpanContext: spanContext(2, 4), Parent: spanContext(2, 3), StartTime: start, EndTime: start.Add(time.Millisecond)},
	}

	inner := tracetest.NewInMemoryExporter()
	exp := NewSlowTraceExporter(inner, 100*time.Millisecond)
	require.NoError(t, exp.ExportSpans(context.Background(), stubs.Snapshots()))

	var names []string
	for _, s := range inner.GetSpans() {
		names = append(names, s.Name)
	}
	require.Equal(t, []string{"slow", "slow_child"}, names)

	inner.Reset()
	require.NoError(t, exp.ExportSpans(context.Background(), stubs[:2].Snapshots()))
	require.Empty(t, inner.GetSpans())
	require.NoError(t, exp.Shutdown(context.Background()))

	var nothing sdktrace.SpanExporter = NewSlowTraceExporter(nil, time.Second)
	require.NoError(t, nothing.ExportSpans(context.Background(), stubs.Snapshots()))
	require.NoError(t, nothing.Shutdown(context.Background()))
}

func TestWriteMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_documents_total", Help: "Documents."})
	registry.MustRegister(counter)
	counter.Add(3)

	var buf bytes.Buffer
	require.NoError(t, WriteMetrics(&buf, registry))
	require.Contains(t, buf.String(), "# TYPE test_documents_total counter")
	require.Contains(t, buf.String(), "test_documents_total 3")
}
