package otel

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func recordingTracer(t *testing.T) (*tracetest.InMemoryExporter, trace.Tracer) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter, tp.Tracer("itembrowser-test")
}

func attrMap(attrs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value, len(attrs))
	for _, a := range attrs {
		out[a.Key] = a.Value
	}
	return out
}

func TestStartSpan_WithoutTracer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	got, span := StartSpan(ctx, nil, "browse.Fetch")

	assert.Equal(t, ctx, got)
	assert.False(t, span.SpanContext().IsValid())
	assert.NotPanics(t, func() {
		RecordStatusError(span, errors.New("boom"), 502)
		span.End()
	})
}

func TestStartSpan_FetchAttributes(t *testing.T) {
	t.Parallel()

	exporter, tracer := recordingTracer(t)
	_, span := StartSpan(context.Background(), tracer, "browse.Fetch",
		trace.WithAttributes(FetchAttributes(7, true, "rock", "Primary")...))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "browse.Fetch", spans[0].Name)

	attrs := attrMap(spans[0].Attributes)
	assert.Equal(t, int64(7), attrs[AttrEpoch].AsInt64())
	assert.True(t, attrs[AttrHasCursor].AsBool())
	assert.Equal(t, "rock", attrs[AttrSearch].AsString())
	assert.Equal(t, "Primary", attrs[AttrGroup].AsString())
}

func TestFetchAttributes(t *testing.T) {
	t.Parallel()

	attrs := attrMap(FetchAttributes(0, false, "", ""))
	require.Len(t, attrs, 4)
	assert.Equal(t, "", attrs[AttrSearch].AsString(), "empty filters are still recorded")
	assert.False(t, attrs[AttrHasCursor].AsBool())

	attrs = attrMap(FetchAttributes(math.MaxUint64, false, "", ""))
	assert.Equal(t, int64(math.MaxInt64), attrs[AttrEpoch].AsInt64())
}

func TestRecordStatusError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		statusCode int
		wantStatus codes.Code
		wantCode   bool
	}{
		{name: "server error", err: errors.New("502 Bad Gateway"), statusCode: 502, wantStatus: codes.Error, wantCode: true},
		{name: "no response", err: errors.New("connection refused"), wantStatus: codes.Error},
		{name: "no error", statusCode: 200, wantStatus: codes.Unset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			exporter, tracer := recordingTracer(t)
			_, span := tracer.Start(context.Background(), "items.ListRecords")
			RecordStatusError(span, tt.err, tt.statusCode)
			span.End()

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, tt.wantStatus, spans[0].Status.Code)

			code, ok := attrMap(spans[0].Attributes)[AttrStatusCode]
			assert.Equal(t, tt.wantCode, ok)
			if tt.wantCode {
				assert.Equal(t, int64(tt.statusCode), code.AsInt64())
			}
		})
	}
}

func TestRecordError_KeepsInputOutOfStatus(t *testing.T) {
	t.Parallel()

	exporter, tracer := recordingTracer(t)
	_, span := tracer.Start(context.Background(), "items.ListRecords")
	RecordError(span, errors.New(`GET "/api/items/?search=secret" failed`))
	RecordError(nil, errors.New("ignored"))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "operation failed", spans[0].Status.Description)
	require.Len(t, spans[0].Events, 1)
	assert.Equal(t, "exception", spans[0].Events[0].Name)
}
