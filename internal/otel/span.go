// Package otel provides OpenTelemetry instrumentation utilities for the item browser.
package otel

import (
	"context"
	"math"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for business context used across the application.
// Using shared keys ensures consistent attribute naming in traces.
const (
	AttrOperation   = attribute.Key("items.operation")
	AttrRecordID    = attribute.Key("record.id")
	AttrSearch      = attribute.Key("browse.search")
	AttrGroup       = attribute.Key("browse.group")
	AttrEpoch       = attribute.Key("browse.epoch")
	AttrHasCursor   = attribute.Key("pagination.has_cursor")
	AttrResultCount = attribute.Key("result.count")
	AttrStatusCode  = attribute.Key("http.response.status_code")
)

// StartSpan starts a new span if the tracer is non-nil, otherwise returns a no-op span.
// This provides graceful degradation when tracing is disabled.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records an error on a span and sets the span status to error.
// It safely handles nil spans and nil errors.
// Note: The status description is intentionally generic so that request URLs
// and user input do not end up in the span status. The full error is still
// available via span events.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}

// FetchAttributes describes one page fetch of the browser. The search and
// group are recorded even when empty so fetches can be grouped by filter.
func FetchAttributes(epoch uint64, hasCursor bool, search, group string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEpoch.Int64(int64(min(epoch, math.MaxInt64))), //nolint:gosec // clamped above
		AttrHasCursor.Bool(hasCursor),
		AttrSearch.String(search),
		AttrGroup.String(group),
	}
}

// RecordStatusError records err like RecordError and, when statusCode is
// non-zero, the HTTP status the items API answered with.
func RecordStatusError(span trace.Span, err error, statusCode int) {
	if err == nil || span == nil {
		return
	}
	if statusCode != 0 {
		span.SetAttributes(AttrStatusCode.Int(statusCode))
	}
	RecordError(span, err)
}
