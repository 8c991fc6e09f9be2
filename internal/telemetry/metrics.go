// Package telemetry provides OpenTelemetry instrumentation for the item browser.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// BrowseMetricsMeterName is the name used for the browse metrics meter
	BrowseMetricsMeterName = "github.com/stacklok/itembrowser/browse"
)

// Fetch outcomes recorded on the fetch duration histogram
const (
	OutcomeLoaded    = "loaded"
	OutcomeFailed    = "failed"
	OutcomeStale     = "stale"
	OutcomeCancelled = "cancelled"
)

// BrowseMetrics holds the OpenTelemetry instruments for page fetches and mutations
type BrowseMetrics struct {
	fetchDuration metric.Float64Histogram
	staleResults  metric.Int64Counter
	mutations     metric.Int64Counter
}

// NewBrowseMetrics creates a new BrowseMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewBrowseMetrics(provider metric.MeterProvider) (*BrowseMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(BrowseMetricsMeterName)

	fetchDuration, err := meter.Float64Histogram(
		"itembrowser_fetch_duration_seconds",
		metric.WithDescription("Duration of page fetches in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	staleResults, err := meter.Int64Counter(
		"itembrowser_stale_results_total",
		metric.WithDescription("Number of fetch results discarded because a newer fetch had started"),
		metric.WithUnit("{result}"),
	)
	if err != nil {
		return nil, err
	}

	mutations, err := meter.Int64Counter(
		"itembrowser_mutations_total",
		metric.WithDescription("Number of create, update and delete operations"),
		metric.WithUnit("{mutation}"),
	)
	if err != nil {
		return nil, err
	}

	return &BrowseMetrics{
		fetchDuration: fetchDuration,
		staleResults:  staleResults,
		mutations:     mutations,
	}, nil
}

// RecordFetch records the duration of a page fetch and how it ended
func (m *BrowseMetrics) RecordFetch(ctx context.Context, duration time.Duration, outcome string) {
	if m == nil || m.fetchDuration == nil {
		return
	}

	m.fetchDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordStaleResult counts a fetch result discarded by epoch comparison
func (m *BrowseMetrics) RecordStaleResult(ctx context.Context) {
	if m == nil || m.staleResults == nil {
		return
	}

	m.staleResults.Add(ctx, 1)
}

// RecordMutation counts a create, update or delete
func (m *BrowseMetrics) RecordMutation(ctx context.Context, op string, success bool) {
	if m == nil || m.mutations == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("op", op),
		attribute.Bool("success", success),
	}

	m.mutations.Add(ctx, 1, metric.WithAttributes(attrs...))
}
