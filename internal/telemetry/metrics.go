package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SyncMetricsMeterName is the name used for the sync metrics meter
const SyncMetricsMeterName = "github.com/stacklok/depsync/sync"

// SyncMetrics holds the instruments recorded by repository passes
type SyncMetrics struct {
	versionsTotal metric.Int64Counter
	syncDuration  metric.Float64Histogram
	knownVersions metric.Int64Gauge
}

// NewSyncMetrics creates the sync instruments. A nil provider yields nil
// metrics, on which every Record method is a no-op.
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	versionsTotal, err := meter.Int64Counter(
		"depsync_versions_total",
		metric.WithDescription("Candidate versions by terminal outcome"),
		metric.WithUnit("{version}"),
	)
	if err != nil {
		return nil, err
	}

	syncDuration, err := meter.Float64Histogram(
		"depsync_repository_sync_duration_seconds",
		metric.WithDescription("Duration of one repository pass in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 900),
	)
	if err != nil {
		return nil, err
	}

	knownVersions, err := meter.Int64Gauge(
		"depsync_known_versions",
		metric.WithDescription("Recorded versions per repository and lifecycle"),
		metric.WithUnit("{version}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		versionsTotal: versionsTotal,
		syncDuration:  syncDuration,
		knownVersions: knownVersions,
	}, nil
}

// RecordVersion counts one version reaching a terminal outcome
func (m *SyncMetrics) RecordVersion(ctx context.Context, repository, kind, outcome string) {
	if m == nil || m.versionsTotal == nil {
		return
	}

	m.versionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("repository", repository),
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

// RecordSyncDuration records the duration of one repository pass
func (m *SyncMetrics) RecordSyncDuration(ctx context.Context, repository string, duration time.Duration, success bool) {
	if m == nil || m.syncDuration == nil {
		return
	}

	m.syncDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("repository", repository),
		attribute.Bool("success", success),
	))
}

// RecordKnownVersions records the size of a repository's published and rejected sets
func (m *SyncMetrics) RecordKnownVersions(ctx context.Context, repository string, published, rejected int) {
	if m == nil || m.knownVersions == nil {
		return
	}

	m.knownVersions.Record(ctx, int64(published), metric.WithAttributes(
		attribute.String("repository", repository),
		attribute.String("lifecycle", "published"),
	))
	m.knownVersions.Record(ctx, int64(rejected), metric.WithAttributes(
		attribute.String("repository", repository),
		attribute.String("lifecycle", "rejected"),
	))
}
