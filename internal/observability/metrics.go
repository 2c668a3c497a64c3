package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the run-scoped counters a pipeline run reports: commits
// walked, diffs collected, and parse-cache hit rate. With no meter
// configured (the default), every instrument is a no-op, exactly as
// the teacher's RED-metrics layer defaults to no-op without an OTLP
// endpoint.
type Metrics struct {
	CommitsWalked  metric.Int64Counter
	DiffsCollected metric.Int64Counter
	CacheHits      metric.Int64Counter
	CacheMisses    metric.Int64Counter
}

// NewMetrics builds a Metrics bound to meter. Pass noop.NewMeterProvider()'s
// meter (via NewNoopProvider) when metrics export is disabled.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	commitsWalked, err := meter.Int64Counter(
		"cochange.commits_walked",
		metric.WithDescription("commits emitted by the commit walker"),
	)
	if err != nil {
		return nil, fmt.Errorf("create commits_walked counter: %w", err)
	}

	diffsCollected, err := meter.Int64Counter(
		"cochange.diffs_collected",
		metric.WithDescription("non-merge commits diffed"),
	)
	if err != nil {
		return nil, fmt.Errorf("create diffs_collected counter: %w", err)
	}

	cacheHits, err := meter.Int64Counter(
		"cochange.parse_cache_hits",
		metric.WithDescription("blob-parse cache hits"),
	)
	if err != nil {
		return nil, fmt.Errorf("create parse_cache_hits counter: %w", err)
	}

	cacheMisses, err := meter.Int64Counter(
		"cochange.parse_cache_misses",
		metric.WithDescription("blob-parse cache misses"),
	)
	if err != nil {
		return nil, fmt.Errorf("create parse_cache_misses counter: %w", err)
	}

	return &Metrics{
		CommitsWalked:  commitsWalked,
		DiffsCollected: diffsCollected,
		CacheHits:      cacheHits,
		CacheMisses:    cacheMisses,
	}, nil
}

// NewNoopProvider returns the default, zero-cost meter provider used when
// no --otlp-endpoint is configured.
func NewNoopProvider() metric.MeterProvider {
	return noop.NewMeterProvider()
}

// NewPrometheusProvider builds a meter provider that exposes an
// OpenTelemetry-instrumented Prometheus registry, mirroring the teacher's
// independent-registry + promexporter idiom. The caller is responsible for
// serving the returned exporter's HTTP handler.
func NewPrometheusProvider(ctx context.Context) (metric.MeterProvider, *prometheus.Exporter, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	_ = ctx // reserved for provider shutdown wiring by the caller

	return provider, exporter, nil
}
