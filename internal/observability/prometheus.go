package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
)

// PrometheusHandler builds an HTTP handler serving exporter's metrics
// against an independent registry, rather than the process-global default
// registerer, matching the teacher's isolated-registry convention.
func PrometheusHandler(exporter *otelprom.Exporter) (http.Handler, error) {
	registry := prometheus.NewRegistry()

	if err := registry.Register(exporter); err != nil {
		return nil, fmt.Errorf("register otel prometheus collector: %w", err)
	}

	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}
