package metrics

import "github.com/marmos91/dittobin/pkg/api"

// NewHTTPMetrics returns the HTTP API metrics, or nil when metrics are
// disabled.
func NewHTTPMetrics() api.Metrics {
	if !IsEnabled() || newPrometheusHTTPMetrics == nil {
		return nil
	}
	return newPrometheusHTTPMetrics()
}

var newPrometheusHTTPMetrics func() api.Metrics

// RegisterHTTPMetricsConstructor registers the Prometheus HTTP metrics
// constructor.
func RegisterHTTPMetricsConstructor(constructor func() api.Metrics) {
	newPrometheusHTTPMetrics = constructor
}
