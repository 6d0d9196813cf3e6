package metrics

import "github.com/marmos91/dittobin/pkg/gc"

// NewGCMetrics returns the collector metrics, or nil when metrics are
// disabled.
func NewGCMetrics() gc.Metrics {
	if !IsEnabled() || newPrometheusGCMetrics == nil {
		return nil
	}
	return newPrometheusGCMetrics()
}

var newPrometheusGCMetrics func() gc.Metrics

// RegisterGCMetricsConstructor registers the Prometheus collector metrics
// constructor.
func RegisterGCMetricsConstructor(constructor func() gc.Metrics) {
	newPrometheusGCMetrics = constructor
}
