package metrics

import "github.com/marmos91/dittobin/pkg/blob"

// NewBlobMetrics returns the blob store metrics, or nil when metrics are
// disabled. A nil value passed to blob.Options disables collection with zero
// overhead.
func NewBlobMetrics() blob.Metrics {
	if !IsEnabled() || newPrometheusBlobMetrics == nil {
		return nil
	}
	return newPrometheusBlobMetrics()
}

// newPrometheusBlobMetrics is set by pkg/metrics/prometheus to avoid an
// import cycle.
var newPrometheusBlobMetrics func() blob.Metrics

// RegisterBlobMetricsConstructor registers the Prometheus blob metrics
// constructor. Called by pkg/metrics/prometheus during initialization.
func RegisterBlobMetricsConstructor(constructor func() blob.Metrics) {
	newPrometheusBlobMetrics = constructor
}
