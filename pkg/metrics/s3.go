package metrics

import "github.com/marmos91/dittobin/pkg/blob/backend/s3"

// NewS3Metrics returns the S3 backend metrics, or nil when metrics are
// disabled.
func NewS3Metrics() s3.Metrics {
	if !IsEnabled() || newPrometheusS3Metrics == nil {
		return nil
	}
	return newPrometheusS3Metrics()
}

var newPrometheusS3Metrics func() s3.Metrics

// RegisterS3MetricsConstructor registers the Prometheus S3 metrics
// constructor.
func RegisterS3MetricsConstructor(constructor func() s3.Metrics) {
	newPrometheusS3Metrics = constructor
}
