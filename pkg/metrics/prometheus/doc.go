// Package prometheus provides the Prometheus implementations of the
// component metrics interfaces. Importing it registers the constructors used
// by package metrics:
//
//	import _ "github.com/marmos91/dittobin/pkg/metrics/prometheus"
package prometheus

import "github.com/marmos91/dittobin/pkg/metrics"

func init() {
	metrics.RegisterBlobMetricsConstructor(NewBlobMetrics)
	metrics.RegisterGCMetricsConstructor(NewGCMetrics)
	metrics.RegisterS3MetricsConstructor(NewS3Metrics)
	metrics.RegisterHTTPMetricsConstructor(NewHTTPMetrics)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
