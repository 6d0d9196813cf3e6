package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittobin/pkg/blob/backend/s3"
	"github.com/marmos91/dittobin/pkg/metrics"
)

// s3Directions maps the data-carrying S3 calls to a transfer direction.
// Calls not listed carry no payload and are not counted in bytes.
var s3Directions = map[string]string{
	"PutObject": "write",
	"GetObject": "read",
}

type s3Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
}

// NewS3Metrics returns S3 backend metrics, or nil before InitRegistry.
func NewS3Metrics() s3.Metrics {
	reg := metrics.GetRegistry()
	if reg == nil {
		return nil
	}
	f := promauto.With(reg)

	return &s3Metrics{
		operationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dittobin_s3_operations_total",
			Help: "S3 API calls by operation and outcome.",
		}, []string{"operation", "status"}),

		// 5ms to ~80s: HEAD on a warm bucket up to multi-GiB uploads.
		operationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dittobin_s3_operation_duration_seconds",
			Help:    "Latency of S3 API calls.",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"operation"}),

		bytesTransferred: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dittobin_s3_bytes_transferred_total",
			Help: "Blob payload bytes sent to or read from S3.",
		}, []string{"operation", "direction"}),
	}
}

func (m *s3Metrics) ObserveOperation(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operation, status(err)).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *s3Metrics) RecordBytes(operation string, bytes int64) {
	if m == nil || bytes <= 0 {
		return
	}
	direction, ok := s3Directions[operation]
	if !ok {
		return
	}
	m.bytesTransferred.WithLabelValues(operation, direction).Add(float64(bytes))
}
