package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittobin/pkg/blob"
	"github.com/marmos91/dittobin/pkg/metrics"
)

// blobMetrics is the Prometheus implementation of blob.Metrics.
type blobMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTotal        *prometheus.CounterVec
	dedupHits         prometheus.Counter
	dedupBytes        prometheus.Counter
	records           prometheus.Gauge
}

// NewBlobMetrics creates Prometheus-backed blob store metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewBlobMetrics() blob.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &blobMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittobin_blob_operations_total",
				Help: "Total number of blob store operations by operation and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittobin_blob_operation_duration_milliseconds",
				Help: "Duration of blob store operations in milliseconds",
				Buckets: []float64{
					1,     // 1ms - deduplicated puts
					10,    // 10ms
					50,    // 50ms - small local blobs
					100,   // 100ms
					500,   // 500ms
					1000,  // 1s - large or remote blobs
					5000,  // 5s
					30000, // 30s - very large uploads
				},
			},
			[]string{"operation"},
		),
		bytesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittobin_blob_bytes_total",
				Help: "Total bytes written, read and reclaimed by the blob store",
			},
			[]string{"operation"},
		),
		dedupHits: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittobin_blob_dedup_hits_total",
				Help: "Total number of puts satisfied by already stored content",
			},
		),
		dedupBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittobin_blob_dedup_bytes_total",
				Help: "Total bytes not written thanks to deduplication",
			},
		),
		records: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittobin_blob_records",
				Help: "Current number of records in the blob registry",
			},
		),
	}
}

func (m *blobMetrics) ObservePut(bytes uint64, deduplicated bool, duration time.Duration, err error) {
	if m == nil {
		return
	}

	m.operationsTotal.WithLabelValues("put", status(err)).Inc()
	m.operationDuration.WithLabelValues("put").Observe(duration.Seconds() * 1000)
	if err != nil {
		return
	}
	if deduplicated {
		m.dedupHits.Inc()
		m.dedupBytes.Add(float64(bytes))
		return
	}
	m.bytesTotal.WithLabelValues("write").Add(float64(bytes))
}

func (m *blobMetrics) ObserveGet(bytes uint64, duration time.Duration, err error) {
	if m == nil {
		return
	}

	m.operationsTotal.WithLabelValues("get", status(err)).Inc()
	m.operationDuration.WithLabelValues("get").Observe(duration.Seconds() * 1000)
	if err == nil {
		m.bytesTotal.WithLabelValues("read").Add(float64(bytes))
	}
}

func (m *blobMetrics) ObserveDelete(bytes uint64, err error) {
	if m == nil {
		return
	}

	m.operationsTotal.WithLabelValues("delete", status(err)).Inc()
	if err == nil {
		m.bytesTotal.WithLabelValues("reclaim").Add(float64(bytes))
	}
}

func (m *blobMetrics) SetRecords(count int) {
	if m == nil {
		return
	}
	m.records.Set(float64(count))
}
