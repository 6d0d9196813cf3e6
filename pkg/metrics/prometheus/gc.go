package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittobin/pkg/gc"
	"github.com/marmos91/dittobin/pkg/metrics"
)

// gcMetrics is the Prometheus implementation of gc.Metrics.
type gcMetrics struct {
	runsTotal      *prometheus.CounterVec
	runDuration    prometheus.Histogram
	phase          *prometheus.GaugeVec
	cleaned        prometheus.Counter
	reclaimed      prometheus.Counter
	deleteErrors   prometheus.Counter
	removed        prometheus.Counter
	scanErrors     *prometheus.CounterVec
	sourceNodes    *prometheus.CounterVec
	sourceDuration *prometheus.HistogramVec
	lastSuccess    prometheus.Gauge
}

var phases = []gc.Phase{gc.Idle, gc.Scanning, gc.Stopped, gc.Swept}

// NewGCMetrics creates Prometheus-backed collector metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewGCMetrics() gc.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &gcMetrics{
		runsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittobin_gc_runs_total",
				Help: "Total number of completed collection runs by outcome",
			},
			[]string{"outcome"}, // "complete", "aborted"
		),
		runDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dittobin_gc_run_duration_seconds",
				Help:    "Wall-clock duration of collection runs from first scan to end of sweep",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 10), // 10ms .. ~45min
			},
		),
		phase: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dittobin_gc_phase",
				Help: "Current collector phase (1 for the active phase, 0 otherwise)",
			},
			[]string{"phase"},
		),
		cleaned: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittobin_gc_blobs_deleted_total",
				Help: "Total number of blobs physically deleted by the collector",
			},
		),
		reclaimed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittobin_gc_bytes_reclaimed_total",
				Help: "Total bytes reclaimed by the collector",
			},
		),
		deleteErrors: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittobin_gc_delete_errors_total",
				Help: "Total number of failed physical deletions",
			},
		),
		removed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittobin_gc_records_removed_total",
				Help: "Total number of records dropped from the registry",
			},
		),
		scanErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittobin_gc_scan_errors_total",
				Help: "Total enumeration problems by source and kind",
			},
			[]string{"source", "kind"}, // "node", "invalid", "source"
		),
		sourceNodes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittobin_gc_source_nodes_total",
				Help: "Total nodes enumerated by source",
			},
			[]string{"source"},
		),
		sourceDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dittobin_gc_source_scan_duration_seconds",
				Help:    "Duration of one source enumeration",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms .. ~4min
			},
			[]string{"source"},
		),
		lastSuccess: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittobin_gc_last_success_timestamp_seconds",
				Help: "Unix time of the last run that completed its sweep",
			},
		),
	}
}

func (m *gcMetrics) ObservePhase(p gc.Phase) {
	if m == nil {
		return
	}
	for _, ph := range phases {
		v := 0.0
		if ph == p {
			v = 1
		}
		m.phase.WithLabelValues(ph.String()).Set(v)
	}
}

func (m *gcMetrics) ObserveSource(r gc.SourceReport) {
	if m == nil {
		return
	}

	m.sourceNodes.WithLabelValues(r.Name).Add(float64(r.Nodes))
	m.sourceDuration.WithLabelValues(r.Name).Observe(r.Duration.Seconds())
	if r.Errors > 0 {
		m.scanErrors.WithLabelValues(r.Name, "node").Add(float64(r.Errors))
	}
	if r.Invalid > 0 {
		m.scanErrors.WithLabelValues(r.Name, "invalid").Add(float64(r.Invalid))
	}
	if r.Failed() {
		m.scanErrors.WithLabelValues(r.Name, "source").Inc()
	}
}

func (m *gcMetrics) ObserveRun(r *gc.Report) {
	if m == nil || r == nil {
		return
	}

	outcome := "complete"
	if r.Aborted {
		outcome = "aborted"
	}
	m.runsTotal.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(r.Duration().Seconds())
	m.cleaned.Add(float64(r.Cleaned))
	m.reclaimed.Add(float64(r.BytesReclaimed))
	m.deleteErrors.Add(float64(r.DeleteErrors))
	m.removed.Add(float64(r.Removed))
	if !r.Aborted {
		m.lastSuccess.Set(float64(r.SweptAt.Unix()))
	}
}
