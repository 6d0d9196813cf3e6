package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/marmos91/dittobin/pkg/gc/source/badger"
	"github.com/marmos91/dittobin/pkg/metrics"
)

// CacheStatsProvider is implemented by the badger path index.
type CacheStatsProvider interface {
	CacheStats() map[string]badger.CacheStats
}

// badgerCollector exports badger cache counters at scrape time.
type badgerCollector struct {
	src CacheStatsProvider

	hitRatio *prometheus.Desc
	hits     *prometheus.Desc
	misses   *prometheus.Desc
}

func newBadgerCollector(src CacheStatsProvider) *badgerCollector {
	labels := []string{"cache_type"} // "block", "index"
	return &badgerCollector{
		src: src,
		hitRatio: prometheus.NewDesc(
			"dittobin_badger_cache_hit_ratio",
			"BadgerDB cache hit ratio (0.0 to 1.0) by cache type",
			labels, nil,
		),
		hits: prometheus.NewDesc(
			"dittobin_badger_cache_hits_total",
			"Total number of BadgerDB cache hits by cache type",
			labels, nil,
		),
		misses: prometheus.NewDesc(
			"dittobin_badger_cache_misses_total",
			"Total number of BadgerDB cache misses by cache type",
			labels, nil,
		),
	}
}

func (c *badgerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hitRatio
	ch <- c.hits
	ch <- c.misses
}

func (c *badgerCollector) Collect(ch chan<- prometheus.Metric) {
	for cacheType, st := range c.src.CacheStats() {
		ch <- prometheus.MustNewConstMetric(c.hitRatio, prometheus.GaugeValue, st.Ratio, cacheType)
		ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(st.Hits), cacheType)
		ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(st.Misses), cacheType)
	}
}

// RegisterBadgerIndex exports the cache counters of a badger path index.
// It is a no-op when metrics are disabled.
func RegisterBadgerIndex(src CacheStatsProvider) error {
	if !metrics.IsEnabled() {
		return nil
	}
	return metrics.GetRegistry().Register(newBadgerCollector(src))
}
