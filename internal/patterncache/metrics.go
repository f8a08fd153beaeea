package patterncache

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the Prometheus metrics for the pattern cache, prefixed
// "patterncache_" for namespacing, mirroring the counters pkg/prefetch
// registers for its own project cache. A single set is registered
// globally and shared by every Cache instance in the process, avoiding
// "duplicate metrics collector registration" panics.
type Metrics struct {
	HitsTotal        prometheus.Counter
	MissesTotal      prometheus.Counter
	ExpirationsTotal prometheus.Counter
	EvictionsTotal   prometheus.Counter
	CacheSize        prometheus.Gauge
}

func newMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			HitsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "patterncache_hits_total",
				Help: "Total number of pattern cache hits.",
			}),
			MissesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "patterncache_misses_total",
				Help: "Total number of pattern cache misses.",
			}),
			ExpirationsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "patterncache_expirations_total",
				Help: "Total number of entries removed due to TTL or hour-bucket expiry.",
			}),
			EvictionsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "patterncache_evictions_total",
				Help: "Total number of entries removed by LRU eviction.",
			}),
			CacheSize: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "patterncache_size",
				Help: "Current number of cached entries.",
			}),
		}
	})
	return globalMetrics
}
