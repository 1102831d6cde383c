package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the phone module: write volumes, the
// replace critical path, and loader cache effectiveness.
type Metrics struct {
	PhonesWritten   *prometheus.CounterVec
	PhonesDeleted   prometheus.Counter
	ReplaceDuration prometheus.Histogram
	ListDuration    prometheus.Histogram
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
}

// New creates a new Metrics instance with all phone module metrics registered.
func New() *Metrics {
	return &Metrics{
		PhonesWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "phones_written_total",
			Help: "Total phone rows written, by operation",
		}, []string{"operation"}),
		PhonesDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "phones_deleted_total",
			Help: "Total phone rows deleted",
		}),
		ReplaceDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "phones_replace_duration_seconds",
			Help:    "Duration of replace reconciliations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		ListDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "phones_list_duration_seconds",
			Help:    "Duration of list queries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "phones_view_cache_hits_total",
			Help: "Phone view loads served from the cache",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "phones_view_cache_misses_total",
			Help: "Phone view loads that fell through to the store",
		}),
	}
}

// RecordWritten counts rows written by one operation (create, update,
// replace, upsert).
func (m *Metrics) RecordWritten(operation string, n int) {
	if m == nil {
		return
	}
	m.PhonesWritten.WithLabelValues(operation).Add(float64(n))
}

// RecordDeleted counts rows removed.
func (m *Metrics) RecordDeleted(n int) {
	if m == nil {
		return
	}
	m.PhonesDeleted.Add(float64(n))
}

// ObserveReplace records one replace duration in seconds.
func (m *Metrics) ObserveReplace(seconds float64) {
	if m == nil {
		return
	}
	m.ReplaceDuration.Observe(seconds)
}

// ObserveList records one list duration in seconds.
func (m *Metrics) ObserveList(seconds float64) {
	if m == nil {
		return
	}
	m.ListDuration.Observe(seconds)
}

// RecordCacheHit counts a loader cache hit.
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

// RecordCacheMiss counts a loader cache miss.
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}
