// Package metrics provides Prometheus metrics for the cache engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Miss reasons.
const (
	MissAbsent = "absent"
	MissStale  = "stale"
)

// Metrics holds all Prometheus metrics for one engine. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Hits              prometheus.Counter
	Misses            *prometheus.CounterVec
	Evictions         prometheus.Counter
	EvictionFailures  prometheus.Counter
	OperationDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers the metrics on reg under namespace.
func New(namespace string, reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Hits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Lookups answered by a fresh entry",
		}),
		Misses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Lookups that regenerated the entry",
		}, []string{"reason"}),
		Evictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Entries removed to honor the entry bound",
		}),
		EvictionFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_eviction_failures_total",
			Help:      "Eviction passes that failed after a successful write",
		}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_operation_duration_seconds",
			Help:      "Cache operation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
		gatherer: reg,
	}
}

// RecordHit records a fresh lookup.
func (m *Metrics) RecordHit() {
	if m == nil {
		return
	}
	m.Hits.Inc()
}

// RecordMiss records a lookup that has to regenerate.
func (m *Metrics) RecordMiss(reason string) {
	if m == nil {
		return
	}
	m.Misses.WithLabelValues(reason).Inc()
}

// RecordEvictions records n evicted entries.
func (m *Metrics) RecordEvictions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Evictions.Add(float64(n))
}

// RecordEvictionFailure records a failed eviction pass.
func (m *Metrics) RecordEvictionFailure() {
	if m == nil {
		return
	}
	m.EvictionFailures.Inc()
}

// ObserveOperation records the latency of one engine operation.
func (m *Metrics) ObserveOperation(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.OperationDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
}

// Handler returns the exposition handler for the registry the metrics live
// on.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
