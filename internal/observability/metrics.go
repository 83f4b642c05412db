// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gainboard"

// Upstream call outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeNotFound    = "not_found"
	OutcomeRateLimited = "rate_limited"
	OutcomeTransient   = "transient"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Cache metrics
	CacheHits         *prometheus.CounterVec
	CacheMisses       *prometheus.CounterVec
	CacheDegradations *prometheus.CounterVec

	// Upstream metrics
	UpstreamCalls    *prometheus.CounterVec
	UpstreamLatency  *prometheus.HistogramVec
	CollapsedWaiters prometheus.Counter

	// Resolution metrics
	FallbackSteps *prometheus.CounterVec

	// Leaderboard metrics
	LeaderboardDuration *prometheus.HistogramVec
	LeaderboardUsers    prometheus.Gauge

	// Snapshot metrics
	SnapshotsWritten prometheus.Counter
	SnapshotErrors   prometheus.Counter
}

// NewMetrics creates a Metrics instance with every collector registered on reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		CacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache hits by data class",
		}, []string{"class"}),
		CacheMisses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cache misses by data class",
		}, []string{"class"}),
		CacheDegradations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "degradations_total",
			Help:      "Distributed cache failures served by the local tier",
		}, []string{"op"}),

		UpstreamCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "calls_total",
			Help:      "Upstream price calls by provider and outcome",
		}, []string{"provider", "outcome"}),
		UpstreamLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "call_latency_seconds",
			Help:      "Upstream price call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		CollapsedWaiters: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "collapsed_waiters_total",
			Help:      "Requests that joined an in-flight fetch instead of calling upstream",
		}),

		FallbackSteps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "fallback_steps_total",
			Help:      "Historical lookups resolved by a fallback step",
		}, []string{"step"}),

		LeaderboardDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "leaderboard",
			Name:      "compute_duration_seconds",
			Help:      "Leaderboard recomputation duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"window"}),
		LeaderboardUsers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "leaderboard",
			Name:      "users",
			Help:      "Users ranked in the last computation",
		}),

		SnapshotsWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshots",
			Name:      "written_total",
			Help:      "Portfolio snapshots appended to the log",
		}),
		SnapshotErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshots",
			Name:      "errors_total",
			Help:      "Portfolio snapshot writes that failed",
		}),
	}
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CacheDegraded records a distributed cache failure for op.
func (m *Metrics) CacheDegraded(op string) {
	if m == nil {
		return
	}
	m.CacheDegradations.WithLabelValues(op).Inc()
}

// CacheLookup records a hit or miss for the data class.
func (m *Metrics) CacheLookup(class string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.WithLabelValues(class).Inc()
		return
	}
	m.CacheMisses.WithLabelValues(class).Inc()
}

// UpstreamCall records one upstream call.
func (m *Metrics) UpstreamCall(provider, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamCalls.WithLabelValues(provider, outcome).Inc()
	m.UpstreamLatency.WithLabelValues(provider).Observe(took.Seconds())
}

// Collapsed records a request that joined an existing flight.
func (m *Metrics) Collapsed() {
	if m == nil {
		return
	}
	m.CollapsedWaiters.Inc()
}

// Fallback records a historical lookup served by a fallback step.
func (m *Metrics) Fallback(step string) {
	if m == nil {
		return
	}
	m.FallbackSteps.WithLabelValues(step).Inc()
}

// LeaderboardComputed records a leaderboard recomputation.
func (m *Metrics) LeaderboardComputed(window string, users int, took time.Duration) {
	if m == nil {
		return
	}
	m.LeaderboardDuration.WithLabelValues(window).Observe(took.Seconds())
	m.LeaderboardUsers.Set(float64(users))
}

// SnapshotWritten records the outcome of an async snapshot append.
func (m *Metrics) SnapshotWritten(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.SnapshotErrors.Inc()
		return
	}
	m.SnapshotsWritten.Inc()
}
