// Package metrics exposes Prometheus instrumentation for the token broker.
//
// A nil *Metrics is valid and records nothing, so components can take an
// optional metrics dependency without branching on it.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tokenbroker"

// Refresh call outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeExpired = "expired"
)

// Fetch results.
const (
	ResultToken   = "token"
	ResultFailed  = "failed"
	ResultDropped = "dropped"
)

// Metrics holds the broker's collectors.
type Metrics struct {
	refreshCalls  *prometheus.CounterVec
	fetches       *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	timerFires    prometheus.Counter
	logouts       prometheus.Counter
	subscribers   prometheus.Gauge
	cacheValid    prometheus.Gauge
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		refreshCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refresh_calls_total",
				Help:      "Total number of calls to the remote refresh operation",
			},
			[]string{"outcome"},
		),
		fetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetches_total",
				Help:      "Total number of completed token fetches, retries included",
			},
			[]string{"result"},
		),
		fetchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Duration of token fetches in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		timerFires: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "expiry_timer_fires_total",
				Help:      "Total number of expiry timers that cleared the cache",
			},
		),
		logouts: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logouts_total",
				Help:      "Total number of observed logouts",
			},
		),
		subscribers: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "subscribers",
				Help:      "Current number of token subscribers",
			},
		),
		cacheValid: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_valid",
				Help:      "Whether the cache holds a token (1) or is empty (0)",
			},
		),
	}
}

// RecordRefreshCall counts one call to the refresh operation.
func (m *Metrics) RecordRefreshCall(outcome string) {
	if m == nil {
		return
	}
	m.refreshCalls.WithLabelValues(outcome).Inc()
}

// RecordFetch counts one completed fetch and observes its duration.
func (m *Metrics) RecordFetch(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(result).Inc()
	m.fetchDuration.Observe(d.Seconds())
}

// RecordTimerFire counts an expiry timer that cleared the cache.
func (m *Metrics) RecordTimerFire() {
	if m == nil {
		return
	}
	m.timerFires.Inc()
}

// RecordLogout counts an observed logout.
func (m *Metrics) RecordLogout() {
	if m == nil {
		return
	}
	m.logouts.Inc()
}

// SetSubscribers reports the current subscriber count.
func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}

// SetCacheValid reports whether the cache holds a token.
func (m *Metrics) SetCacheValid(valid bool) {
	if m == nil {
		return
	}
	value := 0.0
	if valid {
		value = 1.0
	}
	m.cacheValid.Set(value)
}
