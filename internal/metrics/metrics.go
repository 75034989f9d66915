// Package metrics exposes Prometheus collectors for the crawl engine.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesTotal        *prometheus.CounterVec
	retriesTotal      prometheus.Counter
	historyAppends    prometheus.Counter
	historySuppressed prometheus.Counter
	refreshSuppressed *prometheus.CounterVec
	activeWorkers     prometheus.Gauge
	frontierDepth     prometheus.Gauge
	sessionsInUse     prometheus.Gauge
	fetchDurationSecs *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call
// multiple times.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketwatch_pages_total",
				Help: "Pages processed, labeled by URL kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)
		retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "marketwatch_incomplete_page_retries_total",
			Help: "Fetch retries triggered by incomplete pages.",
		})
		historyAppends = promauto.NewCounter(prometheus.CounterOpts{
			Name: "marketwatch_history_appends_total",
			Help: "Product history entries appended.",
		})
		historySuppressed = promauto.NewCounter(prometheus.CounterOpts{
			Name: "marketwatch_history_suppressed_total",
			Help: "Observations suppressed by the content-hash gate.",
		})
		refreshSuppressed = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketwatch_refresh_suppressed_total",
				Help: "Brand/seller fetches suppressed by the refresh TTL.",
			},
			[]string{"kind"},
		)
		activeWorkers = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "marketwatch_active_workers",
			Help: "Tasks currently in flight.",
		})
		frontierDepth = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "marketwatch_frontier_depth",
			Help: "URLs waiting in the frontier.",
		})
		sessionsInUse = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "marketwatch_sessions_in_use",
			Help: "Browser sessions currently checked out.",
		})
		fetchDurationSecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketwatch_fetch_duration_seconds",
				Help:    "Wall-clock duration of fetch+extract per page.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		)
	})
}

// PageProcessed records the outcome of one URL.
func PageProcessed(kind, outcome string) {
	if pagesTotal != nil {
		pagesTotal.WithLabelValues(kind, outcome).Inc()
	}
}

// RetryScheduled counts one incomplete-page retry.
func RetryScheduled() {
	if retriesTotal != nil {
		retriesTotal.Inc()
	}
}

// HistoryAppended counts one new history entry.
func HistoryAppended() {
	if historyAppends != nil {
		historyAppends.Inc()
	}
}

// HistorySuppressed counts one hash-gate no-op.
func HistorySuppressed() {
	if historySuppressed != nil {
		historySuppressed.Inc()
	}
}

// RefreshSuppressed counts one TTL-suppressed entity fetch.
func RefreshSuppressed(kind string) {
	if refreshSuppressed != nil {
		refreshSuppressed.WithLabelValues(kind).Inc()
	}
}

// WorkerStarted and WorkerFinished track in-flight tasks.
func WorkerStarted() {
	if activeWorkers != nil {
		activeWorkers.Inc()
	}
}

// WorkerFinished decrements the in-flight gauge.
func WorkerFinished() {
	if activeWorkers != nil {
		activeWorkers.Dec()
	}
}

// SetFrontierDepth records the queue depth.
func SetFrontierDepth(n int) {
	if frontierDepth != nil {
		frontierDepth.Set(float64(n))
	}
}

// SessionCheckedOut and SessionReturned track session usage.
func SessionCheckedOut() {
	if sessionsInUse != nil {
		sessionsInUse.Inc()
	}
}

// SessionReturned decrements the in-use gauge.
func SessionReturned() {
	if sessionsInUse != nil {
		sessionsInUse.Dec()
	}
}

// ObserveFetchDuration records one fetch+extract duration in seconds.
func ObserveFetchDuration(kind string, seconds float64) {
	if fetchDurationSecs != nil {
		fetchDurationSecs.WithLabelValues(kind).Observe(seconds)
	}
}
