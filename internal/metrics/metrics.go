// Package metrics exposes Prometheus collectors for the crawler service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerTasksTotal          *prometheus.CounterVec
	crawlerMoviesTotal         *prometheus.CounterVec
	crawlerFetchDurationSecond *prometheus.HistogramVec
	crawlerStaleResetsTotal    prometheus.Counter
	crawlerCyclesTotal         *prometheus.CounterVec
	crawlerActiveWorkers       prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerTasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_tasks_total",
				Help: "Total number of tasks processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlerMoviesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_movies_total",
				Help: "Total number of movie rows written, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlerFetchDurationSecond = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies, labeled by page kind.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"page"},
		)

		crawlerStaleResetsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_stale_resets_total",
				Help: "Total number of in_progress tasks reset back to pending.",
			},
		)

		crawlerCyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_cycles_total",
				Help: "Total number of crawl cycles, labeled by status.",
			},
			[]string{"status"},
		)

		crawlerActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_workers",
				Help: "Number of task pipelines currently running.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTask increments the task counter for the given outcome.
func ObserveTask(outcome string) {
	crawlerTasksTotal.WithLabelValues(outcome).Inc()
}

// ObserveMovie increments the movie counter for the given upsert outcome.
func ObserveMovie(outcome string) {
	crawlerMoviesTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetch records the duration of one page fetch.
func ObserveFetch(page string, duration time.Duration) {
	crawlerFetchDurationSecond.WithLabelValues(page).Observe(duration.Seconds())
}

// AddStaleResets records tasks reclaimed by the stale sweep.
func AddStaleResets(n int64) {
	if n > 0 {
		crawlerStaleResetsTotal.Add(float64(n))
	}
}

// ObserveCycle increments the cycle counter for the given status.
func ObserveCycle(status string) {
	crawlerCyclesTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	crawlerActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	crawlerActiveWorkers.Dec()
}
