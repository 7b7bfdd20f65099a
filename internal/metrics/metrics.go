// Package metrics exposes Prometheus collectors for the crawler.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors exist from package load so observations made before Init are
// still counted; Init only registers them.
var (
	historyOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_history_outcomes_total",
			Help: "Finished page histories, labeled by outcome (complete or degraded).",
		},
		[]string{"outcome"},
	)

	historyFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_history_fetches_total",
			Help: "History listing fetch attempts, labeled by result.",
		},
		[]string{"result"},
	)

	historyPages = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crawler_history_pages",
			Help:    "Listing pages consumed per page history.",
			Buckets: []float64{1, 2, 3, 4, 5, 10},
		},
	)

	fragmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_hub_fragments_total",
			Help: "Hub fragments observed, labeled by disposition (buffered, merged, late, orphaned).",
		},
		[]string{"disposition"},
	)

	recordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_records_emitted_total",
			Help: "Records emitted downstream, labeled by kind.",
		},
		[]string{"kind"},
	)

	sinkErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_sink_errors_total",
			Help: "Record sink and publish failures, labeled by sink.",
		},
		[]string{"sink"},
	)

	fetchDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crawler_fetch_duration_seconds",
			Help:    "Fetch latency, labeled by task type.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"task"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			historyOutcomesTotal,
			historyFetchesTotal,
			historyPages,
			fragmentsTotal,
			recordsTotal,
			sinkErrorsTotal,
			fetchDurationSeconds,
			httpRequestsTotal,
			httpRequestDurationSeconds,
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHistory records a finished history and how many listing pages it took.
func ObserveHistory(outcome string, pages int) {
	historyOutcomesTotal.WithLabelValues(outcome).Inc()
	historyPages.Observe(float64(pages))
}

// ObserveHistoryFetch counts one history listing fetch attempt.
func ObserveHistoryFetch(result string) {
	historyFetchesTotal.WithLabelValues(result).Inc()
}

// ObserveFragments adds n fragments with the given disposition.
func ObserveFragments(disposition string, n int) {
	if n <= 0 {
		return
	}
	fragmentsTotal.WithLabelValues(disposition).Add(float64(n))
}

// ObserveRecord counts an emitted record.
func ObserveRecord(kind string) {
	recordsTotal.WithLabelValues(kind).Inc()
}

// ObserveSinkError counts a failed sink write or publish.
func ObserveSinkError(sink string) {
	sinkErrorsTotal.WithLabelValues(sink).Inc()
}

// ObserveFetch records the latency of a fetch for the given task type.
func ObserveFetch(task string, duration time.Duration) {
	fetchDurationSeconds.WithLabelValues(task).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
