// Package metrics exposes Prometheus collectors for the ingest service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec
	ingestJobsTotal               *prometheus.CounterVec
	ingestActiveWorkers           prometheus.Gauge
	ingestSlotWaitSeconds         prometheus.Histogram
	ingestProjectionFailuresTotal *prometheus.CounterVec
	ingestStatusPublishFailures   *prometheus.CounterVec
	ingestAckFailuresTotal        prometheus.Counter
	progressEventsDroppedTotal    prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		ingestJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_jobs_total",
				Help: "Total number of ingest jobs finished, labeled by status and error kind.",
			},
			[]string{"status", "kind"},
		)

		ingestActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ingest_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)

		ingestSlotWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingest_pool_slot_wait_seconds",
				Help:    "Time the pool waited for a free worker slot before pulling a message.",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 120},
			},
		)

		ingestProjectionFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_projection_failures_total",
				Help: "Projected metadata copies that could not be computed, labeled by data type.",
			},
			[]string{"data_type"},
		)

		ingestStatusPublishFailures = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_status_publish_failures_total",
				Help: "Status updates that could not be published, labeled by status.",
			},
			[]string{"status"},
		)

		ingestAckFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_ack_failures_total",
				Help: "Deliveries whose acknowledgement failed.",
			},
		)

		progressEventsDroppedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_progress_events_dropped_total",
				Help: "Progress events discarded because the hub buffer was full.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveJob increments the job counter for the given status and error kind.
func ObserveJob(status, kind string) {
	Init()
	ingestJobsTotal.WithLabelValues(status, kind).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	ingestActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	ingestActiveWorkers.Dec()
}

// ObserveSlotWait records how long the pool waited for a worker slot.
func ObserveSlotWait(d time.Duration) {
	Init()
	ingestSlotWaitSeconds.Observe(d.Seconds())
}

// ObserveProjectionFailure counts a swallowed projection failure.
func ObserveProjectionFailure(dataType string) {
	Init()
	if dataType == "" {
		dataType = "unknown"
	}
	ingestProjectionFailuresTotal.WithLabelValues(dataType).Inc()
}

// ObserveStatusPublishFailure counts a status update that failed to publish.
func ObserveStatusPublishFailure(status string) {
	Init()
	ingestStatusPublishFailures.WithLabelValues(status).Inc()
}

// ObserveAckFailure counts a delivery that could not be acknowledged.
func ObserveAckFailure() {
	Init()
	ingestAckFailuresTotal.Inc()
}

// ObserveProgressDropped counts progress events lost to backpressure.
func ObserveProgressDropped() {
	Init()
	progressEventsDroppedTotal.Inc()
}
