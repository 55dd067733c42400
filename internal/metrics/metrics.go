// Package metrics exposes Prometheus collectors for the job service.
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
	jobsTotal            *prometheus.CounterVec
	queueDepth           prometheus.Gauge
	workerBusy           prometheus.Gauge
	creditsUsedTotal     prometheus.Counter
	retryDelaySeconds    prometheus.Histogram
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDurations *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrape_jobs_total",
				Help: "Total number of jobs reaching a terminal state, labeled by kind and state.",
			},
			[]string{"kind", "state"},
		)

		queueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scrape_queue_depth",
				Help: "Number of jobs waiting in the execution queue.",
			},
		)

		workerBusy = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scrape_worker_busy",
				Help: "1 while the worker is executing a job, 0 otherwise.",
			},
		)

		creditsUsedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scrape_credits_used_total",
				Help: "Total backend credits consumed by successful calls.",
			},
		)

		retryDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scrape_retry_delay_seconds",
				Help:    "Histogram of backoff delays slept between rate limited attempts.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurations = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob increments the terminal job counter.
func ObserveJob(kind, state string) {
	jobsTotal.WithLabelValues(kind, state).Inc()
}

// SetQueueDepth records the current queue length.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// SetWorkerBusy flips the worker busy gauge.
func SetWorkerBusy(busy bool) {
	if busy {
		workerBusy.Set(1)
		return
	}
	workerBusy.Set(0)
}

// AddCreditsUsed accumulates backend credit consumption.
func AddCreditsUsed(credits int) {
	if credits > 0 {
		creditsUsedTotal.Add(float64(credits))
	}
}

// ObserveRetryDelay records one backoff sleep.
func ObserveRetryDelay(d time.Duration) {
	retryDelaySeconds.Observe(d.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurations.WithLabelValues(method).Observe(duration.Seconds())
}
