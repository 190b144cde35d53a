// Package telemetry exposes Prometheus metrics for the parsing pipeline.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	parserPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parser_pages_total",
			Help: "Total number of pages fetched, labeled by site and status.",
		},
		[]string{"site", "status"},
	)

	parserProductsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parser_products_total",
			Help: "Total number of products extracted, labeled by site.",
		},
		[]string{"site"},
	)

	parserTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parser_tasks_total",
			Help: "Total number of tasks finished, labeled by terminal status.",
		},
		[]string{"status"},
	)

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parser_rate_limit_delay_seconds",
			Help:    "Time spent waiting on the per-domain rate limiter.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"site"},
	)

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
)

// CountPage records one fetched page outcome.
func CountPage(site string, statusCode int) {
	parserPagesTotal.WithLabelValues(site, strconv.Itoa(statusCode)).Inc()
}

// CountProducts records extracted products for a site.
func CountProducts(site string, n int) {
	parserProductsTotal.WithLabelValues(site).Add(float64(n))
}

// CountTask records a task reaching a terminal status.
func CountTask(status string) {
	parserTasksTotal.WithLabelValues(status).Inc()
}

// ObserveRateLimitDelay records time spent waiting on the domain limiter.
func ObserveRateLimitDelay(site string, d time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(site).Observe(d.Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest records one served HTTP request.
func ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(d.Seconds())
}
