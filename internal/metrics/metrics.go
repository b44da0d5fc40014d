// Package metrics exposes Prometheus collectors for the listing crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	indexPagesTotal            *prometheus.CounterVec
	detailFetchesTotal         *prometheus.CounterVec
	detailFetchDurationSeconds prometheus.Histogram
	listingsStoredTotal        *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	runsTotal                  *prometheus.CounterVec
	runDurationSeconds         prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times; every observer calls it.
func Init() {
	once.Do(func() {
		indexPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listing_crawler_index_pages_total",
				Help: "Index page fetches, labeled by outcome (listings, empty, error).",
			},
			[]string{"outcome"},
		)

		detailFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listing_crawler_detail_fetches_total",
				Help: "Detail page fetches, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		detailFetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "listing_crawler_detail_fetch_duration_seconds",
				Help:    "Latency of successful detail page fetches.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		)

		listingsStoredTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listing_crawler_listings_stored_total",
				Help: "Listings handed to the store, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "listing_crawler_active_workers",
				Help: "Number of detail workers currently running.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "listing_crawler_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listing_crawler_runs_total",
				Help: "Completed pipeline runs, labeled by status.",
			},
			[]string{"status"},
		)

		runDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "listing_crawler_run_duration_seconds",
				Help:    "Wall-clock duration of full pipeline runs.",
				Buckets: prometheus.ExponentialBuckets(10, 2, 10),
			},
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
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveIndexPage counts an index page fetch.
func ObserveIndexPage(outcome string) {
	Init()
	indexPagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveDetailFetch counts a detail page fetch and records latency on success.
func ObserveDetailFetch(rawURL, outcome string, duration time.Duration) {
	Init()
	detailFetchesTotal.WithLabelValues(SanitizeSite(rawURL), outcome).Inc()
	if outcome == "ok" {
		detailFetchDurationSeconds.Observe(duration.Seconds())
	}
}

// ObserveListingStored counts a store hand-off.
func ObserveListingStored(outcome string) {
	Init()
	listingsStoredTotal.WithLabelValues(outcome).Inc()
}

// ObserveListingsStored counts n store hand-offs committed together.
func ObserveListingsStored(outcome string, n int) {
	Init()
	listingsStoredTotal.WithLabelValues(outcome).Add(float64(n))
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveRun records a finished pipeline run.
func ObserveRun(status string, duration time.Duration) {
	Init()
	runsTotal.WithLabelValues(status).Inc()
	runDurationSeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
