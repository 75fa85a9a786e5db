// Package metrics exposes Prometheus collectors for the tracker service.
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
	fetchesTotal               *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	strategyAttemptsTotal      *prometheus.CounterVec
	recordsTotal               *prometheus.CounterVec
	savesTotal                 *prometheus.CounterVec
	runDurationSeconds         prometheus.Histogram
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_fetches_total",
				Help: "Total number of listing fetches, labeled by site, fetcher kind and status code.",
			},
			[]string{"site", "kind", "code"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_fetch_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		strategyAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_strategy_attempts_total",
				Help: "Source strategy attempts, labeled by journal, strategy and result.",
			},
			[]string{"journal", "strategy", "result"},
		)

		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_records_total",
				Help: "Listing fragments processed by the extractor, labeled by journal and result.",
			},
			[]string{"journal", "result"},
		)

		savesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_saves_total",
				Help: "Gateway save outcomes, labeled by journal and outcome.",
			},
			[]string{"journal", "outcome"},
		)

		runDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tracker_run_duration_seconds",
				Help:    "Histogram of full scrape run durations.",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tracker_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
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

// ObserveFetch counts one fetch. A zero code means the request never completed.
func ObserveFetch(rawURL, kind string, code int, bytesFetched int) {
	Init()
	site := SanitizeSite(rawURL)
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	fetchesTotal.WithLabelValues(site, kind, label).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveStrategy counts a source strategy attempt.
func ObserveStrategy(journal, strategy, result string) {
	Init()
	strategyAttemptsTotal.WithLabelValues(journal, strategy, result).Inc()
}

// ObserveExtraction counts extracted and dropped fragments for a journal.
func ObserveExtraction(journal string, extracted, dropped int) {
	Init()
	recordsTotal.WithLabelValues(journal, "extracted").Add(float64(extracted))
	recordsTotal.WithLabelValues(journal, "dropped").Add(float64(dropped))
}

// ObserveSave counts a gateway save outcome.
func ObserveSave(journal, outcome string) {
	Init()
	savesTotal.WithLabelValues(journal, outcome).Inc()
}

// ObserveRun records the duration of a scrape run.
func ObserveRun(duration time.Duration) {
	Init()
	runDurationSeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
