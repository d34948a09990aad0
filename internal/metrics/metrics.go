// Package metrics exposes Prometheus collectors for the blog engine.
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
	documentsTotal             *prometheus.CounterVec
	xmlrpcCallsTotal           *prometheus.CounterVec
	pingbacksTotal             *prometheus.CounterVec
	moduleOperationsTotal      *prometheus.CounterVec
	maintenanceRunsTotal       *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	pingbackActiveWorkers      prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Pingback directions.
const (
	Inbound  = "in"
	Outbound = "out"
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		documentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inkpress_documents_total",
				Help: "Public documents served, labeled by URL type and status code.",
			},
			[]string{"type", "status"},
		)

		xmlrpcCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inkpress_xmlrpc_calls_total",
				Help: "XML-RPC calls, labeled by method and result (ok or fault code).",
			},
			[]string{"method", "result"},
		)

		pingbacksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inkpress_pingbacks_total",
				Help: "Pingbacks received and sent, labeled by direction and result.",
			},
			[]string{"direction", "result"},
		)

		moduleOperationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inkpress_module_operations_total",
				Help: "Module manager operations, labeled by operation and result.",
			},
			[]string{"op", "result"},
		)

		maintenanceRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inkpress_maintenance_runs_total",
				Help: "Maintenance task runs, labeled by task and result.",
			},
			[]string{"task", "result"},
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

		pingbackActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "inkpress_pingback_active_workers",
				Help: "Number of pingback workers currently delivering a job.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "inkpress_pingback_rate_limit_delays_seconds",
				Help:    "Histogram of per-host pingback rate limit waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
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

// ObserveDocument counts one public response.
func ObserveDocument(typ string, status int) {
	documentsTotal.WithLabelValues(typ, strconv.Itoa(status)).Inc()
}

// ObserveXMLRPC counts one XML-RPC call. result is "ok" or the fault code.
func ObserveXMLRPC(method, result string) {
	xmlrpcCallsTotal.WithLabelValues(method, result).Inc()
}

// ObservePingback counts one pingback in the given direction.
func ObservePingback(direction, result string) {
	pingbacksTotal.WithLabelValues(direction, result).Inc()
}

// ObserveModuleOperation counts one module manager operation.
func ObserveModuleOperation(op, result string) {
	moduleOperationsTotal.WithLabelValues(op, result).Inc()
}

// ObserveMaintenance counts one maintenance task run.
func ObserveMaintenance(task, result string) {
	maintenanceRunsTotal.WithLabelValues(task, result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active pingback workers gauge.
func IncActiveWorkers() {
	pingbackActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active pingback workers gauge.
func DecActiveWorkers() {
	pingbackActiveWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(SanitizeSite(host)).Observe(duration.Seconds())
}
