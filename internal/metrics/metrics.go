// Package metrics provides Prometheus metrics for the proxy.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for API latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Outcome label values, one per terminal state of a request.
const (
	OutcomeSucceeded          = "succeeded"
	OutcomeRejectedCredential = "rejected_credential"
	OutcomeRejectedToken      = "rejected_token"
	OutcomeFailedTransport    = "failed_transport"
)

// Metrics holds all Prometheus metric collectors for the proxy.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	Outcomes          *prometheus.CounterVec
	ParameterFetches  *prometheus.CounterVec
	OriginDuration    *prometheus.HistogramVec
	OriginResponses   *prometheus.CounterVec
	BreakerTransition *prometheus.CounterVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_auth_proxy_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edge_auth_proxy_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),
		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "edge_auth_proxy_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_auth_proxy_outcomes_total",
			Help: "Proxied requests by terminal outcome.",
		}, []string{"outcome"}),
		ParameterFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_auth_proxy_parameter_fetches_total",
			Help: "Parameter store reads by backend and result.",
		}, []string{"backend", "result"}),
		OriginDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edge_auth_proxy_origin_request_duration_seconds",
			Help:    "Origin call latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method"}),
		OriginResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_auth_proxy_origin_responses_total",
			Help: "Total origin responses by method and status code.",
		}, []string{"method", "status_code"}),
		BreakerTransition: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_auth_proxy_origin_breaker_transitions_total",
			Help: "Origin circuit breaker state transitions.",
		}, []string{"from", "to"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.Outcomes,
		m.ParameterFetches,
		m.OriginDuration,
		m.OriginResponses,
		m.BreakerTransition,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// knownPrefixes lists the paths served by the proxy itself.
var knownPrefixes = []string{"/healthz", "/proxy/status", "/metrics"}

// NormalizePath returns a bounded path label for Prometheus metrics.
// Everything that is not a local endpoint is proxied and labelled "proxied".
func NormalizePath(path string) string {
	for _, prefix := range knownPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
			return prefix
		}
	}
	return "proxied"
}
