// Package metrics exposes Prometheus metrics for Graph API calls and the HTTP surface.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// GraphRequests counts Graph API calls by operation and outcome.
	GraphRequests *prometheus.CounterVec
	// GraphLatency tracks Graph API call latency by operation.
	GraphLatency *prometheus.HistogramVec
	// HTTPRequestsTotal counts inbound HTTP requests by route, method and status.
	HTTPRequestsTotal *prometheus.CounterVec
	// ConnectionAttempts counts OAuth and manual connection attempts by mode and outcome.
	ConnectionAttempts *prometheus.CounterVec
	// LeadsDelivered counts leads handed to the sink by outcome.
	LeadsDelivered *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers all metrics on a private registry.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		GraphRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "graph_requests_total",
				Help:      "Total number of Graph API requests",
			},
			[]string{"operation", "outcome"},
		),
		GraphLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "graph_request_duration_seconds",
				Help:      "Graph API request latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"operation"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		ConnectionAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connection_attempts_total",
				Help:      "Total number of connection attempts",
			},
			[]string{"mode", "outcome"},
		),
		LeadsDelivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "leads_delivered_total",
				Help:      "Total number of leads handed to the sink",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		m.GraphRequests,
		m.GraphLatency,
		m.HTTPRequestsTotal,
		m.ConnectionAttempts,
		m.LeadsDelivered,
	)

	return m
}

// Handler returns a Prometheus handler for these metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordGraphRequest records one Graph API call.
func (m *Metrics) RecordGraphRequest(operation, outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.GraphRequests.WithLabelValues(operation, outcome).Inc()
	m.GraphLatency.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordHTTPRequest records one inbound HTTP request.
func (m *Metrics) RecordHTTPRequest(route, method, status string) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, method, status).Inc()
}

// RecordConnection records the outcome of a connection attempt.
func (m *Metrics) RecordConnection(mode, outcome string) {
	if m == nil {
		return
	}
	m.ConnectionAttempts.WithLabelValues(mode, outcome).Inc()
}

// RecordLeadDelivery records a lead delivery outcome.
func (m *Metrics) RecordLeadDelivery(outcome string) {
	if m == nil {
		return
	}
	m.LeadsDelivered.WithLabelValues(outcome).Inc()
}
