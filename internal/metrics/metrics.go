// Package metrics defines the Prometheus collectors exported by the
// storefront at /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector the storefront records.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInFlight        prometheus.Gauge

	ordersCreated     prometheus.Counter
	orderTransitions  *prometheus.CounterVec
	emailsDispatched  *prometheus.CounterVec
	cacheOps          *prometheus.CounterVec
	geocodeLookups    *prometheus.CounterVec
	realtimeEvents    *prometheus.CounterVec
	backendRequests   *prometheus.CounterVec
	backendBreakerOpn prometheus.Counter
}

// New creates the collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "HTTP requests processed, by service, method, route and status.",
		}, []string{"service", "method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storefront_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"service", "method", "path"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storefront_http_in_flight_requests",
			Help: "HTTP requests currently being served.",
		}),
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_orders_created_total",
			Help: "Orders created through checkout.",
		}),
		orderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_order_status_transitions_total",
			Help: "Order status transitions, by source and target status.",
		}, []string{"from", "to"}),
		emailsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_emails_dispatched_total",
			Help: "Transactional emails dispatched, by type and outcome.",
		}, []string{"type", "status"}),
		cacheOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_cache_operations_total",
			Help: "Cache lookups, by outcome (hit/miss/error).",
		}, []string{"outcome"}),
		geocodeLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_geocode_lookups_total",
			Help: "Geocoding provider lookups, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		realtimeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_realtime_events_total",
			Help: "Realtime change events received from the hosted backend.",
		}, []string{"table", "event"}),
		backendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_backend_requests_total",
			Help: "Requests issued to the hosted backend, by outcome.",
		}, []string{"outcome"}),
		backendBreakerOpn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_backend_circuit_open_total",
			Help: "Times the hosted-backend circuit breaker opened.",
		}),
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.httpInFlight,
		m.ordersCreated,
		m.orderTransitions,
		m.emailsDispatched,
		m.cacheOps,
		m.geocodeLookups,
		m.realtimeEvents,
		m.backendRequests,
		m.backendBreakerOpn,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncrementInFlight marks a request entering the server.
func (m *Metrics) IncrementInFlight() { m.httpInFlight.Inc() }

// DecrementInFlight marks a request leaving the server.
func (m *Metrics) DecrementInFlight() { m.httpInFlight.Dec() }

// RecordHTTPRequest records one completed request.
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(service, method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordOrderCreated counts a successful checkout.
func (m *Metrics) RecordOrderCreated() { m.ordersCreated.Inc() }

// RecordOrderTransition counts a validated status transition.
func (m *Metrics) RecordOrderTransition(from, to string) {
	m.orderTransitions.WithLabelValues(from, to).Inc()
}

// RecordEmailDispatched counts an email outcome (queued/sent/failed).
func (m *Metrics) RecordEmailDispatched(emailType, status string) {
	m.emailsDispatched.WithLabelValues(emailType, status).Inc()
}

// RecordCacheOutcome counts a cache lookup outcome.
func (m *Metrics) RecordCacheOutcome(outcome string) {
	m.cacheOps.WithLabelValues(outcome).Inc()
}

// RecordGeocodeLookup counts a provider lookup.
func (m *Metrics) RecordGeocodeLookup(kind, outcome string) {
	m.geocodeLookups.WithLabelValues(kind, outcome).Inc()
}

// RecordRealtimeEvent counts a change event from the hosted backend.
func (m *Metrics) RecordRealtimeEvent(table, event string) {
	m.realtimeEvents.WithLabelValues(table, event).Inc()
}

// RecordBackendRequest counts a hosted-backend call outcome (ok/error/retry).
func (m *Metrics) RecordBackendRequest(outcome string) {
	m.backendRequests.WithLabelValues(outcome).Inc()
}

// RecordBreakerOpen counts a circuit-breaker trip.
func (m *Metrics) RecordBreakerOpen() { m.backendBreakerOpn.Inc() }
