// Package observability exposes the Prometheus registry and HTTP middleware.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects application metrics.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	webhookOutcomes *prometheus.CounterVec
	auditFolios     *prometheus.CounterVec
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "harborstay_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "harborstay_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "harborstay_webhook_outcomes_total",
		Help: "Reconciliation outcomes of inbound bank notifications.",
	}, []string{"outcome"})
	audit := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "harborstay_night_audit_folios_total",
		Help: "Folios handled per night audit run by result.",
	}, []string{"result"})
	registry.MustRegister(requests, duration, webhooks, audit)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		webhookOutcomes: webhooks,
		auditFolios:     audit,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveWebhookOutcome counts one reconciliation outcome.
func (m *Metrics) ObserveWebhookOutcome(outcome string) {
	if m == nil {
		return
	}
	m.webhookOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveAuditFolio counts one folio handled during a night audit run.
func (m *Metrics) ObserveAuditFolio(result string) {
	if m == nil {
		return
	}
	m.auditFolios.WithLabelValues(result).Inc()
}

// Middleware records request counts and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
