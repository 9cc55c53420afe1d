// Package metrics holds the Prometheus collectors of cashbook.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Settlement outcomes.
const (
	OutcomeSettled  = "settled"
	OutcomePartial  = "partial"
	OutcomeFailed   = "failed"
	OutcomeRejected = "rejected"
)

type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
	RateLimited        prometheus.Counter
	SuspiciousRequests prometheus.Counter
	Settlements        *prometheus.CounterVec
	SettledDebts       prometheus.Counter
	ExportedBatches    *prometheus.CounterVec
	OverviewCache      *prometheus.CounterVec
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cashbook",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cashbook",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cashbook",
			Name:      "http_rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		SuspiciousRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cashbook",
			Name:      "http_suspicious_requests_total",
			Help:      "Requests flagged by the security detector.",
		}),
		Settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cashbook",
			Name:      "settlements_total",
			Help:      "Settlement attempts by outcome.",
		}, []string{"outcome"}),
		SettledDebts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cashbook",
			Name:      "settled_debts_total",
			Help:      "Debts attached to a settlement.",
		}),
		ExportedBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cashbook",
			Name:      "exported_settlements_total",
			Help:      "Settlement batches written to the export backend.",
		}, []string{"backend", "outcome"}),
		OverviewCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cashbook",
			Name:      "overview_cache_lookups_total",
			Help:      "Overview cache lookups by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests,
		m.HTTPDuration,
		m.RateLimited,
		m.SuspiciousRequests,
		m.Settlements,
		m.SettledDebts,
		m.ExportedBatches,
		m.OverviewCache,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveSettlement counts one settlement attempt and the debts it settled.
// The Observe methods are no-ops on a nil *Metrics.
func (m *Metrics) ObserveSettlement(outcome string, settled int) {
	if m == nil {
		return
	}
	m.Settlements.WithLabelValues(outcome).Inc()
	if settled > 0 {
		m.SettledDebts.Add(float64(settled))
	}
}

func (m *Metrics) ObserveExport(backend string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ExportedBatches.WithLabelValues(backend, outcome).Inc()
}

func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.OverviewCache.WithLabelValues("hit").Inc()
		return
	}
	m.OverviewCache.WithLabelValues("miss").Inc()
}
