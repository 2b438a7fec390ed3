package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors. Each App gets its own
// registry.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	AuthGuardTotal      *prometheus.CounterVec
	LedgerPrunedTotal   prometheus.Counter
	LedgerPruneErrors   prometheus.Counter
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blogauth_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blogauth_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthGuardTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blogauth_auth_guard_total",
				Help: "Guard decisions by token kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		LedgerPrunedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blogauth_ledger_pruned_total",
			Help: "Revocation entries removed after their token expired",
		}),
		LedgerPruneErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blogauth_ledger_prune_errors_total",
			Help: "Failed ledger prune runs",
		}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthGuardTotal,
		m.LedgerPrunedTotal,
		m.LedgerPruneErrors,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
