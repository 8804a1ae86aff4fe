package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the HTTP and bootstrap collectors of one application.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	DBInitFailures     *prometheus.CounterVec
	ServiceInitialized prometheus.Gauge
}

// NewMetrics registers the service collectors on registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promotions_http_requests_total",
				Help: "Total number of HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "promotions_http_request_duration_seconds",
				Help:    "Time spent serving HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		DBInitFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promotions_db_init_failures_total",
				Help: "Database initialization failures by cause",
			},
			[]string{"cause"},
		),
		ServiceInitialized: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "promotions_service_initialized",
				Help: "1 once the service finished bootstrapping",
			},
		),
	}
}

func (m *Metrics) observe(method, route string, status int, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Register exposes the registry at GET /metrics.
func (m *Metrics) Register(router *Router) error {
	handler := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return router.Handle(Route{Method: http.MethodGet, Path: "/metrics", Summary: "Prometheus metrics"},
		handler.ServeHTTP)
}
