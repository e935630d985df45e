package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus collectors on a private registry.
type Metrics struct {
	registry       *prometheus.Registry
	totalRequests  *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	upstreamErrors *prometheus.CounterVec
}

// NewMetrics registers the request counter, latency histogram and upstream error counter on a new registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		totalRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heatx",
			Name:      "http_requests_total",
			Help:      "The total number of requests",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "heatx",
			Name:      "http_request_duration_seconds",
			Help:      "The duration of requests",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "path"}),
		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heatx",
			Name:      "upstream_errors_total",
			Help:      "Failed upstream calls by service and status",
		}, []string{"service", "status"}),
	}
	m.registry.MustRegister(m.totalRequests, m.httpDuration, m.upstreamErrors)
	return m
}

// Registry returns the private registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records a count and a latency observation for every request, labelled with the
// matched route pattern rather than the raw path.
func (m *Metrics) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// read before next runs: nested muxes append their own copy of the pattern
			path := routePattern(r)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.totalRequests.With(prometheus.Labels{"method": r.Method, "path": path, "status": strconv.Itoa(status)}).Inc()
			m.httpDuration.With(prometheus.Labels{"method": r.Method, "path": path}).Observe(time.Since(start).Seconds())
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// upstreamError counts a failed upstream call. Safe on a nil receiver.
func (m *Metrics) upstreamError(service string, status int) {
	if m == nil {
		return
	}
	m.upstreamErrors.With(prometheus.Labels{"service": service, "status": strconv.Itoa(status)}).Inc()
}
