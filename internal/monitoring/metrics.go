package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"carbon-scribe/marketplace/marketplace-backend/internal/apperrors"
)

const namespace = "marketplace"

// Metrics owns a private registry so tests and multiple servers in one
// process never collide on registration.
type Metrics struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	durations   *prometheus.HistogramVec
	transitions *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	deliveries  *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "transitions_total",
			Help:      "Marketplace transitions by name and outcome.",
		}, []string{"transition", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "transition_duration_seconds",
			Help:      "Time spent executing a marketplace transition.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"transition"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "deliveries_total",
			Help:      "Event deliveries by sink and outcome.",
		}, []string{"sink", "outcome"}),
	}
	m.registry.MustRegister(
		m.requests,
		m.durations,
		m.transitions,
		m.latency,
		m.deliveries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records every request under its route template, so ids never
// become label values. Unmatched routes are grouped as "unmatched".
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.durations.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}

// ObserveTransition matches the engine's observer signature.
func (m *Metrics) ObserveTransition(transition string, elapsed time.Duration, err error) {
	m.transitions.WithLabelValues(transition, outcome(err)).Inc()
	m.latency.WithLabelValues(transition).Observe(elapsed.Seconds())
}

// ObserveDelivery matches the notification service's observer signature.
func (m *Metrics) ObserveDelivery(sink string, err error) {
	m.deliveries.WithLabelValues(sink, outcome(err)).Inc()
}

// outcome is "ok", the error kind, or "internal" for unclassified errors.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := apperrors.KindOf(err); kind != "" {
		return string(kind)
	}
	return "internal"
}

