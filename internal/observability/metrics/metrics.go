// Package metrics exposes prometheus instruments for the HTTP surface
// and the reconciliation core.
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics holds request-level instruments.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inflight prometheus.Gauge
}

// NewHTTPMetrics registers HTTP instruments on the given registry.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paylens",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "paylens",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "paylens",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "In-flight HTTP requests.",
		}),
	}
	reg.MustRegister(m.requests, m.duration, m.inflight)
	return m
}

// GinMiddleware records request metrics per route.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		m.inflight.Inc()
		c.Next()
		m.inflight.Dec()

		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		method := c.Request.Method
		m.requests.WithLabelValues(route, method, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}

// ReconcileMetrics counts view-model activity.
type ReconcileMetrics struct {
	EventsApplied   *prometheus.CounterVec
	EventsDiscarded *prometheus.CounterVec
	Refetches       *prometheus.CounterVec
	ActiveViews     prometheus.Gauge
}

// NewReconcileMetrics registers reconciliation instruments on the given registry.
func NewReconcileMetrics(reg prometheus.Registerer) *ReconcileMetrics {
	m := &ReconcileMetrics{
		EventsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paylens",
			Subsystem: "reconcile",
			Name:      "events_applied_total",
			Help:      "Push events applied by name.",
		}, []string{"event"}),
		EventsDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paylens",
			Subsystem: "reconcile",
			Name:      "events_discarded_total",
			Help:      "Push events discarded (duplicates, unknown names, dead views).",
		}, []string{"reason"}),
		Refetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paylens",
			Subsystem: "reconcile",
			Name:      "refetches_total",
			Help:      "Refetches triggered by push events or refresh calls.",
		}, []string{"resource"}),
		ActiveViews: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "paylens",
			Subsystem: "reconcile",
			Name:      "active_view_models",
			Help:      "Live reconciliation view models.",
		}),
	}
	reg.MustRegister(m.EventsApplied, m.EventsDiscarded, m.Refetches, m.ActiveViews)
	return m
}
