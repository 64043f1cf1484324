package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics tracks order workflow outcomes. A nil *OrderMetrics records nothing.
type OrderMetrics struct {
	created     *prometheus.CounterVec
	duration    prometheus.Histogram
	transitions *prometheus.CounterVec
	jobs        *prometheus.CounterVec
}

// NewOrderMetrics registers order metrics on reg.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	m := &OrderMetrics{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockroom_order_create_total",
			Help: "Order creation attempts by outcome code.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stockroom_order_create_duration_seconds",
			Help:    "Duration of the order creation transaction.",
			Buckets: prometheus.DefBuckets,
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockroom_order_status_transitions_total",
			Help: "Order status changes by source and target status.",
		}, []string{"from", "to"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockroom_jobs_total",
			Help: "Background tasks enqueued by type and result.",
		}, []string{"type", "result"}),
	}
	reg.MustRegister(m.created, m.duration, m.transitions, m.jobs)
	return m
}

// ObserveCreate records one creation attempt.
func (m *OrderMetrics) ObserveCreate(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.created.WithLabelValues(outcome).Inc()
	m.duration.Observe(took.Seconds())
}

// ObserveTransition records a committed status change.
func (m *OrderMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// ObserveJob records one enqueue attempt.
func (m *OrderMetrics) ObserveJob(taskType string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.jobs.WithLabelValues(taskType, result).Inc()
}
