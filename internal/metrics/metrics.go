package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eleclab_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eleclab_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method"},
	)

	// Workflow transitions by outcome
	WorkflowTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eleclab_workflow_transitions_total",
			Help: "Unified request workflow operations by action and result",
		},
		[]string{"action", "from", "to", "result"},
	)

	// Client-side cache layer
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eleclab_cache_events_total",
			Help: "Request cache hits, misses, shared in-flight joins, errors and invalidations",
		},
		[]string{"event"},
	)

	// Events fan-out
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eleclab_events_published_total",
			Help: "Request update events by sink and status",
		},
		[]string{"sink", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		WorkflowTransitions,
		CacheEvents,
		EventsPublished,
	)
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records one HTTP request
func RecordRequest(service, method, status string, duration time.Duration) {
	RequestsTotal.WithLabelValues(service, method, status).Inc()
	RequestDuration.WithLabelValues(service, method).Observe(duration.Seconds())
}

// RecordTransition records one workflow operation
func RecordTransition(action, from, to string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	WorkflowTransitions.WithLabelValues(action, from, to, result).Inc()
}

// RecordCacheEvent counts one cache layer event
func RecordCacheEvent(event string) {
	CacheEvents.WithLabelValues(event).Inc()
}
