package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sayathing_tasks_enqueued_total",
			Help: "Total number of tasks enqueued",
		},
	)

	TasksCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sayathing_tasks_completed_total",
			Help: "Total number of tasks completed",
		},
	)

	TasksRetried = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sayathing_tasks_retried_total",
			Help: "Total number of tasks moved to RETRYABLE",
		},
	)

	TasksDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sayathing_tasks_discarded_total",
			Help: "Total number of tasks discarded after exhausting retries",
		},
	)

	TaskAttemptCount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sayathing_task_attempt_count",
			Help:    "Distribution of attempt_count at finalization",
			Buckets: prometheus.LinearBuckets(0, 1, 10),
		},
	)

	SynthesisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sayathing_synthesis_duration_seconds",
			Help:    "Per-item synthesis duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"outcome"},
	)

	PendingTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sayathing_pending_tasks",
			Help: "Sampled count of tasks currently in PENDING",
		},
	)

	ProcessingTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sayathing_processing_tasks",
			Help: "Sampled count of tasks currently in PROCESSING",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sayathing_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sayathing_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)

// RecordSynthesis records one item's synthesis outcome and duration.
func RecordSynthesis(outcome string, seconds float64) {
	SynthesisDuration.WithLabelValues(outcome).Observe(seconds)
}

// RecordHTTPRequest records one completed HTTP request.
func RecordHTTPRequest(method, path, status string, seconds float64) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(seconds)
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// SampleQueueDepth updates the pending/processing gauges; callers sample
// this periodically from the store rather than on every mutation.
func SampleQueueDepth(pending, processing float64) {
	PendingTasks.Set(pending)
	ProcessingTasks.Set(processing)
}
