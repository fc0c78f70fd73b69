package queue

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_jobs_enqueued_total",
			Help: "Total number of jobs enqueued",
		},
		[]string{"backend", "queue", "kind"},
	)

	jobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_jobs_processed_total",
			Help: "Total number of jobs processed by workers",
		},
		[]string{"queue", "kind", "status"},
	)

	jobsRetryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_jobs_retry_total",
			Help: "Total number of job retries scheduled by workers",
		},
		[]string{"queue", "kind"},
	)

	jobsRescheduledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_jobs_rescheduled_total",
			Help: "Total number of jobs rescheduled on provider rate-limit hints",
		},
		[]string{"queue", "kind"},
	)

	jobsDLQTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_jobs_dlq_total",
			Help: "Total number of jobs moved to dead-letter queues",
		},
		[]string{"queue", "kind"},
	)

	jobsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notify_jobs_inflight",
			Help: "Current number of in-flight jobs being processed by workers",
		},
		[]string{"queue"},
	)
)

func recordJobEnqueued(backend string, job *Job) {
	if job == nil {
		return
	}
	jobsEnqueuedTotal.WithLabelValues(
		normalizeMetricLabel(backend, "unknown"),
		normalizeMetricLabel(job.Queue, "unknown"),
		normalizeMetricLabel(job.Kind, "unknown"),
	).Inc()
}

func recordJobProcessed(queue, kind, status string) {
	jobsProcessedTotal.WithLabelValues(
		normalizeMetricLabel(queue, "unknown"),
		normalizeMetricLabel(kind, "unknown"),
		normalizeMetricLabel(status, "unknown"),
	).Inc()
}

func recordJobRetry(queue, kind string) {
	jobsRetryTotal.WithLabelValues(
		normalizeMetricLabel(queue, "unknown"),
		normalizeMetricLabel(kind, "unknown"),
	).Inc()
}

func recordJobRescheduled(queue, kind string) {
	jobsRescheduledTotal.WithLabelValues(
		normalizeMetricLabel(queue, "unknown"),
		normalizeMetricLabel(kind, "unknown"),
	).Inc()
}

func recordJobDLQ(queue, kind string) {
	jobsDLQTotal.WithLabelValues(
		normalizeMetricLabel(queue, "unknown"),
		normalizeMetricLabel(kind, "unknown"),
	).Inc()
}

func incrementJobInFlight(queue string) {
	jobsInFlight.WithLabelValues(normalizeMetricLabel(queue, "unknown")).Inc()
}

func decrementJobInFlight(queue string) {
	jobsInFlight.WithLabelValues(normalizeMetricLabel(queue, "unknown")).Dec()
}

func normalizeMetricLabel(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
