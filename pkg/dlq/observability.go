package dlq

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	replayCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_dlq_replay_calls_total",
			Help: "Total number of DLQ replay invocations by outcome status",
		},
		[]string{"queue", "status"},
	)

	replayJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_dlq_replayed_jobs_total",
			Help: "Total number of jobs re-enqueued from dead-letter queues",
		},
		[]string{"queue"},
	)
)

func recordReplay(queue, status string, reprocessed int) {
	replayCallsTotal.WithLabelValues(queue, status).Inc()
	if reprocessed > 0 {
		replayJobsTotal.WithLabelValues(queue).Add(float64(reprocessed))
	}
}
