package reliability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	breakerOpenedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_breaker_opened_total",
			Help: "Total number of circuit breaker open transitions",
		},
		[]string{"queue", "kind"},
	)

	breakerOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notify_breaker_open",
			Help: "Whether the circuit breaker for a queue/kind pair is currently open",
		},
		[]string{"queue", "kind"},
	)

	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notify_queue_depth",
			Help: "Sampled number of waiting plus delayed jobs per queue",
		},
		[]string{"queue"},
	)
)

func recordBreakerOpened(queue, kind string) {
	breakerOpenedTotal.WithLabelValues(queue, kind).Inc()
	breakerOpen.WithLabelValues(queue, kind).Set(1)
}

func recordBreakerClosed(queue, kind string) {
	breakerOpen.WithLabelValues(queue, kind).Set(0)
}

func recordQueueDepth(queue string, depth int64) {
	queueDepth.WithLabelValues(queue).Set(float64(depth))
}
