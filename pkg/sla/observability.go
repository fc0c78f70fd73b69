package sla

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var slaEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notify_sla_events_total",
		Help: "Total number of SLA warning and breach events fired",
	},
	[]string{"event"},
)

func recordSLAEvent(event string) {
	slaEventsTotal.WithLabelValues(event).Inc()
}
