package outbox

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "session_service",
		Subsystem: "outbox",
		Name:      "events_published_total",
		Help:      "Session events published to Kafka from the outbox.",
	})

	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "session_service",
		Subsystem: "outbox",
		Name:      "publish_failures_total",
		Help:      "Session events whose publish failed and were routed to the DLQ.",
	})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "session_service",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time to claim, frame, publish, and mark one outbox batch.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "session_service",
		Subsystem: "outbox",
		Name:      "events_dead_lettered_total",
		Help:      "Session events written to the dead-letter queue, per topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, batchDuration, dlqCounter)
}
