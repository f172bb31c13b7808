package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	dlqProcessedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "session_service",
		Subsystem: "dlq",
		Name:      "entries_processed_total",
		Help:      "Number of DLQ entries handled per replay pass.",
	}, []string{"topic", "event_type"})

	dlqOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "session_service",
		Subsystem: "dlq",
		Name:      "entry_outcomes_total",
		Help:      "DLQ entry outcomes: requeued into the outbox, scheduled for a later retry, or quarantined.",
	}, []string{"outcome", "topic"})

	dlqBacklogGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "session_service",
		Subsystem: "dlq",
		Name:      "queued_entries",
		Help:      "Entries currently waiting in the DLQ, excluding quarantined ones.",
	})
)

func init() {
	prometheus.MustRegister(dlqProcessedCounter, dlqOutcomeCounter, dlqBacklogGauge)
}

func recordDLQProcessed(entry dlqEntry) {
	dlqProcessedCounter.WithLabelValues(entry.Topic, entry.EventType).Inc()
}

func recordDLQRequeued(entry dlqEntry) {
	dlqOutcomeCounter.WithLabelValues("requeued", entry.Topic).Inc()
}

func recordDLQQuarantined(entry dlqEntry) {
	dlqOutcomeCounter.WithLabelValues("quarantined", entry.Topic).Inc()
}

func recordDLQRetry(entry dlqEntry) {
	dlqOutcomeCounter.WithLabelValues("retry_scheduled", entry.Topic).Inc()
}

func updateBacklogGauge(ctx context.Context, pool *pgxpool.Pool) {
	var backlog int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL`).Scan(&backlog); err != nil {
		return
	}
	dlqBacklogGauge.Set(float64(backlog))
}
