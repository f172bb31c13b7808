package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	commandsApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "session_service",
		Subsystem: "engine",
		Name:      "commands_applied_total",
		Help:      "Number of agent commands committed, labeled by transition.",
	}, []string{"transition"})

	watchdogTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "session_service",
		Subsystem: "engine",
		Name:      "watchdog_transitions_total",
		Help:      "Number of watchdog transitions committed, labeled by transition.",
	}, []string{"transition"})

	alertsRequested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "session_service",
		Subsystem: "engine",
		Name:      "alerts_requested_total",
		Help:      "Number of supervisor alerts requested, labeled by alert type.",
	}, []string{"alert_type"})

	sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "session_service",
		Subsystem: "engine",
		Name:      "sweep_duration_seconds",
		Help:      "Time spent evaluating all active sessions in one sweep.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	sweepErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "session_service",
		Subsystem: "engine",
		Name:      "sweep_errors_total",
		Help:      "Number of per-agent evaluation failures during sweeps.",
	})
)

func init() {
	prometheus.MustRegister(commandsApplied, watchdogTransitions, alertsRequested, sweepDuration, sweepErrors)
}
