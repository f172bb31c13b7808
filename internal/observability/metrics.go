package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	sessionPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "session_service",
		Subsystem: "persistence",
		Name:      "last_session_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent session transition persisted to Postgres.",
	})
	attendancePersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "session_service",
		Subsystem: "persistence",
		Name:      "last_attendance_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent attendance ledger write.",
	})
)

func init() {
	prometheus.MustRegister(sessionPersistGauge, attendancePersistGauge)
}

// RecordSessionPersisted updates the persistence watermark gauge.
func RecordSessionPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	sessionPersistGauge.Set(float64(ts.Unix()))
}

// RecordAttendancePersisted updates the attendance watermark gauge.
func RecordAttendancePersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	attendancePersistGauge.Set(float64(ts.Unix()))
}
