// Package events defines the payloads published through the outbox.
package events

import "time"

// Event type and topic names used across dispatcher and consumers.
const (
	TypeAlertRequested   = "alert.requested"
	TypeAttendanceMarked = "attendance.marked"
	TypeSessionUpdated   = "session.updated"

	TopicSupervisorAlerts = "supervisor_alerts"
	TopicAttendance       = "attendance_events"
	TopicSessionUpdates   = "session_events"
)

// AlertRequested asks the alert sink to notify a supervisor about an agent.
type AlertRequested struct {
	AlertID      string            `json:"alert_id"`
	AlertType    string            `json:"alert_type"`
	AgentID      string            `json:"agent_id"`
	SupervisorID string            `json:"supervisor_id"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Details      map[string]string `json:"details,omitempty"`
	RequestedAt  time.Time         `json:"requested_at"`
}

// AttendanceMarked carries a coarse day-begun / day-ended update for the
// attendance ledger.
type AttendanceMarked struct {
	AgentID      string    `json:"agent_id"`
	BusinessDate string    `json:"business_date"`
	Working      bool      `json:"working"`
	At           time.Time `json:"at"`
	ReasonLabel  string    `json:"reason_label,omitempty"`
}

// SessionUpdated notifies dashboards that a session transition committed.
type SessionUpdated struct {
	SessionID           string    `json:"session_id"`
	AgentID             string    `json:"agent_id"`
	BusinessDate        string    `json:"business_date"`
	State               string    `json:"state"`
	CurrentActivity     string    `json:"current_activity,omitempty"`
	MissedConfirmations int       `json:"missed_confirmations"`
	Transition          string    `json:"transition"`
	UpdatedAt           time.Time `json:"updated_at"`
}
