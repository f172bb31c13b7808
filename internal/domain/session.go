// Package domain implements the agent activity session state machine.
//
// Commands and watchdog evaluations are pure: they take the persisted session
// plus the current clock reading and return an updated session together with
// the side effects to commit (log segments, confirmation rows, alert requests,
// attendance marks). Nothing in this package performs I/O, which is what lets
// a cold-started evaluator recompute the correct overdue transition straight
// from persisted state.
package domain

import "time"

// SessionState is the coarse state of the machine for a given (agent, day).
type SessionState string

const (
	SessionUnstarted SessionState = "unstarted"
	SessionRunning   SessionState = "running"
	SessionEnded     SessionState = "ended"
)

// EndReason records why a session left the Running state.
type EndReason string

const (
	EndReasonManual               EndReason = "manual"
	EndReasonEndOfDay             EndReason = "end_of_day"
	EndReasonMarketVisit          EndReason = "market_visit"
	EndReasonMissedConfirmations  EndReason = "auto_logout_missed_confirmations"
	endReasonRestrictedActivityPrefix       = "auto_logout_5min_"
)

// RestrictedActivityEndReason composes the end reason for a five-minute-rule
// logout on the given restricted activity.
func RestrictedActivityEndReason(activity ActivityType) EndReason {
	return EndReason(endReasonRestrictedActivityPrefix + string(activity))
}

// Label renders the reason for attendance entries and alert text.
func (r EndReason) Label() string {
	switch r {
	case EndReasonManual:
		return "Logged out"
	case EndReasonEndOfDay:
		return "Work day ended"
	case EndReasonMarketVisit:
		return "Checked out for market visit"
	case EndReasonMissedConfirmations:
		return "Auto logout after missed confirmations"
	default:
		return string(r)
	}
}

// Session is the single row owned by the escalation engine per (agent, day).
type Session struct {
	ID                       string
	AgentID                  string
	BusinessDate             string // YYYY-MM-DD in the business timezone
	StartTime                *time.Time
	EndTime                  *time.Time
	IsActive                 bool
	EndReason                EndReason
	CurrentActivity          ActivityType // empty until the first switch
	CurrentActivityStartedAt *time.Time
	LastConfirmationAt       *time.Time
	PendingPromptAt          *time.Time // outstanding confirmation challenge, nil when none
	MissedConfirmations      int
	TotalOthersMinutes       int
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// State derives the machine state from persisted fields.
func (s *Session) State() SessionState {
	switch {
	case s == nil || s.StartTime == nil:
		return SessionUnstarted
	case s.IsActive:
		return SessionRunning
	default:
		return SessionEnded
	}
}

// ChallengeOutstanding reports whether a confirmation prompt is awaiting a response.
func (s *Session) ChallengeOutstanding() bool {
	return s != nil && s.IsActive && s.PendingPromptAt != nil
}

// LogEntry is one append-only activity segment in the day's ledger.
type LogEntry struct {
	EntryID      int64
	AgentID      string
	BusinessDate string
	Activity     ActivityType
	StartedAt    time.Time
	EndedAt      *time.Time
	Details      string
	AutoFlag     string // set when the segment was opened or closed by a watchdog
}

// ResponseType classifies how a confirmation cycle was resolved.
type ResponseType string

const (
	ResponseAccepted     ResponseType = "accepted"
	ResponseChanged      ResponseType = "changed"
	ResponseAutoSwitched ResponseType = "auto_switched"
)
