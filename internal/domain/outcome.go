package domain

import "time"

// Alert types emitted by the escalation engine. Each cause gets its own type
// string so supervisors can filter, and so de-dup keys stay independent.
const (
	AlertExcessiveOthers        = "excessive_others"
	AlertBreakOverrunWarning    = "break_overrun_warning"
	AlertBreakOverrunEscalation = "break_overrun_escalation"
	AlertFiveMinuteRule         = "five_minute_rule"
	AlertMissedConfirmation     = "missed_confirmation"
	AlertAutoLogout             = "auto_logout"
	AlertMarketVisit            = "market_visit_checkout"
)

// TransitionKind names the transition an Outcome represents, for logging and
// metrics labels.
type TransitionKind string

const (
	TransitionNone             TransitionKind = "none"
	TransitionStart            TransitionKind = "start"
	TransitionSwitch           TransitionKind = "switch"
	TransitionConfirmAccepted  TransitionKind = "confirm_accepted"
	TransitionConfirmChanged   TransitionKind = "confirm_changed"
	TransitionEnd              TransitionKind = "end"
	TransitionChallengeOpened  TransitionKind = "challenge_opened"
	TransitionAutoSwitch       TransitionKind = "auto_switch"
	TransitionAutoLogout       TransitionKind = "auto_logout"
	TransitionBreakWarning     TransitionKind = "break_warning"
	TransitionBreakEscalation  TransitionKind = "break_escalation"
	TransitionRestrictedLimit  TransitionKind = "restricted_limit"
	TransitionEndOfDay         TransitionKind = "end_of_day"
)

// SegmentClose completes the open activity-log segment.
type SegmentClose struct {
	Activity ActivityType
	EndedAt  time.Time
	Details  string
	AutoFlag string
}

// SegmentOpen appends a new activity-log segment. EndedAt is set when the
// segment is already complete at commit time (market-visit checkout).
type SegmentOpen struct {
	Activity  ActivityType
	StartedAt time.Time
	EndedAt   *time.Time
	Details   string
	AutoFlag  string
}

// ConfirmationRecord is one row of the confirmation ledger, written whether
// the cycle was resolved by the agent or by the watchdog.
type ConfirmationRecord struct {
	PromptedAt       time.Time
	RespondedAt      *time.Time
	ResponseType     ResponseType
	ActivityBefore   ActivityType
	ActivityAfter    ActivityType
	AutoSwitchReason string
}

// AlertRequest asks the dispatcher to notify the agent's supervisor. A
// non-empty DedupKey makes the alert one-shot per (agent, business date).
type AlertRequest struct {
	AlertType   string
	Title       string
	Description string
	Details     map[string]string
	DedupKey    string
}

// AttendanceMark drives the external attendance ledger.
type AttendanceMark struct {
	Working     bool
	At          time.Time
	ReasonLabel string // only for end-of-work marks
}

// Outcome is the full effect of one committed transition. The engine persists
// the session, log rows, and confirmation rows in a single transaction
// together with the outbox events derived from Alerts and Attendance.
type Outcome struct {
	Kind          TransitionKind
	Session       Session
	Closes        []SegmentClose
	Opens         []SegmentOpen
	Confirmations []ConfirmationRecord
	Alerts        []AlertRequest
	Attendance    *AttendanceMark
}
