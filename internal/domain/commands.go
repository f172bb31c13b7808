package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/agentsession/internal/schedule"
)

// Machine evaluates session transitions against a policy and day schedule.
// All methods are pure functions of (now, session); callers commit the
// returned Outcome atomically.
type Machine struct {
	Policy Policy
	Day    schedule.Day
}

// NewMachine constructs a Machine.
func NewMachine(policy Policy, day schedule.Day) Machine {
	return Machine{Policy: policy, Day: day}
}

// Start begins or restarts the agent's session for the business day of now.
// Starting an already-running session is a no-op. Restarting an ended session
// clears the end fields and re-activates the same row.
func (m Machine) Start(s *Session, agentID string, now time.Time) (Outcome, error) {
	if s != nil && s.IsActive {
		return Outcome{Kind: TransitionNone, Session: *s}, nil
	}

	next := Session{
		ID:           uuid.NewString(),
		AgentID:      agentID,
		BusinessDate: m.Day.BusinessDate(now),
		CreatedAt:    now,
	}
	if s != nil {
		next = *s
	}

	start := now
	next.StartTime = &start
	next.EndTime = nil
	next.EndReason = ""
	next.IsActive = true
	next.CurrentActivity = ""
	next.CurrentActivityStartedAt = nil
	confirmed := now
	next.LastConfirmationAt = &confirmed
	next.PendingPromptAt = nil
	next.MissedConfirmations = 0
	next.UpdatedAt = now

	return Outcome{
		Kind:       TransitionStart,
		Session:    next,
		Attendance: &AttendanceMark{Working: true, At: now},
	}, nil
}

// Switch moves a running session to a new activity. Every voluntary switch
// counts as an implicit confirmation and resets the challenge clock.
func (m Machine) Switch(s *Session, activity ActivityType, details string, now time.Time) (Outcome, error) {
	if !activity.Valid() {
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownActivity, activity)
	}
	if s == nil || !s.IsActive {
		return Outcome{}, fmt.Errorf("%w: switch requires a running session", ErrPreconditionFailed)
	}

	out := Outcome{Kind: TransitionSwitch, Session: *s}
	m.applySwitch(&out, activity, details, "", now)

	if activity == m.Policy.CheckoutActivity {
		m.applyEnd(&out, EndReasonMarketVisit, "", now)
		out.Alerts = append(out.Alerts, AlertRequest{
			AlertType:   AlertMarketVisit,
			Title:       "Agent checked out for market visit",
			Description: fmt.Sprintf("Agent %s switched to %s and was logged out for the day.", s.AgentID, activity.Label()),
			Details:     map[string]string{"activity": string(activity)},
		})
	}

	return out, nil
}

// Confirm resolves an outstanding confirmation challenge. Only valid while a
// challenge is open; response must be accepted or changed.
func (m Machine) Confirm(s *Session, response ResponseType, newActivity ActivityType, details string, now time.Time) (Outcome, error) {
	if s == nil || !s.IsActive {
		return Outcome{}, fmt.Errorf("%w: confirm requires a running session", ErrPreconditionFailed)
	}
	if s.PendingPromptAt == nil {
		return Outcome{}, fmt.Errorf("%w: no confirmation challenge outstanding", ErrPreconditionFailed)
	}

	promptedAt := *s.PendingPromptAt
	responded := now

	switch response {
	case ResponseAccepted:
		out := Outcome{Kind: TransitionConfirmAccepted, Session: *s}
		m.commitOthers(&out, now, true)
		confirmed := now
		out.Session.LastConfirmationAt = &confirmed
		out.Session.PendingPromptAt = nil
		out.Session.MissedConfirmations = 0
		out.Session.UpdatedAt = now
		out.Confirmations = append(out.Confirmations, ConfirmationRecord{
			PromptedAt:     promptedAt,
			RespondedAt:    &responded,
			ResponseType:   ResponseAccepted,
			ActivityBefore: s.CurrentActivity,
			ActivityAfter:  s.CurrentActivity,
		})
		return out, nil

	case ResponseChanged:
		if !newActivity.Valid() {
			return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownActivity, newActivity)
		}
		out := Outcome{Kind: TransitionConfirmChanged, Session: *s}
		m.applySwitch(&out, newActivity, details, "", now)
		out.Session.MissedConfirmations = 0
		out.Confirmations = append(out.Confirmations, ConfirmationRecord{
			PromptedAt:     promptedAt,
			RespondedAt:    &responded,
			ResponseType:   ResponseChanged,
			ActivityBefore: s.CurrentActivity,
			ActivityAfter:  newActivity,
		})
		if newActivity == m.Policy.CheckoutActivity {
			m.applyEnd(&out, EndReasonMarketVisit, "", now)
			out.Alerts = append(out.Alerts, AlertRequest{
				AlertType:   AlertMarketVisit,
				Title:       "Agent checked out for market visit",
				Description: fmt.Sprintf("Agent %s switched to %s and was logged out for the day.", s.AgentID, newActivity.Label()),
				Details:     map[string]string{"activity": string(newActivity)},
			})
		}
		return out, nil
	}

	return Outcome{}, fmt.Errorf("%w: unsupported confirmation response %q", ErrPreconditionFailed, response)
}

// End closes a running session with the given reason.
func (m Machine) End(s *Session, reason EndReason, now time.Time) (Outcome, error) {
	if s == nil || !s.IsActive {
		return Outcome{}, fmt.Errorf("%w: end requires a running session", ErrPreconditionFailed)
	}
	out := Outcome{Kind: TransitionEnd, Session: *s}
	m.commitOthers(&out, now, false)
	m.applyEnd(&out, reason, "", now)
	return out, nil
}

// applySwitch mutates out for a change of current activity: others
// bookkeeping, segment close/open, confirmation clock reset.
func (m Machine) applySwitch(out *Outcome, activity ActivityType, details, autoFlag string, now time.Time) {
	m.commitOthers(out, now, false)

	if out.Session.CurrentActivity != "" {
		out.Closes = append(out.Closes, SegmentClose{
			Activity: out.Session.CurrentActivity,
			EndedAt:  now,
			AutoFlag: autoFlag,
		})
	}
	out.Opens = append(out.Opens, SegmentOpen{
		Activity:  activity,
		StartedAt: now,
		Details:   details,
		AutoFlag:  autoFlag,
	})

	started := now
	out.Session.CurrentActivity = activity
	out.Session.CurrentActivityStartedAt = &started
	confirmed := now
	out.Session.LastConfirmationAt = &confirmed
	out.Session.PendingPromptAt = nil
	out.Session.UpdatedAt = now
}

// applyEnd mutates out so the session leaves Running. The open segment is
// closed; the freshly opened checkout segment, if any, is completed in place.
func (m Machine) applyEnd(out *Outcome, reason EndReason, autoFlag string, now time.Time) {
	if len(out.Opens) > 0 {
		last := &out.Opens[len(out.Opens)-1]
		ended := now
		last.EndedAt = &ended
	} else if out.Session.CurrentActivity != "" {
		out.Closes = append(out.Closes, SegmentClose{
			Activity: out.Session.CurrentActivity,
			EndedAt:  now,
			AutoFlag: autoFlag,
		})
	}

	ended := now
	out.Session.EndTime = &ended
	out.Session.IsActive = false
	out.Session.EndReason = reason
	out.Session.CurrentActivity = ""
	out.Session.CurrentActivityStartedAt = nil
	out.Session.PendingPromptAt = nil
	out.Session.UpdatedAt = now
	out.Attendance = &AttendanceMark{Working: false, At: now, ReasonLabel: reason.Label()}
}

// commitOthers folds the elapsed minutes of an open "others" segment into the
// session accumulator and fires the one-shot excessive-use alert on the first
// crossing of the threshold. When keepSegment is true the segment stays open
// and its start advances so minutes are never counted twice.
func (m Machine) commitOthers(out *Outcome, now time.Time, keepSegment bool) {
	s := &out.Session
	if s.CurrentActivity != ActivityOthers || s.CurrentActivityStartedAt == nil {
		return
	}

	elapsed := int(now.Sub(*s.CurrentActivityStartedAt).Minutes())
	if elapsed <= 0 {
		return
	}

	before := s.TotalOthersMinutes
	s.TotalOthersMinutes = before + elapsed
	if keepSegment {
		started := now
		s.CurrentActivityStartedAt = &started
	}

	threshold := m.Policy.OthersThresholdMinutes
	if before < threshold && s.TotalOthersMinutes >= threshold {
		out.Alerts = append(out.Alerts, AlertRequest{
			AlertType:   AlertExcessiveOthers,
			Title:       "Excessive time on Others",
			Description: fmt.Sprintf("Agent %s has spent %d minutes on %s today (threshold %d).", s.AgentID, s.TotalOthersMinutes, ActivityOthers.Label(), threshold),
			Details: map[string]string{
				"total_others_minutes": fmt.Sprintf("%d", s.TotalOthersMinutes),
				"threshold_minutes":    fmt.Sprintf("%d", threshold),
			},
			DedupKey: "excessive_others",
		})
	}
}
