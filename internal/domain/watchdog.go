package domain

import (
	"fmt"
	"time"
)

// Evaluate runs the background watchdogs against a persisted session. It
// returns the first applicable transition for this tick; callers commit it
// and pick up any remaining condition on the next sweep. Evaluating twice
// with unchanged now and unchanged persisted state yields the same outcome,
// so a reconnecting or cold-started evaluator recovers immediately.
//
// Ordering: end-of-day, five-minute rule, break overrun, confirmation cycle.
// Terminal transitions win races by construction; once a session is Ended
// every watchdog is a no-op.
func (m Machine) Evaluate(s *Session, now time.Time) (Outcome, bool) {
	if s == nil || !s.IsActive {
		return Outcome{}, false
	}

	// End of day is anchored to the session's own business date, so a session
	// left running across midnight is closed by the next evaluation no matter
	// how late it comes.
	if end, err := m.Day.WorkEndOn(s.BusinessDate); err == nil && !now.Before(end) {
		out := Outcome{Kind: TransitionEndOfDay, Session: *s}
		m.commitOthers(&out, now, false)
		m.applyEnd(&out, EndReasonEndOfDay, "end_of_day", now)
		return out, true
	}

	if out, ok := m.evaluateRestricted(s, now); ok {
		return out, true
	}
	if out, ok := m.evaluateBreakOverrun(s, now); ok {
		return out, true
	}
	return m.evaluateConfirmationCycle(s, now)
}

// evaluateRestricted enforces the five-minute rule: a hard cap on
// uninterrupted time in a restricted activity before forced logout.
func (m Machine) evaluateRestricted(s *Session, now time.Time) (Outcome, bool) {
	if !m.Policy.Restricted(s.CurrentActivity) || s.CurrentActivityStartedAt == nil {
		return Outcome{}, false
	}
	if now.Sub(*s.CurrentActivityStartedAt) < m.Policy.RestrictedLimit {
		return Outcome{}, false
	}

	activity := s.CurrentActivity
	out := Outcome{Kind: TransitionRestrictedLimit, Session: *s}
	m.applyEnd(&out, RestrictedActivityEndReason(activity), "five_minute_rule", now)
	out.Alerts = append(out.Alerts, AlertRequest{
		AlertType:   AlertFiveMinuteRule,
		Title:       "Restricted activity time limit reached",
		Description: fmt.Sprintf("Agent %s exceeded %s on %s and was logged out.", s.AgentID, m.Policy.RestrictedLimit, activity.Label()),
		Details:     map[string]string{"activity": string(activity)},
		DedupKey:    "five_min:" + string(activity),
	})
	return out, true
}

// evaluateBreakOverrun warns at the first threshold and force-switches the
// agent back to the default activity at the second. Both alerts are one-shot
// per break window per day.
func (m Machine) evaluateBreakOverrun(s *Session, now time.Time) (Outcome, bool) {
	if s.CurrentActivity != ActivityBreak {
		return Outcome{}, false
	}
	window, overrun, ok := m.Day.BreakOverrun(now)
	if !ok || overrun < m.Policy.BreakWarnAfter {
		return Outcome{}, false
	}

	minutes := int(overrun.Minutes())
	details := map[string]string{
		"break_label":     window.Label,
		"scheduled_end":   window.End.String(),
		"overrun_minutes": fmt.Sprintf("%d", minutes),
	}

	if overrun >= m.Policy.BreakEscalateAfter {
		out := Outcome{Kind: TransitionBreakEscalation, Session: *s}
		m.applySwitch(&out, m.Policy.DefaultActivity, "", "break_overrun", now)
		out.Alerts = append(out.Alerts, AlertRequest{
			AlertType:   AlertBreakOverrunEscalation,
			Title:       "Break overrun escalated",
			Description: fmt.Sprintf("Agent %s overran the %s break by %d minutes and was switched to %s.", s.AgentID, window.Label, minutes, m.Policy.DefaultActivity.Label()),
			Details:     details,
			DedupKey:    fmt.Sprintf("break:%s:escalate", window.Label),
		})
		return out, true
	}

	out := Outcome{Kind: TransitionBreakWarning, Session: *s}
	out.Alerts = append(out.Alerts, AlertRequest{
		AlertType:   AlertBreakOverrunWarning,
		Title:       "Break overrun",
		Description: fmt.Sprintf("Agent %s is %d minutes past the end of the %s break.", s.AgentID, minutes, window.Label),
		Details:     details,
		DedupKey:    fmt.Sprintf("break:%s:warn", window.Label),
	})
	return out, true
}

// evaluateConfirmationCycle opens challenges every ConfirmationInterval and
// escalates unanswered ones after the grace period: auto-switch to the
// default activity, or auto-logout once the miss limit is reached.
func (m Machine) evaluateConfirmationCycle(s *Session, now time.Time) (Outcome, bool) {
	if !m.Day.InWorkHours(now) || m.Day.InBreakWindow(now) {
		return Outcome{}, false
	}

	if s.PendingPromptAt == nil {
		if s.LastConfirmationAt == nil || now.Sub(*s.LastConfirmationAt) < m.Policy.ConfirmationInterval {
			return Outcome{}, false
		}
		out := Outcome{Kind: TransitionChallengeOpened, Session: *s}
		prompted := now
		out.Session.PendingPromptAt = &prompted
		out.Session.UpdatedAt = now
		return out, true
	}

	if now.Sub(*s.PendingPromptAt) < m.Policy.GracePeriod {
		return Outcome{}, false
	}

	promptedAt := *s.PendingPromptAt

	if s.MissedConfirmations >= m.Policy.MaxMissedConfirmations-1 {
		out := Outcome{Kind: TransitionAutoLogout, Session: *s}
		m.commitOthers(&out, now, false)
		out.Confirmations = append(out.Confirmations, ConfirmationRecord{
			PromptedAt:       promptedAt,
			ResponseType:     ResponseAutoSwitched,
			ActivityBefore:   s.CurrentActivity,
			AutoSwitchReason: "missed_confirmation_limit",
		})
		m.applyEnd(&out, EndReasonMissedConfirmations, "missed_confirmations", now)
		out.Alerts = append(out.Alerts, AlertRequest{
			AlertType:   AlertAutoLogout,
			Title:       "Agent auto-logged out",
			Description: fmt.Sprintf("Agent %s missed %d consecutive activity confirmations and was logged out.", s.AgentID, s.MissedConfirmations+1),
			Details:     map[string]string{"missed_confirmations": fmt.Sprintf("%d", s.MissedConfirmations+1)},
			DedupKey:    "auto_logout",
		})
		return out, true
	}

	out := Outcome{Kind: TransitionAutoSwitch, Session: *s}
	m.applySwitch(&out, m.Policy.DefaultActivity, "", "auto_switch", now)
	out.Session.MissedConfirmations = s.MissedConfirmations + 1
	out.Confirmations = append(out.Confirmations, ConfirmationRecord{
		PromptedAt:       promptedAt,
		ResponseType:     ResponseAutoSwitched,
		ActivityBefore:   s.CurrentActivity,
		ActivityAfter:    m.Policy.DefaultActivity,
		AutoSwitchReason: "confirmation_timeout",
	})
	out.Alerts = append(out.Alerts, AlertRequest{
		AlertType:   AlertMissedConfirmation,
		Title:       "Activity confirmation missed",
		Description: fmt.Sprintf("Agent %s did not respond to the activity confirmation and was switched to %s.", s.AgentID, m.Policy.DefaultActivity.Label()),
		Details:     map[string]string{"missed_confirmations": fmt.Sprintf("%d", s.MissedConfirmations+1)},
		DedupKey:    fmt.Sprintf("missed_confirmation:%d", s.MissedConfirmations+1),
	})
	return out, true
}

// Mutates reports whether committing the outcome changes persisted session
// state. Pure-alert outcomes (break warnings) leave the row untouched so a
// suppressed duplicate produces no write at all.
func (o Outcome) Mutates() bool {
	switch o.Kind {
	case TransitionNone, TransitionBreakWarning:
		return false
	default:
		return true
	}
}
