package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// calm returns a running session that triggers no watchdog at the given time:
// on the default activity with a fresh confirmation clock.
func calm(t *testing.T, m Machine, now time.Time) *Session {
	t.Helper()
	s := running(t, m, now)
	out, err := m.Switch(s, ActivityCalling, "", now)
	require.NoError(t, err)
	next := out.Session
	return &next
}

func TestEvaluateIgnoresMissingOrEndedSessions(t *testing.T) {
	m := testMachine()

	_, ok := m.Evaluate(nil, at(10, 0))
	require.False(t, ok)

	s := calm(t, m, at(9, 30))
	endOut, err := m.End(s, EndReasonManual, at(10, 0))
	require.NoError(t, err)
	ended := endOut.Session

	_, ok = m.Evaluate(&ended, at(10, 30))
	require.False(t, ok)
}

func TestEndOfDayLogsOutRegardlessOfActivity(t *testing.T) {
	m := testMachine()
	s := calm(t, m, at(18, 0))

	out, ok := m.Evaluate(s, at(18, 31))
	require.True(t, ok)
	require.Equal(t, TransitionEndOfDay, out.Kind)
	require.Equal(t, SessionEnded, out.Session.State())
	require.Equal(t, EndReasonEndOfDay, out.Session.EndReason)
	require.NotNil(t, out.Attendance)
	require.Equal(t, "Work day ended", out.Attendance.ReasonLabel)
	require.Len(t, out.Closes, 1)
	require.Equal(t, "end_of_day", out.Closes[0].AutoFlag)
}

func TestStaleSessionEndsTheNextMorning(t *testing.T) {
	m := testMachine()
	s := calm(t, m, at(18, 0))

	// 09:00 the next day is before that day's work end but well past the end
	// of the session's own business day, so the session must close rather
	// than linger as a second active row once the agent starts a new day.
	nextMorning := time.Date(2026, time.March, 5, 9, 0, 0, 0, ist)
	out, ok := m.Evaluate(s, nextMorning)
	require.True(t, ok)
	require.Equal(t, TransitionEndOfDay, out.Kind)
	require.Equal(t, SessionEnded, out.Session.State())
	require.Equal(t, EndReasonEndOfDay, out.Session.EndReason)
	require.Equal(t, "2026-03-04", out.Session.BusinessDate)
	require.False(t, out.Session.IsActive)
}

func TestFiveMinuteRuleLogsOutRestrictedActivity(t *testing.T) {
	m := testMachine()
	s := running(t, m, at(9, 55))
	switched, err := m.Switch(s, ActivityColdCalling, "", at(10, 0))
	require.NoError(t, err)
	cur := switched.Session

	// Under the limit nothing happens.
	_, ok := m.Evaluate(&cur, at(10, 4))
	require.False(t, ok)

	out, ok := m.Evaluate(&cur, at(10, 6))
	require.True(t, ok)
	require.Equal(t, TransitionRestrictedLimit, out.Kind)
	require.Equal(t, SessionEnded, out.Session.State())
	require.Equal(t, EndReason("auto_logout_5min_calling_cold"), out.Session.EndReason)

	require.Len(t, out.Alerts, 1)
	require.Equal(t, AlertFiveMinuteRule, out.Alerts[0].AlertType)
	require.Equal(t, "five_min:calling_cold", out.Alerts[0].DedupKey)

	require.Len(t, out.Closes, 1)
	require.Equal(t, "five_minute_rule", out.Closes[0].AutoFlag)
}

func TestBreakOverrunWarningDoesNotMutate(t *testing.T) {
	m := testMachine()
	s := running(t, m, at(10, 55))
	switched, err := m.Switch(s, ActivityBreak, "", at(11, 5))
	require.NoError(t, err)
	cur := switched.Session

	// Still inside the window, then inside the tolerated overrun.
	_, ok := m.Evaluate(&cur, at(11, 10))
	require.False(t, ok)
	_, ok = m.Evaluate(&cur, at(11, 18))
	require.False(t, ok)

	// Seven minutes past the 11:15 end of morning tea.
	out, ok := m.Evaluate(&cur, at(11, 22))
	require.True(t, ok)
	require.Equal(t, TransitionBreakWarning, out.Kind)
	require.False(t, out.Mutates())
	require.Equal(t, cur, out.Session)

	require.Len(t, out.Alerts, 1)
	require.Equal(t, AlertBreakOverrunWarning, out.Alerts[0].AlertType)
	require.Equal(t, "break:morning_tea:warn", out.Alerts[0].DedupKey)
}

func TestBreakOverrunEscalationForcesSwitch(t *testing.T) {
	m := testMachine()
	s := running(t, m, at(10, 55))
	switched, err := m.Switch(s, ActivityBreak, "", at(11, 0))
	require.NoError(t, err)
	cur := switched.Session

	out, ok := m.Evaluate(&cur, at(11, 27))
	require.True(t, ok)
	require.Equal(t, TransitionBreakEscalation, out.Kind)
	require.Equal(t, ActivityCalling, out.Session.CurrentActivity)
	require.True(t, out.Mutates())

	require.Len(t, out.Closes, 1)
	require.Equal(t, ActivityBreak, out.Closes[0].Activity)
	require.Equal(t, "break_overrun", out.Closes[0].AutoFlag)
	require.Len(t, out.Opens, 1)
	require.Equal(t, ActivityCalling, out.Opens[0].Activity)

	require.Len(t, out.Alerts, 1)
	require.Equal(t, AlertBreakOverrunEscalation, out.Alerts[0].AlertType)
	require.Equal(t, "break:morning_tea:escalate", out.Alerts[0].DedupKey)
}

func TestChallengeOpensAfterInterval(t *testing.T) {
	m := testMachine()
	s := calm(t, m, at(10, 0))

	_, ok := m.Evaluate(s, at(10, 14))
	require.False(t, ok)

	out, ok := m.Evaluate(s, at(10, 16))
	require.True(t, ok)
	require.Equal(t, TransitionChallengeOpened, out.Kind)
	require.Equal(t, at(10, 16), *out.Session.PendingPromptAt)
}

func TestChallengeSuppressedOutsideWorkHoursAndBreaks(t *testing.T) {
	m := testMachine()
	s := calm(t, m, at(9, 30))
	stale := at(9, 0)
	s.LastConfirmationAt = &stale

	// Before work start.
	_, ok := m.Evaluate(s, at(9, 20))
	require.False(t, ok)

	// During the lunch window.
	_, ok = m.Evaluate(s, at(13, 30))
	require.False(t, ok)
}

func TestGraceExpiryAutoSwitchesToDefault(t *testing.T) {
	m := testMachine()
	s := running(t, m, at(9, 30))
	switched, err := m.Switch(s, ActivityOthers, "", at(10, 0))
	require.NoError(t, err)
	cur := switched.Session

	prompted := at(10, 15)
	cur.PendingPromptAt = &prompted

	// Inside the grace period nothing fires.
	_, ok := m.Evaluate(&cur, at(10, 16))
	require.False(t, ok)

	out, ok := m.Evaluate(&cur, at(10, 18))
	require.True(t, ok)
	require.Equal(t, TransitionAutoSwitch, out.Kind)
	require.Equal(t, ActivityCalling, out.Session.CurrentActivity)
	require.Equal(t, 1, out.Session.MissedConfirmations)
	require.Nil(t, out.Session.PendingPromptAt)
	require.Equal(t, 18, out.Session.TotalOthersMinutes)

	require.Len(t, out.Confirmations, 1)
	rec := out.Confirmations[0]
	require.Equal(t, prompted, rec.PromptedAt)
	require.Nil(t, rec.RespondedAt)
	require.Equal(t, ResponseAutoSwitched, rec.ResponseType)
	require.Equal(t, "confirmation_timeout", rec.AutoSwitchReason)

	require.Len(t, out.Alerts, 1)
	require.Equal(t, AlertMissedConfirmation, out.Alerts[0].AlertType)
	require.Equal(t, "missed_confirmation:1", out.Alerts[0].DedupKey)

	require.Len(t, out.Opens, 1)
	require.Equal(t, "auto_switch", out.Opens[0].AutoFlag)
}

func TestSecondMissForcesAutoLogout(t *testing.T) {
	m := testMachine()
	s := calm(t, m, at(10, 0))
	cur := *s

	prompted := at(10, 30)
	cur.PendingPromptAt = &prompted
	cur.MissedConfirmations = 1

	out, ok := m.Evaluate(&cur, at(10, 33))
	require.True(t, ok)
	require.Equal(t, TransitionAutoLogout, out.Kind)
	require.Equal(t, SessionEnded, out.Session.State())
	require.Equal(t, EndReasonMissedConfirmations, out.Session.EndReason)

	require.Len(t, out.Confirmations, 1)
	require.Equal(t, "missed_confirmation_limit", out.Confirmations[0].AutoSwitchReason)

	require.Len(t, out.Alerts, 1)
	require.Equal(t, AlertAutoLogout, out.Alerts[0].AlertType)
	require.Equal(t, "auto_logout", out.Alerts[0].DedupKey)

	require.NotNil(t, out.Attendance)
	require.False(t, out.Attendance.Working)
	require.Equal(t, "Auto logout after missed confirmations", out.Attendance.ReasonLabel)
}

func TestEvaluateIsDeterministicForUnchangedState(t *testing.T) {
	m := testMachine()
	s := calm(t, m, at(10, 0))
	now := at(10, 16)

	first, ok := m.Evaluate(s, now)
	require.True(t, ok)
	second, ok := m.Evaluate(s, now)
	require.True(t, ok)
	require.Equal(t, first, second)
}
