package domain

import "time"

// Policy carries the escalation thresholds. Values ship as compiled defaults
// and may be overridden through configuration.
type Policy struct {
	// ConfirmationInterval is how long after the last accepted, changed, or
	// auto-switched confirmation a new challenge opens.
	ConfirmationInterval time.Duration
	// GracePeriod is how long an open challenge may stay unanswered.
	GracePeriod time.Duration
	// MaxMissedConfirmations is the consecutive-miss count that forces logout.
	MaxMissedConfirmations int
	// OthersThresholdMinutes triggers the one-shot excessive-use alert.
	OthersThresholdMinutes int
	// RestrictedLimit is the hard cap on uninterrupted time in a restricted activity.
	RestrictedLimit time.Duration
	// BreakWarnAfter and BreakEscalateAfter are overrun thresholds past the
	// scheduled end of a break window.
	BreakWarnAfter     time.Duration
	BreakEscalateAfter time.Duration
	// RestrictedActivities force logout after RestrictedLimit.
	RestrictedActivities map[ActivityType]struct{}
	// CheckoutActivity immediately ends the session when switched to.
	CheckoutActivity ActivityType
	// DefaultActivity is what auto-switches and forced switches land on.
	DefaultActivity ActivityType
}

// DefaultPolicy returns the production thresholds.
func DefaultPolicy() Policy {
	return Policy{
		ConfirmationInterval:   15 * time.Minute,
		GracePeriod:            2 * time.Minute,
		MaxMissedConfirmations: 2,
		OthersThresholdMinutes: 30,
		RestrictedLimit:        5 * time.Minute,
		BreakWarnAfter:         5 * time.Minute,
		BreakEscalateAfter:     10 * time.Minute,
		RestrictedActivities: map[ActivityType]struct{}{
			ActivityColdCalling:   {},
			ActivityClientMeeting: {},
		},
		CheckoutActivity: ActivityMarketVisit,
		DefaultActivity:  ActivityCalling,
	}
}

// Restricted reports whether the activity falls under the five-minute rule.
func (p Policy) Restricted(a ActivityType) bool {
	_, ok := p.RestrictedActivities[a]
	return ok
}
