package domain

// ActivityType enumerates what an agent can be doing during a work day.
type ActivityType string

const (
	ActivityCalling       ActivityType = "calling_telecalling"
	ActivityColdCalling   ActivityType = "calling_cold"
	ActivityClientMeeting ActivityType = "client_meeting"
	ActivityMarketVisit   ActivityType = "market_visit"
	ActivityBreak         ActivityType = "break"
	ActivityOthers        ActivityType = "others"
)

// Valid reports whether the activity type belongs to the catalog.
func (a ActivityType) Valid() bool {
	switch a {
	case ActivityCalling, ActivityColdCalling, ActivityClientMeeting,
		ActivityMarketVisit, ActivityBreak, ActivityOthers:
		return true
	}
	return false
}

// Label returns the human-readable name used in alerts and attendance entries.
func (a ActivityType) Label() string {
	switch a {
	case ActivityCalling:
		return "Calling / Telecalling"
	case ActivityColdCalling:
		return "Cold Calling"
	case ActivityClientMeeting:
		return "Client Meeting"
	case ActivityMarketVisit:
		return "Market Visit"
	case ActivityBreak:
		return "Break"
	case ActivityOthers:
		return "Others"
	default:
		return string(a)
	}
}
