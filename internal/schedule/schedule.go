// Package schedule models the fixed wall-clock structure of a work day:
// business timezone, work hours, and the shared break windows.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ClockTime is a wall-clock instant within a day, timezone-agnostic.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses "HH:MM".
func ParseClockTime(value string) (ClockTime, error) {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 2)
	if len(parts) != 2 {
		return ClockTime{}, fmt.Errorf("invalid clock time %q", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return ClockTime{}, fmt.Errorf("invalid hour in %q", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return ClockTime{}, fmt.Errorf("invalid minute in %q", value)
	}
	return ClockTime{Hour: hour, Minute: minute}, nil
}

// On anchors the clock time to the calendar day of ref in the given location.
func (c ClockTime) On(ref time.Time, loc *time.Location) time.Time {
	local := ref.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), c.Hour, c.Minute, 0, 0, loc)
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// BreakWindow is one company-wide scheduled break. Breaks are fixed wall-clock
// windows, not agent-specific.
type BreakWindow struct {
	Label string
	Start ClockTime
	End   ClockTime
}

// Day is the work-day schedule in a single business timezone.
type Day struct {
	Location  *time.Location
	WorkStart ClockTime
	WorkEnd   ClockTime
	Breaks    []BreakWindow
}

// Default returns the standard call-floor schedule in the given timezone.
func Default(loc *time.Location) Day {
	return Day{
		Location:  loc,
		WorkStart: ClockTime{Hour: 9, Minute: 30},
		WorkEnd:   ClockTime{Hour: 18, Minute: 30},
		Breaks: []BreakWindow{
			{Label: "morning_tea", Start: ClockTime{Hour: 11, Minute: 0}, End: ClockTime{Hour: 11, Minute: 15}},
			{Label: "lunch", Start: ClockTime{Hour: 13, Minute: 15}, End: ClockTime{Hour: 14, Minute: 15}},
			{Label: "evening_tea", Start: ClockTime{Hour: 16, Minute: 30}, End: ClockTime{Hour: 16, Minute: 45}},
		},
	}
}

// BusinessDate formats the calendar day of now in the business timezone.
func (d Day) BusinessDate(now time.Time) string {
	return now.In(d.Location).Format("2006-01-02")
}

// InWorkHours reports whether now falls inside [WorkStart, WorkEnd).
func (d Day) InWorkHours(now time.Time) bool {
	start := d.WorkStart.On(now, d.Location)
	end := d.WorkEnd.On(now, d.Location)
	return !now.Before(start) && now.Before(end)
}

// WorkEndOn anchors the work-end instant to the given business date
// (YYYY-MM-DD in the business timezone).
func (d Day) WorkEndOn(businessDate string) (time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", businessDate, d.Location)
	if err != nil {
		return time.Time{}, err
	}
	return d.WorkEnd.On(day, d.Location), nil
}

// InBreakWindow reports whether now falls inside any scheduled break window.
func (d Day) InBreakWindow(now time.Time) bool {
	for _, w := range d.Breaks {
		start := w.Start.On(now, d.Location)
		end := w.End.On(now, d.Location)
		if !now.Before(start) && now.Before(end) {
			return true
		}
	}
	return false
}

// BreakOverrun returns the break window whose scheduled end has most recently
// passed, together with how far now is past that end. ok is false when now is
// before every window or still inside one.
func (d Day) BreakOverrun(now time.Time) (BreakWindow, time.Duration, bool) {
	var (
		best        BreakWindow
		bestOverrun time.Duration
		found       bool
	)
	for _, w := range d.Breaks {
		start := w.Start.On(now, d.Location)
		end := w.End.On(now, d.Location)
		if now.Before(start) || now.Before(end) {
			continue
		}
		overrun := now.Sub(end)
		if !found || overrun < bestOverrun {
			best = w
			bestOverrun = overrun
			found = true
		}
	}
	return best, bestOverrun, found
}
