package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Unit is the time unit of an interval spec.
type Unit string

const (
	UnitSeconds Unit = "seconds"
	UnitMinutes Unit = "minutes"
	UnitHours   Unit = "hours"
	UnitDays    Unit = "days"
	UnitWeeks   Unit = "weeks"
	UnitMonths  Unit = "months"
	UnitYears   Unit = "years"
)

// fixed returns the unit's fixed length. ok is false for calendar units
// (months/years), whose length depends on the timestamp they are added to.
func (u Unit) fixed() (time.Duration, bool) {
	switch u {
	case UnitSeconds:
		return time.Second, true
	case UnitMinutes:
		return time.Minute, true
	case UnitHours:
		return time.Hour, true
	case UnitDays:
		return 24 * time.Hour, true
	case UnitWeeks:
		return 7 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// months returns how many months a single step of the unit advances.
// ok is false for fixed-length units.
func (u Unit) months() (int, bool) {
	switch u {
	case UnitMonths:
		return 1, true
	case UnitYears:
		return 12, true
	default:
		return 0, false
	}
}

func (u Unit) valid() bool {
	switch u {
	case UnitSeconds, UnitMinutes, UnitHours, UnitDays, UnitWeeks, UnitMonths, UnitYears:
		return true
	}
	return false
}

// IntervalSpec fires every N units, optionally restricted to a daily clock
// window ("between"). The window is only legal for hour/minute units; it is
// compiled into a calendar trigger (see Compile).
type IntervalSpec struct {
	Every int  `json:"every"`
	Unit  Unit `json:"unit"`

	// Daily clock window, "HH:MM". Both or neither.
	BetweenStart string `json:"between_start,omitempty"`
	BetweenEnd   string `json:"between_end,omitempty"`
}

// CalendarSpec holds cron-style field expressions. An empty field means
// "every value", except that fully-unset hour/minute/second default so the
// task doesn't fire every second (see Compile).
//
// Supported expression syntax per field: "*", "*/n", "a", "a-b", "a-b/n",
// comma lists, and names for months (jan..dec) and weekdays (sun..sat,
// sun=0). DayOfMonth additionally accepts "last", "last <weekday>" and
// "<nth> <weekday>" (e.g. "2nd fri").
type CalendarSpec struct {
	Second     string `json:"second,omitempty"`
	Minute     string `json:"minute,omitempty"`
	Hour       string `json:"hour,omitempty"`
	DayOfWeek  string `json:"day_of_week,omitempty"`
	DayOfMonth string `json:"day_of_month,omitempty"`
	Month      string `json:"month,omitempty"`
}

// Spec is the persisted recurrence description. Exactly one of Interval or
// Calendar is set (enforced by Validate before anything is persisted).
type Spec struct {
	Interval *IntervalSpec `json:"interval,omitempty"`
	Calendar *CalendarSpec `json:"calendar,omitempty"`

	// Inclusive validity window. Fire times are clamped to it.
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

func (s Spec) IsInterval() bool { return s.Interval != nil }
func (s Spec) IsCalendar() bool { return s.Calendar != nil }

func (s IntervalSpec) hasWindow() bool {
	return strings.TrimSpace(s.BetweenStart) != "" || strings.TrimSpace(s.BetweenEnd) != ""
}

// ParseClock parses "HH:MM" (24h).
func ParseClock(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
