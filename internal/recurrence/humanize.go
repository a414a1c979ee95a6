package recurrence

import (
	"fmt"
	"strconv"
	"strings"
)

// Describe renders a spec as a short natural-language sentence for operator
// display, e.g. "every 2 hours between 10:00 and 22:00" or
// "at 09:00 on mon-fri". It is pure and never fails: fields it cannot
// prettify are rendered verbatim.
func Describe(s Spec) string {
	var out string
	switch {
	case s.Interval != nil:
		out = describeInterval(*s.Interval)
	case s.Calendar != nil:
		out = describeCalendar(*s.Calendar)
	default:
		return "never"
	}

	if s.StartDate != nil {
		out += " from " + s.StartDate.Format("2006-01-02")
	}
	if s.EndDate != nil {
		out += " until " + s.EndDate.Format("2006-01-02")
	}
	return out
}

var unitSingular = map[Unit]string{
	UnitSeconds: "second",
	UnitMinutes: "minute",
	UnitHours:   "hour",
	UnitDays:    "day",
	UnitWeeks:   "week",
	UnitMonths:  "month",
	UnitYears:   "year",
}

func describeInterval(iv IntervalSpec) string {
	unit := unitSingular[iv.Unit]
	if unit == "" {
		unit = string(iv.Unit)
	}

	var b strings.Builder
	if iv.Every == 1 {
		b.WriteString("every ")
		b.WriteString(unit)
	} else {
		fmt.Fprintf(&b, "every %d %ss", iv.Every, unit)
	}
	if iv.hasWindow() {
		fmt.Fprintf(&b, " between %s and %s", strings.TrimSpace(iv.BetweenStart), strings.TrimSpace(iv.BetweenEnd))
	}
	return b.String()
}

func describeCalendar(cs CalendarSpec) string {
	parts := make([]string, 0, 4)

	if t, ok := clockPhrase(cs); ok {
		parts = append(parts, "at "+t)
	} else {
		fields := make([]string, 0, 3)
		if v := strings.TrimSpace(cs.Hour); v != "" {
			fields = append(fields, "hour "+v)
		}
		if v := strings.TrimSpace(cs.Minute); v != "" {
			fields = append(fields, "minute "+v)
		}
		if v := strings.TrimSpace(cs.Second); v != "" {
			fields = append(fields, "second "+v)
		}
		if len(fields) > 0 {
			parts = append(parts, "at "+strings.Join(fields, ", "))
		}
	}

	if v := strings.TrimSpace(cs.DayOfMonth); v != "" {
		parts = append(parts, "on the "+v+" of the month")
	}
	if v := strings.TrimSpace(cs.DayOfWeek); v != "" {
		parts = append(parts, "on "+v)
	}
	if v := strings.TrimSpace(cs.Month); v != "" {
		parts = append(parts, "in "+v)
	}

	if len(parts) == 0 {
		return "at 00:00"
	}
	return strings.Join(parts, " ")
}

// clockPhrase returns "HH:MM" (or "HH:MM:SS") when hour/minute/second are
// plain numbers or unset, mirroring the defaults Compile applies.
func clockPhrase(cs CalendarSpec) (string, bool) {
	h, okH := plainOrDefault(cs.Hour, 0)
	m, okM := plainOrDefault(cs.Minute, 0)
	sec, okS := plainOrDefault(cs.Second, 0)
	if !okH || !okM || !okS {
		return "", false
	}
	if sec != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, sec), true
	}
	return fmt.Sprintf("%02d:%02d", h, m), true
}

func plainOrDefault(raw string, def int) (int, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, true
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}
