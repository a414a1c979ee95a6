package recurrence

import (
	"fmt"
	"strings"
)

// ValidationError reports a malformed spec. Field names the offending field
// so editors can point at it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate rejects specs that cannot be compiled or that violate the
// interval-XOR-calendar invariants. It is pure; a nil return means Compile
// will succeed for any valid timezone.
func Validate(s Spec) error {
	switch {
	case s.Interval == nil && s.Calendar == nil:
		return invalid("spec", "either interval or calendar fields must be set")
	case s.Interval != nil && s.Calendar != nil:
		return invalid("spec", "interval and calendar fields are mutually exclusive")
	}

	if s.StartDate != nil && s.EndDate != nil && s.EndDate.Before(*s.StartDate) {
		return invalid("end_date", "must not be before start_date")
	}

	if s.Interval != nil {
		return validateInterval(*s.Interval)
	}
	return validateCalendar(*s.Calendar)
}

func validateInterval(iv IntervalSpec) error {
	if iv.Every <= 0 {
		return invalid("interval.every", "must be a positive integer")
	}
	if !iv.Unit.valid() {
		return invalid("interval.unit", "unknown unit %q", string(iv.Unit))
	}

	hasStart := strings.TrimSpace(iv.BetweenStart) != ""
	hasEnd := strings.TrimSpace(iv.BetweenEnd) != ""
	if !hasStart && !hasEnd {
		return nil
	}
	if hasStart != hasEnd {
		return invalid("interval.between", "between_start and between_end must be set together")
	}
	if iv.Unit != UnitHours && iv.Unit != UnitMinutes {
		return invalid("interval.between", "daily window requires unit hours or minutes, got %q", string(iv.Unit))
	}

	sh, sm, err := ParseClock(iv.BetweenStart)
	if err != nil {
		return invalid("interval.between_start", "%v", err)
	}
	eh, em, err := ParseClock(iv.BetweenEnd)
	if err != nil {
		return invalid("interval.between_end", "%v", err)
	}
	if eh*60+em <= sh*60+sm {
		return invalid("interval.between", "window end must be after window start (no midnight wrap)")
	}
	if iv.Unit == UnitHours && eh-sh < 1 {
		return invalid("interval.between", "window must span at least one hour for unit hours")
	}
	return nil
}

func validateCalendar(cs CalendarSpec) error {
	fields := []struct {
		name    string
		raw     string
		bounds  fieldBounds
		special bool
	}{
		{"calendar.second", cs.Second, secondBounds, false},
		{"calendar.minute", cs.Minute, minuteBounds, false},
		{"calendar.hour", cs.Hour, hourBounds, false},
		{"calendar.day_of_week", cs.DayOfWeek, dowBounds, false},
		{"calendar.day_of_month", cs.DayOfMonth, domBounds, true},
		{"calendar.month", cs.Month, monthBounds, false},
	}

	any := false
	for _, f := range fields {
		if strings.TrimSpace(f.raw) == "" {
			continue
		}
		any = true
		if _, err := parseField(f.raw, f.bounds, f.special); err != nil {
			return invalid(f.name, "%v", err)
		}
	}
	// An entirely empty calendar spec would degenerate to "every second" in
	// naive cron semantics; reject it before it can be persisted.
	if !any {
		return invalid("calendar", "at least one field must be set")
	}
	return nil
}
