package recurrence

import (
	"errors"
	"testing"
	"time"
)

func TestValidateModeInvariants(t *testing.T) {
	t.Parallel()
	iv := &IntervalSpec{Every: 5, Unit: UnitMinutes}
	cal := &CalendarSpec{Hour: "9"}

	tests := []struct {
		name  string
		spec  Spec
		field string // empty means valid
	}{
		{name: "interval ok", spec: Spec{Interval: iv}},
		{name: "calendar ok", spec: Spec{Calendar: cal}},
		{name: "neither", spec: Spec{}, field: "spec"},
		{name: "both", spec: Spec{Interval: iv, Calendar: cal}, field: "spec"},
		{name: "zero interval", spec: Spec{Interval: &IntervalSpec{Every: 0, Unit: UnitMinutes}}, field: "interval.every"},
		{name: "bad unit", spec: Spec{Interval: &IntervalSpec{Every: 1, Unit: "fortnights"}}, field: "interval.unit"},
		{name: "empty calendar", spec: Spec{Calendar: &CalendarSpec{}}, field: "calendar"},
		{name: "bad calendar field", spec: Spec{Calendar: &CalendarSpec{Hour: "25"}}, field: "calendar.hour"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.spec)
			if tt.field == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v, want *ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Fatalf("Field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
}

func TestValidateWindowPairing(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		spec  IntervalSpec
		valid bool
	}{
		{name: "hours with window", spec: IntervalSpec{Every: 2, Unit: UnitHours, BetweenStart: "10:00", BetweenEnd: "22:00"}, valid: true},
		{name: "minutes with window", spec: IntervalSpec{Every: 30, Unit: UnitMinutes, BetweenStart: "09:15", BetweenEnd: "17:00"}, valid: true},
		{name: "start only", spec: IntervalSpec{Every: 2, Unit: UnitHours, BetweenStart: "10:00"}},
		{name: "end only", spec: IntervalSpec{Every: 2, Unit: UnitHours, BetweenEnd: "22:00"}},
		{name: "days with window", spec: IntervalSpec{Every: 1, Unit: UnitDays, BetweenStart: "10:00", BetweenEnd: "22:00"}},
		{name: "seconds with window", spec: IntervalSpec{Every: 30, Unit: UnitSeconds, BetweenStart: "10:00", BetweenEnd: "22:00"}},
		{name: "inverted window", spec: IntervalSpec{Every: 1, Unit: UnitHours, BetweenStart: "22:00", BetweenEnd: "10:00"}},
		{name: "garbage clock", spec: IntervalSpec{Every: 1, Unit: UnitHours, BetweenStart: "10am", BetweenEnd: "22:00"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(Spec{Interval: &tt.spec})
			if tt.valid && err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if !tt.valid && err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}

func TestValidateDateWindow(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	err := Validate(Spec{
		Interval:  &IntervalSpec{Every: 1, Unit: UnitHours},
		StartDate: &start,
		EndDate:   &end,
	})
	if err == nil {
		t.Fatal("expected error for end before start")
	}
}
