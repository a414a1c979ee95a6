package recurrence

import (
	"testing"
	"time"
)

func TestDescribe(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		spec Spec
		want string
	}{
		{
			name: "single unit",
			spec: intervalSpec(1, UnitHours),
			want: "every hour",
		},
		{
			name: "plural",
			spec: intervalSpec(5, UnitMinutes),
			want: "every 5 minutes",
		},
		{
			name: "windowed",
			spec: Spec{Interval: &IntervalSpec{Every: 2, Unit: UnitHours, BetweenStart: "10:00", BetweenEnd: "22:00"}},
			want: "every 2 hours between 10:00 and 22:00",
		},
		{
			name: "weekday morning",
			spec: Spec{Calendar: &CalendarSpec{Hour: "9", Minute: "0", DayOfWeek: "mon-fri"}},
			want: "at 09:00 on mon-fri",
		},
		{
			name: "last of month",
			spec: Spec{Calendar: &CalendarSpec{DayOfMonth: "last", Hour: "12"}},
			want: "at 12:00 on the last of the month",
		},
		{
			name: "start date suffix",
			spec: func() Spec {
				s := intervalSpec(1, UnitDays)
				s.StartDate = &start
				return s
			}(),
			want: "every day from 2026-09-01",
		},
		{
			name: "expression fallback",
			spec: Spec{Calendar: &CalendarSpec{Minute: "*/15"}},
			want: "at minute */15",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := Describe(tt.spec); got != tt.want {
				t.Fatalf("Describe = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPreviewNextStopsAtEnd(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	end := now.Add(3 * time.Minute)

	s := intervalSpec(1, UnitMinutes)
	s.EndDate = &end
	tr := mustCompile(t, s, time.UTC)

	got := PreviewNext(tr, now, 10)
	if len(got) != 3 {
		t.Fatalf("PreviewNext returned %d fires, want 3", len(got))
	}
}
