package recurrence

import (
	"testing"
	"time"
)

func TestParseFieldVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		raw     string
		bounds  fieldBounds
		allowed []int
		denied  []int
	}{
		{name: "star", raw: "*", bounds: hourBounds, allowed: []int{0, 12, 23}},
		{name: "single", raw: "9", bounds: hourBounds, allowed: []int{9}, denied: []int{8, 10}},
		{name: "range", raw: "10-14", bounds: hourBounds, allowed: []int{10, 12, 14}, denied: []int{9, 15}},
		{name: "range with step", raw: "10-21/2", bounds: hourBounds, allowed: []int{10, 12, 20}, denied: []int{11, 21, 22}},
		{name: "star step", raw: "*/15", bounds: minuteBounds, allowed: []int{0, 15, 30, 45}, denied: []int{1, 59}},
		{name: "comma list", raw: "1,15,28", bounds: domBounds, allowed: []int{1, 15, 28}, denied: []int{2, 14}},
		{name: "weekday names", raw: "mon-fri", bounds: dowBounds, allowed: []int{1, 5}, denied: []int{0, 6}},
		{name: "sunday as seven", raw: "7", bounds: dowBounds, allowed: []int{0}, denied: []int{1}},
		{name: "month names", raw: "jan,jul", bounds: monthBounds, allowed: []int{1, 7}, denied: []int{2, 12}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			e, err := parseField(tt.raw, tt.bounds, false)
			if err != nil {
				t.Fatalf("parseField(%q) error: %v", tt.raw, err)
			}
			for _, v := range tt.allowed {
				if !e.match(v) {
					t.Errorf("match(%d) = false, want true", v)
				}
			}
			for _, v := range tt.denied {
				if e.match(v) {
					t.Errorf("match(%d) = true, want false", v)
				}
			}
		})
	}
}

func TestParseFieldInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"61", "a", "5-2", "10-20/0", "mon", ""} {
		if _, err := parseField(raw, minuteBounds, false); err == nil && raw != "" {
			t.Errorf("parseField(%q) expected error", raw)
		}
	}
	// "last" is only legal when specials are allowed.
	if _, err := parseField("last", minuteBounds, false); err == nil {
		t.Error("expected error for special token in plain field")
	}
	if _, err := parseField("last", domBounds, true); err != nil {
		t.Errorf("parseField(last) with specials: %v", err)
	}
}

func TestDomSpecials(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		raw   string
		match []time.Time
		miss  []time.Time
	}{
		{
			name:  "last day",
			raw:   "last",
			match: []time.Time{date(2026, 2, 28), date(2024, 2, 29), date(2026, 1, 31)},
			miss:  []time.Time{date(2026, 2, 27), date(2026, 1, 30)},
		},
		{
			name:  "last friday",
			raw:   "last fri",
			match: []time.Time{date(2026, 8, 28)},
			miss:  []time.Time{date(2026, 8, 21), date(2026, 8, 31)},
		},
		{
			name:  "third tuesday",
			raw:   "3rd tue",
			match: []time.Time{date(2026, 8, 18)},
			miss:  []time.Time{date(2026, 8, 11), date(2026, 8, 25)},
		},
		{
			name:  "mixed list",
			raw:   "1,last",
			match: []time.Time{date(2026, 8, 1), date(2026, 8, 31)},
			miss:  []time.Time{date(2026, 8, 15)},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			e, err := parseField(tt.raw, domBounds, true)
			if err != nil {
				t.Fatalf("parseField(%q) error: %v", tt.raw, err)
			}
			for _, d := range tt.match {
				if !e.matchDay(d) {
					t.Errorf("matchDay(%s) = false, want true", d.Format("2006-01-02 Mon"))
				}
			}
			for _, d := range tt.miss {
				if e.matchDay(d) {
					t.Errorf("matchDay(%s) = true, want false", d.Format("2006-01-02 Mon"))
				}
			}
		})
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
