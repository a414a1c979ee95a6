package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Compile deterministically maps a spec plus timezone to a Trigger.
// It re-runs Validate so callers holding unvalidated input get a
// *ValidationError rather than a broken trigger.
func Compile(s Spec, loc *time.Location) (Trigger, error) {
	if loc == nil {
		loc = time.UTC
	}
	if err := Validate(s); err != nil {
		return nil, err
	}

	var start, end time.Time
	if s.StartDate != nil {
		start = *s.StartDate
	}
	if s.EndDate != nil {
		end = *s.EndDate
	}

	if s.Interval != nil {
		iv := *s.Interval
		if iv.hasWindow() {
			// A daily-window interval degenerates into calendar triggers
			// covering exactly the window.
			return compileWindowed(iv, start, end, loc)
		}
		if d, ok := iv.Unit.fixed(); ok {
			return &IntervalTrigger{
				every: time.Duration(iv.Every) * d,
				start: start, end: end, loc: loc,
			}, nil
		}
		m, _ := iv.Unit.months()
		return &IntervalTrigger{
			months: iv.Every * m,
			start:  start, end: end, loc: loc,
		}, nil
	}

	return compileCalendar(*s.Calendar, start, end, loc)
}

// compileWindowed synthesizes cron-style fields for an interval bounded to a
// daily clock window, e.g. every 2 hours between 10:00 and 22:00 becomes
// hour "10-21/2", minute "0". A minutes window whose end minute extends past
// its start minute (09:00-10:30) cannot be expressed as one hour-by-minute
// product; the final partial hour gets a trigger of its own and the two are
// unioned.
func compileWindowed(iv IntervalSpec, start, end time.Time, loc *time.Location) (Trigger, error) {
	sh, sm, _ := ParseClock(iv.BetweenStart) // validated already
	eh, em, _ := ParseClock(iv.BetweenEnd)

	if iv.Unit == UnitHours {
		return compileCalendar(CalendarSpec{
			Second: "0",
			Minute: strconv.Itoa(sm),
			Hour:   rangeWithStep(sh, eh-1, iv.Every),
		}, start, end, loc)
	}

	// Minutes: the window start's minute anchors the per-hour pattern.
	if eh == sh {
		return compileCalendar(CalendarSpec{
			Second: "0",
			Hour:   strconv.Itoa(sh),
			Minute: rangeWithStep(sm, em, iv.Every),
		}, start, end, loc)
	}
	head, err := compileCalendar(CalendarSpec{
		Second: "0",
		Hour:   rangeWithStep(sh, eh-1, 1),
		Minute: rangeWithStep(sm, 59, iv.Every),
	}, start, end, loc)
	if err != nil || em <= sm {
		return head, err
	}
	tail, err := compileCalendar(CalendarSpec{
		Second: "0",
		Hour:   strconv.Itoa(eh),
		Minute: rangeWithStep(sm, em, iv.Every),
	}, start, end, loc)
	if err != nil {
		return nil, err
	}
	return &unionTrigger{parts: []Trigger{head, tail}}, nil
}

func rangeWithStep(lo, hi, step int) string {
	if hi <= lo {
		return strconv.Itoa(lo)
	}
	if step > 1 {
		return fmt.Sprintf("%d-%d/%d", lo, hi, step)
	}
	return fmt.Sprintf("%d-%d", lo, hi)
}

func compileCalendar(cs CalendarSpec, start, end time.Time, loc *time.Location) (Trigger, error) {
	h := strings.TrimSpace(cs.Hour)
	m := strings.TrimSpace(cs.Minute)
	sec := strings.TrimSpace(cs.Second)

	// Unset time-of-day fields must not mean "every second": if none is
	// given the spec fires at midnight; if only the coarser ones are given
	// the finer ones default to 0.
	switch {
	case h == "" && m == "" && sec == "":
		h, m, sec = "0", "0", "0"
	default:
		if sec == "" {
			sec = "0"
		}
		if m == "" {
			if h != "" {
				m = "0"
			} else {
				m = "*"
			}
		}
		if h == "" {
			h = "*"
		}
	}

	tr := &CalendarTrigger{start: start, end: end, loc: loc}
	var err error
	if tr.second, err = parseField(sec, secondBounds, false); err != nil {
		return nil, invalid("calendar.second", "%v", err)
	}
	if tr.minute, err = parseField(m, minuteBounds, false); err != nil {
		return nil, invalid("calendar.minute", "%v", err)
	}
	if tr.hour, err = parseField(h, hourBounds, false); err != nil {
		return nil, invalid("calendar.hour", "%v", err)
	}
	if tr.dow, err = parseField(cs.DayOfWeek, dowBounds, false); err != nil {
		return nil, invalid("calendar.day_of_week", "%v", err)
	}
	if tr.dom, err = parseField(cs.DayOfMonth, domBounds, true); err != nil {
		return nil, invalid("calendar.day_of_month", "%v", err)
	}
	if tr.month, err = parseField(cs.Month, monthBounds, false); err != nil {
		return nil, invalid("calendar.month", "%v", err)
	}
	return tr, nil
}
