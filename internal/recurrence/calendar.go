package recurrence

import "time"

// CalendarTrigger fires whenever the wall clock in its timezone matches all
// of its field expressions. Matching is conjunctive: a restricted
// day-of-month AND a restricted day-of-week must both hold.
type CalendarTrigger struct {
	second fieldExpr
	minute fieldExpr
	hour   fieldExpr
	dom    fieldExpr
	dow    fieldExpr
	month  fieldExpr

	start time.Time // zero when unset
	end   time.Time
	loc   *time.Location
}

// searchHorizon bounds the next-match scan. Anything a calendar spec can
// express ("5th friday of february") recurs well within a few years.
const searchHorizon = 5 * 365 * 24 * time.Hour

func (tr *CalendarTrigger) NextFire(after, now time.Time) (time.Time, bool) {
	// Exclusive lower bound: candidates are > after, >= now, >= start.
	lb := now.Add(-time.Second)
	if !after.IsZero() && after.After(lb) {
		lb = after
	}
	if !tr.start.IsZero() {
		if s := tr.start.Add(-time.Second); s.After(lb) {
			lb = s
		}
	}

	t, ok := tr.next(lb)
	if !ok {
		return time.Time{}, false
	}
	return clampEnd(t, tr.end)
}

// next returns the first matching wall-clock second strictly after lb.
//
// Field resets rebuild the candidate from wall-clock components. During a
// DST fall-back the repeated hour is ambiguous and time.Date resolves it to
// the earlier offset, which can move the rebuilt candidate backwards; every
// reset therefore goes through forward, which falls back to stepping on the
// absolute timeline so the scan always advances.
func (tr *CalendarTrigger) next(lb time.Time) (time.Time, bool) {
	loc := tr.loc
	t := lb.In(loc)
	t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc).Add(time.Second)
	if !t.After(lb) {
		t = lb.Truncate(time.Second).Add(time.Second).In(loc)
	}

	limit := t.Add(searchHorizon)
	for t.Before(limit) {
		if !tr.month.match(int(t.Month())) {
			// First instant of the next month.
			t = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, 1, 0)
			continue
		}
		if !tr.dayMatches(t) {
			t = forward(t, time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1), 24*time.Hour)
			continue
		}
		if !tr.hour.match(t.Hour()) {
			t = forward(t, time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, loc).Add(time.Hour), time.Hour)
			continue
		}
		if !tr.minute.match(t.Minute()) {
			t = forward(t, time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc).Add(time.Minute), time.Minute)
			continue
		}
		if !tr.second.match(t.Second()) {
			t = t.Add(time.Second)
			continue
		}
		return t, true
	}
	return time.Time{}, false
}

// forward moves the scan to next, or by step on the absolute timeline when
// the wall-clock rebuild failed to advance.
func forward(t, next time.Time, step time.Duration) time.Time {
	if next.After(t) {
		return next
	}
	return t.Add(step)
}

func (tr *CalendarTrigger) dayMatches(t time.Time) bool {
	return tr.dom.matchDay(t) && tr.dow.match(int(t.Weekday()))
}
