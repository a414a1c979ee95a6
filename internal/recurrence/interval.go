package recurrence

import "time"

// IntervalTrigger fires every fixed period, phase-anchored to the previous
// fire (or the start date). Month/year units step by calendar arithmetic
// instead of a fixed number of seconds, so "every month" lands on the same
// day-of-month regardless of month length.
type IntervalTrigger struct {
	every  time.Duration // fixed-length units; zero when months > 0
	months int           // calendar units: 1 per month, 12 per year

	start time.Time // zero when unset
	end   time.Time
	loc   *time.Location
}

func (tr *IntervalTrigger) NextFire(after, now time.Time) (time.Time, bool) {
	if !tr.start.IsZero() && (after.IsZero() || after.Before(tr.start)) {
		// The start date is the first occurrence.
		if !tr.start.Before(now) {
			return clampEnd(tr.start, tr.end)
		}
		// Start already passed: keep its phase, skip missed occurrences.
		return tr.advance(tr.start, now)
	}
	if after.IsZero() {
		// Never fired and no anchor: first run is one full period from now.
		return clampEnd(tr.step(now, 1), tr.end)
	}

	next := tr.step(after, 1)
	if next.Before(now) {
		return tr.advance(after, now)
	}
	return clampEnd(next, tr.end)
}

// step returns anchor advanced by k periods.
func (tr *IntervalTrigger) step(anchor time.Time, k int) time.Time {
	if tr.months > 0 {
		return anchor.In(tr.loc).AddDate(0, k*tr.months, 0)
	}
	return anchor.Add(time.Duration(k) * tr.every)
}

// advance finds the smallest anchor+k*period that is >= now, with k >= 1.
// Multiples are always taken from the anchor so calendar stepping does not
// accumulate end-of-month drift.
func (tr *IntervalTrigger) advance(anchor, now time.Time) (time.Time, bool) {
	if tr.months > 0 {
		for k := 1; k <= 12000; k++ {
			if t := tr.step(anchor, k); !t.Before(now) {
				return clampEnd(t, tr.end)
			}
		}
		return time.Time{}, false
	}

	k := int64(now.Sub(anchor) / tr.every)
	if k < 1 {
		k = 1
	}
	t := anchor.Add(time.Duration(k) * tr.every)
	if t.Before(now) {
		t = t.Add(tr.every)
	}
	return clampEnd(t, tr.end)
}
