package recurrence

import "time"

// Trigger is a compiled, stateless recurrence: it maps "when did this last
// fire" to "when does it fire next". Triggers are derived from a Spec plus a
// timezone and are never persisted.
type Trigger interface {
	// NextFire returns the first fire time strictly after "after" that is no
	// earlier than "now". A zero "after" means the trigger has never fired;
	// the result is then the first fire time at or after "now". Occurrences
	// that fell between "after" and "now" (e.g. while the process was down)
	// are skipped, never burst-replayed.
	//
	// ok is false when the trigger can provably never fire again.
	NextFire(after, now time.Time) (t time.Time, ok bool)
}

// PreviewNext computes the next n fire times from now. Useful for operator
// display and debug logs; returns fewer than n entries when the trigger
// exhausts (end date reached).
func PreviewNext(tr Trigger, now time.Time, n int) []time.Time {
	if tr == nil || n <= 0 {
		return nil
	}
	out := make([]time.Time, 0, n)
	after := time.Time{}
	ref := now
	for i := 0; i < n; i++ {
		t, ok := tr.NextFire(after, ref)
		if !ok {
			break
		}
		out = append(out, t)
		after, ref = t, t
	}
	return out
}

// unionTrigger fires at the earliest upcoming fire among its parts.
type unionTrigger struct {
	parts []Trigger
}

func (u *unionTrigger) NextFire(after, now time.Time) (time.Time, bool) {
	var best time.Time
	ok := false
	for _, p := range u.parts {
		t, o := p.NextFire(after, now)
		if o && (!ok || t.Before(best)) {
			best, ok = t, true
		}
	}
	return best, ok
}

// clampEnd applies the inclusive end-date bound shared by both trigger kinds.
func clampEnd(t time.Time, end time.Time) (time.Time, bool) {
	if !end.IsZero() && t.After(end) {
		return time.Time{}, false
	}
	return t, true
}
