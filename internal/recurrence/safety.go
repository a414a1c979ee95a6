package recurrence

import (
	"fmt"
	"time"
)

// UnsafeScheduleError reports a spec that would fire more often than the
// tenant's minimum-interval floor allows. The computed gap is included so
// operators see the actual spacing, not an inferred average.
type UnsafeScheduleError struct {
	Floor time.Duration
	Gap   time.Duration
	At    time.Time // first of the two compared fire times
}

func (e *UnsafeScheduleError) Error() string {
	return fmt.Sprintf("schedule fires every %s, below the %s minimum", e.Gap, e.Floor)
}

// CheckMinInterval verifies the spacing between the next two fires of tr is
// at least floor. Triggers that fire at most once (or never) are safe.
//
// Calendar expressions can have irregular spacing, so the check compares the
// two specific upcoming fires rather than an analytic period. The floor gets
// a one-second grace so DST wobble and sub-second truncation don't reject
// specs that are exactly at the limit.
func CheckMinInterval(tr Trigger, now time.Time, floor time.Duration) error {
	if floor <= 0 {
		return nil
	}
	t1, ok := tr.NextFire(time.Time{}, now)
	if !ok {
		return nil
	}
	t2, ok := tr.NextFire(t1, t1)
	if !ok {
		return nil
	}
	gap := t2.Sub(t1)
	if gap+time.Second < floor {
		return &UnsafeScheduleError{Floor: floor, Gap: gap, At: t1}
	}
	return nil
}
