package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// fieldBounds describes the legal value range of one calendar field, plus
// optional value names (month and weekday fields).
type fieldBounds struct {
	min, max int
	names    map[string]int
}

var (
	secondBounds = fieldBounds{min: 0, max: 59}
	minuteBounds = fieldBounds{min: 0, max: 59}
	hourBounds   = fieldBounds{min: 0, max: 23}
	domBounds    = fieldBounds{min: 1, max: 31}

	// Cron convention: sun=0.
	dowBounds = fieldBounds{min: 0, max: 6, names: map[string]int{
		"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
	}}
	monthBounds = fieldBounds{min: 1, max: 12, names: map[string]int{
		"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
		"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
	}}
)

// domSpecial is a day-of-month extension: "last", "last fri", "2nd tue".
type domSpecial struct {
	last       bool // last day of month, or last <weekday> when hasWeekday
	hasWeekday bool
	weekday    time.Weekday
	nth        int // 1..5 for "<nth> <weekday>"
}

// fieldExpr is one parsed calendar field. The zero value matches everything.
type fieldExpr struct {
	raw      string
	every    bool
	mask     uint64 // bit (v - bounds.min) set when v is allowed
	min      int
	specials []domSpecial
}

// everyExpr matches all values of the field.
func everyExpr(b fieldBounds) fieldExpr {
	return fieldExpr{raw: "*", every: true, min: b.min}
}

func (e fieldExpr) isEvery() bool { return e.every }

// match reports whether a plain value is allowed. Specials are handled by
// matchDay since they need the full date.
func (e fieldExpr) match(v int) bool {
	if e.every {
		return true
	}
	bit := v - e.min
	if bit < 0 || bit > 63 {
		return false
	}
	return e.mask&(1<<uint(bit)) != 0
}

// matchDay evaluates a day-of-month field against a concrete date, including
// the "last"/"nth weekday" extensions. Parts of a comma list are a union.
func (e fieldExpr) matchDay(t time.Time) bool {
	if e.every {
		return true
	}
	if e.match(t.Day()) {
		return true
	}
	for _, sp := range e.specials {
		if sp.matches(t) {
			return true
		}
	}
	return false
}

func (sp domSpecial) matches(t time.Time) bool {
	if sp.last && !sp.hasWeekday {
		return t.Day() == daysInMonth(t.Year(), t.Month())
	}
	if t.Weekday() != sp.weekday {
		return false
	}
	if sp.last {
		return t.Day()+7 > daysInMonth(t.Year(), t.Month())
	}
	return (t.Day()-1)/7+1 == sp.nth
}

func daysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

var nthNames = map[string]int{"1st": 1, "2nd": 2, "3rd": 3, "4th": 4, "5th": 5}

// parseField parses one calendar field expression.
// allowSpecial enables the day-of-month extensions.
func parseField(raw string, b fieldBounds, allowSpecial bool) (fieldExpr, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" || s == "*" {
		return everyExpr(b), nil
	}

	e := fieldExpr{raw: raw, min: b.min}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return e, fmt.Errorf("empty element in %q", raw)
		}
		if part == "*" {
			return everyExpr(b), nil
		}
		if allowSpecial {
			if sp, ok, err := parseDomSpecial(part); err != nil {
				return e, err
			} else if ok {
				e.specials = append(e.specials, sp)
				continue
			}
		}
		if err := e.addRange(part, b); err != nil {
			return e, err
		}
	}
	return e, nil
}

// addRange parses "*/n", "a", "a-b" or "a-b/n" into the mask.
func (e *fieldExpr) addRange(part string, b fieldBounds) error {
	step := 1
	body := part
	if i := strings.IndexByte(part, '/'); i >= 0 {
		body = part[:i]
		n, err := strconv.Atoi(part[i+1:])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid step in %q", part)
		}
		step = n
	}

	lo, hi := b.min, b.max
	if body != "*" {
		if i := strings.IndexByte(body, '-'); i >= 0 {
			a, err := b.value(body[:i])
			if err != nil {
				return err
			}
			z, err := b.value(body[i+1:])
			if err != nil {
				return err
			}
			if z < a {
				return fmt.Errorf("descending range %q", part)
			}
			lo, hi = a, z
		} else {
			v, err := b.value(body)
			if err != nil {
				return err
			}
			if strings.IndexByte(part, '/') >= 0 {
				// "a/n" means "a-max/n" in classic cron.
				lo, hi = v, b.max
			} else {
				lo, hi = v, v
			}
		}
	}

	for v := lo; v <= hi; v += step {
		e.mask |= 1 << uint(v-b.min)
	}
	return nil
}

func (b fieldBounds) value(s string) (int, error) {
	s = strings.TrimSpace(s)
	if b.names != nil {
		if v, ok := b.names[s]; ok {
			return v, nil
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	// Accept 7 as sunday in the weekday field, like most cron dialects.
	if b.names != nil && b.max == 6 && v == 7 {
		v = 0
	}
	if v < b.min || v > b.max {
		return 0, fmt.Errorf("value %d out of range %d-%d", v, b.min, b.max)
	}
	return v, nil
}

// parseDomSpecial recognizes "last", "last <weekday>" and "<nth> <weekday>".
// ok is false when the token is not a special form at all.
func parseDomSpecial(part string) (domSpecial, bool, error) {
	fields := strings.Fields(part)
	switch len(fields) {
	case 1:
		if fields[0] == "last" {
			return domSpecial{last: true}, true, nil
		}
		return domSpecial{}, false, nil
	case 2:
		wd, wok := dowBounds.names[fields[1]]
		if fields[0] == "last" {
			if !wok {
				return domSpecial{}, true, fmt.Errorf("unknown weekday %q in %q", fields[1], part)
			}
			return domSpecial{last: true, hasWeekday: true, weekday: time.Weekday(wd)}, true, nil
		}
		nth, nok := nthNames[fields[0]]
		if !nok {
			return domSpecial{}, false, nil
		}
		if !wok {
			return domSpecial{}, true, fmt.Errorf("unknown weekday %q in %q", fields[1], part)
		}
		return domSpecial{hasWeekday: true, weekday: time.Weekday(wd), nth: nth}, true, nil
	default:
		return domSpecial{}, false, nil
	}
}
