package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// CRON EXPRESSION
// ══════════════════════════════════════════════════════════════════════════════

// Expression is a parsed standard 5-field cron expression:
//
//	minute hour day-of-month month day-of-week
//
// Each field accepts *, n, n-m, */s, n-m/s and comma-separated lists of
// those. Day-of-week runs 0-6 from Sunday; 7 is accepted as Sunday too.
// When both day fields are restricted a time matches if either does.
//
// Examples:
//   - "0 9 * * 1"    - every Monday at 09:00
//   - "*/15 * * * *" - every 15 minutes
//   - "30 2 1 * *"   - 02:30 on the first of the month
type Expression struct {
	raw      string
	minutes  uint64
	hours    uint64
	days     uint64
	months   uint64
	weekdays uint64
	anyDay   bool
	anyWeek  bool
}

type fieldSpec struct {
	name     string
	min, max int
}

var fieldSpecs = [5]fieldSpec{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 7},
}

// ParseExpression parses a cron expression.
func ParseExpression(expr string) (*Expression, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("invalid cron expression %q: expected 5 fields, got %d", expr, len(fields))
	}

	var sets [5]uint64
	for i, f := range fields {
		set, err := parseField(f, fieldSpecs[i])
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
		}
		sets[i] = set
	}

	// Sunday may be written as 0 or 7.
	if sets[4]&(1<<7) != 0 {
		sets[4] = sets[4]&^(1<<7) | 1
	}

	return &Expression{
		raw:      expr,
		minutes:  sets[0],
		hours:    sets[1],
		days:     sets[2],
		months:   sets[3],
		weekdays: sets[4],
		anyDay:   fields[2] == "*",
		anyWeek:  fields[4] == "*",
	}, nil
}

// MustParseExpression parses expr or panics. Use only for constants.
func MustParseExpression(expr string) *Expression {
	e, err := ParseExpression(expr)
	if err != nil {
		panic(err)
	}
	return e
}

func parseField(field string, spec fieldSpec) (uint64, error) {
	var set uint64
	for _, part := range strings.Split(field, ",") {
		lo, hi, step, err := parseRange(part, spec)
		if err != nil {
			return 0, err
		}
		for v := lo; v <= hi; v += step {
			set |= 1 << uint(v)
		}
	}
	return set, nil
}

func parseRange(part string, spec fieldSpec) (lo, hi, step int, err error) {
	step = 1
	if base, s, ok := strings.Cut(part, "/"); ok {
		step, err = strconv.Atoi(s)
		if err != nil || step <= 0 {
			return 0, 0, 0, fmt.Errorf("%s: invalid step %q", spec.name, s)
		}
		part = base
	}

	switch {
	case part == "*":
		return spec.min, spec.max, step, nil
	case strings.Contains(part, "-"):
		a, b, _ := strings.Cut(part, "-")
		if lo, err = spec.value(a); err != nil {
			return 0, 0, 0, err
		}
		if hi, err = spec.value(b); err != nil {
			return 0, 0, 0, err
		}
		if lo > hi {
			return 0, 0, 0, fmt.Errorf("%s: empty range %q", spec.name, part)
		}
		return lo, hi, step, nil
	default:
		if lo, err = spec.value(part); err != nil {
			return 0, 0, 0, err
		}
		if step > 1 {
			// "n/s" runs from n to the end of the field.
			return lo, spec.max, step, nil
		}
		return lo, lo, 1, nil
	}
}

func (s fieldSpec) value(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid value %q", s.name, v)
	}
	if n < s.min || n > s.max {
		return 0, fmt.Errorf("%s: value %d out of range [%d-%d]", s.name, n, s.min, s.max)
	}
	return n, nil
}

// String returns the expression as written.
func (e *Expression) String() string {
	return e.raw
}

// Next returns the first matching minute strictly after t, in t's location.
// It returns the zero time if nothing matches within five years (e.g.
// "0 0 30 2 *").
func (e *Expression) Next(t time.Time) time.Time {
	t = t.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(5, 0, 0)

	for t.Before(limit) {
		if !has(e.months, int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
			continue
		}
		if !e.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
			continue
		}
		if !has(e.hours, t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, t.Location())
			continue
		}
		if !has(e.minutes, t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t
	}
	return time.Time{}
}

func (e *Expression) dayMatches(t time.Time) bool {
	dom := has(e.days, t.Day())
	dow := has(e.weekdays, int(t.Weekday()))
	switch {
	case e.anyDay && e.anyWeek:
		return true
	case e.anyDay:
		return dow
	case e.anyWeek:
		return dom
	default:
		return dom || dow
	}
}

func has(set uint64, v int) bool {
	return set&(1<<uint(v)) != 0
}

// Common schedules.
const (
	EveryMinute    = "* * * * *"
	EveryHour      = "0 * * * *"
	EveryDayAt2AM  = "0 2 * * *"
	EveryMonday9AM = "0 9 * * 1"
	FirstOfMonth   = "0 0 1 * *"
)
