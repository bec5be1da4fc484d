// Package cron implements a six-field (seconds-included) cron grammar and a
// schedule table that fires workflow starts on a single-owner ticker.
package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// field bounds, in declaration order: second, minute, hour, day-of-month,
// month, day-of-week.
var fieldBounds = [6][2]int{
	{0, 59}, // second
	{0, 59}, // minute
	{0, 23}, // hour
	{1, 31}, // day of month
	{1, 12}, // month
	{0, 6},  // day of week, 0 = Sunday
}

// Schedule is a parsed six-field cron expression: a bitset per field of
// which values are allowed.
type Schedule struct {
	fields [6]uint64 // bitmask, bit i set means value i is allowed
	expr   string
}

// Parser parses six-field cron expressions into Schedules.
type Parser struct{}

// NewParser constructs a Parser. It holds no state; the zero value works.
func NewParser() *Parser { return &Parser{} }

// Parse parses a six-field cron expression ("second minute hour
// day-of-month month day-of-week") into a Schedule. Each field accepts a
// wildcard (*), a single value, a comma-separated list, a range (a-b), or a
// step (*/n or a-b/n).
func (p *Parser) Parse(expr string) (*Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 6 {
		return nil, fmt.Errorf("cron: expected 6 fields, got %d in %q", len(fields), expr)
	}

	s := &Schedule{expr: expr}
	for i, f := range fields {
		mask, err := parseField(f, fieldBounds[i][0], fieldBounds[i][1])
		if err != nil {
			return nil, fmt.Errorf("cron: field %d (%q): %w", i, f, err)
		}
		s.fields[i] = mask
	}
	return s, nil
}

func parseField(field string, min, max int) (uint64, error) {
	var mask uint64
	for _, part := range strings.Split(field, ",") {
		m, err := parsePart(part, min, max)
		if err != nil {
			return 0, err
		}
		mask |= m
	}
	if mask == 0 {
		return 0, fmt.Errorf("no values matched")
	}
	return mask, nil
}

func parsePart(part string, min, max int) (uint64, error) {
	step := 1
	rangePart := part
	if i := strings.IndexByte(part, '/'); i >= 0 {
		n, err := strconv.Atoi(part[i+1:])
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid step %q", part[i+1:])
		}
		step = n
		rangePart = part[:i]
	}

	lo, hi := min, max
	switch {
	case rangePart == "*":
		// lo/hi already span the full field range.
	case strings.Contains(rangePart, "-"):
		bounds := strings.SplitN(rangePart, "-", 2)
		a, err := strconv.Atoi(bounds[0])
		if err != nil {
			return 0, fmt.Errorf("invalid range start %q", bounds[0])
		}
		b, err := strconv.Atoi(bounds[1])
		if err != nil {
			return 0, fmt.Errorf("invalid range end %q", bounds[1])
		}
		lo, hi = a, b
	default:
		n, err := strconv.Atoi(rangePart)
		if err != nil {
			return 0, fmt.Errorf("invalid value %q", rangePart)
		}
		lo, hi = n, n
	}

	if lo < min || hi > max || lo > hi {
		return 0, fmt.Errorf("value %d-%d out of range [%d,%d]", lo, hi, min, max)
	}

	var mask uint64
	for v := lo; v <= hi; v += step {
		mask |= 1 << uint(v)
	}
	return mask, nil
}

func (s *Schedule) matches(t time.Time) bool {
	sec, min, hour := t.Second(), t.Minute(), t.Hour()
	dom, mon, dow := t.Day(), int(t.Month()), int(t.Weekday())
	return s.fields[0]&(1<<uint(sec)) != 0 &&
		s.fields[1]&(1<<uint(min)) != 0 &&
		s.fields[2]&(1<<uint(hour)) != 0 &&
		s.fields[3]&(1<<uint(dom)) != 0 &&
		s.fields[4]&(1<<uint(mon)) != 0 &&
		s.fields[5]&(1<<uint(dow)) != 0
}

// maxSearchHorizon bounds Next's scan so a schedule that can never fire
// (e.g. February 30th) returns an error instead of looping forever.
const maxSearchHorizon = 4 * 366 * 24 * time.Hour

// Next returns the first instant strictly after 'after' that matches expr,
// scanning second by second. Next truncates 'after' to the second boundary
// and starts from the following second, so calling Next(expr, t) twice in a
// row with the same t always returns the same instant.
func (p *Parser) Next(expr string, after time.Time) (time.Time, error) {
	s, err := p.Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	next := s.Next(after)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("cron: %q does not match any time within %s", expr, maxSearchHorizon)
	}
	return next, nil
}

// Next returns the first instant strictly after 'after' that matches s.
func (s *Schedule) Next(after time.Time) time.Time {
	t := after.Truncate(time.Second).Add(time.Second)
	deadline := after.Add(maxSearchHorizon)
	for t.Before(deadline) {
		if s.matches(t) {
			return t
		}
		t = t.Add(time.Second)
	}
	return time.Time{}
}
