// Package cronexpr is a small, dependency-free 5-field cron expression
// parser and matcher: minute hour day-of-month month day-of-week. It
// supports '*', single values, comma lists, and '*/N' step values —
// deliberately not the full crontab grammar (ranges, named
// months/weekdays), which the scheduler's use case does not need.
package cronexpr

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Expression is a parsed 5-field cron expression.
type Expression struct {
	minute, hour, dom, month, dow fieldMatcher
}

type fieldMatcher func(v int) bool

// Parse parses a 5-field expression ("minute hour dom month dow").
func Parse(expr string) (*Expression, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cronexpr: expected 5 fields, got %d in %q", len(fields), expr)
	}

	bounds := [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}
	matchers := make([]fieldMatcher, 5)
	for i, f := range fields {
		m, err := parseField(f, bounds[i][0], bounds[i][1])
		if err != nil {
			return nil, fmt.Errorf("cronexpr: field %d (%q): %w", i, f, err)
		}
		matchers[i] = m
	}

	return &Expression{
		minute: matchers[0],
		hour:   matchers[1],
		dom:    matchers[2],
		month:  matchers[3],
		dow:    matchers[4],
	}, nil
}

func parseField(f string, lo, hi int) (fieldMatcher, error) {
	if f == "*" {
		return func(int) bool { return true }, nil
	}

	if strings.HasPrefix(f, "*/") {
		step, err := strconv.Atoi(f[2:])
		if err != nil || step <= 0 {
			return nil, fmt.Errorf("invalid step %q", f)
		}
		return func(v int) bool { return (v-lo)%step == 0 }, nil
	}

	values := map[int]bool{}
	for _, part := range strings.Split(f, ",") {
		n, err := strconv.Atoi(part)
		if err != nil || n < lo || n > hi {
			return nil, fmt.Errorf("invalid value %q (want %d-%d)", part, lo, hi)
		}
		values[n] = true
	}
	return func(v int) bool { return values[v] }, nil
}

// Matches reports whether t falls on a minute this expression selects.
// Seconds and sub-second precision are ignored.
func (e *Expression) Matches(t time.Time) bool {
	return e.minute(t.Minute()) &&
		e.hour(t.Hour()) &&
		e.dom(t.Day()) &&
		e.month(int(t.Month())) &&
		e.dow(int(t.Weekday()))
}

// Next returns the earliest time strictly after after that this
// expression matches, scanning minute by minute up to two years ahead.
func (e *Expression) Next(after time.Time) (time.Time, error) {
	t := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.AddDate(2, 0, 0)
	for t.Before(limit) {
		if e.Matches(t) {
			return t, nil
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("cronexpr: no match found within 2 years of %s", after)
}
