// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CronExpr is a parsed five-field cron expression. Each field is a bitmask of
// the values it matches.
type CronExpr struct {
	minute     uint64 // 0-59
	hour       uint64 // 0-23
	dayOfMonth uint64 // 1-31
	month      uint64 // 1-12
	dayOfWeek  uint64 // 0-6 (0 = Sunday)

	// domStar and dowStar record an unrestricted day field. When both day
	// fields are restricted a day matches if either does.
	domStar bool
	dowStar bool
}

var macros = map[string]string{
	"@hourly":   "0 * * * *",
	"@daily":    "0 0 * * *",
	"@midnight": "0 0 * * *",
	"@weekly":   "0 0 * * 0",
	"@monthly":  "0 0 1 * *",
	"@yearly":   "0 0 1 1 *",
	"@annually": "0 0 1 1 *",
}

var monthNames = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

var dayNames = map[string]int{
	"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
}

type fieldSpec struct {
	name     string
	min, max int
	names    map[string]int
}

var fieldSpecs = [5]fieldSpec{
	{"minute", 0, 59, nil},
	{"hour", 0, 23, nil},
	{"day-of-month", 1, 31, nil},
	{"month", 1, 12, monthNames},
	// 7 is accepted as Sunday and folded onto 0.
	{"day-of-week", 0, 7, dayNames},
}

// ParseCron parses a cron expression.
// Format: minute hour day-of-month month day-of-week
// Examples:
//   - "0 3 * * *" - every day at 03:00
//   - "*/15 * * * *" - every 15 minutes
//   - "0 9 * * mon-fri" - 9 AM on weekdays
//   - "0 3 1 * *" - 03:00 on the first of each month
func ParseCron(expr string) (*CronExpr, error) {
	if m, ok := macros[strings.ToLower(strings.TrimSpace(expr))]; ok {
		expr = m
	}

	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("expected 5 fields, got %d", len(fields))
	}

	var masks [5]uint64
	for i, f := range fields {
		mask, err := parseField(f, fieldSpecs[i])
		if err != nil {
			return nil, fmt.Errorf("invalid %s field: %w", fieldSpecs[i].name, err)
		}
		masks[i] = mask
	}

	dow := masks[4]
	if dow&(1<<7) != 0 {
		dow = (dow | 1) &^ (1 << 7)
	}

	return &CronExpr{
		minute:     masks[0],
		hour:       masks[1],
		dayOfMonth: masks[2],
		month:      masks[3],
		dayOfWeek:  dow,
		domStar:    fields[2] == "*" || fields[2] == "?",
		dowStar:    fields[4] == "*" || fields[4] == "?",
	}, nil
}

func parseField(field string, spec fieldSpec) (uint64, error) {
	var mask uint64
	for _, part := range strings.Split(field, ",") {
		m, err := parseFieldPart(part, spec)
		if err != nil {
			return 0, err
		}
		mask |= m
	}
	return mask, nil
}

// parseFieldPart handles one comma-separated part: "*", "n", "a-b", with an
// optional "/step".
func parseFieldPart(part string, spec fieldSpec) (uint64, error) {
	step := 1
	if idx := strings.IndexByte(part, '/'); idx != -1 {
		var err error
		step, err = strconv.Atoi(part[idx+1:])
		if err != nil || step <= 0 {
			return 0, fmt.Errorf("invalid step: %s", part[idx+1:])
		}
		part = part[:idx]
	}

	var start, end int
	switch {
	case part == "*" || part == "?":
		start, end = spec.min, spec.max
		if spec.max == 7 {
			end = 6
		}
	case strings.Contains(part, "-"):
		idx := strings.IndexByte(part, '-')
		var err error
		if start, err = value(part[:idx], spec); err != nil {
			return 0, err
		}
		if end, err = value(part[idx+1:], spec); err != nil {
			return 0, err
		}
		if start > end {
			return 0, fmt.Errorf("invalid range: %d > %d", start, end)
		}
	default:
		v, err := value(part, spec)
		if err != nil {
			return 0, err
		}
		start, end = v, v
		if step > 1 {
			end = spec.max
		}
	}

	var mask uint64
	for i := start; i <= end; i += step {
		mask |= 1 << uint(i)
	}
	return mask, nil
}

func value(s string, spec fieldSpec) (int, error) {
	if spec.names != nil {
		if v, ok := spec.names[strings.ToLower(s)]; ok {
			return v, nil
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid value: %s", s)
	}
	if v < spec.min || v > spec.max {
		return 0, fmt.Errorf("value %d out of range [%d-%d]", v, spec.min, spec.max)
	}
	return v, nil
}

func has(mask uint64, v int) bool {
	return mask&(1<<uint(v)) != 0
}

func (c *CronExpr) dayMatches(t time.Time) bool {
	dom := has(c.dayOfMonth, t.Day())
	dow := has(c.dayOfWeek, int(t.Weekday()))
	switch {
	case c.domStar && c.dowStar:
		return true
	case c.domStar:
		return dow
	case c.dowStar:
		return dom
	default:
		return dom || dow
	}
}

// Matches reports whether t, truncated to the minute, satisfies the expression.
func (c *CronExpr) Matches(t time.Time) bool {
	return has(c.month, int(t.Month())) &&
		c.dayMatches(t) &&
		has(c.hour, t.Hour()) &&
		has(c.minute, t.Minute())
}

// Next returns the first matching minute strictly after from, in from's
// location. It returns the zero time if nothing matches within five years
// (e.g. "0 0 31 2 *").
func (c *CronExpr) Next(from time.Time) time.Time {
	loc := from.Location()
	t := from.Truncate(time.Minute).Add(time.Minute)
	limit := from.AddDate(5, 0, 0)

	for t.Before(limit) {
		if !has(c.month, int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, loc)
			continue
		}
		if !c.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
			continue
		}
		if !has(c.hour, t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, loc)
			continue
		}
		if !has(c.minute, t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t
	}
	return time.Time{}
}
