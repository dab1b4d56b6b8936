package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type CronSpec struct {
	minute fieldSet
	hour   fieldSet
	dom    fieldSet
	month  fieldSet
	dow    fieldSet
}

type fieldSet struct {
	any    bool
	values map[int]struct{}
}

var descriptors = map[string]string{
	"@hourly":   "0 * * * *",
	"@daily":    "0 0 * * *",
	"@midnight": "0 0 * * *",
	"@weekly":   "0 0 * * 0",
	"@monthly":  "0 0 1 * *",
}

// ParseCronSpec parses a 5-field expression (minute hour dom month dow) or
// one of the @hourly, @daily, @midnight, @weekly and @monthly descriptors.
func ParseCronSpec(expr string) (CronSpec, error) {
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "@") {
		expanded, ok := descriptors[strings.ToLower(expr)]
		if !ok {
			return CronSpec{}, fmt.Errorf("unknown descriptor %q", expr)
		}
		expr = expanded
	}

	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return CronSpec{}, fmt.Errorf("expected 5 fields")
	}

	minute, err := parseField(parts[0], 0, 59)
	if err != nil {
		return CronSpec{}, fmt.Errorf("minute: %w", err)
	}
	hour, err := parseField(parts[1], 0, 23)
	if err != nil {
		return CronSpec{}, fmt.Errorf("hour: %w", err)
	}
	dom, err := parseField(parts[2], 1, 31)
	if err != nil {
		return CronSpec{}, fmt.Errorf("day-of-month: %w", err)
	}
	month, err := parseField(parts[3], 1, 12)
	if err != nil {
		return CronSpec{}, fmt.Errorf("month: %w", err)
	}
	dow, err := parseField(parts[4], 0, 6)
	if err != nil {
		return CronSpec{}, fmt.Errorf("day-of-week: %w", err)
	}

	return CronSpec{
		minute: minute,
		hour:   hour,
		dom:    dom,
		month:  month,
		dow:    dow,
	}, nil
}

func (s CronSpec) Matches(t time.Time) bool {
	return s.minute.has(t.Minute()) &&
		s.hour.has(t.Hour()) &&
		s.dom.has(t.Day()) &&
		s.month.has(int(t.Month())) &&
		s.dow.has(int(t.Weekday()))
}

// maxLookahead bounds Next; any valid spec fires within four years (Feb 29).
const maxLookahead = 4 * 366 * 24 * time.Hour

// Next returns the first matching minute strictly after t, or the zero time
// when none exists (e.g. "0 0 31 2 *").
func (s CronSpec) Next(t time.Time) time.Time {
	cur := t.Truncate(time.Minute).Add(time.Minute)
	end := t.Add(maxLookahead)
	for cur.Before(end) {
		if !s.month.has(int(cur.Month())) {
			cur = time.Date(cur.Year(), cur.Month()+1, 1, 0, 0, 0, 0, cur.Location())
			continue
		}
		if !s.dom.has(cur.Day()) || !s.dow.has(int(cur.Weekday())) {
			cur = time.Date(cur.Year(), cur.Month(), cur.Day()+1, 0, 0, 0, 0, cur.Location())
			continue
		}
		if !s.hour.has(cur.Hour()) {
			cur = time.Date(cur.Year(), cur.Month(), cur.Day(), cur.Hour()+1, 0, 0, 0, cur.Location())
			continue
		}
		if s.minute.has(cur.Minute()) {
			return cur
		}
		cur = cur.Add(time.Minute)
	}
	return time.Time{}
}

func (f fieldSet) has(v int) bool {
	if f.any {
		return true
	}
	_, ok := f.values[v]
	return ok
}

func parseField(token string, min, max int) (fieldSet, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return fieldSet{}, fmt.Errorf("empty field")
	}
	if token == "*" {
		return fieldSet{any: true}, nil
	}

	set := make(map[int]struct{})
	parts := strings.Split(token, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return fieldSet{}, fmt.Errorf("empty list element")
		}

		step := 1
		if base, s, ok := strings.Cut(part, "/"); ok {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				return fieldSet{}, fmt.Errorf("invalid step %q", part)
			}
			step = n
			part = base
			if part != "*" && !strings.Contains(part, "-") {
				return fieldSet{}, fmt.Errorf("step needs * or a range %q", part)
			}
		}

		start, end := min, max
		switch {
		case part == "*":
		case strings.Contains(part, "-"):
			ends := strings.SplitN(part, "-", 2)
			a, errA := strconv.Atoi(strings.TrimSpace(ends[0]))
			b, errB := strconv.Atoi(strings.TrimSpace(ends[1]))
			if errA != nil || errB != nil {
				return fieldSet{}, fmt.Errorf("invalid range %q", part)
			}
			if a > b || a < min || b > max {
				return fieldSet{}, fmt.Errorf("range out of bounds %q", part)
			}
			start, end = a, b
		default:
			v, err := strconv.Atoi(part)
			if err != nil {
				return fieldSet{}, fmt.Errorf("invalid value %q", part)
			}
			if v < min || v > max {
				return fieldSet{}, fmt.Errorf("value out of bounds %d", v)
			}
			start, end = v, v
		}

		for v := start; v <= end; v += step {
			set[v] = struct{}{}
		}
	}

	if len(set) == 0 {
		return fieldSet{}, fmt.Errorf("no values")
	}
	return fieldSet{values: set}, nil
}
