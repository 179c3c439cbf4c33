package digest

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// cronSchedule is a five-field cron expression (minute hour dom month dow)
// supporting "*", "*/step" and comma lists.
type cronSchedule struct {
	minute fieldSet
	hour   fieldSet
	dom    fieldSet
	month  fieldSet
	dow    fieldSet

	domAny bool
	dowAny bool
}

func parseCronSchedule(expr string) (*cronSchedule, error) {
	fields := strings.Fields(strings.TrimSpace(expr))
	if len(fields) != 5 {
		return nil, fmt.Errorf("invalid cron expression (expected 5 fields): %q", expr)
	}
	minute, err := parseCronField(fields[0], 0, 59)
	if err != nil {
		return nil, fmt.Errorf("minute: %w", err)
	}
	hour, err := parseCronField(fields[1], 0, 23)
	if err != nil {
		return nil, fmt.Errorf("hour: %w", err)
	}
	dom, err := parseCronField(fields[2], 1, 31)
	if err != nil {
		return nil, fmt.Errorf("dom: %w", err)
	}
	month, err := parseCronField(fields[3], 1, 12)
	if err != nil {
		return nil, fmt.Errorf("month: %w", err)
	}
	dow, err := parseCronField(fields[4], 0, 6)
	if err != nil {
		return nil, fmt.Errorf("dow: %w", err)
	}
	return &cronSchedule{
		minute: minute,
		hour:   hour,
		dom:    dom,
		month:  month,
		dow:    dow,
		domAny: strings.TrimSpace(fields[2]) == "*",
		dowAny: strings.TrimSpace(fields[4]) == "*",
	}, nil
}

// next returns the first matching time strictly after "after", evaluated in
// after's location so local-hour schedules fire at the configured wall-clock
// hour. The search is bounded to 366 days.
func (s *cronSchedule) next(after time.Time) (time.Time, error) {
	start := after.Add(time.Minute).Truncate(time.Minute)
	limit := start.Add(366 * 24 * time.Hour)
	for t := start; t.Before(limit); t = t.Add(time.Minute) {
		if !s.minute.has(t.Minute()) || !s.hour.has(t.Hour()) || !s.month.has(int(t.Month())) {
			continue
		}
		domMatch := s.dom.has(t.Day())
		dowMatch := s.dow.has(int(t.Weekday()))
		// Standard cron: restricted DOM and DOW combine as OR; otherwise the
		// restricted one must match.
		if !s.domAny && !s.dowAny {
			if !domMatch && !dowMatch {
				continue
			}
		} else if (!s.domAny && !domMatch) || (!s.dowAny && !dowMatch) {
			continue
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("no matching time within search window")
}

type fieldSet struct {
	all bool
	val map[int]struct{}
}

func (f fieldSet) has(v int) bool {
	if f.all {
		return true
	}
	_, ok := f.val[v]
	return ok
}

func parseCronField(tok string, min, max int) (fieldSet, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return fieldSet{}, fmt.Errorf("empty field")
	}
	if tok == "*" {
		return fieldSet{all: true}, nil
	}
	out := fieldSet{val: make(map[int]struct{})}
	for _, part := range strings.Split(tok, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "":
			continue
		case part == "*":
			return fieldSet{all: true}, nil
		case strings.HasPrefix(part, "*/"):
			step, err := strconv.Atoi(strings.TrimPrefix(part, "*/"))
			if err != nil || step <= 0 {
				return fieldSet{}, fmt.Errorf("invalid step %q", part)
			}
			for v := min; v <= max; v += step {
				out.val[v] = struct{}{}
			}
		default:
			n, err := strconv.Atoi(part)
			if err != nil {
				return fieldSet{}, fmt.Errorf("invalid value %q", part)
			}
			if n < min || n > max {
				return fieldSet{}, fmt.Errorf("value %d out of range (%d-%d)", n, min, max)
			}
			out.val[n] = struct{}{}
		}
	}
	if len(out.val) == 0 {
		return fieldSet{}, fmt.Errorf("no values parsed from %q", tok)
	}
	return out, nil
}
