package period

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Range is one parsed range of a time period: a day selector and the
// windows of that day the range is active in.
type Range struct {
	Key     string
	Windows []Window

	weekday time.Weekday
	date    string // YYYY-MM-DD, empty for weekday ranges
}

// Window is an inclusive span of seconds since midnight. End may be 86400
// for "24:00".
type Window struct {
	Start, End int
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseRange parses a range key ("monday" or "2026-12-24") and a value of
// comma-separated "HH:MM-HH:MM" windows.
func ParseRange(key, val string) (Range, error) {
	r := Range{Key: key}
	k := strings.ToLower(strings.TrimSpace(key))
	if wd, ok := weekdays[k]; ok {
		r.weekday = wd
	} else if _, err := time.Parse(time.DateOnly, k); err == nil {
		r.date = k
	} else {
		return Range{}, fmt.Errorf("range %q: unsupported day", key)
	}

	for _, part := range strings.Split(val, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		w, err := parseWindow(part)
		if err != nil {
			return Range{}, fmt.Errorf("range %q: %w", key, err)
		}
		r.Windows = append(r.Windows, w)
	}
	if len(r.Windows) == 0 {
		return Range{}, fmt.Errorf("range %q: no time window", key)
	}
	return r, nil
}

func parseWindow(s string) (Window, error) {
	from, to, ok := strings.Cut(s, "-")
	if !ok {
		return Window{}, fmt.Errorf("window %q: want HH:MM-HH:MM", s)
	}
	start, err := parseClock(from)
	if err != nil {
		return Window{}, fmt.Errorf("window %q: %w", s, err)
	}
	end, err := parseClock(to)
	if err != nil {
		return Window{}, fmt.Errorf("window %q: %w", s, err)
	}
	if end < start {
		return Window{}, fmt.Errorf("window %q: ends before it starts", s)
	}
	return Window{Start: start, End: end}, nil
}

func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("time %q: %w", s, err)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("time %q: %w", s, err)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return h*3600 + m*60, nil
}

// Contains reports whether at falls on the range's day and inside one of
// its windows, in at's location.
func (r Range) Contains(at time.Time) bool {
	if r.date != "" {
		if at.Format(time.DateOnly) != r.date {
			return false
		}
	} else if at.Weekday() != r.weekday {
		return false
	}
	sec := at.Hour()*3600 + at.Minute()*60 + at.Second()
	for _, w := range r.Windows {
		if sec >= w.Start && sec <= w.End {
			return true
		}
	}
	return false
}
