// Package recurrence parses the RRULE subset used by calendar events and
// expands rules into concrete occurrences.
package recurrence

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Freq int

const (
	Daily Freq = iota
	Weekly
	Monthly
	Yearly
)

func (f Freq) String() string {
	switch f {
	case Daily:
		return "DAILY"
	case Weekly:
		return "WEEKLY"
	case Monthly:
		return "MONTHLY"
	case Yearly:
		return "YEARLY"
	}
	return ""
}

func parseFreq(s string) (Freq, bool) {
	for _, f := range []Freq{Daily, Weekly, Monthly, Yearly} {
		if f.String() == s {
			return f, true
		}
	}
	return 0, false
}

var weekdayCodes = [...]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

func parseWeekday(s string) (time.Weekday, bool) {
	i := slices.Index(weekdayCodes[:], s)
	if i < 0 {
		return 0, false
	}
	return time.Weekday(i), true
}

const untilLayout = "20060102T150405Z"

var ErrEmptyRule = errors.New("empty recurrence rule")

type Rule struct {
	Freq     Freq
	Interval int            // always >= 1
	ByDay    []time.Weekday // WEEKLY only; empty means the start's weekday
	// ByMonthDay is the day of month for MONTHLY rules; 0 means the start's day.
	ByMonthDay int
	Count      int // 0 = unbounded
	Until      *time.Time
}

// Parse reads a rule such as "FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,TH". Keys are
// case-insensitive and an "RRULE:" prefix is accepted.
func Parse(rule string) (Rule, error) {
	rule = strings.TrimSpace(rule)
	rule = strings.TrimPrefix(strings.ToUpper(rule), "RRULE:")
	if rule == "" {
		return Rule{}, ErrEmptyRule
	}

	r := Rule{Interval: 1}
	seen := map[string]bool{}

	for _, part := range strings.Split(strings.TrimSuffix(rule, ";"), ";") {
		key, val, ok := strings.Cut(part, "=")
		if !ok || val == "" {
			return Rule{}, fmt.Errorf("invalid rule part %q", part)
		}
		if seen[key] {
			return Rule{}, fmt.Errorf("duplicate rule key %q", key)
		}
		seen[key] = true

		switch key {
		case "FREQ":
			f, ok := parseFreq(val)
			if !ok {
				return Rule{}, fmt.Errorf("unknown frequency %q", val)
			}
			r.Freq = f
		case "INTERVAL":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 {
				return Rule{}, fmt.Errorf("invalid interval %q", val)
			}
			r.Interval = n
		case "BYDAY":
			for _, code := range strings.Split(val, ",") {
				wd, ok := parseWeekday(strings.TrimSpace(code))
				if !ok {
					return Rule{}, fmt.Errorf("unknown day %q", code)
				}
				if !slices.Contains(r.ByDay, wd) {
					r.ByDay = append(r.ByDay, wd)
				}
			}
		case "BYMONTHDAY":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 || n > 31 {
				return Rule{}, fmt.Errorf("invalid BYMONTHDAY %q", val)
			}
			r.ByMonthDay = n
		case "COUNT":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 {
				return Rule{}, fmt.Errorf("invalid count %q", val)
			}
			r.Count = n
		case "UNTIL":
			t, err := time.Parse(untilLayout, val)
			if err != nil {
				// date-only UNTIL covers the whole day
				d, derr := time.Parse("20060102", val)
				if derr != nil {
					return Rule{}, fmt.Errorf("invalid UNTIL %q", val)
				}
				t = d.Add(24*time.Hour - time.Second)
			}
			r.Until = &t
		default:
			return Rule{}, fmt.Errorf("unsupported rule key %q", key)
		}
	}

	if !seen["FREQ"] {
		return Rule{}, errors.New("FREQ is required")
	}
	if len(r.ByDay) > 0 && r.Freq != Weekly {
		return Rule{}, errors.New("BYDAY is only supported with FREQ=WEEKLY")
	}
	if r.ByMonthDay > 0 && r.Freq != Monthly {
		return Rule{}, errors.New("BYMONTHDAY is only supported with FREQ=MONTHLY")
	}
	if r.Count > 0 && r.Until != nil {
		return Rule{}, errors.New("COUNT and UNTIL are mutually exclusive")
	}

	return r, nil
}

// String renders the rule in canonical RRULE form.
func (r Rule) String() string {
	parts := []string{"FREQ=" + r.Freq.String()}
	if r.Interval > 1 {
		parts = append(parts, "INTERVAL="+strconv.Itoa(r.Interval))
	}
	if len(r.ByDay) > 0 {
		codes := make([]string, len(r.ByDay))
		for i, d := range r.ByDay {
			codes[i] = weekdayCodes[d]
		}
		parts = append(parts, "BYDAY="+strings.Join(codes, ","))
	}
	if r.ByMonthDay > 0 {
		parts = append(parts, "BYMONTHDAY="+strconv.Itoa(r.ByMonthDay))
	}
	if r.Count > 0 {
		parts = append(parts, "COUNT="+strconv.Itoa(r.Count))
	}
	if r.Until != nil {
		parts = append(parts, "UNTIL="+r.Until.UTC().Format(untilLayout))
	}
	return strings.Join(parts, ";")
}

// Describe returns a short English summary such as "Every 2 weeks on Mon, Thu".
func (r Rule) Describe() string {
	units := map[Freq]string{Daily: "day", Weekly: "week", Monthly: "month", Yearly: "year"}
	unit := units[r.Freq]

	var b strings.Builder
	if r.Interval > 1 {
		fmt.Fprintf(&b, "Every %d %ss", r.Interval, unit)
	} else {
		b.WriteString("Every " + unit)
	}

	if len(r.ByDay) > 0 {
		names := make([]string, len(r.ByDay))
		for i, d := range r.ByDay {
			names[i] = d.String()[:3]
		}
		b.WriteString(" on " + strings.Join(names, ", "))
	}
	if r.ByMonthDay > 0 {
		fmt.Fprintf(&b, " on day %d", r.ByMonthDay)
	}
	if r.Count > 0 {
		fmt.Fprintf(&b, ", %d times", r.Count)
	}
	if r.Until != nil {
		b.WriteString(", until " + r.Until.Format("Jan 2, 2006"))
	}
	return b.String()
}
