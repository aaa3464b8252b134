package recurrence

import (
	"slices"
	"time"
)

// maxPeriods bounds the walk for rules with no COUNT or UNTIL whose range
// end lies far in the future.
const maxPeriods = 10000

// Occurrence is one concrete instance of a recurring event.
type Occurrence struct {
	Start time.Time
	End   time.Time
}

// Expand returns the occurrences of rule that overlap [rangeStart, rangeEnd).
// The first occurrence is eventStart itself and every occurrence lasts
// eventEnd - eventStart.
func Expand(rule Rule, eventStart, eventEnd, rangeStart, rangeEnd time.Time) []Occurrence {
	duration := eventEnd.Sub(eventStart)
	if duration < 0 {
		duration = 0
	}

	var out []Occurrence
	walk(rule, eventStart, func(start time.Time) bool {
		if !start.Before(rangeEnd) {
			return false
		}
		end := start.Add(duration)
		if end.After(rangeStart) || (duration == 0 && !start.Before(rangeStart)) {
			out = append(out, Occurrence{Start: start, End: end})
		}
		return true
	})
	return out
}

// walk calls yield with each occurrence in order until yield returns false
// or the rule is exhausted. COUNT and UNTIL are applied here.
func walk(rule Rule, start time.Time, yield func(time.Time) bool) {
	interval := max(rule.Interval, 1)
	emitted := 0

	emit := func(t time.Time) bool {
		if t.Before(start) {
			return true
		}
		if rule.Until != nil && t.After(*rule.Until) {
			return false
		}
		if rule.Count > 0 && emitted >= rule.Count {
			return false
		}
		emitted++
		return yield(t)
	}

	for p := 0; p < maxPeriods; p++ {
		step := p * interval
		switch rule.Freq {
		case Daily:
			if !emit(start.AddDate(0, 0, step)) {
				return
			}
		case Weekly:
			if len(rule.ByDay) == 0 {
				if !emit(start.AddDate(0, 0, 7*step)) {
					return
				}
				continue
			}
			monday := mondayOf(start).AddDate(0, 0, 7*step)
			for _, off := range weekdayOffsets(rule.ByDay) {
				if !emit(atClock(monday.AddDate(0, 0, off), start)) {
					return
				}
			}
		case Monthly:
			day := rule.ByMonthDay
			if day == 0 {
				day = start.Day()
			}
			y, m := start.Year(), start.Month()+time.Month(step)
			// months without this day are skipped
			if day > daysIn(y, m) {
				continue
			}
			if !emit(time.Date(y, m, day, start.Hour(), start.Minute(), start.Second(), 0, start.Location())) {
				return
			}
		case Yearly:
			y := start.Year() + step
			if start.Month() == time.February && start.Day() == 29 && daysIn(y, time.February) < 29 {
				continue
			}
			if !emit(time.Date(y, start.Month(), start.Day(), start.Hour(), start.Minute(), start.Second(), 0, start.Location())) {
				return
			}
		default:
			return
		}
	}
}

// weekdayOffsets returns the days' distances from Monday in ascending order.
func weekdayOffsets(days []time.Weekday) []int {
	offs := make([]int, len(days))
	for i, d := range days {
		offs[i] = (int(d) + 6) % 7
	}
	slices.Sort(offs)
	return offs
}

func mondayOf(t time.Time) time.Time {
	off := (int(t.Weekday()) + 6) % 7
	d := t.AddDate(0, 0, -off)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, t.Location())
}

func atClock(day, clock time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), clock.Second(), 0, clock.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
