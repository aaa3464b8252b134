package recurrence

import "time"

// Steps returns anchor + k*intervalDays for k >= 1, stopping after end
// (inclusive, when set) or at horizon (exclusive).
func Steps(anchor time.Time, intervalDays int, end *time.Time, horizon time.Time) []time.Time {
	if intervalDays < 1 {
		return nil
	}
	var out []time.Time
	for k := 1; ; k++ {
		t := anchor.AddDate(0, 0, k*intervalDays)
		if end != nil && t.After(*end) {
			break
		}
		if !t.Before(horizon) {
			break
		}
		out = append(out, t)
	}
	return out
}
