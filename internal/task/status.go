package task

import (
	"slices"
	"time"

	"github.com/dukerupert/hearth/internal/model"
)

// MaxStreak caps the current streak.
const MaxStreak = 30

// StatusOf derives the read-time status of a task.
func StatusOf(t model.Task, now time.Time) model.TaskStatus {
	if t.Completed {
		return model.TaskCompleted
	}
	if t.DueDate != nil && t.DueDate.Before(now) {
		return model.TaskOverdue
	}
	return model.TaskPending
}

// CalculateStreak counts consecutive UTC days with at least one completion,
// walking back from the most recent completion day and stopping at the
// first gap. The result is capped at MaxStreak.
func CalculateStreak(completions []time.Time) int {
	days := completionDays(completions)
	if len(days) == 0 {
		return 0
	}
	streak := 1
	for i := 1; i < len(days) && streak < MaxStreak; i++ {
		if !days[i].Equal(days[i-1].AddDate(0, 0, -1)) {
			break
		}
		streak++
	}
	return streak
}

// LongestStreak returns the longest run of consecutive completion days.
func LongestStreak(completions []time.Time) int {
	days := completionDays(completions)
	if len(days) == 0 {
		return 0
	}
	best, run := 1, 1
	for i := 1; i < len(days); i++ {
		if days[i].Equal(days[i-1].AddDate(0, 0, -1)) {
			run++
			best = max(best, run)
			continue
		}
		run = 1
	}
	return best
}

// completionDays returns the distinct UTC days, newest first.
func completionDays(completions []time.Time) []time.Time {
	days := make([]time.Time, 0, len(completions))
	for _, c := range completions {
		days = append(days, startOfDay(c))
	}
	slices.SortFunc(days, func(a, b time.Time) int { return b.Compare(a) })
	return slices.CompactFunc(days, time.Time.Equal)
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
