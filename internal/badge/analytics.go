package badge

import (
	"cmp"
	"context"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/dukerupert/hearth/internal/access"
	"github.com/dukerupert/hearth/internal/apperr"
	"github.com/dukerupert/hearth/internal/model"
	"github.com/dukerupert/hearth/internal/store"
	"github.com/dukerupert/hearth/internal/task"
)

const (
	leaderboardWindow = 30 * 24 * time.Hour
	activityDays      = 14
	pointsPerTask     = 10
)

type LeaderboardEntry struct {
	UserID         string `json:"user_id"`
	Name           string `json:"name"`
	TasksCompleted int    `json:"tasks_completed"`
	BadgeCount     int    `json:"badge_count"`
	Streak         int    `json:"streak"`
	Rank           int    `json:"rank"`
}

// householdTasks loads every task of the household.
func householdTasks(ctx context.Context, st *store.Stores, householdID string) ([]model.Task, error) {
	tasks, _, err := st.Tasks.List(ctx, store.TaskFilter{HouseholdID: householdID})
	return tasks, err
}

func fullName(m model.Member) string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// rank orders entries by completions, then badges, then name. Equal
// completion and badge counts share a rank.
func rank(entries []LeaderboardEntry) {
	slices.SortStableFunc(entries, func(a, b LeaderboardEntry) int {
		return cmp.Or(
			cmp.Compare(b.TasksCompleted, a.TasksCompleted),
			cmp.Compare(b.BadgeCount, a.BadgeCount),
			cmp.Compare(a.Name, b.Name),
		)
	})
	for i := range entries {
		if i > 0 && entries[i].TasksCompleted == entries[i-1].TasksCompleted && entries[i].BadgeCount == entries[i-1].BadgeCount {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}
}

// leaderboard counts completions since the given time.
func (s *Service) leaderboard(ctx context.Context, householdID string, tasks []model.Task, since time.Time) ([]LeaderboardEntry, error) {
	members, err := s.stores.Households.ListMembers(ctx, householdID)
	if err != nil {
		return nil, err
	}
	completed := make(map[string]int)
	for _, t := range tasks {
		if t.Completed && t.AssignedTo != nil && t.CompletedAt != nil && !t.CompletedAt.Before(since) {
			completed[*t.AssignedTo]++
		}
	}

	entries := make([]LeaderboardEntry, 0, len(members))
	for _, m := range members {
		badges, err := s.stores.Badges.ListForUser(ctx, m.UserID)
		if err != nil {
			return nil, err
		}
		times, err := s.stores.Tasks.CompletionTimes(ctx, m.UserID, nil)
		if err != nil {
			return nil, err
		}
		entries = append(entries, LeaderboardEntry{
			UserID:         m.UserID,
			Name:           fullName(m),
			TasksCompleted: completed[m.UserID],
			BadgeCount:     len(badges),
			Streak:         task.CalculateStreak(times),
		})
	}
	rank(entries)
	return entries, nil
}

// Leaderboard ranks household members by tasks completed in the last 30 days.
func (s *Service) Leaderboard(ctx context.Context, userID, householdID string) ([]LeaderboardEntry, error) {
	if _, err := access.Require(ctx, s.stores.Households, userID, householdID, model.RoleMember); err != nil {
		return nil, err
	}
	tasks, err := householdTasks(ctx, s.stores, householdID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	entries, err := s.leaderboard(ctx, householdID, tasks, s.now().Add(-leaderboardWindow))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return entries, nil
}

type TaskAnalytics struct {
	CompletionRate         float64 `json:"completion_rate"`
	TotalTasks             int     `json:"total_tasks"`
	CompletedTasks         int     `json:"completed_tasks"`
	OverdueTasks           int     `json:"overdue_tasks"`
	AverageCompletionHours float64 `json:"average_completion_time"`
}

type UserAnalytics struct {
	TasksCompleted    int `json:"tasks_completed"`
	CurrentStreak     int `json:"current_streak"`
	LongestStreak     int `json:"longest_streak"`
	BadgesEarned      int `json:"badges_earned"`
	ContributionScore int `json:"contribution_score"`
	Rank              int `json:"rank_in_household"`
}

type MemberActivity struct {
	UserID         string `json:"user_id"`
	Name           string `json:"name"`
	TasksCompleted int    `json:"tasks_completed"`
}

type HouseholdAnalytics struct {
	TotalMembers     int             `json:"total_members"`
	ActiveMembers    int             `json:"active_members"`
	MostActiveMember *MemberActivity `json:"most_active_member"`
}

type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type Analytics struct {
	Tasks       TaskAnalytics      `json:"task_analytics"`
	User        UserAnalytics      `json:"user_analytics"`
	Household   HouseholdAnalytics `json:"household_analytics"`
	Activity    []DayCount         `json:"activity"`
	NewlyEarned []model.Badge      `json:"newly_earned_badges"`
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}

// Analytics summarizes the household's tasks from the caller's point of
// view. It runs a badge check for the caller first.
func (s *Service) Analytics(ctx context.Context, userID, householdID string) (*Analytics, error) {
	if _, err := access.Require(ctx, s.stores.Households, userID, householdID, model.RoleMember); err != nil {
		return nil, err
	}
	earned, err := s.Check(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	tasks, err := householdTasks(ctx, s.stores, householdID)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	out := &Analytics{NewlyEarned: earned}
	if out.NewlyEarned == nil {
		out.NewlyEarned = []model.Badge{}
	}

	var totalHours float64
	assignees := make(map[string]bool)
	for _, t := range tasks {
		out.Tasks.TotalTasks++
		if t.AssignedTo != nil {
			assignees[*t.AssignedTo] = true
		}
		if task.StatusOf(t, now) == model.TaskOverdue {
			out.Tasks.OverdueTasks++
		}
		if !t.Completed {
			continue
		}
		out.Tasks.CompletedTasks++
		if t.CompletedAt != nil {
			totalHours += t.CompletedAt.Sub(t.CreatedAt).Hours()
		}
		if t.AssignedTo != nil && *t.AssignedTo == userID {
			out.User.TasksCompleted++
		}
	}
	if out.Tasks.TotalTasks > 0 {
		out.Tasks.CompletionRate = round1(float64(out.Tasks.CompletedTasks) * 100 / float64(out.Tasks.TotalTasks))
	}
	if out.Tasks.CompletedTasks > 0 {
		out.Tasks.AverageCompletionHours = round1(totalHours / float64(out.Tasks.CompletedTasks))
	}

	times, err := s.stores.Tasks.CompletionTimes(ctx, userID, nil)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	out.User.CurrentStreak = task.CalculateStreak(times)
	out.User.LongestStreak = task.LongestStreak(times)
	out.User.ContributionScore = out.User.TasksCompleted * pointsPerTask

	// All-time ranking for the analytics view.
	board, err := s.leaderboard(ctx, householdID, tasks, time.Time{})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	out.Household.TotalMembers = len(board)
	for _, e := range board {
		if assignees[e.UserID] {
			out.Household.ActiveMembers++
		}
		if e.UserID == userID {
			out.User.Rank = e.Rank
			out.User.BadgesEarned = e.BadgeCount
		}
	}
	if len(board) > 0 && board[0].TasksCompleted > 0 {
		top := board[0]
		out.Household.MostActiveMember = &MemberActivity{UserID: top.UserID, Name: top.Name, TasksCompleted: top.TasksCompleted}
	}

	out.Activity = activity(tasks, now)
	return out, nil
}

// activity counts household completions per UTC day, oldest day first.
func activity(tasks []model.Task, now time.Time) []DayCount {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	first := today.AddDate(0, 0, -(activityDays - 1))
	counts := make([]DayCount, activityDays)
	for i := range counts {
		counts[i].Date = first.AddDate(0, 0, i).Format(time.DateOnly)
	}
	for _, t := range tasks {
		if !t.Completed || t.CompletedAt == nil {
			continue
		}
		c := t.CompletedAt.UTC()
		day := time.Date(c.Year(), c.Month(), c.Day(), 0, 0, 0, 0, time.UTC)
		idx := int(day.Sub(first).Hours() / 24)
		if idx >= 0 && idx < activityDays {
			counts[idx].Count++
		}
	}
	return counts
}
