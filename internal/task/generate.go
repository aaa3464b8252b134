package task

import (
	"context"
	"time"

	"github.com/dukerupert/hearth/internal/model"
	"github.com/dukerupert/hearth/internal/recurrence"
	"github.com/dukerupert/hearth/internal/store"
)

// Horizon is how far ahead recurring instances are materialized.
const Horizon = 180 * 24 * time.Hour

// pendingDates returns the due dates of the steps of rule after the last
// generated one and before now+Horizon, plus the step the last of them reaches.
// Steps already generated are never returned again, even if their instance
// was rescheduled or deleted.
func pendingDates(rule model.RecurringRule, now time.Time) ([]time.Time, int) {
	steps := recurrence.Steps(rule.AnchorDate.UTC(), rule.IntervalDays, rule.EndDate, now.Add(Horizon))
	if len(steps) <= rule.GeneratedThrough {
		return nil, rule.GeneratedThrough
	}
	return steps[rule.GeneratedThrough:], len(steps)
}

// generate materializes the missing instances of a recurring parent. st
// should be bound to the caller's transaction.
func (s *Service) generate(ctx context.Context, st *store.Stores, parent *model.Task, rule *model.RecurringRule) ([]*model.Task, error) {
	now := s.now().UTC()
	dates, through := pendingDates(*rule, now)

	var created []*model.Task
	for _, due := range dates {
		assignee, err := pickAssignee(ctx, st, parent.HouseholdID, "")
		if err != nil {
			return nil, err
		}
		due := due
		parentID := parent.ID
		child, err := st.Tasks.Create(ctx, model.Task{
			Title:        parent.Title,
			Description:  parent.Description,
			Frequency:    parent.Frequency,
			DueDate:      &due,
			CreatedAt:    now,
			CreatedBy:    parent.CreatedBy,
			AssignedTo:   assignee,
			HouseholdID:  parent.HouseholdID,
			ParentTaskID: &parentID,
		})
		if err != nil {
			return nil, err
		}
		created = append(created, child)
	}
	if through > rule.GeneratedThrough {
		if err := st.Tasks.SetGeneratedThrough(ctx, rule.ID, through); err != nil {
			return nil, err
		}
		rule.GeneratedThrough = through
	}
	return created, nil
}
