// Package task manages household tasks: fair auto-assignment, recurring
// instances and completion streaks.
package task

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/hearth/internal/access"
	"github.com/dukerupert/hearth/internal/apperr"
	"github.com/dukerupert/hearth/internal/model"
	"github.com/dukerupert/hearth/internal/notify"
	"github.com/dukerupert/hearth/internal/store"
)

const (
	defaultPerPage = 10
	maxPerPage     = 100
	maxTitleLen    = 200
)

// BadgeChecker re-evaluates achievements after a completion.
type BadgeChecker interface {
	Check(ctx context.Context, userID string) ([]model.Badge, error)
}

type Service struct {
	stores *store.Stores
	notify *notify.Service
	badges BadgeChecker
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithBadgeChecker(b BadgeChecker) Option {
	return func(s *Service) { s.badges = b }
}

func NewService(stores *store.Stores, notifier *notify.Service, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		stores: stores,
		notify: notifier,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetBadgeChecker wires the badge service after construction; the badge
// service itself depends on task streaks.
func (s *Service) SetBadgeChecker(b BadgeChecker) {
	s.badges = b
}

func (s *Service) decorate(t *model.Task) *model.Task {
	if t != nil {
		t.Status = StatusOf(*t, s.now())
	}
	return t
}

type CreateInput struct {
	Title             string          `json:"title"`
	Description       string          `json:"description"`
	Frequency         model.Frequency `json:"frequency"`
	DueDate           *time.Time      `json:"due_date"`
	PreferredAssignee string          `json:"preferred_assignee"`
	IsRecurring       bool            `json:"is_recurring"`
	IntervalDays      int             `json:"interval_days"`
	EndDate           *time.Time      `json:"end_date"`
}

// defaultInterval maps a frequency to the day interval used when a recurring
// task gives none.
func defaultInterval(f model.Frequency) int {
	switch f {
	case model.FrequencyDaily:
		return 1
	case model.FrequencyWeekly:
		return 7
	case model.FrequencyMonthly:
		return 30
	}
	return 0
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", apperr.Validation("title is required")
	}
	if len(title) > maxTitleLen {
		return "", apperr.Validation("title must be at most %d characters", maxTitleLen)
	}
	return title, nil
}

func (s *Service) Create(ctx context.Context, userID, householdID string, in CreateInput) (*model.Task, error) {
	title, err := validateTitle(in.Title)
	if err != nil {
		return nil, err
	}
	if in.Frequency == "" {
		in.Frequency = model.FrequencyOneTime
	}
	if !in.Frequency.Valid() {
		return nil, apperr.Validation("invalid frequency %q", in.Frequency)
	}
	if in.IsRecurring {
		if in.IntervalDays == 0 {
			in.IntervalDays = defaultInterval(in.Frequency)
		}
		if in.IntervalDays < 1 {
			return nil, apperr.Validation("interval_days must be at least 1 for recurring tasks")
		}
	}

	now := s.now().UTC()
	var created *model.Task
	var pending []*model.Notification

	err = s.stores.InTx(ctx, func(tx *store.Stores) error {
		if _, err := access.Require(ctx, tx.Households, userID, householdID, model.RoleMember); err != nil {
			return err
		}
		assignee, err := pickAssignee(ctx, tx, householdID, in.PreferredAssignee)
		if err != nil {
			return apperr.Internal(err)
		}

		var due *time.Time
		if in.DueDate != nil {
			d := in.DueDate.UTC()
			due = &d
		}
		t, err := tx.Tasks.Create(ctx, model.Task{
			Title:       title,
			Description: strings.TrimSpace(in.Description),
			Frequency:   in.Frequency,
			DueDate:     due,
			CreatedAt:   now,
			CreatedBy:   userID,
			AssignedTo:  assignee,
			HouseholdID: householdID,
		})
		if err != nil {
			return apperr.Internal(err)
		}

		if in.IsRecurring {
			anchor := now.Truncate(time.Second)
			if due != nil {
				anchor = *due
			}
			if in.EndDate != nil && in.EndDate.Before(anchor) {
				return apperr.Validation("end_date must not be before the first due date")
			}
			rule, err := tx.Tasks.CreateRule(ctx, model.RecurringRule{
				TaskID:       t.ID,
				IntervalDays: in.IntervalDays,
				AnchorDate:   anchor,
				EndDate:      in.EndDate,
			})
			if err != nil {
				return apperr.Internal(err)
			}
			if _, err := s.generate(ctx, tx, t, rule); err != nil {
				return apperr.Internal(err)
			}
		}

		if assignee != nil && *assignee != userID {
			n, err := s.notifyAssigned(ctx, tx, t, *assignee)
			if err != nil {
				return err
			}
			pending = append(pending, n)
		}
		created = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify.Deliver(ctx, pending...)
	return s.decorate(created), nil
}

func (s *Service) notifyAssigned(ctx context.Context, tx *store.Stores, t *model.Task, assignee string) (*model.Notification, error) {
	hid := t.HouseholdID
	n, err := s.notify.Enqueue(ctx, tx, model.Notification{
		Type:          model.NotifTaskAssigned,
		Content:       "You have been assigned: " + t.Title,
		UserID:        assignee,
		HouseholdID:   &hid,
		ReferenceType: "task",
		ReferenceID:   t.ID,
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return n, nil
}

type ListParams struct {
	Status     string
	AssignedTo string
	Frequency  model.Frequency
	Page       int
	PerPage    int
}

type Page struct {
	Tasks      []model.Task     `json:"tasks"`
	Pagination model.Pagination `json:"pagination"`
}

func (p ListParams) filter(now time.Time) (store.TaskFilter, int, int, error) {
	f := store.TaskFilter{AssignedTo: p.AssignedTo, Frequency: p.Frequency, Now: now}
	switch p.Status {
	case "", "all":
	case string(model.TaskPending), string(model.TaskCompleted), string(model.TaskOverdue):
		f.Status = model.TaskStatus(p.Status)
	default:
		return f, 0, 0, apperr.Validation("invalid status %q", p.Status)
	}
	if p.Frequency != "" && !p.Frequency.Valid() {
		return f, 0, 0, apperr.Validation("invalid frequency %q", p.Frequency)
	}
	page, perPage := p.Page, p.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	perPage = min(perPage, maxPerPage)
	f.Limit = perPage
	f.Offset = (page - 1) * perPage
	return f, page, perPage, nil
}

func (s *Service) list(ctx context.Context, f store.TaskFilter, page, perPage int) (*Page, error) {
	tasks, total, err := s.stores.Tasks.List(ctx, f)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	for i := range tasks {
		s.decorate(&tasks[i])
	}
	return &Page{Tasks: tasks, Pagination: model.NewPagination(total, page, perPage)}, nil
}

func (s *Service) List(ctx context.Context, userID, householdID string, p ListParams) (*Page, error) {
	if _, err := access.Require(ctx, s.stores.Households, userID, householdID, model.RoleMember); err != nil {
		return nil, err
	}
	f, page, perPage, err := p.filter(s.now())
	if err != nil {
		return nil, err
	}
	f.HouseholdID = householdID
	return s.list(ctx, f, page, perPage)
}

// ListForUser lists tasks assigned to target across households. Users may
// only list their own.
func (s *Service) ListForUser(ctx context.Context, userID, target string, p ListParams) (*Page, error) {
	if userID != target {
		return nil, apperr.Forbidden("you can only list your own tasks")
	}
	p.AssignedTo = target
	f, page, perPage, err := p.filter(s.now())
	if err != nil {
		return nil, err
	}
	return s.list(ctx, f, page, perPage)
}

// load fetches a task and checks the caller belongs to its household.
func load(ctx context.Context, st *store.Stores, userID, taskID string) (*model.Task, *model.Membership, error) {
	t, err := st.Tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}
	if t == nil {
		return nil, nil, apperr.NotFound("task")
	}
	m, err := access.Require(ctx, st.Households, userID, t.HouseholdID, model.RoleMember)
	if err != nil {
		return nil, nil, err
	}
	return t, m, nil
}

func (s *Service) Get(ctx context.Context, userID, taskID string) (*model.Task, error) {
	t, _, err := load(ctx, s.stores, userID, taskID)
	if err != nil {
		return nil, err
	}
	return s.decorate(t), nil
}

type UpdateInput struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	DueDate     *time.Time       `json:"due_date"`
	Frequency   *model.Frequency `json:"frequency"`
	AssignedTo  *string          `json:"assigned_to"`
}

func (s *Service) Update(ctx context.Context, userID, taskID string, in UpdateInput) (*model.Task, error) {
	var updated *model.Task
	var pending []*model.Notification

	err := s.stores.InTx(ctx, func(tx *store.Stores) error {
		t, _, err := load(ctx, tx, userID, taskID)
		if err != nil {
			return err
		}
		if in.Title != nil {
			title, err := validateTitle(*in.Title)
			if err != nil {
				return err
			}
			t.Title = title
		}
		if in.Description != nil {
			t.Description = strings.TrimSpace(*in.Description)
		}
		if in.DueDate != nil {
			d := in.DueDate.UTC()
			t.DueDate = &d
		}
		if in.Frequency != nil {
			if !in.Frequency.Valid() {
				return apperr.Validation("invalid frequency %q", *in.Frequency)
			}
			t.Frequency = *in.Frequency
		}

		reassigned := ""
		if in.AssignedTo != nil && (t.AssignedTo == nil || *t.AssignedTo != *in.AssignedTo) {
			if err := requireMember(ctx, tx, t.HouseholdID, *in.AssignedTo); err != nil {
				return err
			}
			assignee := *in.AssignedTo
			t.AssignedTo = &assignee
			reassigned = assignee
		}

		updated, err = tx.Tasks.Update(ctx, t)
		if err != nil {
			return apperr.Internal(err)
		}
		if reassigned != "" && reassigned != userID {
			n, err := s.notifyAssigned(ctx, tx, updated, reassigned)
			if err != nil {
				return err
			}
			pending = append(pending, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify.Deliver(ctx, pending...)
	return s.decorate(updated), nil
}

func requireMember(ctx context.Context, st *store.Stores, householdID, userID string) error {
	m, err := st.Households.GetMembership(ctx, householdID, userID)
	if err != nil {
		return apperr.Internal(err)
	}
	if m == nil {
		return apperr.Validation("assignee must be a member of the household")
	}
	return nil
}

type CompleteResult struct {
	Task   *model.Task `json:"task"`
	Streak int         `json:"streak"`
}

// Complete marks the caller's task done, extends its recurrence and
// returns the caller's updated streak.
func (s *Service) Complete(ctx context.Context, userID, taskID string) (*CompleteResult, error) {
	now := s.now().UTC()
	var done *model.Task
	var pending []*model.Notification

	err := s.stores.InTx(ctx, func(tx *store.Stores) error {
		t, _, err := load(ctx, tx, userID, taskID)
		if err != nil {
			return err
		}
		if t.Completed {
			return apperr.Conflict("task already completed")
		}
		if t.AssignedTo == nil || *t.AssignedTo != userID {
			return apperr.Forbidden("only the assignee can complete this task")
		}

		t.Completed = true
		t.CompletedAt = &now
		done, err = tx.Tasks.Update(ctx, t)
		if err != nil {
			return apperr.Internal(err)
		}

		if err := s.extendRecurrence(ctx, tx, done); err != nil {
			return err
		}

		if done.CreatedBy != userID {
			hid := done.HouseholdID
			n, err := s.notify.Enqueue(ctx, tx, model.Notification{
				Type:          model.NotifTaskCompleted,
				Content:       "Task completed: " + done.Title,
				UserID:        done.CreatedBy,
				HouseholdID:   &hid,
				ReferenceType: "task",
				ReferenceID:   done.ID,
			})
			if err != nil {
				return apperr.Internal(err)
			}
			pending = append(pending, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify.Deliver(ctx, pending...)

	streak, err := s.Streak(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.badges != nil {
		if _, err := s.badges.Check(ctx, userID); err != nil {
			s.logger.Error("check badges after completion", "user_id", userID, "error", err)
		}
	}

	return &CompleteResult{Task: s.decorate(done), Streak: streak}, nil
}

// extendRecurrence tops up instances for the recurring parent of t, or for
// t itself when it carries the rule.
func (s *Service) extendRecurrence(ctx context.Context, tx *store.Stores, t *model.Task) error {
	parent := t
	rule, err := tx.Tasks.RuleForTask(ctx, t.ID)
	if err != nil {
		return apperr.Internal(err)
	}
	if rule == nil && t.ParentTaskID != nil {
		if parent, err = tx.Tasks.GetByID(ctx, *t.ParentTaskID); err != nil {
			return apperr.Internal(err)
		}
		if parent == nil {
			return nil
		}
		if rule, err = tx.Tasks.RuleForTask(ctx, parent.ID); err != nil {
			return apperr.Internal(err)
		}
	}
	if rule == nil {
		return nil
	}
	if _, err := s.generate(ctx, tx, parent, rule); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// Swap hands the task to another member.
func (s *Service) Swap(ctx context.Context, userID, taskID, newAssignee string) (*model.Task, error) {
	if strings.TrimSpace(newAssignee) == "" {
		return nil, apperr.Validation("new_assignee is required")
	}
	return s.Update(ctx, userID, taskID, UpdateInput{AssignedTo: &newAssignee})
}

// Delete removes a task. Only its creator or a household admin may do so;
// generated instances survive with their parent link cleared.
func (s *Service) Delete(ctx context.Context, userID, taskID string) (*model.Task, error) {
	var deleted *model.Task
	err := s.stores.InTx(ctx, func(tx *store.Stores) error {
		t, m, err := load(ctx, tx, userID, taskID)
		if err != nil {
			return err
		}
		if t.CreatedBy != userID && m.Role != model.RoleAdmin {
			return apperr.Forbidden("only the creator or a household admin can delete this task")
		}
		if err := tx.Tasks.Delete(ctx, t.ID); err != nil {
			return apperr.Internal(err)
		}
		deleted = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// Streak returns the user's current completion streak.
func (s *Service) Streak(ctx context.Context, userID string) (int, error) {
	times, err := s.stores.Tasks.CompletionTimes(ctx, userID, nil)
	if err != nil {
		return 0, apperr.Internal(err)
	}
	return CalculateStreak(times), nil
}

// RefillHorizons tops up every open recurring rule so instances keep
// reaching the horizon. It returns the number of instances created.
func (s *Service) RefillHorizons(ctx context.Context) (int, error) {
	rules, err := s.stores.Tasks.ListOpenRules(ctx, s.now())
	if err != nil {
		return 0, err
	}

	total := 0
	for _, r := range rules {
		var created []*model.Task
		err := s.stores.InTx(ctx, func(tx *store.Stores) error {
			// The rule may have advanced since ListOpenRules.
			rule, err := tx.Tasks.RuleForTask(ctx, r.TaskID)
			if err != nil || rule == nil {
				return err
			}
			parent, err := tx.Tasks.GetByID(ctx, rule.TaskID)
			if err != nil || parent == nil {
				return err
			}
			created, err = s.generate(ctx, tx, parent, rule)
			return err
		})
		if err != nil {
			return total, err
		}
		total += len(created)
	}
	return total, nil
}
