package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/hearth/internal/model"
	"github.com/google/uuid"
)

type TaskStore struct {
	db DBTX
}

func NewTaskStore(db DBTX) *TaskStore {
	return &TaskStore{db: db}
}

const taskCols = `id, title, description, frequency, due_date, completed, completed_at, created_at, created_by, assigned_to, household_id, parent_task_id, overdue_notified_at`

func scanTask(sc scanner) (*model.Task, error) {
	var t model.Task
	var due, completedAt, notified sql.NullTime
	var assigned, parent sql.NullString
	err := sc.Scan(&t.ID, &t.Title, &t.Description, &t.Frequency, &due, &t.Completed, &completedAt,
		&t.CreatedAt, &t.CreatedBy, &assigned, &t.HouseholdID, &parent, &notified)
	if err != nil {
		return nil, err
	}
	t.DueDate = timePtr(due)
	t.CompletedAt = timePtr(completedAt)
	t.OverdueNotifiedAt = timePtr(notified)
	t.AssignedTo = stringPtr(assigned)
	t.ParentTaskID = stringPtr(parent)
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]model.Task, error) {
	defer rows.Close()
	var out []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *TaskStore) Create(ctx context.Context, t model.Task) (*model.Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now()
	}
	if t.Frequency == "" {
		t.Frequency = model.FrequencyOneTime
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, title, description, frequency, due_date, completed, completed_at, created_at, created_by, assigned_to, household_id, parent_task_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, t.Frequency, nullTime(t.DueDate), t.Completed, nullTime(t.CompletedAt),
		t.CreatedAt.UTC(), t.CreatedBy, nullString(t.AssignedTo), t.HouseholdID, nullString(t.ParentTaskID),
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return s.GetByID(ctx, t.ID)
}

func (s *TaskStore) GetByID(ctx context.Context, id string) (*model.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// Update writes every mutable field of t.
func (s *TaskStore) Update(ctx context.Context, t *model.Task) (*model.Task, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, frequency = ?, due_date = ?, completed = ?, completed_at = ?, assigned_to = ?
		 WHERE id = ?`,
		t.Title, t.Description, t.Frequency, nullTime(t.DueDate), t.Completed, nullTime(t.CompletedAt), nullString(t.AssignedTo), t.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return s.GetByID(ctx, t.ID)
}

func (s *TaskStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// LastCreated returns the household's most recently created task, breaking
// timestamp ties by insertion order.
func (s *TaskStore) LastCreated(ctx context.Context, householdID string) (*model.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE household_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		householdID,
	)
	t, err := scanTask(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last task: %w", err)
	}
	return t, nil
}

type TaskFilter struct {
	HouseholdID string
	AssignedTo  string
	Status      model.TaskStatus // empty means all
	Frequency   model.Frequency
	Now         time.Time
	Limit       int
	Offset      int
}

func (f TaskFilter) where() (string, []any) {
	var conds []string
	var args []any
	if f.HouseholdID != "" {
		conds = append(conds, "household_id = ?")
		args = append(args, f.HouseholdID)
	}
	if f.AssignedTo != "" {
		conds = append(conds, "assigned_to = ?")
		args = append(args, f.AssignedTo)
	}
	if f.Frequency != "" {
		conds = append(conds, "frequency = ?")
		args = append(args, f.Frequency)
	}
	switch f.Status {
	case model.TaskCompleted:
		conds = append(conds, "completed = 1")
	case model.TaskOverdue:
		conds = append(conds, "completed = 0 AND due_date IS NOT NULL AND due_date < ?")
		args = append(args, f.Now.UTC())
	case model.TaskPending:
		conds = append(conds, "completed = 0 AND (due_date IS NULL OR due_date >= ?)")
		args = append(args, f.Now.UTC())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List returns one page of matching tasks and the total match count.
func (s *TaskStore) List(ctx context.Context, f TaskFilter) ([]model.Task, int, error) {
	where, args := f.where()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskCols+` FROM tasks`+where+
			` ORDER BY due_date IS NULL, due_date ASC, created_at ASC, rowid ASC`+limitClause(f.Limit, f.Offset),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// ChildDueDates returns the due dates already materialized for a recurring parent.
func (s *TaskStore) ChildDueDates(ctx context.Context, parentID string) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT due_date FROM tasks WHERE parent_task_id = ? AND due_date IS NOT NULL ORDER BY due_date`,
		parentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list child due dates: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan due date: %w", err)
		}
		out = append(out, d.UTC())
	}
	return out, rows.Err()
}

// CompletionTimes returns completion timestamps of tasks assigned to the
// user, newest first. A nil since returns the whole history.
func (s *TaskStore) CompletionTimes(ctx context.Context, userID string, since *time.Time) ([]time.Time, error) {
	query := `SELECT completed_at FROM tasks WHERE assigned_to = ? AND completed = 1 AND completed_at IS NOT NULL`
	args := []any{userID}
	if since != nil {
		query += ` AND completed_at >= ?`
		args = append(args, since.UTC())
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY completed_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list completion times: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan completion time: %w", err)
		}
		out = append(out, t.UTC())
	}
	return out, rows.Err()
}

func (s *TaskStore) CountCompleted(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE assigned_to = ? AND completed = 1`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count completed tasks: %w", err)
	}
	return n, nil
}

// ListOverdueUnnotified returns incomplete assigned tasks past due that have
// not triggered an overdue notification yet.
func (s *TaskStore) ListOverdueUnnotified(ctx context.Context, at time.Time) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskCols+` FROM tasks
		 WHERE completed = 0 AND assigned_to IS NOT NULL AND due_date IS NOT NULL AND due_date < ? AND overdue_notified_at IS NULL
		 ORDER BY due_date ASC`,
		at.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list overdue tasks: %w", err)
	}
	return scanTasks(rows)
}

func (s *TaskStore) MarkOverdueNotified(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET overdue_notified_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("mark overdue notified: %w", err)
	}
	return nil
}

const ruleCols = `id, task_id, interval_days, anchor_date, end_date, generated_through`

func scanRule(sc scanner) (*model.RecurringRule, error) {
	var r model.RecurringRule
	var end sql.NullTime
	if err := sc.Scan(&r.ID, &r.TaskID, &r.IntervalDays, &r.AnchorDate, &end, &r.GeneratedThrough); err != nil {
		return nil, err
	}
	r.AnchorDate = r.AnchorDate.UTC()
	r.EndDate = timePtr(end)
	return &r, nil
}

func (s *TaskStore) CreateRule(ctx context.Context, r model.RecurringRule) (*model.RecurringRule, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recurring_rules (id, task_id, interval_days, anchor_date, end_date) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.TaskID, r.IntervalDays, r.AnchorDate.UTC(), nullTime(r.EndDate),
	)
	if err != nil {
		return nil, fmt.Errorf("insert recurring rule: %w", err)
	}
	return s.RuleForTask(ctx, r.TaskID)
}

// SetGeneratedThrough records the highest step materialized for a rule. It
// never moves backwards.
func (s *TaskStore) SetGeneratedThrough(ctx context.Context, ruleID string, step int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE recurring_rules SET generated_through = MAX(generated_through, ?) WHERE id = ?`, step, ruleID,
	)
	if err != nil {
		return fmt.Errorf("set generated through: %w", err)
	}
	return nil
}

// RuleForTask returns nil when the task does not recur.
func (s *TaskStore) RuleForTask(ctx context.Context, taskID string) (*model.RecurringRule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ruleCols+` FROM recurring_rules WHERE task_id = ?`, taskID)
	r, err := scanRule(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recurring rule: %w", err)
	}
	return r, nil
}

// ListOpenRules returns rules without an end date or ending after at.
func (s *TaskStore) ListOpenRules(ctx context.Context, at time.Time) ([]model.RecurringRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ruleCols+` FROM recurring_rules WHERE end_date IS NULL OR end_date > ? ORDER BY task_id`,
		at.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list recurring rules: %w", err)
	}
	defer rows.Close()

	var out []model.RecurringRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring rule: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}
