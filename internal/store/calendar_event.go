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

type EventStore struct {
	db DBTX
}

func NewEventStore(db DBTX) *EventStore {
	return &EventStore{db: db}
}

const eventCols = `id, title, description, start_time, end_time, recurrence_rule, privacy, household_id, user_id, created_at, reminded_at`

func scanEvent(sc scanner) (*model.Event, error) {
	var e model.Event
	var end, reminded sql.NullTime
	err := sc.Scan(&e.ID, &e.Title, &e.Description, &e.StartTime, &end, &e.RecurrenceRule, &e.Privacy,
		&e.HouseholdID, &e.UserID, &e.CreatedAt, &reminded)
	if err != nil {
		return nil, err
	}
	e.StartTime = e.StartTime.UTC()
	e.EndTime = timePtr(end)
	e.RemindedAt = timePtr(reminded)
	return &e, nil
}

func scanEvents(rows *sql.Rows) ([]model.Event, error) {
	defer rows.Close()
	var out []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *EventStore) Create(ctx context.Context, e model.Event) (*model.Event, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now()
	}
	if e.Privacy == "" {
		e.Privacy = model.PrivacyPublic
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, title, description, start_time, end_time, recurrence_rule, privacy, household_id, user_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Title, e.Description, e.StartTime.UTC(), nullTime(e.EndTime), e.RecurrenceRule, e.Privacy,
		e.HouseholdID, e.UserID, e.CreatedAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return s.GetByID(ctx, e.ID)
}

func (s *EventStore) GetByID(ctx context.Context, id string) (*model.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventCols+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

func (s *EventStore) Update(ctx context.Context, e *model.Event) (*model.Event, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE events SET title = ?, description = ?, start_time = ?, end_time = ?, recurrence_rule = ?, privacy = ?, reminded_at = NULL
		 WHERE id = ?`,
		e.Title, e.Description, e.StartTime.UTC(), nullTime(e.EndTime), e.RecurrenceRule, e.Privacy, e.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	return s.GetByID(ctx, e.ID)
}

func (s *EventStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

type EventFilter struct {
	HouseholdID string
	// ViewerID limits private events to the viewer's own. Empty means no limit.
	ViewerID string
	Start    *time.Time
	End      *time.Time
}

// List returns events ordered by start time. With a range, recurring events
// that began before the range end are always included so callers can expand them.
func (s *EventStore) List(ctx context.Context, f EventFilter) ([]model.Event, error) {
	conds := []string{"household_id = ?"}
	args := []any{f.HouseholdID}
	if f.ViewerID != "" {
		conds = append(conds, "(privacy = 'public' OR user_id = ?)")
		args = append(args, f.ViewerID)
	}
	if f.End != nil {
		conds = append(conds, "start_time <= ?")
		args = append(args, f.End.UTC())
	}
	if f.Start != nil {
		conds = append(conds, "(recurrence_rule != '' OR COALESCE(end_time, start_time) >= ?)")
		args = append(args, f.Start.UTC())
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventCols+` FROM events WHERE `+strings.Join(conds, " AND ")+` ORDER BY start_time ASC, rowid ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return scanEvents(rows)
}

func (s *EventStore) ListByUser(ctx context.Context, userID string) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventCols+` FROM events WHERE user_id = ? ORDER BY start_time ASC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list events by user: %w", err)
	}
	return scanEvents(rows)
}

// ListUpcomingUnreminded returns events whose first occurrence starts in [from, to)
// that have not been reminded about yet.
func (s *EventStore) ListUpcomingUnreminded(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventCols+` FROM events
		 WHERE reminded_at IS NULL AND start_time >= ? AND start_time < ?
		 ORDER BY start_time ASC`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list upcoming events: %w", err)
	}
	return scanEvents(rows)
}

func (s *EventStore) MarkReminded(ctx context.Context, id string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE events SET reminded_at = ? WHERE id = ?`, at.UTC(), id); err != nil {
		return fmt.Errorf("mark event reminded: %w", err)
	}
	return nil
}
