package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface{ Scan(...any) error }

// Stores bundles every entity store over one connection or transaction.
type Stores struct {
	db *sql.DB // nil when bound to a transaction

	Users         *UserStore
	Households    *HouseholdStore
	Tasks         *TaskStore
	Messages      *MessageStore
	Polls         *PollStore
	Events        *EventStore
	Badges        *BadgeStore
	Notifications *NotificationStore
	Push          *PushStore
}

func New(db *sql.DB) *Stores {
	s := bind(db)
	s.db = db
	return s
}

func bind(conn DBTX) *Stores {
	return &Stores{
		Users:         NewUserStore(conn),
		Households:    NewHouseholdStore(conn),
		Tasks:         NewTaskStore(conn),
		Messages:      NewMessageStore(conn),
		Polls:         NewPollStore(conn),
		Events:        NewEventStore(conn),
		Badges:        NewBadgeStore(conn),
		Notifications: NewNotificationStore(conn),
		Push:          NewPushStore(conn),
	}
}

// InTx runs fn against stores bound to a single transaction, committing when
// fn returns nil. Called on already tx-bound stores it just runs fn.
func (s *Stores) InTx(ctx context.Context, fn func(tx *Stores) error) error {
	if s.db == nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(bind(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// nullTime converts an optional time into a driver value in UTC.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullString(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func now() time.Time {
	return time.Now().UTC()
}

// limitClause renders LIMIT/OFFSET; a non-positive limit returns every row.
func limitClause(limit, offset int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
}
