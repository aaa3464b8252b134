package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dukerupert/hearth/internal/model"
	"github.com/google/uuid"
)

type NotificationStore struct {
	db DBTX
}

func NewNotificationStore(db DBTX) *NotificationStore {
	return &NotificationStore{db: db}
}

const notificationCols = `id, type, content, is_read, user_id, household_id, reference_type, reference_id, created_at`

func scanNotification(sc scanner) (*model.Notification, error) {
	var n model.Notification
	var hid sql.NullString
	err := sc.Scan(&n.ID, &n.Type, &n.Content, &n.IsRead, &n.UserID, &hid, &n.ReferenceType, &n.ReferenceID, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	n.HouseholdID = stringPtr(hid)
	return &n, nil
}

func (s *NotificationStore) Create(ctx context.Context, n model.Notification) (*model.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, type, content, is_read, user_id, household_id, reference_type, reference_id, created_at)
		 VALUES (?, ?, ?, 0, ?, ?, ?, ?, ?)`,
		n.ID, n.Type, n.Content, n.UserID, nullString(n.HouseholdID), n.ReferenceType, n.ReferenceID, n.CreatedAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	return s.GetByID(ctx, n.ID)
}

func (s *NotificationStore) GetByID(ctx context.Context, id string) (*model.Notification, error) {
	n, err := scanNotification(s.db.QueryRowContext(ctx, `SELECT `+notificationCols+` FROM notifications WHERE id = ?`, id))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

type NotificationFilter struct {
	UserID      string
	IsRead      *bool
	HouseholdID string
	Limit       int
	Offset      int
}

func (f NotificationFilter) where() (string, []any) {
	where := ` WHERE user_id = ?`
	args := []any{f.UserID}
	if f.IsRead != nil {
		where += ` AND is_read = ?`
		args = append(args, *f.IsRead)
	}
	if f.HouseholdID != "" {
		where += ` AND household_id = ?`
		args = append(args, f.HouseholdID)
	}
	return where, args
}

// List returns the user's notifications newest first with the total count.
func (s *NotificationStore) List(ctx context.Context, f NotificationFilter) ([]model.Notification, int, error) {
	where, args := f.where()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+notificationCols+` FROM notifications`+where+` ORDER BY created_at DESC, rowid DESC`+limitClause(f.Limit, f.Offset),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, *n)
	}
	return out, total, rows.Err()
}

func (s *NotificationStore) MarkRead(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// MarkAllRead returns how many notifications changed state.
func (s *NotificationStore) MarkAllRead(ctx context.Context, userID, householdID string) (int64, error) {
	unread := false
	where, args := NotificationFilter{UserID: userID, IsRead: &unread, HouseholdID: householdID}.where()
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = 1`+where, args...)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read rows: %w", err)
	}
	return n, nil
}

func (s *NotificationStore) UnreadCount(ctx context.Context, userID, householdID string) (int, error) {
	unread := false
	where, args := NotificationFilter{UserID: userID, IsRead: &unread, HouseholdID: householdID}.where()
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

func (s *NotificationStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return nil
}

const settingsCols = `user_id, email_enabled, push_enabled, in_app_enabled, notification_types, quiet_hours, created_at, updated_at`

// GetSettings returns nil when the user has no stored settings yet.
func (s *NotificationStore) GetSettings(ctx context.Context, userID string) (*model.NotificationSettings, error) {
	var ns model.NotificationSettings
	var types, quiet string
	err := s.db.QueryRowContext(ctx, `SELECT `+settingsCols+` FROM notification_settings WHERE user_id = ?`, userID).
		Scan(&ns.UserID, &ns.EmailEnabled, &ns.PushEnabled, &ns.InAppEnabled, &types, &quiet, &ns.CreatedAt, &ns.UpdatedAt)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get notification settings: %w", err)
	}
	if err := json.Unmarshal([]byte(types), &ns.NotificationTypes); err != nil {
		return nil, fmt.Errorf("decode notification types: %w", err)
	}
	if err := json.Unmarshal([]byte(quiet), &ns.QuietHours); err != nil {
		return nil, fmt.Errorf("decode quiet hours: %w", err)
	}
	if ns.NotificationTypes == nil {
		ns.NotificationTypes = map[string]bool{}
	}
	return &ns, nil
}

// SaveSettings inserts or replaces the user's settings row.
func (s *NotificationStore) SaveSettings(ctx context.Context, ns model.NotificationSettings) (*model.NotificationSettings, error) {
	types, err := json.Marshal(ns.NotificationTypes)
	if err != nil {
		return nil, fmt.Errorf("encode notification types: %w", err)
	}
	quiet, err := json.Marshal(ns.QuietHours)
	if err != nil {
		return nil, fmt.Errorf("encode quiet hours: %w", err)
	}
	ts := now()
	if ns.CreatedAt.IsZero() {
		ns.CreatedAt = ts
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO notification_settings (`+settingsCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   email_enabled = excluded.email_enabled,
		   push_enabled = excluded.push_enabled,
		   in_app_enabled = excluded.in_app_enabled,
		   notification_types = excluded.notification_types,
		   quiet_hours = excluded.quiet_hours,
		   updated_at = excluded.updated_at`,
		ns.UserID, ns.EmailEnabled, ns.PushEnabled, ns.InAppEnabled, string(types), string(quiet), ns.CreatedAt.UTC(), ts,
	)
	if err != nil {
		return nil, fmt.Errorf("save notification settings: %w", err)
	}
	return s.GetSettings(ctx, ns.UserID)
}
