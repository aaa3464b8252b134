package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/hearth/internal/model"
	"github.com/google/uuid"
)

type MessageStore struct {
	db DBTX
}

func NewMessageStore(db DBTX) *MessageStore {
	return &MessageStore{db: db}
}

const messageSelect = `SELECT m.id, m.content, m.is_announcement, m.household_id, m.user_id,
	TRIM(u.first_name || ' ' || u.last_name), m.created_at, m.edited_at
	FROM messages m JOIN users u ON u.id = m.user_id`

func scanMessage(sc scanner) (*model.Message, error) {
	var m model.Message
	var edited sql.NullTime
	err := sc.Scan(&m.ID, &m.Content, &m.IsAnnouncement, &m.HouseholdID, &m.UserID, &m.SenderName, &m.CreatedAt, &edited)
	if err != nil {
		return nil, err
	}
	m.EditedAt = timePtr(edited)
	return &m, nil
}

func (s *MessageStore) Create(ctx context.Context, m model.Message) (*model.Message, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, content, is_announcement, household_id, user_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.Content, m.IsAnnouncement, m.HouseholdID, m.UserID, m.CreatedAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return s.GetByID(ctx, m.ID)
}

func (s *MessageStore) GetByID(ctx context.Context, id string) (*model.Message, error) {
	row := s.db.QueryRowContext(ctx, messageSelect+` WHERE m.id = ?`, id)
	m, err := scanMessage(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

func (s *MessageStore) UpdateContent(ctx context.Context, id, content string, editedAt time.Time) (*model.Message, error) {
	_, err := s.db.ExecContext(ctx, `UPDATE messages SET content = ?, edited_at = ? WHERE id = ?`, content, editedAt.UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *MessageStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// List returns a household's messages newest first. A non-nil before limits
// the page to messages created strictly earlier (cursor pagination).
func (s *MessageStore) List(ctx context.Context, householdID string, before *time.Time, limit, offset int) ([]model.Message, int, error) {
	where := ` WHERE m.household_id = ?`
	args := []any{householdID}
	if before != nil {
		where += ` AND m.created_at < ?`
		args = append(args, before.UTC())
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages m`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		messageSelect+where+` ORDER BY m.created_at DESC, m.rowid DESC`+limitClause(limit, offset),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, *m)
	}
	return out, total, rows.Err()
}

func (s *MessageStore) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}
