package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dukerupert/hearth/internal/model"
	"github.com/google/uuid"
)

type UserStore struct {
	db DBTX
}

func NewUserStore(db DBTX) *UserStore {
	return &UserStore{db: db}
}

const userCols = `id, email, first_name, last_name, password_hash, role, preferences, created_at, updated_at`

func scanUser(sc scanner) (*model.User, error) {
	var u model.User
	var prefs string
	err := sc.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &u.Role, &prefs, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(prefs), &u.Preferences); err != nil {
		return nil, fmt.Errorf("decode preferences: %w", err)
	}
	if u.Preferences == nil {
		u.Preferences = map[string]any{}
	}
	return &u, nil
}

func (s *UserStore) Create(ctx context.Context, u model.User) (*model.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = model.RoleMember
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now()
	}
	prefs, err := encodePrefs(u.Preferences)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, first_name, last_name, password_hash, role, preferences, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, strings.ToLower(u.Email), u.FirstName, u.LastName, u.PasswordHash, u.Role, prefs, u.CreatedAt.UTC(), u.CreatedAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.GetByID(ctx, u.ID)
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetByEmail matches case-insensitively; emails are stored lowercased.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE email = ?`, strings.ToLower(strings.TrimSpace(email)))
	u, err := scanUser(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// Update writes the mutable profile fields of u.
func (s *UserStore) Update(ctx context.Context, u *model.User) (*model.User, error) {
	prefs, err := encodePrefs(u.Preferences)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET first_name = ?, last_name = ?, password_hash = ?, preferences = ?, updated_at = ? WHERE id = ?`,
		u.FirstName, u.LastName, u.PasswordHash, prefs, now(), u.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return s.GetByID(ctx, u.ID)
}

func (s *UserStore) SetPreferences(ctx context.Context, id string, prefs map[string]any) error {
	encoded, err := encodePrefs(prefs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE users SET preferences = ?, updated_at = ? WHERE id = ?`, encoded, now(), id)
	if err != nil {
		return fmt.Errorf("set preferences: %w", err)
	}
	return nil
}

// ListByIDs returns users keyed by id. Missing ids are skipped.
func (s *UserStore) ListByIDs(ctx context.Context, ids []string) (map[string]*model.User, error) {
	out := make(map[string]*model.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+userCols+` FROM users WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out[u.ID] = u
	}
	return out, rows.Err()
}

func encodePrefs(prefs map[string]any) (string, error) {
	if prefs == nil {
		return "{}", nil
	}
	b, err := json.Marshal(prefs)
	if err != nil {
		return "", fmt.Errorf("encode preferences: %w", err)
	}
	return string(b), nil
}
