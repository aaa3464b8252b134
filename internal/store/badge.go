package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/hearth/internal/model"
	"github.com/google/uuid"
)

type BadgeStore struct {
	db DBTX
}

func NewBadgeStore(db DBTX) *BadgeStore {
	return &BadgeStore{db: db}
}

const badgeCols = `id, type, name, description`

func scanBadge(sc scanner) (*model.Badge, error) {
	var b model.Badge
	if err := sc.Scan(&b.ID, &b.Type, &b.Name, &b.Description); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *BadgeStore) Create(ctx context.Context, b model.Badge) (*model.Badge, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO badges (id, type, name, description) VALUES (?, ?, ?, ?)`,
		b.ID, b.Type, b.Name, b.Description,
	)
	if err != nil {
		return nil, fmt.Errorf("insert badge: %w", err)
	}
	return s.GetByID(ctx, b.ID)
}

func (s *BadgeStore) GetByID(ctx context.Context, id string) (*model.Badge, error) {
	b, err := scanBadge(s.db.QueryRowContext(ctx, `SELECT `+badgeCols+` FROM badges WHERE id = ?`, id))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get badge: %w", err)
	}
	return b, nil
}

func (s *BadgeStore) GetByType(ctx context.Context, typ string) (*model.Badge, error) {
	b, err := scanBadge(s.db.QueryRowContext(ctx, `SELECT `+badgeCols+` FROM badges WHERE type = ?`, typ))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get badge by type: %w", err)
	}
	return b, nil
}

func (s *BadgeStore) List(ctx context.Context) ([]model.Badge, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+badgeCols+` FROM badges ORDER BY rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	defer rows.Close()

	var out []model.Badge
	for rows.Next() {
		b, err := scanBadge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan badge: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// Award records the badge for the user. It reports false when the user
// already held it, leaving the original award untouched.
func (s *BadgeStore) Award(ctx context.Context, userID, badgeID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO user_badges (user_id, badge_id, awarded_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
		userID, badgeID, at.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("award badge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("award badge rows: %w", err)
	}
	return n > 0, nil
}

func (s *BadgeStore) ListForUser(ctx context.Context, userID string) ([]model.UserBadge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT b.id, b.type, b.name, b.description, ub.user_id, ub.awarded_at
		 FROM user_badges ub JOIN badges b ON b.id = ub.badge_id
		 WHERE ub.user_id = ?
		 ORDER BY ub.awarded_at ASC, b.rowid ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list user badges: %w", err)
	}
	return scanUserBadges(rows)
}

// ListForHousehold returns the badges held by current members of a household.
func (s *BadgeStore) ListForHousehold(ctx context.Context, householdID string) ([]model.UserBadge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT b.id, b.type, b.name, b.description, ub.user_id, ub.awarded_at
		 FROM user_badges ub
		 JOIN badges b ON b.id = ub.badge_id
		 JOIN memberships m ON m.user_id = ub.user_id
		 WHERE m.household_id = ?
		 ORDER BY ub.awarded_at DESC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list household badges: %w", err)
	}
	return scanUserBadges(rows)
}

func scanUserBadges(rows *sql.Rows) ([]model.UserBadge, error) {
	defer rows.Close()
	var out []model.UserBadge
	for rows.Next() {
		var ub model.UserBadge
		if err := rows.Scan(&ub.ID, &ub.Type, &ub.Name, &ub.Description, &ub.UserID, &ub.AwardedAt); err != nil {
			return nil, fmt.Errorf("scan user badge: %w", err)
		}
		out = append(out, ub)
	}
	return out, rows.Err()
}
