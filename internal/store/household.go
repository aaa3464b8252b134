package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dukerupert/hearth/internal/model"
	"github.com/google/uuid"
)

type HouseholdStore struct {
	db DBTX
}

func NewHouseholdStore(db DBTX) *HouseholdStore {
	return &HouseholdStore{db: db}
}

func scanHousehold(sc scanner) (*model.Household, error) {
	var h model.Household
	err := sc.Scan(&h.ID, &h.Name, &h.AdminID, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func scanMembership(sc scanner) (*model.Membership, error) {
	var m model.Membership
	err := sc.Scan(&m.HouseholdID, &m.UserID, &m.Role, &m.JoinedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

const householdCols = `id, name, admin_id, created_at, updated_at`
const membershipCols = `household_id, user_id, role, joined_at`

func (s *HouseholdStore) Create(ctx context.Context, name, adminID string, at time.Time) (*model.Household, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO households (id, name, admin_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, name, adminID, at.UTC(), at.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert household: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *HouseholdStore) GetByID(ctx context.Context, id string) (*model.Household, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+householdCols+` FROM households WHERE id = ?`, id)
	h, err := scanHousehold(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get household: %w", err)
	}
	return h, nil
}

func (s *HouseholdStore) Update(ctx context.Context, id, name string) (*model.Household, error) {
	_, err := s.db.ExecContext(ctx, `UPDATE households SET name = ?, updated_at = ? WHERE id = ?`, name, now(), id)
	if err != nil {
		return nil, fmt.Errorf("update household: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *HouseholdStore) SetAdmin(ctx context.Context, id, userID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE households SET admin_id = ?, updated_at = ? WHERE id = ?`, userID, now(), id)
	if err != nil {
		return fmt.Errorf("set household admin: %w", err)
	}
	return nil
}

func (s *HouseholdStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM households WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete household: %w", err)
	}
	return nil
}

func (s *HouseholdStore) AddMember(ctx context.Context, householdID, userID string, role model.Role, joinedAt time.Time) (*model.Membership, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memberships (household_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
		householdID, userID, role, joinedAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	return s.GetMembership(ctx, householdID, userID)
}

func (s *HouseholdStore) RemoveMember(ctx context.Context, householdID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM memberships WHERE household_id = ? AND user_id = ?`,
		householdID, userID,
	)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

// GetMembership returns nil when the user does not belong to the household.
func (s *HouseholdStore) GetMembership(ctx context.Context, householdID, userID string) (*model.Membership, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+membershipCols+` FROM memberships WHERE household_id = ? AND user_id = ?`,
		householdID, userID,
	)
	m, err := scanMembership(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func (s *HouseholdStore) UpdateMemberRole(ctx context.Context, householdID, userID string, role model.Role) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE memberships SET role = ? WHERE household_id = ? AND user_id = ?`,
		role, householdID, userID,
	)
	if err != nil {
		return fmt.Errorf("update member role: %w", err)
	}
	return nil
}

// ListMemberships is ordered by join time, then user id, which is the
// rotation order used for task assignment.
func (s *HouseholdStore) ListMemberships(ctx context.Context, householdID string) ([]model.Membership, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+membershipCols+` FROM memberships WHERE household_id = ? ORDER BY joined_at ASC, user_id ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var out []model.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// ListMembers joins memberships with user profiles.
func (s *HouseholdStore) ListMembers(ctx context.Context, householdID string) ([]model.Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.email, u.first_name, u.last_name, m.role, m.joined_at
		 FROM memberships m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.household_id = ?
		 ORDER BY m.joined_at ASC, m.user_id ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []model.Member
	for rows.Next() {
		var m model.Member
		if err := rows.Scan(&m.UserID, &m.Email, &m.FirstName, &m.LastName, &m.Role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *HouseholdStore) MemberIDs(ctx context.Context, householdID string) ([]string, error) {
	ms, err := s.ListMemberships(ctx, householdID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(ms))
	for i, m := range ms {
		ids[i] = m.UserID
	}
	return ids, nil
}

func (s *HouseholdStore) CountAdmins(ctx context.Context, householdID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memberships WHERE household_id = ? AND role = ?`,
		householdID, model.RoleAdmin,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return n, nil
}

// ListForUser returns the user's households in join order.
func (s *HouseholdStore) ListForUser(ctx context.Context, userID string) ([]model.UserHousehold, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT h.id, h.name, h.admin_id, h.created_at, h.updated_at, m.role, m.joined_at,
		        (SELECT COUNT(*) FROM memberships c WHERE c.household_id = h.id)
		 FROM households h
		 JOIN memberships m ON h.id = m.household_id
		 WHERE m.user_id = ?
		 ORDER BY m.joined_at ASC, h.id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list households for user: %w", err)
	}
	defer rows.Close()

	var out []model.UserHousehold
	for rows.Next() {
		var uh model.UserHousehold
		if err := rows.Scan(&uh.ID, &uh.Name, &uh.AdminID, &uh.CreatedAt, &uh.UpdatedAt, &uh.Role, &uh.JoinedAt, &uh.MemberCount); err != nil {
			return nil, fmt.Errorf("scan household: %w", err)
		}
		out = append(out, uh)
	}
	return out, rows.Err()
}
