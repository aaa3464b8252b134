// Package household manages households, their members and invitation codes.
package household

import (
	"context"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/dukerupert/hearth/internal/access"
	"github.com/dukerupert/hearth/internal/apperr"
	"github.com/dukerupert/hearth/internal/auth"
	"github.com/dukerupert/hearth/internal/model"
	"github.com/dukerupert/hearth/internal/notify"
	"github.com/dukerupert/hearth/internal/store"
)

const maxNameLen = 100

// MembershipObserver hears about memberships that ended, after commit.
type MembershipObserver interface {
	MemberRemoved(ctx context.Context, householdID, userID string)
	HouseholdDeleted(ctx context.Context, householdID string)
}

type Service struct {
	stores   *store.Stores
	invites  *auth.InviteCodec
	notify   *notify.Service
	observer MembershipObserver
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithObserver(o MembershipObserver) Option {
	return func(s *Service) { s.observer = o }
}

func NewService(stores *store.Stores, invites *auth.InviteCodec, notifier *notify.Service, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		stores:  stores,
		invites: invites,
		notify:  notifier,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Validation("name is required")
	}
	if len(name) > maxNameLen {
		return "", apperr.Validation("name must be at most %d characters", maxNameLen)
	}
	return name, nil
}

// Create makes userID the admin of a new household and, if they have no
// active household yet, activates it.
func (s *Service) Create(ctx context.Context, userID, name string) (*model.UserHousehold, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	var out *model.UserHousehold
	err = s.stores.InTx(ctx, func(tx *store.Stores) error {
		u, err := tx.Users.GetByID(ctx, userID)
		if err != nil {
			return apperr.Internal(err)
		}
		if u == nil {
			return apperr.NotFound("user")
		}
		h, err := tx.Households.Create(ctx, name, userID, now)
		if err != nil {
			return apperr.Internal(err)
		}
		m, err := tx.Households.AddMember(ctx, h.ID, userID, model.RoleAdmin, now)
		if err != nil {
			return apperr.Internal(err)
		}
		if u.ActiveHousehold() == "" {
			if err := setActive(ctx, tx, u, h.ID); err != nil {
				return err
			}
		}
		out = &model.UserHousehold{Household: *h, Role: m.Role, JoinedAt: m.JoinedAt, MemberCount: 1}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("household created", "household_id", out.ID, "user_id", userID)
	return out, nil
}

func setActive(ctx context.Context, st *store.Stores, u *model.User, householdID string) error {
	prefs := maps.Clone(u.Preferences)
	if prefs == nil {
		prefs = map[string]any{}
	}
	prefs[model.PrefActiveHousehold] = householdID
	if err := st.Users.SetPreferences(ctx, u.ID, prefs); err != nil {
		return apperr.Internal(err)
	}
	u.Preferences = prefs
	return nil
}

func (s *Service) ListForUser(ctx context.Context, userID string) ([]model.UserHousehold, error) {
	hs, err := s.stores.Households.ListForUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if hs == nil {
		hs = []model.UserHousehold{}
	}
	return hs, nil
}

// Detail is a household with its members and the caller's role.
type Detail struct {
	model.Household
	Role    model.Role     `json:"role"`
	Members []model.Member `json:"members"`
}

func (s *Service) Get(ctx context.Context, userID, householdID string) (*Detail, error) {
	m, err := access.Require(ctx, s.stores.Households, userID, householdID, model.RoleMember)
	if err != nil {
		return nil, err
	}
	h, err := s.stores.Households.GetByID(ctx, householdID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if h == nil {
		return nil, apperr.NotFound("household")
	}
	members, err := s.stores.Households.ListMembers(ctx, householdID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &Detail{Household: *h, Role: m.Role, Members: members}, nil
}

// Active resolves the user's current household: the stored preference while
// they still belong to it, otherwise their earliest membership, which is
// then stored.
func (s *Service) Active(ctx context.Context, userID string) (*model.UserHousehold, error) {
	u, err := s.stores.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if u == nil {
		return nil, apperr.NotFound("user")
	}
	hs, err := s.stores.Households.ListForUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if len(hs) == 0 {
		return nil, apperr.NotFound("active household")
	}

	if pref := u.ActiveHousehold(); pref != "" {
		for i := range hs {
			if hs[i].ID == pref {
				return &hs[i], nil
			}
		}
	}
	if err := setActive(ctx, s.stores, u, hs[0].ID); err != nil {
		return nil, err
	}
	return &hs[0], nil
}

func (s *Service) Activate(ctx context.Context, userID, householdID string) (*model.UserHousehold, error) {
	if _, err := access.Require(ctx, s.stores.Households, userID, householdID, model.RoleMember); err != nil {
		return nil, err
	}
	u, err := s.stores.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if u == nil {
		return nil, apperr.NotFound("user")
	}
	if err := setActive(ctx, s.stores, u, householdID); err != nil {
		return nil, err
	}
	return s.Active(ctx, userID)
}

func (s *Service) Update(ctx context.Context, userID, householdID, name string) (*model.Household, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}
	if _, err := access.Require(ctx, s.stores.Households, userID, householdID, model.RoleAdmin); err != nil {
		return nil, err
	}
	h, err := s.stores.Households.Update(ctx, householdID, name)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if h == nil {
		return nil, apperr.NotFound("household")
	}
	return h, nil
}

// Delete removes the household and everything scoped to it.
func (s *Service) Delete(ctx context.Context, userID, householdID string) error {
	if _, err := access.Require(ctx, s.stores.Households, userID, householdID, model.RoleAdmin); err != nil {
		return err
	}
	if err := s.stores.Households.Delete(ctx, householdID); err != nil {
		return apperr.Internal(err)
	}
	s.logger.Info("household deleted", "household_id", householdID, "user_id", userID)
	if s.observer != nil {
		s.observer.HouseholdDeleted(ctx, householdID)
	}
	return nil
}

func (s *Service) Members(ctx context.Context, userID, householdID string) ([]model.Member, error) {
	if _, err := access.Require(ctx, s.stores.Households, userID, householdID, model.RoleMember); err != nil {
		return nil, err
	}
	members, err := s.stores.Households.ListMembers(ctx, householdID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return members, nil
}

// MemberIDs returns the ids of every member, for callers that already
// checked access.
func (s *Service) MemberIDs(ctx context.Context, householdID string) ([]string, error) {
	ids, err := s.stores.Households.MemberIDs(ctx, householdID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return ids, nil
}

// UpdateRole changes a member's role. A household always keeps at least one
// admin.
func (s *Service) UpdateRole(ctx context.Context, userID, householdID, memberID string, role model.Role) (*model.Membership, error) {
	if !role.Valid() {
		return nil, apperr.Validation("invalid role %q", role)
	}
	var out *model.Membership
	err := s.stores.InTx(ctx, func(tx *store.Stores) error {
		if _, err := access.Require(ctx, tx.Households, userID, householdID, model.RoleAdmin); err != nil {
			return err
		}
		m, err := tx.Households.GetMembership(ctx, householdID, memberID)
		if err != nil {
			return apperr.Internal(err)
		}
		if m == nil {
			return apperr.NotFound("member")
		}
		if m.Role == role {
			out = m
			return nil
		}
		if m.Role == model.RoleAdmin {
			if err := ensureAnotherAdmin(ctx, tx, householdID); err != nil {
				return err
			}
		}
		if err := tx.Households.UpdateMemberRole(ctx, householdID, memberID, role); err != nil {
			return apperr.Internal(err)
		}
		if err := reassignAdminID(ctx, tx, householdID); err != nil {
			return err
		}
		m.Role = role
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func ensureAnotherAdmin(ctx context.Context, tx *store.Stores, householdID string) error {
	n, err := tx.Households.CountAdmins(ctx, householdID)
	if err != nil {
		return apperr.Internal(err)
	}
	if n <= 1 {
		return apperr.Conflict("a household must keep at least one admin")
	}
	return nil
}

// reassignAdminID points admin_id at the earliest-joined admin when the
// current holder is no longer one.
func reassignAdminID(ctx context.Context, tx *store.Stores, householdID string) error {
	h, err := tx.Households.GetByID(ctx, householdID)
	if err != nil {
		return apperr.Internal(err)
	}
	if h == nil {
		return apperr.NotFound("household")
	}
	ms, err := tx.Households.ListMemberships(ctx, householdID)
	if err != nil {
		return apperr.Internal(err)
	}
	var first string
	for _, m := range ms {
		if m.Role != model.RoleAdmin {
			continue
		}
		if m.UserID == h.AdminID {
			return nil
		}
		if first == "" {
			first = m.UserID
		}
	}
	if first == "" {
		return nil
	}
	if err := tx.Households.SetAdmin(ctx, householdID, first); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// RemoveMember removes memberID. Admins may remove anyone; members may only
// remove themselves.
func (s *Service) RemoveMember(ctx context.Context, userID, householdID, memberID string) error {
	err := s.stores.InTx(ctx, func(tx *store.Stores) error {
		caller, err := access.Require(ctx, tx.Households, userID, householdID, model.RoleMember)
		if err != nil {
			return err
		}
		if memberID != userID && caller.Role != model.RoleAdmin {
			return apperr.Forbidden("admin role required")
		}
		m, err := tx.Households.GetMembership(ctx, householdID, memberID)
		if err != nil {
			return apperr.Internal(err)
		}
		if m == nil {
			return apperr.NotFound("member")
		}
		if m.Role == model.RoleAdmin {
			if err := ensureAnotherAdmin(ctx, tx, householdID); err != nil {
				return err
			}
		}
		if err := tx.Households.RemoveMember(ctx, householdID, memberID); err != nil {
			return apperr.Internal(err)
		}
		return reassignAdminID(ctx, tx, householdID)
	})
	if err != nil {
		return err
	}
	if s.observer != nil {
		s.observer.MemberRemoved(ctx, householdID, memberID)
	}
	return nil
}

type Invitation struct {
	Code        string    `json:"invitation_code"`
	HouseholdID string    `json:"household_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (s *Service) CreateInvitation(ctx context.Context, userID, householdID string) (*Invitation, error) {
	if _, err := access.Require(ctx, s.stores.Households, userID, householdID, model.RoleAdmin); err != nil {
		return nil, err
	}
	code, expires := s.invites.Generate(householdID)
	return &Invitation{Code: code, HouseholdID: householdID, ExpiresAt: expires}, nil
}

// Join adds the caller to the household named by an invitation code and
// tells its admins.
func (s *Service) Join(ctx context.Context, userID, code string) (*model.UserHousehold, error) {
	householdID, err := s.invites.Validate(strings.TrimSpace(code))
	if err != nil {
		return nil, apperr.Validation("invalid invitation code: %v", err)
	}
	now := s.now().UTC()

	var out *model.UserHousehold
	var pending []*model.Notification
	err = s.stores.InTx(ctx, func(tx *store.Stores) error {
		h, err := tx.Households.GetByID(ctx, householdID)
		if err != nil {
			return apperr.Internal(err)
		}
		if h == nil {
			return apperr.NotFound("household")
		}
		existing, err := tx.Households.GetMembership(ctx, householdID, userID)
		if err != nil {
			return apperr.Internal(err)
		}
		if existing != nil {
			return apperr.Conflict("already a member of this household")
		}
		u, err := tx.Users.GetByID(ctx, userID)
		if err != nil {
			return apperr.Internal(err)
		}
		if u == nil {
			return apperr.NotFound("user")
		}
		m, err := tx.Households.AddMember(ctx, householdID, userID, model.RoleMember, now)
		if err != nil {
			return apperr.Internal(err)
		}
		if u.ActiveHousehold() == "" {
			if err := setActive(ctx, tx, u, householdID); err != nil {
				return err
			}
		}

		ms, err := tx.Households.ListMemberships(ctx, householdID)
		if err != nil {
			return apperr.Internal(err)
		}
		var admins []string
		for _, am := range ms {
			if am.Role == model.RoleAdmin {
				admins = append(admins, am.UserID)
			}
		}
		hid := householdID
		pending, err = s.notify.EnqueueAll(ctx, tx, admins, model.Notification{
			Type:          model.NotifHouseholdJoined,
			Content:       u.FullName() + " joined " + h.Name,
			HouseholdID:   &hid,
			ReferenceType: "user",
			ReferenceID:   userID,
		})
		if err != nil {
			return apperr.Internal(err)
		}

		out = &model.UserHousehold{Household: *h, Role: m.Role, JoinedAt: m.JoinedAt, MemberCount: len(ms)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify.Deliver(ctx, pending...)
	s.logger.Info("household joined", "household_id", householdID, "user_id", userID)
	return out, nil
}
