package badge

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
	"github.com/dukerupert/hearth/internal/task"
)

type Service struct {
	stores *store.Stores
	notify *notify.Service
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(stores *store.Stores, notifier *notify.Service, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{stores: stores, notify: notifier, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func metrics(ctx context.Context, st *store.Stores, userID string) (Metrics, error) {
	var m Metrics
	completions, err := st.Tasks.CompletionTimes(ctx, userID, nil)
	if err != nil {
		return m, err
	}
	m.Streak = task.CalculateStreak(completions)
	m.Completed = len(completions)
	if m.Messages, err = st.Messages.CountByUser(ctx, userID); err != nil {
		return m, err
	}
	if m.Votes, err = st.Polls.CountVotesByUser(ctx, userID); err != nil {
		return m, err
	}
	return m, nil
}

func heldTypes(ctx context.Context, st *store.Stores, userID string) (map[string]bool, error) {
	held, err := st.Badges.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(held))
	for _, b := range held {
		out[b.Type] = true
	}
	return out, nil
}

func earnedNotification(userID string, b *model.Badge, householdID *string) model.Notification {
	return model.Notification{
		Type:          model.NotifBadgeEarned,
		Content:       "You've earned the " + b.Name + " badge!",
		UserID:        userID,
		HouseholdID:   householdID,
		ReferenceType: "badge",
		ReferenceID:   b.ID,
	}
}

// Check awards every badge whose rule the user now satisfies and returns
// the newly awarded ones. Each award and its notification commit together.
func (s *Service) Check(ctx context.Context, userID string) ([]model.Badge, error) {
	var awarded []model.Badge
	var pending []*model.Notification
	err := s.stores.InTx(ctx, func(tx *store.Stores) error {
		m, err := metrics(ctx, tx, userID)
		if err != nil {
			return apperr.Internal(err)
		}
		held, err := heldTypes(ctx, tx, userID)
		if err != nil {
			return apperr.Internal(err)
		}
		now := s.now().UTC()
		for _, typ := range m.Earned() {
			if held[typ] {
				continue
			}
			b, err := tx.Badges.GetByType(ctx, typ)
			if err != nil {
				return apperr.Internal(err)
			}
			if b == nil {
				continue
			}
			ok, err := tx.Badges.Award(ctx, userID, b.ID, now)
			if err != nil {
				return apperr.Internal(err)
			}
			if !ok {
				continue
			}
			n, err := s.notify.Enqueue(ctx, tx, earnedNotification(userID, b, nil))
			if err != nil {
				return apperr.Internal(err)
			}
			if n != nil {
				pending = append(pending, n)
			}
			awarded = append(awarded, *b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify.Deliver(ctx, pending...)
	return awarded, nil
}

func (s *Service) Catalog(ctx context.Context) ([]model.Badge, error) {
	badges, err := s.stores.Badges.List(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return badges, nil
}

func (s *Service) globalAdmin(ctx context.Context, userID string) (bool, error) {
	u, err := s.stores.Users.GetByID(ctx, userID)
	if err != nil {
		return false, apperr.Internal(err)
	}
	return u != nil && u.Role == model.RoleAdmin, nil
}

// ForUser lists a user's badges. Only the user and global admins may look.
func (s *Service) ForUser(ctx context.Context, userID, targetID string) ([]model.UserBadge, error) {
	if userID != targetID {
		admin, err := s.globalAdmin(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !admin {
			return nil, apperr.Forbidden("cannot view another user's badges")
		}
		target, err := s.stores.Users.GetByID(ctx, targetID)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		if target == nil {
			return nil, apperr.NotFound("user")
		}
	}
	badges, err := s.stores.Badges.ListForUser(ctx, targetID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if badges == nil {
		badges = []model.UserBadge{}
	}
	return badges, nil
}

func (s *Service) ForHousehold(ctx context.Context, userID, householdID string) ([]model.UserBadge, error) {
	if _, err := access.Require(ctx, s.stores.Households, userID, householdID, model.RoleMember); err != nil {
		return nil, err
	}
	badges, err := s.stores.Badges.ListForHousehold(ctx, householdID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if badges == nil {
		badges = []model.UserBadge{}
	}
	return badges, nil
}

type ProgressItem struct {
	model.Badge
	Current    int `json:"current"`
	Target     int `json:"target"`
	Percentage int `json:"percentage"`
}

// Progress reports how close the user is to each badge they do not hold.
func (s *Service) Progress(ctx context.Context, userID string) ([]ProgressItem, error) {
	m, err := metrics(ctx, s.stores, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	held, err := heldTypes(ctx, s.stores, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	catalog, err := s.stores.Badges.List(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	out := []ProgressItem{}
	for _, b := range catalog {
		rule, ok := ruleFor(b.Type)
		if !ok || held[b.Type] {
			continue
		}
		cur := m.Value(rule.Metric)
		out = append(out, ProgressItem{
			Badge:      b,
			Current:    cur,
			Target:     rule.Target,
			Percentage: min(100, cur*100/rule.Target),
		})
	}
	return out, nil
}

type CreateInput struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Create adds a badge to the catalog. Global admins only.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*model.Badge, error) {
	admin, err := s.globalAdmin(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !admin {
		return nil, apperr.Forbidden("admin role required")
	}
	in.Type = strings.TrimSpace(in.Type)
	in.Name = strings.TrimSpace(in.Name)
	if in.Type == "" || in.Name == "" {
		return nil, apperr.Validation("type and name are required")
	}

	var created *model.Badge
	err = s.stores.InTx(ctx, func(tx *store.Stores) error {
		existing, err := tx.Badges.GetByType(ctx, in.Type)
		if err != nil {
			return apperr.Internal(err)
		}
		if existing != nil {
			return apperr.Conflict("badge type already exists")
		}
		created, err = tx.Badges.Create(ctx, model.Badge{
			Type:        in.Type,
			Name:        in.Name,
			Description: strings.TrimSpace(in.Description),
		})
		if err != nil {
			return apperr.Internal(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Award grants a badge by hand. The caller must administer the household
// and the target must belong to it.
func (s *Service) Award(ctx context.Context, userID, targetID, badgeID, householdID string) (*model.UserBadge, error) {
	var out *model.UserBadge
	var pending *model.Notification
	err := s.stores.InTx(ctx, func(tx *store.Stores) error {
		if _, err := access.Require(ctx, tx.Households, userID, householdID, model.RoleAdmin); err != nil {
			return err
		}
		m, err := tx.Households.GetMembership(ctx, householdID, targetID)
		if err != nil {
			return apperr.Internal(err)
		}
		if m == nil {
			return apperr.Validation("user is not a member of this household")
		}
		b, err := tx.Badges.GetByID(ctx, badgeID)
		if err != nil {
			return apperr.Internal(err)
		}
		if b == nil {
			return apperr.NotFound("badge")
		}
		now := s.now().UTC()
		ok, err := tx.Badges.Award(ctx, targetID, b.ID, now)
		if err != nil {
			return apperr.Internal(err)
		}
		if !ok {
			return apperr.Conflict("user already has this badge")
		}
		hid := householdID
		if pending, err = s.notify.Enqueue(ctx, tx, earnedNotification(targetID, b, &hid)); err != nil {
			return apperr.Internal(err)
		}
		out = &model.UserBadge{Badge: *b, UserID: targetID, AwardedAt: now}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if pending != nil {
		s.notify.Deliver(ctx, pending)
	}
	return out, nil
}
