// Package poll runs household polls with one vote per member.
package poll

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dukerupert/hearth/internal/access"
	"github.com/dukerupert/hearth/internal/apperr"
	"github.com/dukerupert/hearth/internal/model"
	"github.com/dukerupert/hearth/internal/notify"
	"github.com/dukerupert/hearth/internal/store"
)

const (
	maxQuestionLen = 500
	maxOptions     = 10
	defaultPerPage = 20
	maxPerPage     = 100
	activeOnJoin   = 50
)

type Service struct {
	stores   *store.Stores
	notify   *notify.Service
	audience notify.Audience
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithAudience limits who receives poll_created notifications.
func WithAudience(a notify.Audience) Option {
	return func(s *Service) { s.audience = a }
}

func NewService(stores *store.Stores, notifier *notify.Service, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		stores:   stores,
		notify:   notifier,
		audience: notify.Everyone,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// View is a poll as presented to one member.
type View struct {
	model.Poll
	IsExpired  bool    `json:"is_expired"`
	TotalVotes int     `json:"total_votes"`
	UserVote   *string `json:"user_vote"`
}

func (s *Service) view(p *model.Poll, vote *model.Vote) *View {
	v := &View{Poll: *p, IsExpired: p.Expired(s.now()), TotalVotes: p.TotalVotes()}
	if vote != nil {
		opt := vote.SelectedOption
		v.UserVote = &opt
	}
	return v
}

type CreateInput struct {
	Question  string     `json:"question"`
	Options   []string   `json:"options"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (in CreateInput) validate(now time.Time) (string, map[string]int, error) {
	q := strings.TrimSpace(in.Question)
	if q == "" {
		return "", nil, apperr.Validation("question is required")
	}
	if len(q) > maxQuestionLen {
		return "", nil, apperr.Validation("question must be at most %d characters", maxQuestionLen)
	}
	opts := make(map[string]int, len(in.Options))
	for _, o := range in.Options {
		o = strings.TrimSpace(o)
		if o == "" {
			return "", nil, apperr.Validation("options must not be empty")
		}
		if _, dup := opts[o]; dup {
			return "", nil, apperr.Validation("duplicate option %q", o)
		}
		opts[o] = 0
	}
	if len(opts) < 2 {
		return "", nil, apperr.Validation("a poll needs at least two options")
	}
	if len(opts) > maxOptions {
		return "", nil, apperr.Validation("a poll can have at most %d options", maxOptions)
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return "", nil, apperr.Validation("expires_at must be in the future")
	}
	return q, opts, nil
}

func (s *Service) Create(ctx context.Context, userID, householdID string, in CreateInput) (*View, error) {
	now := s.now().UTC()
	question, options, err := in.validate(now)
	if err != nil {
		return nil, err
	}

	var created *model.Poll
	var pending []*model.Notification
	err = s.stores.InTx(ctx, func(tx *store.Stores) error {
		if _, err := access.Require(ctx, tx.Households, userID, householdID, model.RoleMember); err != nil {
			return err
		}
		var expires *time.Time
		if in.ExpiresAt != nil {
			e := in.ExpiresAt.UTC()
			expires = &e
		}
		p, err := tx.Polls.Create(ctx, model.Poll{
			Question:    question,
			Options:     options,
			ExpiresAt:   expires,
			HouseholdID: householdID,
			CreatedBy:   userID,
			CreatedAt:   now,
		})
		if err != nil {
			return apperr.Internal(err)
		}

		members, err := tx.Households.MemberIDs(ctx, householdID)
		if err != nil {
			return apperr.Internal(err)
		}
		others := slices.DeleteFunc(members, func(id string) bool { return id == userID })
		recipients, err := s.audience(ctx, householdID, others)
		if err != nil {
			return apperr.Internal(err)
		}
		hid := householdID
		pending, err = s.notify.EnqueueAll(ctx, tx, recipients, model.Notification{
			Type:          model.NotifPollCreated,
			Content:       "New poll: " + question,
			HouseholdID:   &hid,
			ReferenceType: "poll",
			ReferenceID:   p.ID,
		})
		if err != nil {
			return apperr.Internal(err)
		}
		created = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify.Deliver(ctx, pending...)
	return s.view(created, nil), nil
}

type Page struct {
	Polls      []View           `json:"polls"`
	Pagination model.Pagination `json:"pagination"`
}

func (s *Service) List(ctx context.Context, userID, householdID, status string, page, perPage int) (*Page, error) {
	if _, err := access.Require(ctx, s.stores.Households, userID, householdID, model.RoleMember); err != nil {
		return nil, err
	}
	var st store.PollStatus
	switch status {
	case "", string(store.PollsAll):
		st = store.PollsAll
	case string(store.PollsActive), string(store.PollsExpired):
		st = store.PollStatus(status)
	default:
		return nil, apperr.Validation("invalid status %q", status)
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	perPage = min(perPage, maxPerPage)

	polls, total, err := s.stores.Polls.List(ctx, householdID, st, s.now(), perPage, (page-1)*perPage)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	views, err := s.views(ctx, userID, polls)
	if err != nil {
		return nil, err
	}
	return &Page{Polls: views, Pagination: model.NewPagination(total, page, perPage)}, nil
}

func (s *Service) views(ctx context.Context, userID string, polls []model.Poll) ([]View, error) {
	out := make([]View, 0, len(polls))
	for i := range polls {
		vote, err := s.stores.Polls.GetVote(ctx, polls[i].ID, userID)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		out = append(out, *s.view(&polls[i], vote))
	}
	return out, nil
}

// Active returns the household's open polls for a member already known to
// belong to it.
func (s *Service) Active(ctx context.Context, userID, householdID string) ([]View, error) {
	polls, _, err := s.stores.Polls.List(ctx, householdID, store.PollsActive, s.now(), activeOnJoin, 0)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return s.views(ctx, userID, polls)
}

func load(ctx context.Context, st *store.Stores, userID, pollID string) (*model.Poll, *model.Membership, error) {
	p, err := st.Polls.GetByID(ctx, pollID)
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}
	if p == nil {
		return nil, nil, apperr.NotFound("poll")
	}
	m, err := access.Require(ctx, st.Households, userID, p.HouseholdID, model.RoleMember)
	if err != nil {
		return nil, nil, err
	}
	return p, m, nil
}

func (s *Service) Get(ctx context.Context, userID, pollID string) (*View, error) {
	p, _, err := load(ctx, s.stores, userID, pollID)
	if err != nil {
		return nil, err
	}
	vote, err := s.stores.Polls.GetVote(ctx, pollID, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return s.view(p, vote), nil
}

// Vote records or moves the caller's vote. Counts and the vote row change
// in one transaction.
func (s *Service) Vote(ctx context.Context, userID, pollID, option string) (*View, error) {
	option = strings.TrimSpace(option)
	now := s.now().UTC()

	var out *View
	err := s.stores.InTx(ctx, func(tx *store.Stores) error {
		p, _, err := load(ctx, tx, userID, pollID)
		if err != nil {
			return err
		}
		if p.Expired(now) {
			return apperr.Validation("poll has expired")
		}
		if _, ok := p.Options[option]; !ok {
			return apperr.Validation("invalid option %q", option)
		}

		prev, err := tx.Polls.GetVote(ctx, pollID, userID)
		if err != nil {
			return apperr.Internal(err)
		}
		switch {
		case prev == nil:
			if err := tx.Polls.CreateVote(ctx, pollID, userID, option, now); err != nil {
				return apperr.Internal(err)
			}
		case prev.SelectedOption == option:
			return apperr.Conflict("already voted for this option")
		default:
			if p.Options[prev.SelectedOption] > 0 {
				p.Options[prev.SelectedOption]--
			}
			if err := tx.Polls.UpdateVote(ctx, pollID, userID, option, now); err != nil {
				return apperr.Internal(err)
			}
		}
		p.Options[option]++
		if err := tx.Polls.SetOptions(ctx, pollID, p.Options); err != nil {
			return apperr.Internal(err)
		}
		out = s.view(p, &model.Vote{SelectedOption: option})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a poll. Only its creator or a household admin may do so.
func (s *Service) Delete(ctx context.Context, userID, pollID string) (*model.Poll, error) {
	p, m, err := load(ctx, s.stores, userID, pollID)
	if err != nil {
		return nil, err
	}
	if p.CreatedBy != userID && m.Role != model.RoleAdmin {
		return nil, apperr.Forbidden("only the creator or a household admin can delete this poll")
	}
	if err := s.stores.Polls.Delete(ctx, pollID); err != nil {
		return nil, apperr.Internal(err)
	}
	return p, nil
}
