// Package chat stores household messages and routes real-time chat
// events between connected members.
package chat

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dukerupert/hearth/internal/access"
	"github.com/dukerupert/hearth/internal/apperr"
	"github.com/dukerupert/hearth/internal/model"
	"github.com/dukerupert/hearth/internal/notify"
	"github.com/dukerupert/hearth/internal/store"
)

const (
	maxContentLen  = 2000
	previewLen     = 30
	editWindow     = 24 * time.Hour
	recentOnJoin   = 50
	defaultPerPage = 50
	maxPerPage     = 100
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

// WithAudience limits message notifications to the members it returns.
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

func validContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", apperr.Validation("content is required")
	}
	if utf8.RuneCountInString(content) > maxContentLen {
		return "", apperr.Validation("content must be at most %d characters", maxContentLen)
	}
	return content, nil
}

func preview(content string) string {
	if utf8.RuneCountInString(content) <= previewLen {
		return content
	}
	return string([]rune(content)[:previewLen]) + "..."
}

type SendInput struct {
	Content        string `json:"content"`
	IsAnnouncement bool   `json:"is_announcement"`
}

// Send stores a message and notifies members picked by the audience.
func (s *Service) Send(ctx context.Context, userID, householdID string, in SendInput) (*model.Message, error) {
	content, err := validContent(in.Content)
	if err != nil {
		return nil, err
	}

	var msg *model.Message
	var pending []*model.Notification
	err = s.stores.InTx(ctx, func(tx *store.Stores) error {
		if _, err := access.Require(ctx, tx.Households, userID, householdID, model.RoleMember); err != nil {
			return err
		}
		m, err := tx.Messages.Create(ctx, model.Message{
			Content:        content,
			IsAnnouncement: in.IsAnnouncement,
			HouseholdID:    householdID,
			UserID:         userID,
			CreatedAt:      s.now().UTC(),
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

		typ, text := model.NotifNewMessage, "New message from "+m.SenderName+": "+preview(content)
		if in.IsAnnouncement {
			typ, text = model.NotifAnnouncement, "Announcement from "+m.SenderName+": "+preview(content)
		}
		hid := householdID
		pending, err = s.notify.EnqueueAll(ctx, tx, recipients, model.Notification{
			Type:          typ,
			Content:       text,
			HouseholdID:   &hid,
			ReferenceType: "message",
			ReferenceID:   m.ID,
		})
		if err != nil {
			return apperr.Internal(err)
		}
		msg = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify.Deliver(ctx, pending...)
	return msg, nil
}

type ListParams struct {
	Page    int
	PerPage int
	Before  *time.Time
}

type Page struct {
	Messages   []model.Message  `json:"messages"`
	Pagination model.Pagination `json:"pagination"`
}

// List returns messages newest first.
func (s *Service) List(ctx context.Context, userID, householdID string, p ListParams) (*Page, error) {
	if _, err := access.Require(ctx, s.stores.Households, userID, householdID, model.RoleMember); err != nil {
		return nil, err
	}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = defaultPerPage
	}
	p.PerPage = min(p.PerPage, maxPerPage)

	msgs, total, err := s.stores.Messages.List(ctx, householdID, p.Before, p.PerPage, (p.Page-1)*p.PerPage)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return &Page{Messages: msgs, Pagination: model.NewPagination(total, p.Page, p.PerPage)}, nil
}

// Recent returns the latest messages oldest first, as shown when a member
// opens the room. The caller must already have checked membership.
func (s *Service) Recent(ctx context.Context, householdID string) ([]model.Message, error) {
	msgs, _, err := s.stores.Messages.List(ctx, householdID, nil, recentOnJoin, 0)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	slices.Reverse(msgs)
	if msgs == nil {
		msgs = []model.Message{}
	}
	return msgs, nil
}

func (s *Service) load(ctx context.Context, userID, messageID string) (*model.Message, *model.Membership, error) {
	m, err := s.stores.Messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}
	if m == nil {
		return nil, nil, apperr.NotFound("message")
	}
	mem, err := access.Require(ctx, s.stores.Households, userID, m.HouseholdID, model.RoleMember)
	if err != nil {
		return nil, nil, err
	}
	return m, mem, nil
}

// Edit changes the content of the caller's own message within a day of sending it.
func (s *Service) Edit(ctx context.Context, userID, messageID, content string) (*model.Message, error) {
	content, err := validContent(content)
	if err != nil {
		return nil, err
	}
	m, _, err := s.load(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	if m.UserID != userID {
		return nil, apperr.Forbidden("only the sender can edit this message")
	}
	now := s.now().UTC()
	if now.Sub(m.CreatedAt) > editWindow {
		return nil, apperr.Forbidden("messages can only be edited within 24 hours")
	}
	updated, err := s.stores.Messages.UpdateContent(ctx, messageID, content, now)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return updated, nil
}

// Deleted describes a removed message for broadcast.
type Deleted struct {
	ID          string `json:"id"`
	HouseholdID string `json:"household_id"`
	DeletedBy   string `json:"deleted_by"`
}

// Delete removes a message. The sender or a household admin may do so at any time.
func (s *Service) Delete(ctx context.Context, userID, messageID string) (*Deleted, error) {
	m, mem, err := s.load(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	if m.UserID != userID && mem.Role != model.RoleAdmin {
		return nil, apperr.Forbidden("only the sender or a household admin can delete this message")
	}
	if err := s.stores.Messages.Delete(ctx, messageID); err != nil {
		return nil, apperr.Internal(err)
	}
	return &Deleted{ID: m.ID, HouseholdID: m.HouseholdID, DeletedBy: userID}, nil
}

// Member checks that the user belongs to the household.
func (s *Service) Member(ctx context.Context, userID, householdID string) error {
	_, err := access.Require(ctx, s.stores.Households, userID, householdID, model.RoleMember)
	return err
}
