// Package notify stores in-app notifications and fans them out to email and
// web push according to each user's settings.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/hearth/internal/apperr"
	"github.com/dukerupert/hearth/internal/model"
	"github.com/dukerupert/hearth/internal/push"
	"github.com/dukerupert/hearth/internal/store"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// Mailer sends notification email.
type Mailer interface {
	Configured() bool
	SendNotification(ctx context.Context, to, subject, body, tag string) error
}

// Pusher sends web push messages.
type Pusher interface {
	Configured() bool
	VAPIDPublicKey() string
	Send(ctx context.Context, sub *model.PushSubscription, payload push.Payload) error
}

type Service struct {
	stores *store.Stores
	mailer Mailer
	pusher Pusher
	logger *slog.Logger
	now    func() time.Time
	wg     sync.WaitGroup
}

type Option func(*Service)

func WithMailer(m Mailer) Option {
	return func(s *Service) { s.mailer = m }
}

func WithPusher(p Pusher) Option {
	return func(s *Service) { s.pusher = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(stores *store.Stores, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		stores: stores,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultSettings returns the settings a user gets before changing anything.
func DefaultSettings(userID string) model.NotificationSettings {
	types := make(map[string]bool, len(model.DefaultNotificationTypes))
	for _, t := range model.DefaultNotificationTypes {
		types[t] = true
	}
	return model.NotificationSettings{
		UserID:            userID,
		EmailEnabled:      true,
		PushEnabled:       true,
		InAppEnabled:      true,
		NotificationTypes: types,
		QuietHours:        model.QuietHours{StartTime: "22:00", EndTime: "08:00"},
	}
}

// effectiveSettings reads stored settings without creating a row.
func effectiveSettings(ctx context.Context, st *store.Stores, userID string) (*model.NotificationSettings, error) {
	ns, err := st.Notifications.GetSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ns == nil {
		d := DefaultSettings(userID)
		ns = &d
	}
	return ns, nil
}

// Enqueue inserts n through st, which may be bound to the caller's
// transaction. It returns nil without error when the recipient has in-app
// notifications or this type switched off.
func (s *Service) Enqueue(ctx context.Context, st *store.Stores, n model.Notification) (*model.Notification, error) {
	ns, err := effectiveSettings(ctx, st, n.UserID)
	if err != nil {
		return nil, err
	}
	if !ns.InAppEnabled || !ns.TypeEnabled(n.Type) {
		return nil, nil
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	return st.Notifications.Create(ctx, n)
}

// EnqueueAll enqueues one notification per recipient and returns the ones stored.
func (s *Service) EnqueueAll(ctx context.Context, st *store.Stores, recipients []string, tmpl model.Notification) ([]*model.Notification, error) {
	var out []*model.Notification
	for _, uid := range recipients {
		n := tmpl
		n.UserID = uid
		stored, err := s.Enqueue(ctx, st, n)
		if err != nil {
			return nil, err
		}
		if stored != nil {
			out = append(out, stored)
		}
	}
	return out, nil
}

// Notify enqueues outside any transaction and delivers right away.
func (s *Service) Notify(ctx context.Context, n model.Notification) (*model.Notification, error) {
	stored, err := s.Enqueue(ctx, s.stores, n)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		s.Deliver(ctx, stored)
	}
	return stored, nil
}

// Deliver sends stored notifications over email and push in the background.
// Call it only after the enqueuing transaction committed.
func (s *Service) Deliver(ctx context.Context, ns ...*model.Notification) {
	if len(ns) == 0 || !s.channelsConfigured() {
		return
	}
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for _, n := range ns {
			if n == nil {
				continue
			}
			s.deliver(ctx, n)
		}
	}()
}

// Wait blocks until in-flight deliveries finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) channelsConfigured() bool {
	return (s.mailer != nil && s.mailer.Configured()) || (s.pusher != nil && s.pusher.Configured())
}

func (s *Service) deliver(ctx context.Context, n *model.Notification) {
	ns, err := effectiveSettings(ctx, s.stores, n.UserID)
	if err != nil {
		s.logger.Error("load notification settings", "user_id", n.UserID, "error", err)
		return
	}
	if InQuietHours(ns.QuietHours, s.now()) {
		return
	}

	subject := Subject(n.Type)

	if ns.EmailEnabled && s.mailer != nil && s.mailer.Configured() {
		u, err := s.stores.Users.GetByID(ctx, n.UserID)
		if err != nil {
			s.logger.Error("load notification recipient", "user_id", n.UserID, "error", err)
		} else if u != nil {
			if err := s.mailer.SendNotification(ctx, u.Email, subject, n.Content, n.Type); err != nil {
				s.logger.Error("send notification email", "notification_id", n.ID, "error", err)
			}
		}
	}

	if ns.PushEnabled && s.pusher != nil && s.pusher.Configured() {
		subs, err := s.stores.Push.ListByUser(ctx, n.UserID)
		if err != nil {
			s.logger.Error("list push subscriptions", "user_id", n.UserID, "error", err)
			return
		}
		payload := push.Payload{Title: subject, Body: n.Content, URL: "/notifications", Tag: n.Type}
		for i := range subs {
			err := s.pusher.Send(ctx, &subs[i], payload)
			if errors.Is(err, push.ErrExpired) {
				s.logger.Info("removing expired push subscription", "subscription_id", subs[i].ID)
				if err := s.stores.Push.DeleteByEndpoint(ctx, subs[i].Endpoint); err != nil {
					s.logger.Error("delete expired subscription", "error", err)
				}
				continue
			}
			if err != nil {
				s.logger.Error("send push notification", "subscription_id", subs[i].ID, "error", err)
			}
		}
	}
}

// Subject turns a notification type into a short human title.
func Subject(typ string) string {
	switch typ {
	case model.NotifTaskAssigned:
		return "New task assigned"
	case model.NotifTaskCompleted:
		return "Task completed"
	case model.NotifTaskOverdue:
		return "Task overdue"
	case model.NotifHouseholdInvitation:
		return "Household invitation"
	case model.NotifHouseholdJoined:
		return "New household member"
	case model.NotifEventReminder:
		return "Upcoming event"
	case model.NotifEventInvitation:
		return "New event"
	case model.NotifPollCreated:
		return "New poll"
	case model.NotifBadgeEarned:
		return "Badge earned"
	case model.NotifAnnouncement:
		return "Announcement"
	case model.NotifNewMessage:
		return "New message"
	}
	return "Hearth notification"
}

// InQuietHours reports whether t falls inside the window. Times are "HH:MM"
// in UTC and a window whose end precedes its start wraps past midnight.
func InQuietHours(q model.QuietHours, t time.Time) bool {
	if !q.Enabled {
		return false
	}
	start, err1 := parseClock(q.StartTime)
	end, err2 := parseClock(q.EndTime)
	if err1 != nil || err2 != nil || start == end {
		return false
	}
	t = t.UTC()
	m := t.Hour()*60 + t.Minute()
	if start < end {
		return m >= start && m < end
	}
	return m >= start || m < end
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

type ListParams struct {
	IsRead      *bool
	HouseholdID string
	Page        int
	PerPage     int
}

type Page struct {
	Notifications []model.Notification `json:"notifications"`
	Pagination    model.Pagination     `json:"pagination"`
}

func (s *Service) List(ctx context.Context, userID string, p ListParams) (*Page, error) {
	page, perPage := normalizePage(p.Page, p.PerPage)
	items, total, err := s.stores.Notifications.List(ctx, store.NotificationFilter{
		UserID:      userID,
		IsRead:      p.IsRead,
		HouseholdID: p.HouseholdID,
		Limit:       perPage,
		Offset:      (page - 1) * perPage,
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if items == nil {
		items = []model.Notification{}
	}
	return &Page{Notifications: items, Pagination: model.NewPagination(total, page, perPage)}, nil
}

func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

func (s *Service) owned(ctx context.Context, userID, id string) (*model.Notification, error) {
	n, err := s.stores.Notifications.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if n == nil || n.UserID != userID {
		return nil, apperr.NotFound("notification")
	}
	return n, nil
}

func (s *Service) MarkRead(ctx context.Context, userID, id string) (*model.Notification, error) {
	n, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !n.IsRead {
		if err := s.stores.Notifications.MarkRead(ctx, id); err != nil {
			return nil, apperr.Internal(err)
		}
		n.IsRead = true
	}
	return n, nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID, householdID string) (int64, error) {
	n, err := s.stores.Notifications.MarkAllRead(ctx, userID, householdID)
	if err != nil {
		return 0, apperr.Internal(err)
	}
	return n, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID, householdID string) (int, error) {
	n, err := s.stores.Notifications.UnreadCount(ctx, userID, householdID)
	if err != nil {
		return 0, apperr.Internal(err)
	}
	return n, nil
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	if err := s.stores.Notifications.Delete(ctx, id); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// Settings returns the user's settings, storing the defaults on first read.
func (s *Service) Settings(ctx context.Context, userID string) (*model.NotificationSettings, error) {
	ns, err := s.stores.Notifications.GetSettings(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if ns != nil {
		return ns, nil
	}
	ns, err = s.stores.Notifications.SaveSettings(ctx, DefaultSettings(userID))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return ns, nil
}

type QuietHoursUpdate struct {
	Enabled   *bool   `json:"enabled"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
}

// SettingsUpdate carries a partial change. Nil fields are left alone and
// NotificationTypes is merged key by key.
type SettingsUpdate struct {
	EmailEnabled      *bool             `json:"email_notifications"`
	PushEnabled       *bool             `json:"push_notifications"`
	InAppEnabled      *bool             `json:"in_app_notifications"`
	NotificationTypes map[string]bool   `json:"notification_types"`
	QuietHours        *QuietHoursUpdate `json:"quiet_hours"`
}

func (s *Service) UpdateSettings(ctx context.Context, userID string, u SettingsUpdate) (*model.NotificationSettings, error) {
	if q := u.QuietHours; q != nil {
		for _, v := range []*string{q.StartTime, q.EndTime} {
			if v == nil {
				continue
			}
			if _, err := parseClock(*v); err != nil {
				return nil, apperr.Validation("quiet hours must use HH:MM, got %q", *v)
			}
		}
	}

	ns, err := s.Settings(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.EmailEnabled != nil {
		ns.EmailEnabled = *u.EmailEnabled
	}
	if u.PushEnabled != nil {
		ns.PushEnabled = *u.PushEnabled
	}
	if u.InAppEnabled != nil {
		ns.InAppEnabled = *u.InAppEnabled
	}
	for k, v := range u.NotificationTypes {
		ns.NotificationTypes[k] = v
	}
	if q := u.QuietHours; q != nil {
		if q.Enabled != nil {
			ns.QuietHours.Enabled = *q.Enabled
		}
		if q.StartTime != nil {
			ns.QuietHours.StartTime = strings.TrimSpace(*q.StartTime)
		}
		if q.EndTime != nil {
			ns.QuietHours.EndTime = strings.TrimSpace(*q.EndTime)
		}
	}

	saved, err := s.stores.Notifications.SaveSettings(ctx, *ns)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return saved, nil
}

// VAPIDKey returns the public key browsers subscribe with, or "" when push is off.
func (s *Service) VAPIDKey() string {
	if s.pusher == nil || !s.pusher.Configured() {
		return ""
	}
	return s.pusher.VAPIDPublicKey()
}

type SubscribeRequest struct {
	Endpoint   string `json:"endpoint"`
	P256dhKey  string `json:"p256dh"`
	AuthKey    string `json:"auth"`
	DeviceName string `json:"device_name"`
}

func (s *Service) Subscribe(ctx context.Context, userID string, req SubscribeRequest) (*model.PushSubscription, error) {
	if strings.TrimSpace(req.Endpoint) == "" || req.P256dhKey == "" || req.AuthKey == "" {
		return nil, apperr.Validation("endpoint, p256dh and auth are required")
	}
	sub, err := s.stores.Push.CreateSubscription(ctx, model.PushSubscription{
		UserID:     userID,
		Endpoint:   strings.TrimSpace(req.Endpoint),
		P256dhKey:  req.P256dhKey,
		AuthKey:    req.AuthKey,
		DeviceName: req.DeviceName,
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return sub, nil
}

func (s *Service) Unsubscribe(ctx context.Context, userID, id string) error {
	ok, err := s.stores.Push.Delete(ctx, id, userID)
	if err != nil {
		return apperr.Internal(err)
	}
	if !ok {
		return apperr.NotFound("push subscription")
	}
	return nil
}

func (s *Service) ListSubscriptions(ctx context.Context, userID string) ([]model.PushSubscription, error) {
	subs, err := s.stores.Push.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if subs == nil {
		subs = []model.PushSubscription{}
	}
	return subs, nil
}

// Audience narrows the members who should be told about household
// activity, e.g. to those not watching it live.
type Audience func(ctx context.Context, householdID string, candidates []string) ([]string, error)

// Everyone is the Audience that keeps every candidate.
func Everyone(_ context.Context, _ string, candidates []string) ([]string, error) {
	return candidates, nil
}
