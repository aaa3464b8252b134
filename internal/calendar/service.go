// Package calendar manages household events and their recurrences.
package calendar

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
	"github.com/dukerupert/hearth/internal/recurrence"
	"github.com/dukerupert/hearth/internal/store"
)

const maxTitleLen = 200

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

type CreateInput struct {
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        *time.Time    `json:"end_time"`
	RecurrenceRule string        `json:"recurrence_rule"`
	Privacy        model.Privacy `json:"privacy"`
}

// normalize validates e in place and canonicalizes its rule.
func normalize(e *model.Event) error {
	e.Title = strings.TrimSpace(e.Title)
	if e.Title == "" {
		return apperr.Validation("title is required")
	}
	if utf8.RuneCountInString(e.Title) > maxTitleLen {
		return apperr.Validation("title must be at most %d characters", maxTitleLen)
	}
	if e.StartTime.IsZero() {
		return apperr.Validation("start_time is required")
	}
	e.StartTime = e.StartTime.UTC()
	if e.EndTime != nil {
		end := e.EndTime.UTC()
		if end.Before(e.StartTime) {
			return apperr.Validation("end_time must not be before start_time")
		}
		e.EndTime = &end
	}
	switch e.Privacy {
	case "":
		e.Privacy = model.PrivacyPublic
	case model.PrivacyPublic, model.PrivacyPrivate:
	default:
		return apperr.Validation("privacy must be public or private")
	}
	if strings.TrimSpace(e.RecurrenceRule) != "" {
		rule, err := recurrence.Parse(e.RecurrenceRule)
		if err != nil {
			return apperr.Validation("invalid recurrence_rule: %v", err)
		}
		e.RecurrenceRule = rule.String()
	} else {
		e.RecurrenceRule = ""
	}
	return nil
}

// Create adds an event. Public events notify the other household members.
func (s *Service) Create(ctx context.Context, userID, householdID string, in CreateInput) (*model.Event, error) {
	e := model.Event{
		Title:          in.Title,
		Description:    strings.TrimSpace(in.Description),
		StartTime:      in.StartTime,
		EndTime:        in.EndTime,
		RecurrenceRule: in.RecurrenceRule,
		Privacy:        in.Privacy,
		HouseholdID:    householdID,
		UserID:         userID,
	}
	if err := normalize(&e); err != nil {
		return nil, err
	}
	e.CreatedAt = s.now().UTC()

	var created *model.Event
	var pending []*model.Notification
	err := s.stores.InTx(ctx, func(tx *store.Stores) error {
		if _, err := access.Require(ctx, tx.Households, userID, householdID, model.RoleMember); err != nil {
			return err
		}
		ev, err := tx.Events.Create(ctx, e)
		if err != nil {
			return apperr.Internal(err)
		}
		created = ev
		if ev.Privacy != model.PrivacyPublic {
			return nil
		}

		members, err := tx.Households.MemberIDs(ctx, householdID)
		if err != nil {
			return apperr.Internal(err)
		}
		others := slices.DeleteFunc(members, func(id string) bool { return id == userID })
		hid := householdID
		pending, err = s.notify.EnqueueAll(ctx, tx, others, model.Notification{
			Type:          model.NotifEventInvitation,
			Content:       "New event: " + ev.Title + " on " + ev.StartTime.Format("2006-01-02 15:04"),
			HouseholdID:   &hid,
			ReferenceType: "event",
			ReferenceID:   ev.ID,
		})
		if err != nil {
			return apperr.Internal(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify.Deliver(ctx, pending...)
	return created, nil
}

// ListParams bounds a listing. Recurring events are expanded only when
// both ends are set.
type ListParams struct {
	Start *time.Time
	End   *time.Time
}

type Listing struct {
	Events      []model.Event           `json:"events"`
	Occurrences []model.EventOccurrence `json:"occurrences,omitempty"`
}

// visible returns the events the user may see. Admins see every event;
// members see public events and their own.
func (s *Service) visible(ctx context.Context, userID, householdID string, p ListParams) ([]model.Event, error) {
	m, err := access.Require(ctx, s.stores.Households, userID, householdID, model.RoleMember)
	if err != nil {
		return nil, err
	}
	f := store.EventFilter{HouseholdID: householdID, Start: p.Start, End: p.End}
	if m.Role != model.RoleAdmin {
		f.ViewerID = userID
	}
	events, err := s.stores.Events.List(ctx, f)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return events, nil
}

func (s *Service) List(ctx context.Context, userID, householdID string, p ListParams) (*Listing, error) {
	if p.Start != nil && p.End != nil && !p.End.After(*p.Start) {
		return nil, apperr.Validation("end must be after start")
	}
	events, err := s.visible(ctx, userID, householdID, p)
	if err != nil {
		return nil, err
	}
	out := &Listing{Events: []model.Event{}}
	if p.Start == nil || p.End == nil {
		if events != nil {
			out.Events = events
		}
		return out, nil
	}

	out.Occurrences = []model.EventOccurrence{}
	for _, e := range events {
		occ := occurrences(e, *p.Start, *p.End)
		if len(occ) == 0 {
			continue
		}
		out.Events = append(out.Events, e)
		out.Occurrences = append(out.Occurrences, occ...)
	}
	slices.SortStableFunc(out.Occurrences, func(a, b model.EventOccurrence) int {
		return a.StartTime.Compare(b.StartTime)
	})
	return out, nil
}

// occurrences lists the instances of e overlapping [start, end).
func occurrences(e model.Event, start, end time.Time) []model.EventOccurrence {
	evEnd := e.StartTime
	if e.EndTime != nil {
		evEnd = *e.EndTime
	}
	rule := recurrence.Rule{Freq: recurrence.Daily, Interval: 1, Count: 1}
	if e.RecurrenceRule != "" {
		parsed, err := recurrence.Parse(e.RecurrenceRule)
		if err != nil {
			return nil
		}
		rule = parsed
	}
	var out []model.EventOccurrence
	for _, o := range recurrence.Expand(rule, e.StartTime, evEnd, start, end) {
		out = append(out, model.EventOccurrence{EventID: e.ID, Title: e.Title, StartTime: o.Start, EndTime: o.End})
	}
	return out
}

func (s *Service) load(ctx context.Context, userID, eventID string) (*model.Event, error) {
	e, err := s.stores.Events.GetByID(ctx, eventID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if e == nil {
		return nil, apperr.NotFound("event")
	}
	m, err := access.Require(ctx, s.stores.Households, userID, e.HouseholdID, model.RoleMember)
	if err != nil {
		return nil, err
	}
	if e.UserID != userID && m.Role != model.RoleAdmin {
		if e.Privacy == model.PrivacyPrivate {
			return nil, apperr.NotFound("event")
		}
		return nil, apperr.Forbidden("only the creator or a household admin can change this event")
	}
	return e, nil
}

type UpdateInput struct {
	Title          *string        `json:"title"`
	Description    *string        `json:"description"`
	StartTime      *time.Time     `json:"start_time"`
	EndTime        *time.Time     `json:"end_time"`
	RecurrenceRule *string        `json:"recurrence_rule"`
	Privacy        *model.Privacy `json:"privacy"`
}

// Update applies the set fields. Rescheduling clears any sent reminder.
func (s *Service) Update(ctx context.Context, userID, eventID string, in UpdateInput) (*model.Event, error) {
	e, err := s.load(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}
	if in.Title != nil {
		e.Title = *in.Title
	}
	if in.Description != nil {
		e.Description = strings.TrimSpace(*in.Description)
	}
	if in.StartTime != nil {
		e.StartTime = *in.StartTime
	}
	if in.EndTime != nil {
		e.EndTime = in.EndTime
	}
	if in.RecurrenceRule != nil {
		e.RecurrenceRule = *in.RecurrenceRule
	}
	if in.Privacy != nil {
		e.Privacy = *in.Privacy
	}
	if err := normalize(e); err != nil {
		return nil, err
	}
	updated, err := s.stores.Events.Update(ctx, e)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, userID, eventID string) (*model.Event, error) {
	e, err := s.load(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.stores.Events.Delete(ctx, eventID); err != nil {
		return nil, apperr.Internal(err)
	}
	return e, nil
}

// ListMine returns the events the user created in any household.
func (s *Service) ListMine(ctx context.Context, userID string) ([]model.Event, error) {
	events, err := s.stores.Events.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if events == nil {
		events = []model.Event{}
	}
	return events, nil
}
