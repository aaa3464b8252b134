package calendar

import (
	"context"

	ics "github.com/arran4/golang-ical"

	"github.com/dukerupert/hearth/internal/apperr"
	"github.com/dukerupert/hearth/internal/model"
)

// ExportICS renders the events the user can see as an iCalendar feed.
func (s *Service) ExportICS(ctx context.Context, userID, householdID string) (string, error) {
	events, err := s.visible(ctx, userID, householdID, ListParams{})
	if err != nil {
		return "", err
	}
	h, err := s.stores.Households.GetByID(ctx, householdID)
	if err != nil {
		return "", apperr.Internal(err)
	}
	name := "Household"
	if h != nil {
		name = h.Name
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//hearth//household calendar//EN")
	cal.SetXWRCalName(name)
	for _, e := range events {
		addEvent(cal, e)
	}
	return cal.Serialize(), nil
}

func addEvent(cal *ics.Calendar, e model.Event) {
	ve := cal.AddEvent(e.ID + "@hearth")
	ve.SetCreatedTime(e.CreatedAt)
	ve.SetDtStampTime(e.CreatedAt)
	ve.SetStartAt(e.StartTime)
	if e.EndTime != nil {
		ve.SetEndAt(*e.EndTime)
	} else {
		ve.SetEndAt(e.StartTime)
	}
	ve.SetSummary(e.Title)
	if e.Description != "" {
		ve.SetDescription(e.Description)
	}
	if e.RecurrenceRule != "" {
		ve.SetProperty(ics.ComponentPropertyRrule, e.RecurrenceRule)
	}
	class := "PUBLIC"
	if e.Privacy == model.PrivacyPrivate {
		class = "PRIVATE"
	}
	ve.SetProperty(ics.ComponentPropertyClass, class)
}
