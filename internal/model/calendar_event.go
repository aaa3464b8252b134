package model

import "time"

type Privacy string

const (
	PrivacyPublic  Privacy = "public"
	PrivacyPrivate Privacy = "private"
)

type Event struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time"`
	RecurrenceRule string     `json:"recurrence_rule,omitempty"`
	Privacy        Privacy    `json:"privacy"`
	HouseholdID    string     `json:"household_id"`
	UserID         string     `json:"user_id"`
	CreatedAt      time.Time  `json:"created_at"`
	RemindedAt     *time.Time `json:"-"`
}

// EventOccurrence is one concrete instance of a possibly recurring event.
type EventOccurrence struct {
	EventID   string    `json:"event_id"`
	Title     string    `json:"title"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}
