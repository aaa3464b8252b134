package model

import "time"

// Notification types.
const (
	NotifTaskAssigned        = "task_assigned"
	NotifTaskCompleted       = "task_completed"
	NotifTaskOverdue         = "task_overdue"
	NotifHouseholdInvitation = "household_invitation"
	NotifHouseholdJoined     = "household_joined"
	NotifEventReminder       = "event_reminder"
	NotifEventInvitation     = "event_invitation"
	NotifPollCreated         = "poll_created"
	NotifBadgeEarned         = "badge_earned"
	NotifAnnouncement        = "announcement"
	NotifNewMessage          = "new_message"
)

// DefaultNotificationTypes lists the types present in fresh settings.
var DefaultNotificationTypes = []string{
	NotifTaskAssigned,
	NotifTaskCompleted,
	NotifTaskOverdue,
	NotifHouseholdInvitation,
	NotifHouseholdJoined,
	NotifEventReminder,
	NotifEventInvitation,
	NotifPollCreated,
	NotifBadgeEarned,
	NotifAnnouncement,
}

type Notification struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Content       string    `json:"content"`
	IsRead        bool      `json:"is_read"`
	UserID        string    `json:"user_id"`
	HouseholdID   *string   `json:"household_id"`
	ReferenceType string    `json:"reference_type,omitempty"`
	ReferenceID   string    `json:"reference_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type QuietHours struct {
	Enabled   bool   `json:"enabled"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type NotificationSettings struct {
	UserID            string          `json:"user_id"`
	EmailEnabled      bool            `json:"email_notifications"`
	PushEnabled       bool            `json:"push_notifications"`
	InAppEnabled      bool            `json:"in_app_notifications"`
	NotificationTypes map[string]bool `json:"notification_types"`
	QuietHours        QuietHours      `json:"quiet_hours"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// TypeEnabled treats types absent from the map as enabled.
func (s *NotificationSettings) TypeEnabled(typ string) bool {
	enabled, ok := s.NotificationTypes[typ]
	return !ok || enabled
}
