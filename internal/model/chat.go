package model

import "time"

type Message struct {
	ID             string     `json:"id"`
	Content        string     `json:"content"`
	IsAnnouncement bool       `json:"is_announcement"`
	HouseholdID    string     `json:"household_id"`
	UserID         string     `json:"user_id"`
	SenderName     string     `json:"sender_name,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	EditedAt       *time.Time `json:"edited_at"`
}

type Poll struct {
	ID          string         `json:"id"`
	Question    string         `json:"question"`
	Options     map[string]int `json:"options"`
	ExpiresAt   *time.Time     `json:"expires_at"`
	HouseholdID string         `json:"household_id"`
	CreatedBy   string         `json:"created_by"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Expired reports whether voting has closed at now.
func (p *Poll) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}

func (p *Poll) TotalVotes() int {
	n := 0
	for _, c := range p.Options {
		n += c
	}
	return n
}

type Vote struct {
	PollID         string    `json:"poll_id"`
	UserID         string    `json:"user_id"`
	SelectedOption string    `json:"selected_option"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
