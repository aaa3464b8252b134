package model

import "time"

type Badge struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type UserBadge struct {
	Badge
	UserID    string    `json:"user_id"`
	AwardedAt time.Time `json:"awarded_at"`
}
