package model

import "time"

type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	FirstName    string         `json:"first_name"`
	LastName     string         `json:"last_name"`
	PasswordHash string         `json:"-"`
	Role         Role           `json:"role"`
	Preferences  map[string]any `json:"preferences"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// PrefActiveHousehold is the preferences key naming the household a user
// last switched to.
const PrefActiveHousehold = "active_household"

func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// ActiveHousehold returns the stored active household id, or "".
func (u *User) ActiveHousehold() string {
	if u.Preferences == nil {
		return ""
	}
	s, _ := u.Preferences[PrefActiveHousehold].(string)
	return s
}
