package model

import "time"

// Role is a membership role. Admin outranks member.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleMember || r == RoleAdmin
}

type Household struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	AdminID   string    `json:"admin_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Membership struct {
	HouseholdID string    `json:"household_id"`
	UserID      string    `json:"user_id"`
	Role        Role      `json:"role"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Member is a membership joined with the user's public profile.
type Member struct {
	UserID    string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      Role      `json:"role"`
	JoinedAt  time.Time `json:"joined_at"`
}

// UserHousehold is a household as seen by one of its members.
type UserHousehold struct {
	Household
	Role        Role      `json:"role"`
	JoinedAt    time.Time `json:"joined_at"`
	MemberCount int       `json:"member_count"`
}
