// Package access answers whether a user holds at least a given role in a
// household. Membership rows are the only source of truth.
package access

import (
	"context"

	"github.com/dukerupert/hearth/internal/apperr"
	"github.com/dukerupert/hearth/internal/model"
)

// MembershipLookup returns nil, nil when the user is not a member.
type MembershipLookup interface {
	GetMembership(ctx context.Context, householdID, userID string) (*model.Membership, error)
}

// Level ranks roles. Unknown roles rank below member.
func Level(role model.Role) int {
	switch role {
	case model.RoleMember:
		return 0
	case model.RoleAdmin:
		return 1
	default:
		return -1
	}
}

// requiredLevel treats an unknown required role as member.
func requiredLevel(role model.Role) int {
	if l := Level(role); l >= 0 {
		return l
	}
	return 0
}

// HasRole reports whether userID is a member of householdID with a role at
// least as strong as required.
func HasRole(ctx context.Context, lookup MembershipLookup, userID, householdID string, required model.Role) (bool, error) {
	m, err := lookup.GetMembership(ctx, householdID, userID)
	if err != nil {
		return false, err
	}
	if m == nil {
		return false, nil
	}
	return Level(m.Role) >= requiredLevel(required), nil
}

// Require is HasRole returning a Forbidden error when the check fails. It
// returns the caller's membership on success.
func Require(ctx context.Context, lookup MembershipLookup, userID, householdID string, required model.Role) (*model.Membership, error) {
	m, err := lookup.GetMembership(ctx, householdID, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if m == nil {
		return nil, apperr.Forbidden("not a member of this household")
	}
	if Level(m.Role) < requiredLevel(required) {
		return nil, apperr.Forbidden("admin role required")
	}
	return m, nil
}
