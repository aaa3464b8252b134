package task

import (
	"context"
	"fmt"
	"slices"

	"github.com/dukerupert/hearth/internal/store"
)

// nextInRotation picks the member after previous in join order. It wraps
// around and falls back to the first member when previous is unknown.
func nextInRotation(members []string, previous string) string {
	if len(members) == 0 {
		return ""
	}
	i := slices.Index(members, previous)
	if i < 0 {
		return members[0]
	}
	return members[(i+1)%len(members)]
}

// pickAssignee returns preferred when they belong to the household and
// otherwise continues the household's round-robin. It returns nil for a
// household without members.
func pickAssignee(ctx context.Context, st *store.Stores, householdID, preferred string) (*string, error) {
	memberships, err := st.Households.ListMemberships(ctx, householdID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(memberships))
	for i, m := range memberships {
		ids[i] = m.UserID
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if preferred != "" && slices.Contains(ids, preferred) {
		return &preferred, nil
	}

	last, err := st.Tasks.LastCreated(ctx, householdID)
	if err != nil {
		return nil, fmt.Errorf("last created task: %w", err)
	}
	previous := ""
	if last != nil && last.AssignedTo != nil {
		previous = *last.AssignedTo
	}
	next := nextInRotation(ids, previous)
	return &next, nil
}
