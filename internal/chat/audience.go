package chat

import (
	"context"

	"github.com/dukerupert/hearth/internal/notify"
	"github.com/dukerupert/hearth/internal/presence"
)

// Absent keeps the candidates who are not watching the household room.
func Absent(tracker presence.Tracker) notify.Audience {
	return func(ctx context.Context, householdID string, candidates []string) ([]string, error) {
		out := make([]string, 0, len(candidates))
		for _, uid := range candidates {
			in, err := tracker.InRoom(ctx, uid, householdID)
			if err != nil {
				return nil, err
			}
			if !in {
				out = append(out, uid)
			}
		}
		return out, nil
	}
}
