// Package testutil holds fixtures shared by service package tests.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/hearth/internal/database"
	"github.com/dukerupert/hearth/internal/model"
	"github.com/dukerupert/hearth/internal/store"
)

// Stores opens a migrated in-memory database.
func Stores(t *testing.T) *store.Stores {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return store.New(db)
}

func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func User(t *testing.T, s *store.Stores, email string) *model.User {
	t.Helper()
	u, err := s.Users.Create(context.Background(), model.User{
		Email:        email,
		FirstName:    "Test",
		LastName:     email[:1],
		PasswordHash: "hash",
		Role:         model.RoleMember,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// Household creates a household administered by admin. Each extra member
// joins one minute after the previous one so join order is deterministic.
func Household(t *testing.T, s *store.Stores, admin *model.User, members ...*model.User) *model.Household {
	t.Helper()
	ctx := context.Background()
	at := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	h, err := s.Households.Create(ctx, "Home", admin.ID, at)
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	if _, err := s.Households.AddMember(ctx, h.ID, admin.ID, model.RoleAdmin, at); err != nil {
		t.Fatalf("add admin: %v", err)
	}
	for i, m := range members {
		joined := at.Add(time.Duration(i+1) * time.Minute)
		if _, err := s.Households.AddMember(ctx, h.ID, m.ID, model.RoleMember, joined); err != nil {
			t.Fatalf("add member: %v", err)
		}
	}
	return h
}

// Clock is a settable time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock {
	return &Clock{t: t.UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t.UTC()
	c.mu.Unlock()
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}
