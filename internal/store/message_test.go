package store

import (
	"context"
	"testing"
	"time"

	"github.com/dukerupert/hearth/internal/model"
)

func TestMessageListCursor(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	admin := createTestUser(t, s, "admin@example.com")
	h := createTestHousehold(t, s, admin)

	base := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := s.Messages.Create(ctx, model.Message{
			Content: "msg", HouseholdID: h.ID, UserID: admin.ID, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("create message %d: %v", i, err)
		}
	}

	msgs, total, err := s.Messages.List(ctx, h.ID, nil, 2, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 || len(msgs) != 2 {
		t.Fatalf("len = %d total = %d, want 2 of 5", len(msgs), total)
	}
	if !msgs[0].CreatedAt.Equal(base.Add(4 * time.Minute)) {
		t.Errorf("first = %v, want newest", msgs[0].CreatedAt)
	}
	if msgs[0].SenderName != "Test User" {
		t.Errorf("sender = %q, want %q", msgs[0].SenderName, "Test User")
	}

	before := base.Add(2 * time.Minute)
	msgs, total, err = s.Messages.List(ctx, h.ID, &before, 10, 0)
	if err != nil {
		t.Fatalf("list before: %v", err)
	}
	if total != 2 || len(msgs) != 2 {
		t.Errorf("before cursor len = %d total = %d, want 2", len(msgs), total)
	}
}

func TestMessageEditAndDelete(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	admin := createTestUser(t, s, "admin@example.com")
	h := createTestHousehold(t, s, admin)

	m, err := s.Messages.Create(ctx, model.Message{Content: "hi", HouseholdID: h.ID, UserID: admin.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if m.EditedAt != nil {
		t.Error("new message should not be edited")
	}

	edited, err := s.Messages.UpdateContent(ctx, m.ID, "hello", time.Now())
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if edited.Content != "hello" || edited.EditedAt == nil {
		t.Errorf("edited = %+v", edited)
	}

	if err := s.Messages.Delete(ctx, m.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := s.Messages.GetByID(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Error("expected message deleted")
	}

	n, err := s.Messages.CountByUser(ctx, admin.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
}
