package store

import (
	"context"
	"testing"

	"github.com/dukerupert/hearth/internal/model"
)

func TestNotificationListAndRead(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	admin := createTestUser(t, s, "admin@example.com")
	h := createTestHousehold(t, s, admin)

	for i := 0; i < 3; i++ {
		n := model.Notification{Type: model.NotifTaskAssigned, Content: "x", UserID: admin.ID}
		if i < 2 {
			n.HouseholdID = &h.ID
		}
		if _, err := s.Notifications.Create(ctx, n); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	_, total, err := s.Notifications.List(ctx, NotificationFilter{UserID: admin.ID, HouseholdID: h.ID, Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 {
		t.Errorf("household total = %d, want 2", total)
	}

	n, err := s.Notifications.MarkAllRead(ctx, admin.ID, h.ID)
	if err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if n != 2 {
		t.Errorf("marked = %d, want 2", n)
	}

	unread, err := s.Notifications.UnreadCount(ctx, admin.ID, "")
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if unread != 1 {
		t.Errorf("unread = %d, want 1", unread)
	}

	read := true
	_, total, err = s.Notifications.List(ctx, NotificationFilter{UserID: admin.ID, IsRead: &read})
	if err != nil {
		t.Fatalf("list read: %v", err)
	}
	if total != 2 {
		t.Errorf("read total = %d, want 2", total)
	}
}

func TestNotificationSettingsRoundTrip(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, s, "u@example.com")

	got, err := s.Notifications.GetSettings(ctx, u.ID)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if got != nil {
		t.Fatal("expected no settings yet")
	}

	saved, err := s.Notifications.SaveSettings(ctx, model.NotificationSettings{
		UserID:            u.ID,
		EmailEnabled:      true,
		InAppEnabled:      true,
		NotificationTypes: map[string]bool{"task_assigned": false},
		QuietHours:        model.QuietHours{Enabled: true, StartTime: "22:00", EndTime: "07:00"},
	})
	if err != nil {
		t.Fatalf("save settings: %v", err)
	}
	if saved.PushEnabled {
		t.Error("push should be disabled")
	}
	if saved.TypeEnabled("task_assigned") {
		t.Error("task_assigned should be disabled")
	}
	if !saved.TypeEnabled("something_new") {
		t.Error("unknown types should be enabled")
	}
	if saved.QuietHours.StartTime != "22:00" {
		t.Errorf("quiet start = %q, want 22:00", saved.QuietHours.StartTime)
	}

	saved.PushEnabled = true
	again, err := s.Notifications.SaveSettings(ctx, *saved)
	if err != nil {
		t.Fatalf("save again: %v", err)
	}
	if !again.PushEnabled {
		t.Error("expected push enabled after upsert")
	}
}
