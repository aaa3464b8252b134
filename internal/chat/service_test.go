package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/hearth/internal/apperr"
	"github.com/dukerupert/hearth/internal/model"
	"github.com/dukerupert/hearth/internal/notify"
	"github.com/dukerupert/hearth/internal/presence"
	"github.com/dukerupert/hearth/internal/store"
	"github.com/dukerupert/hearth/internal/testutil"
)

type fixture struct {
	st       *store.Stores
	svc      *Service
	notifier *notify.Service
	tracker  *presence.Memory
	clock    *testutil.Clock
	alice    *model.User
	bob      *model.User
	carol    *model.User
	home     *model.Household
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := testutil.Stores(t)
	clock := testutil.NewClock(time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC))
	f := &fixture{st: st, clock: clock, tracker: presence.NewMemory()}
	f.alice = testutil.User(t, st, "alice@example.com")
	f.bob = testutil.User(t, st, "bob@example.com")
	f.carol = testutil.User(t, st, "carol@example.com")
	f.home = testutil.Household(t, st, f.alice, f.bob, f.carol)
	f.notifier = notify.NewService(st, testutil.Logger(), notify.WithClock(clock.Now))
	f.svc = NewService(st, f.notifier, testutil.Logger(), WithClock(clock.Now), WithAudience(Absent(f.tracker)))
	return f
}

func (f *fixture) send(t *testing.T, user *model.User, content string) *model.Message {
	t.Helper()
	m, err := f.svc.Send(context.Background(), user.ID, f.home.ID, SendInput{Content: content})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	return m
}

func unread(t *testing.T, st *store.Stores, userID string) []model.Notification {
	t.Helper()
	no := false
	ns, _, err := st.Notifications.List(context.Background(), store.NotificationFilter{UserID: userID, IsRead: &no})
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	return ns
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	outsider := testutil.User(t, f.st, "dave@example.com")

	tests := []struct {
		name    string
		user    *model.User
		content string
		kind    apperr.Kind
	}{
		{"empty", f.alice, "   ", apperr.KindValidation},
		{"too long", f.alice, strings.Repeat("x", maxContentLen+1), apperr.KindValidation},
		{"outsider", outsider, "hello", apperr.KindForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Send(ctx, tt.user.ID, f.home.ID, SendInput{Content: tt.content})
			if !apperr.Is(err, tt.kind) {
				t.Errorf("err = %v, want kind %v", err, tt.kind)
			}
		})
	}
}

func TestSendNotifiesMembersOutsideRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// bob is watching the room, carol is not.
	f.tracker.Connect(ctx, f.bob.ID)
	f.tracker.Join(ctx, f.bob.ID, f.home.ID)

	m := f.send(t, f.alice, "  Dinner is at seven tonight, please be on time  ")
	f.notifier.Wait()

	if m.Content != "Dinner is at seven tonight, please be on time" {
		t.Errorf("content = %q", m.Content)
	}
	if m.SenderName != "Test a" {
		t.Errorf("sender name = %q", m.SenderName)
	}

	if got := unread(t, f.st, f.bob.ID); len(got) != 0 {
		t.Errorf("bob got %d notifications while in the room", len(got))
	}
	if got := unread(t, f.st, f.alice.ID); len(got) != 0 {
		t.Errorf("sender got %d notifications", len(got))
	}
	got := unread(t, f.st, f.carol.ID)
	if len(got) != 1 {
		t.Fatalf("carol notifications = %d, want 1", len(got))
	}
	n := got[0]
	if n.Type != model.NotifNewMessage || n.ReferenceID != m.ID {
		t.Errorf("notification = %+v", n)
	}
	if n.Content != "New message from Test a: Dinner is at seven tonight, pl..." {
		t.Errorf("content = %q", n.Content)
	}
}

func TestAnnouncementNotificationType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Send(ctx, f.bob.ID, f.home.ID, SendInput{Content: "Water off Tuesday", IsAnnouncement: true})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	f.notifier.Wait()

	got := unread(t, f.st, f.carol.ID)
	if len(got) != 1 || got[0].Type != model.NotifAnnouncement {
		t.Fatalf("notifications = %+v", got)
	}
}

func TestListPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.send(t, f.alice, "msg "+string(rune('a'+i)))
		f.clock.Advance(time.Minute)
	}

	page, err := f.svc.List(ctx, f.bob.ID, f.home.ID, ListParams{Page: 1, PerPage: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Messages) != 2 || page.Messages[0].Content != "msg e" {
		t.Fatalf("first page = %+v", page.Messages)
	}
	if page.Pagination.Total != 5 || page.Pagination.Pages != 3 || !page.Pagination.HasNext {
		t.Errorf("pagination = %+v", page.Pagination)
	}

	before := page.Messages[1].CreatedAt
	older, err := f.svc.List(ctx, f.bob.ID, f.home.ID, ListParams{Before: &before})
	if err != nil {
		t.Fatalf("list before: %v", err)
	}
	if len(older.Messages) != 3 || older.Messages[0].Content != "msg c" {
		t.Errorf("older = %+v", older.Messages)
	}

	recent, err := f.svc.Recent(ctx, f.home.ID)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 5 || recent[0].Content != "msg a" || recent[4].Content != "msg e" {
		t.Errorf("recent not oldest first: %+v", recent)
	}

	outsider := testutil.User(t, f.st, "dave@example.com")
	if _, err := f.svc.List(ctx, outsider.ID, f.home.ID, ListParams{}); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("outsider list err = %v, want forbidden", err)
	}
}

func TestEditWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.send(t, f.bob, "helo")

	if _, err := f.svc.Edit(ctx, f.alice.ID, m.ID, "hello"); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("admin edit err = %v, want forbidden", err)
	}

	f.clock.Advance(23 * time.Hour)
	edited, err := f.svc.Edit(ctx, f.bob.ID, m.ID, "hello")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if edited.Content != "hello" || edited.EditedAt == nil {
		t.Errorf("edited = %+v", edited)
	}

	f.clock.Advance(2 * time.Hour)
	if _, err := f.svc.Edit(ctx, f.bob.ID, m.ID, "hello!"); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("late edit err = %v, want forbidden", err)
	}

	if _, err := f.svc.Edit(ctx, f.bob.ID, "missing", "x"); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("missing edit err = %v, want not found", err)
	}
}

func TestDeletePermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.send(t, f.bob, "one")
	m2 := f.send(t, f.bob, "two")

	if _, err := f.svc.Delete(ctx, f.carol.ID, m.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("member delete err = %v, want forbidden", err)
	}

	f.clock.Advance(30 * 24 * time.Hour)
	del, err := f.svc.Delete(ctx, f.alice.ID, m.ID)
	if err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if del.DeletedBy != f.alice.ID || del.HouseholdID != f.home.ID {
		t.Errorf("deleted = %+v", del)
	}

	if _, err := f.svc.Delete(ctx, f.bob.ID, m2.ID); err != nil {
		t.Fatalf("sender delete: %v", err)
	}
	if got, _ := f.st.Messages.GetByID(ctx, m2.ID); got != nil {
		t.Error("message still stored")
	}
}
