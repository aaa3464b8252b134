package reminder

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukerupert/hearth/internal/model"
	"github.com/dukerupert/hearth/internal/notify"
	"github.com/dukerupert/hearth/internal/store"
	"github.com/dukerupert/hearth/internal/testutil"
)

type countingRefiller struct {
	calls atomic.Int32
}

func (r *countingRefiller) RefillHorizons(context.Context) (int, error) {
	r.calls.Add(1)
	return 2, nil
}

type fixture struct {
	st       *store.Stores
	sched    *Scheduler
	clock    *testutil.Clock
	refiller *countingRefiller
	alice    *model.User
	bob      *model.User
	home     *model.Household
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := testutil.Stores(t)
	clock := testutil.NewClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	f := &fixture{st: st, clock: clock, refiller: &countingRefiller{}}
	f.alice = testutil.User(t, st, "alice@example.com")
	f.bob = testutil.User(t, st, "bob@example.com")
	f.home = testutil.Household(t, st, f.alice, f.bob)
	notifier := notify.NewService(st, testutil.Logger(), notify.WithClock(clock.Now))
	f.sched = NewScheduler(st, notifier, testutil.Logger(),
		WithClock(clock.Now),
		WithRefiller(f.refiller),
	)
	return f
}

func (f *fixture) notifications(t *testing.T, uid, typ string) []model.Notification {
	t.Helper()
	ns, _, err := f.st.Notifications.List(context.Background(), store.NotificationFilter{UserID: uid})
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	var out []model.Notification
	for _, n := range ns {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

func TestOverdueTasksNotifiedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bobID := f.bob.ID
	past := f.clock.Now().Add(-time.Hour)
	future := f.clock.Now().Add(time.Hour)

	overdue, err := f.st.Tasks.Create(ctx, model.Task{Title: "Mow lawn", CreatedBy: f.alice.ID, AssignedTo: &bobID, HouseholdID: f.home.ID, DueDate: &past})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := f.st.Tasks.Create(ctx, model.Task{Title: "Later", CreatedBy: f.alice.ID, AssignedTo: &bobID, HouseholdID: f.home.ID, DueDate: &future}); err != nil {
		t.Fatalf("create task: %v", err)
	}

	f.sched.Tick(ctx)
	f.sched.Tick(ctx)

	got := f.notifications(t, f.bob.ID, model.NotifTaskOverdue)
	if len(got) != 1 {
		t.Fatalf("overdue notifications = %d, want 1", len(got))
	}
	if got[0].ReferenceID != overdue.ID || got[0].Content != "Task overdue: Mow lawn" {
		t.Errorf("notification = %+v", got[0])
	}

	// The second task becomes overdue once the clock passes its due date.
	f.clock.Advance(2 * time.Hour)
	f.sched.Tick(ctx)
	if got := f.notifications(t, f.bob.ID, model.NotifTaskOverdue); len(got) != 2 {
		t.Errorf("overdue notifications after advance = %d, want 2", len(got))
	}
}

func TestUpcomingEventReminders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now()

	public, err := f.st.Events.Create(ctx, model.Event{Title: "Dinner", StartTime: now.Add(30 * time.Minute), HouseholdID: f.home.ID, UserID: f.alice.ID})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	if _, err := f.st.Events.Create(ctx, model.Event{Title: "Dentist", StartTime: now.Add(45 * time.Minute), Privacy: model.PrivacyPrivate, HouseholdID: f.home.ID, UserID: f.bob.ID}); err != nil {
		t.Fatalf("create event: %v", err)
	}
	if _, err := f.st.Events.Create(ctx, model.Event{Title: "Movie", StartTime: now.Add(3 * time.Hour), HouseholdID: f.home.ID, UserID: f.alice.ID}); err != nil {
		t.Fatalf("create event: %v", err)
	}

	f.sched.Tick(ctx)
	f.sched.Tick(ctx)

	alice := f.notifications(t, f.alice.ID, model.NotifEventReminder)
	if len(alice) != 1 || alice[0].ReferenceID != public.ID {
		t.Fatalf("alice reminders = %+v", alice)
	}
	if alice[0].Content != "Reminder: Dinner starts at 09:30" {
		t.Errorf("content = %q", alice[0].Content)
	}
	if bob := f.notifications(t, f.bob.ID, model.NotifEventReminder); len(bob) != 2 {
		t.Errorf("bob reminders = %d, want 2", len(bob))
	}

	stored, err := f.st.Events.GetByID(ctx, public.ID)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if stored.RemindedAt == nil {
		t.Error("reminded_at not set")
	}
}

func TestRefillOncePerDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.sched.Tick(ctx)
	f.clock.Advance(time.Hour)
	f.sched.Tick(ctx)
	if n := f.refiller.calls.Load(); n != 1 {
		t.Fatalf("refills = %d, want 1", n)
	}

	f.clock.Advance(24 * time.Hour)
	f.sched.Tick(ctx)
	if n := f.refiller.calls.Load(); n != 2 {
		t.Errorf("refills = %d, want 2", n)
	}
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)
	f.sched.interval = 10 * time.Millisecond

	f.sched.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for f.refiller.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	f.sched.Stop()

	if f.refiller.calls.Load() == 0 {
		t.Error("scheduler never ran a sweep")
	}
}
