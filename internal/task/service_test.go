package task

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dukerupert/hearth/internal/apperr"
	"github.com/dukerupert/hearth/internal/database"
	"github.com/dukerupert/hearth/internal/model"
	"github.com/dukerupert/hearth/internal/notify"
	"github.com/dukerupert/hearth/internal/store"
	"github.com/dukerupert/hearth/internal/testutil"
)

type fixture struct {
	st    *store.Stores
	svc   *Service
	clock *testutil.Clock
	alice *model.User // admin, joined first
	bob   *model.User
	carol *model.User
	home  *model.Household
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := testutil.Stores(t)
	clock := testutil.NewClock(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	f := &fixture{st: st, clock: clock}
	f.alice = testutil.User(t, st, "alice@example.com")
	f.bob = testutil.User(t, st, "bob@example.com")
	f.carol = testutil.User(t, st, "carol@example.com")
	f.home = testutil.Household(t, st, f.alice, f.bob, f.carol)
	notifier := notify.NewService(st, testutil.Logger(), notify.WithClock(clock.Now))
	f.svc = NewService(st, notifier, testutil.Logger(), WithClock(clock.Now))
	return f
}

func (f *fixture) create(t *testing.T, by *model.User, in CreateInput) *model.Task {
	t.Helper()
	if in.Title == "" {
		in.Title = "Dishes"
	}
	task, err := f.svc.Create(context.Background(), by.ID, f.home.ID, in)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func assignee(task *model.Task) string {
	if task.AssignedTo == nil {
		return ""
	}
	return *task.AssignedTo
}

func TestCreateRoundRobin(t *testing.T) {
	f := newFixture(t)

	want := []string{f.alice.ID, f.bob.ID, f.carol.ID, f.alice.ID}
	for i, w := range want {
		task := f.create(t, f.alice, CreateInput{})
		if got := assignee(task); got != w {
			t.Errorf("task %d assigned to %q, want %q", i, got, w)
		}
	}

	// preferred member wins, rotation continues after them
	task := f.create(t, f.alice, CreateInput{PreferredAssignee: f.carol.ID})
	if assignee(task) != f.carol.ID {
		t.Errorf("preferred assignee = %q, want carol", assignee(task))
	}
	task = f.create(t, f.alice, CreateInput{})
	if assignee(task) != f.alice.ID {
		t.Errorf("after carol = %q, want alice", assignee(task))
	}

	// non-member preference falls back to rotation
	task = f.create(t, f.alice, CreateInput{PreferredAssignee: "stranger"})
	if assignee(task) != f.bob.ID {
		t.Errorf("fallback = %q, want bob", assignee(task))
	}
}

func TestCreateNotifiesAssignee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.create(t, f.alice, CreateInput{PreferredAssignee: f.bob.ID})
	f.create(t, f.alice, CreateInput{PreferredAssignee: f.alice.ID})

	count, err := f.st.Notifications.UnreadCount(ctx, f.bob.ID, "")
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if count != 1 {
		t.Errorf("bob notifications = %d, want 1", count)
	}
	count, err = f.st.Notifications.UnreadCount(ctx, f.alice.ID, "")
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if count != 0 {
		t.Errorf("self-assignment notified alice %d times", count)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	outsider := testutil.User(t, f.st, "dave@example.com")

	tests := []struct {
		name string
		user *model.User
		in   CreateInput
		kind apperr.Kind
	}{
		{"blank title", f.alice, CreateInput{Title: "  "}, apperr.KindValidation},
		{"bad frequency", f.alice, CreateInput{Title: "x", Frequency: "hourly"}, apperr.KindValidation},
		{"recurring without interval", f.alice, CreateInput{Title: "x", IsRecurring: true}, apperr.KindValidation},
		{"not a member", outsider, CreateInput{Title: "x"}, apperr.KindForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.user.ID, f.home.ID, tt.in)
			if !apperr.Is(err, tt.kind) {
				t.Errorf("err = %v, want %v", err, tt.kind)
			}
		})
	}
}

func childDueDates(t *testing.T, f *fixture, parentID string) []time.Time {
	t.Helper()
	dates, err := f.st.Tasks.ChildDueDates(context.Background(), parentID)
	if err != nil {
		t.Fatalf("child due dates: %v", err)
	}
	return dates
}

func TestRecurrenceGeneration(t *testing.T) {
	f := newFixture(t)
	due := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	parent := f.create(t, f.alice, CreateInput{
		Frequency:    model.FrequencyWeekly,
		DueDate:      &due,
		IsRecurring:  true,
		IntervalDays: 7,
	})

	dates := childDueDates(t, f, parent.ID)
	// 7-day steps strictly inside the 180-day horizon
	if len(dates) != 25 {
		t.Fatalf("instances = %d, want 25", len(dates))
	}
	if !dates[0].Equal(due.AddDate(0, 0, 7)) {
		t.Errorf("first instance = %v", dates[0])
	}
	if last := dates[len(dates)-1]; !last.Before(f.clock.Now().Add(Horizon)) {
		t.Errorf("last instance %v beyond horizon", last)
	}

	// generation is idempotent
	n, err := f.svc.RefillHorizons(context.Background())
	if err != nil {
		t.Fatalf("refill: %v", err)
	}
	if n != 0 {
		t.Errorf("refill created %d, want 0", n)
	}

	f.clock.Advance(14 * 24 * time.Hour)
	n, err = f.svc.RefillHorizons(context.Background())
	if err != nil {
		t.Fatalf("refill: %v", err)
	}
	if n != 2 {
		t.Errorf("refill after two weeks created %d, want 2", n)
	}
}

func TestRecurrenceRespectsEndDate(t *testing.T) {
	f := newFixture(t)
	due := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 29, 9, 0, 0, 0, time.UTC)

	parent := f.create(t, f.alice, CreateInput{
		DueDate:      &due,
		IsRecurring:  true,
		IntervalDays: 7,
		EndDate:      &end,
	})
	dates := childDueDates(t, f, parent.ID)
	if len(dates) != 4 {
		t.Fatalf("instances = %v, want 4 ending on end date", dates)
	}
	if !dates[3].Equal(end) {
		t.Errorf("last instance = %v, want %v", dates[3], end)
	}
}

func TestRecurringInstancesRotate(t *testing.T) {
	f := newFixture(t)
	due := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 3, 9, 0, 0, 0, time.UTC)

	parent := f.create(t, f.alice, CreateInput{DueDate: &due, IsRecurring: true, IntervalDays: 1, EndDate: &end})
	page, err := f.svc.List(context.Background(), f.alice.ID, f.home.ID, ListParams{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Tasks) != 3 {
		t.Fatalf("tasks = %d, want parent + 2 instances", len(page.Tasks))
	}
	want := []string{f.alice.ID, f.bob.ID, f.carol.ID}
	for i, task := range page.Tasks {
		if assignee(&task) != want[i] {
			t.Errorf("task %d assigned to %q, want %q", i, assignee(&task), want[i])
		}
	}
	if page.Tasks[1].ParentTaskID == nil || *page.Tasks[1].ParentTaskID != parent.ID {
		t.Errorf("instance parent = %v", page.Tasks[1].ParentTaskID)
	}
}

func TestComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task := f.create(t, f.alice, CreateInput{PreferredAssignee: f.bob.ID})

	if _, err := f.svc.Complete(ctx, f.carol.ID, task.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("non-assignee complete: err = %v, want forbidden", err)
	}

	res, err := f.svc.Complete(ctx, f.bob.ID, task.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !res.Task.Completed || res.Task.CompletedAt == nil {
		t.Errorf("task = %+v, want completed", res.Task)
	}
	if res.Task.Status != model.TaskCompleted {
		t.Errorf("status = %q", res.Task.Status)
	}
	if res.Streak != 1 {
		t.Errorf("streak = %d, want 1", res.Streak)
	}
	firstCompletion := *res.Task.CompletedAt

	f.clock.Advance(time.Hour)
	if _, err := f.svc.Complete(ctx, f.bob.ID, task.ID); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("second complete: err = %v, want conflict", err)
	}
	again, err := f.svc.Get(ctx, f.bob.ID, task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !again.CompletedAt.Equal(firstCompletion) {
		t.Errorf("completed_at changed to %v", again.CompletedAt)
	}

	// creator is told about the completion
	count, err := f.st.Notifications.UnreadCount(ctx, f.alice.ID, f.home.ID)
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if count != 1 {
		t.Errorf("creator notifications = %d, want 1", count)
	}
}

func TestCompleteStreakAcrossDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var streak int
	for i := 0; i < 3; i++ {
		task := f.create(t, f.alice, CreateInput{PreferredAssignee: f.bob.ID})
		res, err := f.svc.Complete(ctx, f.bob.ID, task.ID)
		if err != nil {
			t.Fatalf("complete: %v", err)
		}
		streak = res.Streak
		f.clock.Advance(24 * time.Hour)
	}
	if streak != 3 {
		t.Errorf("streak = %d, want 3", streak)
	}
}

type countingChecker struct{ calls []string }

func (c *countingChecker) Check(ctx context.Context, userID string) ([]model.Badge, error) {
	c.calls = append(c.calls, userID)
	return nil, nil
}

func TestCompleteChecksBadges(t *testing.T) {
	f := newFixture(t)
	checker := &countingChecker{}
	f.svc.SetBadgeChecker(checker)

	task := f.create(t, f.alice, CreateInput{PreferredAssignee: f.alice.ID})
	if _, err := f.svc.Complete(context.Background(), f.alice.ID, task.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(checker.calls) != 1 || checker.calls[0] != f.alice.ID {
		t.Errorf("badge checks = %v", checker.calls)
	}
}

func TestCompleteInstanceRefillsParent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	due := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	parent := f.create(t, f.alice, CreateInput{DueDate: &due, IsRecurring: true, IntervalDays: 30})
	before := len(childDueDates(t, f, parent.ID))

	f.clock.Advance(40 * 24 * time.Hour)
	page, err := f.svc.List(ctx, f.alice.ID, f.home.ID, ListParams{Status: "overdue"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var instance *model.Task
	for i := range page.Tasks {
		if page.Tasks[i].ParentTaskID != nil {
			instance = &page.Tasks[i]
			break
		}
	}
	if instance == nil {
		t.Fatal("expected an overdue instance")
	}
	if _, err := f.svc.Complete(ctx, *instance.AssignedTo, instance.ID); err != nil {
		t.Fatalf("complete instance: %v", err)
	}
	if after := len(childDueDates(t, f, parent.ID)); after <= before {
		t.Errorf("instances after completion = %d, want more than %d", after, before)
	}
}

func TestSwapAndUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	outsider := testutil.User(t, f.st, "dave@example.com")

	task := f.create(t, f.alice, CreateInput{PreferredAssignee: f.alice.ID})

	if _, err := f.svc.Swap(ctx, f.alice.ID, task.ID, outsider.ID); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("swap to outsider: err = %v, want validation", err)
	}
	swapped, err := f.svc.Swap(ctx, f.alice.ID, task.ID, f.carol.ID)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if assignee(swapped) != f.carol.ID {
		t.Errorf("assignee = %q, want carol", assignee(swapped))
	}
	count, _ := f.st.Notifications.UnreadCount(ctx, f.carol.ID, "")
	if count != 1 {
		t.Errorf("carol notifications = %d, want 1", count)
	}

	title := "Wash dishes"
	updated, err := f.svc.Update(ctx, f.bob.ID, task.ID, UpdateInput{Title: &title})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != title || assignee(updated) != f.carol.ID {
		t.Errorf("updated = %+v", updated)
	}

	if _, err := f.svc.Get(ctx, outsider.ID, task.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("outsider get: err = %v, want forbidden", err)
	}
	if _, err := f.svc.Get(ctx, f.alice.ID, "missing"); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("missing get: err = %v, want not found", err)
	}
}

func TestDeletePermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	byBob := f.create(t, f.bob, CreateInput{})
	if _, err := f.svc.Delete(ctx, f.carol.ID, byBob.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("member delete: err = %v, want forbidden", err)
	}
	if _, err := f.svc.Delete(ctx, f.bob.ID, byBob.ID); err != nil {
		t.Errorf("creator delete: %v", err)
	}

	byCarol := f.create(t, f.carol, CreateInput{})
	if _, err := f.svc.Delete(ctx, f.alice.ID, byCarol.ID); err != nil {
		t.Errorf("admin delete: %v", err)
	}
}

func TestDeleteParentKeepsInstances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	due := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 3, 9, 0, 0, 0, time.UTC)

	parent := f.create(t, f.alice, CreateInput{DueDate: &due, IsRecurring: true, IntervalDays: 1, EndDate: &end})
	if _, err := f.svc.Delete(ctx, f.alice.ID, parent.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	rule, err := f.st.Tasks.RuleForTask(ctx, parent.ID)
	if err != nil {
		t.Fatalf("rule: %v", err)
	}
	if rule != nil {
		t.Error("expected rule removed with parent")
	}
	page, err := f.svc.List(ctx, f.alice.ID, f.home.ID, ListParams{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Tasks) != 2 {
		t.Fatalf("remaining tasks = %d, want 2", len(page.Tasks))
	}
	for _, task := range page.Tasks {
		if task.ParentTaskID != nil {
			t.Errorf("instance %s still linked to deleted parent", task.ID)
		}
	}
}

func TestListFiltersAndPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	past := time.Date(2025, 12, 30, 9, 0, 0, 0, time.UTC)
	future := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	f.create(t, f.alice, CreateInput{Title: "overdue", DueDate: &past, PreferredAssignee: f.bob.ID})
	f.create(t, f.alice, CreateInput{Title: "later", DueDate: &future, PreferredAssignee: f.bob.ID})
	for i := 0; i < 11; i++ {
		f.create(t, f.alice, CreateInput{Title: "open", PreferredAssignee: f.carol.ID})
	}

	page, err := f.svc.List(ctx, f.alice.ID, f.home.ID, ListParams{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Tasks) != 10 || page.Pagination.Total != 13 || page.Pagination.Pages != 2 {
		t.Errorf("default page: %d tasks, pagination %+v", len(page.Tasks), page.Pagination)
	}
	if page.Tasks[0].Title != "overdue" || page.Tasks[1].Title != "later" {
		t.Errorf("order: %q, %q; want due dates first", page.Tasks[0].Title, page.Tasks[1].Title)
	}

	page, err = f.svc.List(ctx, f.alice.ID, f.home.ID, ListParams{Status: "overdue"})
	if err != nil {
		t.Fatalf("list overdue: %v", err)
	}
	if len(page.Tasks) != 1 || page.Tasks[0].Status != model.TaskOverdue {
		t.Errorf("overdue = %+v", page.Tasks)
	}

	page, err = f.svc.List(ctx, f.alice.ID, f.home.ID, ListParams{AssignedTo: f.bob.ID})
	if err != nil {
		t.Fatalf("list assigned: %v", err)
	}
	if page.Pagination.Total != 2 {
		t.Errorf("bob's tasks = %d, want 2", page.Pagination.Total)
	}

	if _, err := f.svc.List(ctx, f.alice.ID, f.home.ID, ListParams{Status: "later"}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("bad status: err = %v, want validation", err)
	}

	mine, err := f.svc.ListForUser(ctx, f.carol.ID, f.carol.ID, ListParams{PerPage: 100})
	if err != nil {
		t.Fatalf("list for user: %v", err)
	}
	if mine.Pagination.Total != 11 {
		t.Errorf("carol's tasks = %d, want 11", mine.Pagination.Total)
	}
	if _, err := f.svc.ListForUser(ctx, f.bob.ID, f.carol.ID, ListParams{}); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("list other user: err = %v, want forbidden", err)
	}
}

func childDue(t *testing.T, f *fixture, parentID string, due time.Time) *model.Task {
	t.Helper()
	tasks, _, err := f.st.Tasks.List(context.Background(), store.TaskFilter{HouseholdID: f.home.ID})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	for i := range tasks {
		c := &tasks[i]
		if c.ParentTaskID != nil && *c.ParentTaskID == parentID && c.DueDate != nil && c.DueDate.Equal(due) {
			return c
		}
	}
	t.Fatalf("no instance of %s due %v", parentID, due)
	return nil
}

func assertDates(t *testing.T, got []time.Time, want ...time.Time) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("dates = %v, want %v", got, want)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRecurrenceEndBetweenSteps(t *testing.T) {
	f := newFixture(t)
	due := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	end := due.AddDate(0, 0, 20)

	parent := f.create(t, f.alice, CreateInput{DueDate: &due, IsRecurring: true, IntervalDays: 7, EndDate: &end})
	assertDates(t, childDueDates(t, f, parent.ID), due.AddDate(0, 0, 7), due.AddDate(0, 0, 14))
}

func TestRefillKeepsMovedAndDeletedInstances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	due := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	end := due.AddDate(0, 0, 14)
	jan8, jan9, jan15 := due.AddDate(0, 0, 7), due.AddDate(0, 0, 8), due.AddDate(0, 0, 14)

	parent := f.create(t, f.alice, CreateInput{DueDate: &due, IsRecurring: true, IntervalDays: 7, EndDate: &end})
	assertDates(t, childDueDates(t, f, parent.ID), jan8, jan15)

	moved := childDue(t, f, parent.ID, jan8)
	if _, err := f.svc.Update(ctx, f.alice.ID, moved.ID, UpdateInput{DueDate: &jan9}); err != nil {
		t.Fatalf("update: %v", err)
	}
	n, err := f.svc.RefillHorizons(ctx)
	if err != nil {
		t.Fatalf("refill: %v", err)
	}
	if n != 0 {
		t.Errorf("refill after move created %d, want 0", n)
	}
	assertDates(t, childDueDates(t, f, parent.ID), jan9, jan15)

	gone := childDue(t, f, parent.ID, jan15)
	if _, err := f.svc.Delete(ctx, f.alice.ID, gone.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, err = f.svc.RefillHorizons(ctx); err != nil {
		t.Fatalf("refill: %v", err)
	}
	if n != 0 {
		t.Errorf("refill after delete created %d, want 0", n)
	}
	assertDates(t, childDueDates(t, f, parent.ID), jan9)
}

func TestRefillCountsOnlyCommittedInstances(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	st := store.New(db)

	clock := testutil.NewClock(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	alice := testutil.User(t, st, "alice@example.com")
	home := testutil.Household(t, st, alice)
	notifier := notify.NewService(st, testutil.Logger(), notify.WithClock(clock.Now))
	svc := NewService(st, notifier, testutil.Logger(), WithClock(clock.Now))

	due := clock.Now()
	parent, err := svc.Create(ctx, alice.ID, home.ID, CreateInput{Title: "Bins", DueDate: &due, IsRecurring: true, IntervalDays: 7})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	before, err := st.Tasks.ChildDueDates(ctx, parent.ID)
	if err != nil {
		t.Fatalf("child due dates: %v", err)
	}

	// Let two more instances in, then abort the third.
	_, err = db.Exec(fmt.Sprintf(`CREATE TRIGGER cap_instances BEFORE INSERT ON tasks
		WHEN (SELECT COUNT(*) FROM tasks WHERE parent_task_id = NEW.parent_task_id) >= %d
		BEGIN SELECT RAISE(ABORT, 'instance cap'); END`, len(before)+2))
	if err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	clock.Advance(28 * 24 * time.Hour)
	n, err := svc.RefillHorizons(ctx)
	if err == nil {
		t.Fatal("refill succeeded, want trigger abort")
	}
	if n != 0 {
		t.Errorf("refill reported %d created, want 0 after rollback", n)
	}
	after, err := st.Tasks.ChildDueDates(ctx, parent.ID)
	if err != nil {
		t.Fatalf("child due dates: %v", err)
	}
	if len(after) != len(before) {
		t.Errorf("instances = %d, want %d", len(after), len(before))
	}
	rule, err := st.Tasks.RuleForTask(ctx, parent.ID)
	if err != nil {
		t.Fatalf("rule: %v", err)
	}
	if rule.GeneratedThrough != len(before) {
		t.Errorf("generated through = %d, want %d", rule.GeneratedThrough, len(before))
	}
}

func TestStreakOutlivesIdleDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for range 3 {
		task := f.create(t, f.alice, CreateInput{PreferredAssignee: f.alice.ID})
		if _, err := f.svc.Complete(ctx, f.alice.ID, task.ID); err != nil {
			t.Fatalf("complete: %v", err)
		}
		f.clock.Advance(24 * time.Hour)
	}
	f.clock.Advance(10 * 24 * time.Hour)

	got, err := f.svc.Streak(ctx, f.alice.ID)
	if err != nil {
		t.Fatalf("streak: %v", err)
	}
	if got != 3 {
		t.Errorf("streak = %d, want 3", got)
	}
}
