// Package reminder runs the periodic sweeps that turn time passing into
// notifications: overdue tasks, upcoming events and recurrence refills.
package reminder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/hearth/internal/model"
	"github.com/dukerupert/hearth/internal/notify"
	"github.com/dukerupert/hearth/internal/store"
)

const (
	defaultInterval = time.Minute
	eventLeadTime   = time.Hour
)

// Refiller tops up recurring task instances.
type Refiller interface {
	RefillHorizons(ctx context.Context) (int, error)
}

// Scheduler periodically sends overdue and upcoming-event notifications.
type Scheduler struct {
	mu       sync.RWMutex
	stores   *store.Stores
	notify   *notify.Service
	refiller Refiller
	logger   *slog.Logger
	now      func() time.Time
	interval time.Duration
	// lastRefill is the UTC day of the last successful horizon refill.
	lastRefill time.Time
	cancel     context.CancelFunc
	done       chan struct{}
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithInterval sets the tick period. Non-positive values keep the default.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithRefiller enables the daily recurrence refill.
func WithRefiller(r Refiller) Option {
	return func(s *Scheduler) { s.refiller = r }
}

func NewScheduler(stores *store.Stores, notifier *notify.Service, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		stores:   stores,
		notify:   notifier,
		logger:   logger,
		now:      time.Now,
		interval: defaultInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the scheduler loop. The first sweep runs immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.Tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
	s.logger.Info("reminder scheduler started", "interval", s.interval)
}

// Stop cancels the loop and waits for the current sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Tick runs one sweep. Failures are logged and retried on the next tick.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now().UTC()
	if n, err := s.overdueTasks(ctx, now); err != nil {
		s.logger.Error("reminder: overdue tasks", "error", err)
	} else if n > 0 {
		s.logger.Info("reminder: overdue tasks notified", "count", n)
	}
	if n, err := s.upcomingEvents(ctx, now); err != nil {
		s.logger.Error("reminder: upcoming events", "error", err)
	} else if n > 0 {
		s.logger.Info("reminder: events reminded", "count", n)
	}
	s.refill(ctx, now)
}

// overdueTasks notifies each assignee once per overdue task.
func (s *Scheduler) overdueTasks(ctx context.Context, now time.Time) (int, error) {
	tasks, err := s.stores.Tasks.ListOverdueUnnotified(ctx, now)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, t := range tasks {
		var pending *model.Notification
		err := s.stores.InTx(ctx, func(tx *store.Stores) error {
			hid := t.HouseholdID
			n, err := s.notify.Enqueue(ctx, tx, model.Notification{
				Type:          model.NotifTaskOverdue,
				Content:       "Task overdue: " + t.Title,
				UserID:        *t.AssignedTo,
				HouseholdID:   &hid,
				ReferenceType: "task",
				ReferenceID:   t.ID,
			})
			if err != nil {
				return err
			}
			pending = n
			return tx.Tasks.MarkOverdueNotified(ctx, t.ID, now)
		})
		if err != nil {
			s.logger.Error("reminder: notify overdue task", "task_id", t.ID, "error", err)
			continue
		}
		if pending != nil {
			s.notify.Deliver(ctx, pending)
		}
		count++
	}
	return count, nil
}

// upcomingEvents reminds everyone who can see an event starting within the
// next hour. Private events only reach their creator.
func (s *Scheduler) upcomingEvents(ctx context.Context, now time.Time) (int, error) {
	events, err := s.stores.Events.ListUpcomingUnreminded(ctx, now, now.Add(eventLeadTime))
	if err != nil {
		return 0, err
	}
	count := 0
	for _, e := range events {
		var pending []*model.Notification
		err := s.stores.InTx(ctx, func(tx *store.Stores) error {
			recipients := []string{e.UserID}
			if e.Privacy != model.PrivacyPrivate {
				ids, err := tx.Households.MemberIDs(ctx, e.HouseholdID)
				if err != nil {
					return err
				}
				recipients = ids
			}
			hid := e.HouseholdID
			ns, err := s.notify.EnqueueAll(ctx, tx, recipients, model.Notification{
				Type:          model.NotifEventReminder,
				Content:       "Reminder: " + e.Title + " starts at " + e.StartTime.UTC().Format("15:04"),
				HouseholdID:   &hid,
				ReferenceType: "event",
				ReferenceID:   e.ID,
			})
			if err != nil {
				return err
			}
			pending = ns
			return tx.Events.MarkReminded(ctx, e.ID, now)
		})
		if err != nil {
			s.logger.Error("reminder: notify upcoming event", "event_id", e.ID, "error", err)
			continue
		}
		s.notify.Deliver(ctx, pending...)
		count++
	}
	return count, nil
}

// refill runs the horizon refill at most once per UTC day.
func (s *Scheduler) refill(ctx context.Context, now time.Time) {
	if s.refiller == nil {
		return
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	s.mu.RLock()
	done := s.lastRefill.Equal(today)
	s.mu.RUnlock()
	if done {
		return
	}

	n, err := s.refiller.RefillHorizons(ctx)
	if err != nil {
		s.logger.Error("reminder: refill recurring tasks", "error", err)
		return
	}
	s.mu.Lock()
	s.lastRefill = today
	s.mu.Unlock()
	s.logger.Info("reminder: recurring tasks refilled", "created", n)
}
