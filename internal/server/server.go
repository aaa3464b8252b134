// Package server assembles services, handlers and middleware into the HTTP
// router.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dukerupert/hearth/internal/account"
	"github.com/dukerupert/hearth/internal/auth"
	"github.com/dukerupert/hearth/internal/badge"
	"github.com/dukerupert/hearth/internal/calendar"
	"github.com/dukerupert/hearth/internal/chat"
	"github.com/dukerupert/hearth/internal/config"
	"github.com/dukerupert/hearth/internal/database"
	"github.com/dukerupert/hearth/internal/email"
	"github.com/dukerupert/hearth/internal/handler"
	"github.com/dukerupert/hearth/internal/household"
	"github.com/dukerupert/hearth/internal/middleware"
	"github.com/dukerupert/hearth/internal/notify"
	"github.com/dukerupert/hearth/internal/poll"
	"github.com/dukerupert/hearth/internal/presence"
	"github.com/dukerupert/hearth/internal/push"
	"github.com/dukerupert/hearth/internal/reminder"
	"github.com/dukerupert/hearth/internal/store"
	"github.com/dukerupert/hearth/internal/task"
	ws "github.com/dukerupert/hearth/internal/websocket"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	cfg         *config.Config
	db          *sql.DB
	rdb         *redis.Client
	hub         *ws.Hub
	router      *chat.Router
	notifier    *notify.Service
	scheduler   *reminder.Scheduler
	accounts    *account.Service
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger

	accountH      *handler.AccountHandler
	householdH    *handler.HouseholdHandler
	taskH         *handler.TaskHandler
	pollH         *handler.PollHandler
	messageH      *handler.MessageHandler
	calendarH     *handler.CalendarHandler
	badgeH        *handler.BadgeHandler
	notificationH *handler.NotificationHandler
}

// Option adjusts service construction, mainly for tests.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock makes every service read time from now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New builds the application. rdb may be nil, in which case presence and
// the token denylist stay in process memory.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client, logger *slog.Logger, opts ...Option) *Server {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	stores := store.New(db)
	tokens := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	invites := auth.NewInviteCodec(cfg.Invitation.Secret, cfg.Invitation.TTL)
	invites.SetClock(o.now)

	var denylist auth.Denylist
	var tracker presence.Tracker
	if rdb != nil {
		denylist = auth.NewRedisDenylist(rdb)
		tracker = presence.NewRedis(rdb)
	} else {
		denylist = auth.NewMemoryDenylist()
		tracker = presence.NewMemory()
	}

	mailer := email.NewClient(cfg.Email.PostmarkToken, cfg.Email.From, cfg.Server.BaseURL)
	pusher := push.NewService(cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey, cfg.Email.From)
	notifier := notify.NewService(stores, logger.With("component", "notify"),
		notify.WithMailer(mailer),
		notify.WithPusher(pusher),
		notify.WithClock(o.now),
	)

	audience := chat.Absent(tracker)
	accounts := account.NewService(stores, tokens, denylist, logger.With("component", "account"))
	badges := badge.NewService(stores, notifier, logger.With("component", "badge"), badge.WithClock(o.now))
	tasks := task.NewService(stores, notifier, logger.With("component", "task"), task.WithClock(o.now), task.WithBadgeChecker(badges))
	polls := poll.NewService(stores, notifier, logger.With("component", "poll"), poll.WithClock(o.now), poll.WithAudience(audience))
	chatSvc := chat.NewService(stores, notifier, logger.With("component", "chat"), chat.WithClock(o.now), chat.WithAudience(audience))
	calendarSvc := calendar.NewService(stores, notifier, logger.With("component", "calendar"), calendar.WithClock(o.now))

	hub := ws.NewHub(logger.With("component", "websocket"))
	router := chat.NewRouter(hub, chatSvc, polls, tracker, accounts, logger.With("component", "chat_router"))
	households := household.NewService(stores, invites, notifier, logger.With("component", "household"),
		household.WithClock(o.now),
		household.WithObserver(router),
	)

	scheduler := reminder.NewScheduler(stores, notifier, logger.With("component", "reminder"),
		reminder.WithClock(o.now),
		reminder.WithInterval(cfg.Reminder.Interval),
		reminder.WithRefiller(tasks),
	)

	return &Server{
		cfg:         cfg,
		db:          db,
		rdb:         rdb,
		hub:         hub,
		router:      router,
		notifier:    notifier,
		scheduler:   scheduler,
		accounts:    accounts,
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,

		accountH:      handler.NewAccountHandler(accounts, logger.With("component", "account_handler")),
		householdH:    handler.NewHouseholdHandler(households, logger.With("component", "household_handler")),
		taskH:         handler.NewTaskHandler(tasks, logger.With("component", "task_handler")),
		pollH:         handler.NewPollHandler(polls, hub, logger.With("component", "poll_handler")),
		messageH:      handler.NewMessageHandler(chatSvc, hub, logger.With("component", "message_handler")),
		calendarH:     handler.NewCalendarHandler(calendarSvc, logger.With("component", "calendar_handler")),
		badgeH:        handler.NewBadgeHandler(badges, logger.With("component", "badge_handler")),
		notificationH: handler.NewNotificationHandler(notifier, logger.With("component", "notification_handler")),
	}
}

// Scheduler returns the reminder scheduler for the caller to start and stop.
func (s *Server) Scheduler() *reminder.Scheduler {
	return s.scheduler
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// Drain waits for background notification delivery to finish.
func (s *Server) Drain() {
	s.notifier.Wait()
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /ws", ws.Handler(s.hub, s.router, ws.Options{
		PingInterval:   s.cfg.WebSocket.PingInterval,
		PingTimeout:    s.cfg.WebSocket.PingTimeout,
		OriginPatterns: originPatterns(s.cfg.Server.AllowedOrigins),
	}, s.logger.With("component", "websocket")))

	// Public auth routes
	mux.Handle("POST /api/auth/register", s.rateLimited(s.accountH.Register))
	mux.Handle("POST /api/auth/login", s.rateLimited(s.accountH.Login))
	mux.Handle("POST /api/auth/refresh", s.rateLimited(s.accountH.Refresh))
	mux.HandleFunc("POST /api/auth/logout", s.accountH.Logout)

	s.registerProtectedRoutes(mux)

	c := cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	var h http.Handler = mux
	h = c(h)
	h = chimw.Recoverer(h)
	h = middleware.RequestLogger(s.logger.With("component", "http"))(h)
	if s.cfg.Server.TrustProxy {
		h = chimw.RealIP(h)
	}
	h = chimw.RequestID(h)
	return h
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	requireAuth := middleware.RequireAuth(s.accounts)
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, requireAuth(h))
	}

	// Account
	handle("GET /api/auth/profile", s.accountH.Profile)
	handle("PATCH /api/auth/profile", s.accountH.UpdateProfile)
	handle("PATCH /api/auth/preferences", s.accountH.UpdatePreferences)

	// Households
	handle("POST /api/households", s.householdH.Create)
	handle("GET /api/households", s.householdH.List)
	handle("GET /api/households/active", s.householdH.Active)
	handle("POST /api/households/join", s.householdH.Join)
	handle("GET /api/households/{id}", s.householdH.Get)
	handle("PATCH /api/households/{id}", s.householdH.Update)
	handle("DELETE /api/households/{id}", s.householdH.Delete)
	handle("POST /api/households/{id}/activate", s.householdH.Activate)
	handle("GET /api/households/{id}/members", s.householdH.Members)
	handle("PATCH /api/households/{id}/members/{user_id}", s.householdH.UpdateRole)
	handle("DELETE /api/households/{id}/members/{user_id}", s.householdH.RemoveMember)
	handle("POST /api/households/{id}/invitations", s.householdH.CreateInvitation)

	// Tasks
	handle("POST /api/households/{id}/tasks", s.taskH.Create)
	handle("GET /api/households/{id}/tasks", s.taskH.List)
	handle("GET /api/tasks/{id}", s.taskH.Get)
	handle("PATCH /api/tasks/{id}", s.taskH.Update)
	handle("PATCH /api/tasks/{id}/complete", s.taskH.Complete)
	handle("POST /api/tasks/{id}/swap", s.taskH.Swap)
	handle("DELETE /api/tasks/{id}", s.taskH.Delete)
	handle("GET /api/users/me/streak", s.taskH.Streak)
	handle("GET /api/users/{id}/tasks", s.taskH.ListForUser)

	// Chat
	handle("GET /api/households/{id}/messages", s.messageH.List)
	handle("POST /api/households/{id}/messages", s.messageH.Send)
	handle("PATCH /api/messages/{id}", s.messageH.Edit)
	handle("DELETE /api/messages/{id}", s.messageH.Delete)

	// Polls
	handle("POST /api/households/{id}/polls", s.pollH.Create)
	handle("GET /api/households/{id}/polls", s.pollH.List)
	handle("GET /api/polls/{id}", s.pollH.Get)
	handle("POST /api/polls/{id}/vote", s.pollH.Vote)
	handle("DELETE /api/polls/{id}", s.pollH.Delete)

	// Calendar
	handle("POST /api/households/{id}/events", s.calendarH.Create)
	handle("GET /api/households/{id}/events", s.calendarH.List)
	handle("GET /api/households/{id}/events/export.ics", s.calendarH.Export)
	handle("PATCH /api/events/{id}", s.calendarH.Update)
	handle("DELETE /api/events/{id}", s.calendarH.Delete)
	handle("GET /api/users/me/events", s.calendarH.Mine)

	// Badges and analytics
	handle("GET /api/badges", s.badgeH.Catalog)
	handle("POST /api/badges", s.badgeH.Create)
	handle("GET /api/users/me/badges", s.badgeH.Mine)
	handle("POST /api/users/me/badges/check", s.badgeH.Check)
	handle("GET /api/users/me/badges/progress", s.badgeH.Progress)
	handle("GET /api/users/{id}/badges", s.badgeH.ForUser)
	handle("GET /api/households/{id}/badges", s.badgeH.Household)
	handle("POST /api/households/{id}/badges/award", s.badgeH.Award)
	handle("GET /api/households/{id}/leaderboard", s.badgeH.Leaderboard)
	handle("GET /api/households/{id}/analytics", s.badgeH.Analytics)

	// Notifications
	handle("GET /api/notifications", s.notificationH.List)
	handle("GET /api/notifications/unread-count", s.notificationH.UnreadCount)
	handle("POST /api/notifications/read-all", s.notificationH.MarkAllRead)
	handle("GET /api/notifications/settings", s.notificationH.Settings)
	handle("PATCH /api/notifications/settings", s.notificationH.UpdateSettings)
	handle("POST /api/notifications/{id}/read", s.notificationH.MarkRead)
	handle("DELETE /api/notifications/{id}", s.notificationH.Delete)

	// Push subscriptions
	handle("GET /api/push/vapid-key", s.notificationH.VAPIDKey)
	handle("POST /api/push/subscribe", s.notificationH.Subscribe)
	handle("GET /api/push/subscriptions", s.notificationH.ListSubscriptions)
	handle("DELETE /api/push/subscriptions/{id}", s.notificationH.Unsubscribe)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok", "database": "ok"}
	code := http.StatusOK
	if err := database.Ping(ctx, s.db); err != nil {
		s.logger.Error("health: database", "error", err)
		status["status"], status["database"] = "unavailable", "error"
		code = http.StatusServiceUnavailable
	}
	if s.rdb != nil {
		status["redis"] = "ok"
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			s.logger.Error("health: redis", "error", err)
			status["status"], status["redis"] = "unavailable", "error"
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

func (s *Server) rateLimited(h http.HandlerFunc) http.Handler {
	rl := middleware.RateLimit(s.rateLimiter, middleware.RemoteIP, s.cfg.RateLimit.Requests, s.cfg.RateLimit.Window)
	return rl(h)
}

// originPatterns turns CORS origins into the host patterns the WebSocket
// origin check expects.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			out = append(out, "*")
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, strings.TrimSuffix(o, "/"))
	}
	return out
}
