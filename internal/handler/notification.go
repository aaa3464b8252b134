package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/hearth/internal/notify"
)

// NotificationHandler serves the in-app feed, channel settings and push
// subscriptions.
type NotificationHandler struct {
	notify *notify.Service
	logger *slog.Logger
}

func NewNotificationHandler(svc *notify.Service, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{notify: svc, logger: logger}
}

// List handles GET /api/notifications?is_read=&household_id=&page=&per_page=
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage, err := pagination(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	isRead, err := queryBool(r, "is_read")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := h.notify.List(r.Context(), userID(r), notify.ListParams{
		IsRead:      isRead,
		HouseholdID: r.URL.Query().Get("household_id"),
		Page:        page,
		PerPage:     perPage,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// MarkRead handles POST /api/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.notify.MarkRead(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// MarkAllRead handles POST /api/notifications/read-all?household_id=
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.notify.MarkAllRead(r.Context(), userID(r), r.URL.Query().Get("household_id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

// UnreadCount handles GET /api/notifications/unread-count?household_id=
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.notify.UnreadCount(r.Context(), userID(r), r.URL.Query().Get("household_id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread_count": n})
}

// Delete handles DELETE /api/notifications/{id}
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.notify.Delete(r.Context(), userID(r), r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Settings handles GET /api/notifications/settings
func (h *NotificationHandler) Settings(w http.ResponseWriter, r *http.Request) {
	ns, err := h.notify.Settings(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ns)
}

// UpdateSettings handles PATCH /api/notifications/settings
func (h *NotificationHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var u notify.SettingsUpdate
	if err := decodeJSON(r, &u); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ns, err := h.notify.UpdateSettings(r.Context(), userID(r), u)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ns)
}

// VAPIDKey handles GET /api/push/vapid-key
func (h *NotificationHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.notify.VAPIDKey()})
}

// Subscribe handles POST /api/push/subscribe
func (h *NotificationHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req notify.SubscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	sub, err := h.notify.Subscribe(r.Context(), userID(r), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// ListSubscriptions handles GET /api/push/subscriptions
func (h *NotificationHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.notify.ListSubscriptions(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// Unsubscribe handles DELETE /api/push/subscriptions/{id}
func (h *NotificationHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	if err := h.notify.Unsubscribe(r.Context(), userID(r), r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
