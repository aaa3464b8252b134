package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/hearth/internal/badge"
	"github.com/dukerupert/hearth/internal/model"
)

type BadgeHandler struct {
	badges *badge.Service
	logger *slog.Logger
}

func NewBadgeHandler(badges *badge.Service, logger *slog.Logger) *BadgeHandler {
	return &BadgeHandler{badges: badges, logger: logger}
}

// Catalog handles GET /api/badges
func (h *BadgeHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	badges, err := h.badges.Catalog(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, badges)
}

// Create handles POST /api/badges
func (h *BadgeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in badge.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	b, err := h.badges.Create(r.Context(), userID(r), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// Mine handles GET /api/users/me/badges
func (h *BadgeHandler) Mine(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	badges, err := h.badges.ForUser(r.Context(), uid, uid)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, badges)
}

// ForUser handles GET /api/users/{id}/badges
func (h *BadgeHandler) ForUser(w http.ResponseWriter, r *http.Request) {
	badges, err := h.badges.ForUser(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, badges)
}

// Check handles POST /api/users/me/badges/check
func (h *BadgeHandler) Check(w http.ResponseWriter, r *http.Request) {
	awarded, err := h.badges.Check(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if awarded == nil {
		awarded = []model.Badge{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"new_badges": awarded})
}

// Progress handles GET /api/users/me/badges/progress
func (h *BadgeHandler) Progress(w http.ResponseWriter, r *http.Request) {
	items, err := h.badges.Progress(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// Household handles GET /api/households/{id}/badges
func (h *BadgeHandler) Household(w http.ResponseWriter, r *http.Request) {
	badges, err := h.badges.ForHousehold(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, badges)
}

type awardRequest struct {
	UserID  string `json:"user_id"`
	BadgeID string `json:"badge_id"`
}

// Award handles POST /api/households/{id}/badges/award
func (h *BadgeHandler) Award(w http.ResponseWriter, r *http.Request) {
	var req awardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ub, err := h.badges.Award(r.Context(), userID(r), req.UserID, req.BadgeID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, ub)
}

// Leaderboard handles GET /api/households/{id}/leaderboard
func (h *BadgeHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.badges.Leaderboard(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// Analytics handles GET /api/households/{id}/analytics
func (h *BadgeHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	a, err := h.badges.Analytics(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
