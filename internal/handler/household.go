package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/hearth/internal/household"
	"github.com/dukerupert/hearth/internal/model"
)

type HouseholdHandler struct {
	households *household.Service
	logger     *slog.Logger
}

func NewHouseholdHandler(households *household.Service, logger *slog.Logger) *HouseholdHandler {
	return &HouseholdHandler{households: households, logger: logger}
}

type householdRequest struct {
	Name string `json:"name"`
}

// Create handles POST /api/households
func (h *HouseholdHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req householdRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	uh, err := h.households.Create(r.Context(), userID(r), req.Name)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, uh)
}

// List handles GET /api/households
func (h *HouseholdHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.households.ListForUser(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if list == nil {
		list = []model.UserHousehold{}
	}
	writeJSON(w, http.StatusOK, list)
}

// Active handles GET /api/households/active
func (h *HouseholdHandler) Active(w http.ResponseWriter, r *http.Request) {
	uh, err := h.households.Active(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, uh)
}

// Activate handles POST /api/households/{id}/activate
func (h *HouseholdHandler) Activate(w http.ResponseWriter, r *http.Request) {
	uh, err := h.households.Activate(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, uh)
}

// Get handles GET /api/households/{id}
func (h *HouseholdHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.households.Get(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Update handles PATCH /api/households/{id}
func (h *HouseholdHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req householdRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	hh, err := h.households.Update(r.Context(), userID(r), r.PathValue("id"), req.Name)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, hh)
}

// Delete handles DELETE /api/households/{id}
func (h *HouseholdHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.households.Delete(r.Context(), userID(r), r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Members handles GET /api/households/{id}/members
func (h *HouseholdHandler) Members(w http.ResponseWriter, r *http.Request) {
	members, err := h.households.Members(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if members == nil {
		members = []model.Member{}
	}
	writeJSON(w, http.StatusOK, members)
}

type roleRequest struct {
	Role model.Role `json:"role"`
}

// UpdateRole handles PATCH /api/households/{id}/members/{user_id}
func (h *HouseholdHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	m, err := h.households.UpdateRole(r.Context(), userID(r), r.PathValue("id"), r.PathValue("user_id"), req.Role)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// RemoveMember handles DELETE /api/households/{id}/members/{user_id}
func (h *HouseholdHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	if err := h.households.RemoveMember(r.Context(), userID(r), r.PathValue("id"), r.PathValue("user_id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateInvitation handles POST /api/households/{id}/invitations
func (h *HouseholdHandler) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	inv, err := h.households.CreateInvitation(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

type joinRequest struct {
	Code string `json:"invitation_code"`
}

// Join handles POST /api/households/join
func (h *HouseholdHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	uh, err := h.households.Join(r.Context(), userID(r), req.Code)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, uh)
}
