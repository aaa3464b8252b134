package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/hearth/internal/calendar"
)

type CalendarHandler struct {
	calendar *calendar.Service
	logger   *slog.Logger
}

func NewCalendarHandler(svc *calendar.Service, logger *slog.Logger) *CalendarHandler {
	return &CalendarHandler{calendar: svc, logger: logger}
}

// Create handles POST /api/households/{id}/events
func (h *CalendarHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in calendar.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	e, err := h.calendar.Create(r.Context(), userID(r), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// List handles GET /api/households/{id}/events?start=&end=
func (h *CalendarHandler) List(w http.ResponseWriter, r *http.Request) {
	start, err := queryTime(r, "start")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	end, err := queryTime(r, "end")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	l, err := h.calendar.List(r.Context(), userID(r), r.PathValue("id"), calendar.ListParams{Start: start, End: end})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// Export handles GET /api/households/{id}/events/export.ics
func (h *CalendarHandler) Export(w http.ResponseWriter, r *http.Request) {
	body, err := h.calendar.ExportICS(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="household.ics"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

// Mine handles GET /api/users/me/events
func (h *CalendarHandler) Mine(w http.ResponseWriter, r *http.Request) {
	events, err := h.calendar.ListMine(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// Update handles PATCH /api/events/{id}
func (h *CalendarHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in calendar.UpdateInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	e, err := h.calendar.Update(r.Context(), userID(r), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// Delete handles DELETE /api/events/{id}
func (h *CalendarHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if _, err := h.calendar.Delete(r.Context(), userID(r), r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
