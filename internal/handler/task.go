package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/hearth/internal/model"
	"github.com/dukerupert/hearth/internal/task"
)

type TaskHandler struct {
	tasks  *task.Service
	logger *slog.Logger
}

func NewTaskHandler(tasks *task.Service, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, logger: logger}
}

func listParams(r *http.Request) (task.ListParams, error) {
	page, perPage, err := pagination(r)
	if err != nil {
		return task.ListParams{}, err
	}
	q := r.URL.Query()
	return task.ListParams{
		Status:     q.Get("status"),
		AssignedTo: q.Get("assigned_to"),
		Frequency:  model.Frequency(q.Get("frequency")),
		Page:       page,
		PerPage:    perPage,
	}, nil
}

// Create handles POST /api/households/{id}/tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in task.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	t, err := h.tasks.Create(r.Context(), userID(r), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// List handles GET /api/households/{id}/tasks
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	p, err := listParams(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	page, err := h.tasks.List(r.Context(), userID(r), r.PathValue("id"), p)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// ListForUser handles GET /api/users/{id}/tasks
func (h *TaskHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	p, err := listParams(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	page, err := h.tasks.ListForUser(r.Context(), userID(r), r.PathValue("id"), p)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Get handles GET /api/tasks/{id}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.tasks.Get(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Update handles PATCH /api/tasks/{id}
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in task.UpdateInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	t, err := h.tasks.Update(r.Context(), userID(r), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Complete handles PATCH /api/tasks/{id}/complete
func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	res, err := h.tasks.Complete(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type swapRequest struct {
	NewAssigneeID string `json:"new_assignee_id"`
}

// Swap handles POST /api/tasks/{id}/swap
func (h *TaskHandler) Swap(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	t, err := h.tasks.Swap(r.Context(), userID(r), r.PathValue("id"), req.NewAssigneeID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Delete handles DELETE /api/tasks/{id}
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if _, err := h.tasks.Delete(r.Context(), userID(r), r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Streak handles GET /api/users/me/streak
func (h *TaskHandler) Streak(w http.ResponseWriter, r *http.Request) {
	n, err := h.tasks.Streak(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"streak": n})
}
