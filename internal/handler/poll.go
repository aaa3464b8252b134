package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/hearth/internal/chat"
	"github.com/dukerupert/hearth/internal/poll"
	"github.com/dukerupert/hearth/internal/websocket"
)

// PollHandler serves polls over REST and mirrors changes to the household room.
type PollHandler struct {
	polls  *poll.Service
	hub    Broadcaster
	logger *slog.Logger
}

func NewPollHandler(polls *poll.Service, hub Broadcaster, logger *slog.Logger) *PollHandler {
	return &PollHandler{polls: polls, hub: hub, logger: logger}
}

// Create handles POST /api/households/{id}/polls
func (h *PollHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in poll.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	v, err := h.polls.Create(r.Context(), userID(r), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.hub.Broadcast(v.HouseholdID, websocket.Event{Event: chat.EventNewPoll, Data: v}, nil)
	writeJSON(w, http.StatusCreated, v)
}

// List handles GET /api/households/{id}/polls
func (h *PollHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage, err := pagination(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := h.polls.List(r.Context(), userID(r), r.PathValue("id"), r.URL.Query().Get("status"), page, perPage)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Get handles GET /api/polls/{id}
func (h *PollHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.polls.Get(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type voteRequest struct {
	Option string `json:"option"`
}

// Vote handles POST /api/polls/{id}/vote
func (h *PollHandler) Vote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	uid := userID(r)
	v, err := h.polls.Vote(r.Context(), uid, r.PathValue("id"), req.Option)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.hub.Broadcast(v.HouseholdID, websocket.Event{Event: chat.EventPollUpdate, Data: chat.NewPollUpdate(v, uid)}, nil)
	writeJSON(w, http.StatusOK, v)
}

// Delete handles DELETE /api/polls/{id}
func (h *PollHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, err := h.polls.Delete(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.hub.Broadcast(p.HouseholdID, websocket.Event{
		Event: chat.EventPollDeleted,
		Data:  map[string]string{"id": p.ID, "household_id": p.HouseholdID},
	}, nil)
	w.WriteHeader(http.StatusNoContent)
}
