package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/hearth/internal/chat"
	"github.com/dukerupert/hearth/internal/websocket"
)

// MessageHandler is the REST side of household chat. Every change is also
// broadcast to the household's WebSocket room.
type MessageHandler struct {
	chat   *chat.Service
	hub    Broadcaster
	logger *slog.Logger
}

func NewMessageHandler(svc *chat.Service, hub Broadcaster, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{chat: svc, hub: hub, logger: logger}
}

// List handles GET /api/households/{id}/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage, err := pagination(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	before, err := queryTime(r, "before")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := h.chat.List(r.Context(), userID(r), r.PathValue("id"), chat.ListParams{Page: page, PerPage: perPage, Before: before})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Send handles POST /api/households/{id}/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var in chat.SendInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	m, err := h.chat.Send(r.Context(), userID(r), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.hub.Broadcast(m.HouseholdID, websocket.Event{Event: chat.EventNewMessage, Data: m}, nil)
	writeJSON(w, http.StatusCreated, m)
}

type editRequest struct {
	Content string `json:"content"`
}

// Edit handles PATCH /api/messages/{id}
func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	m, err := h.chat.Edit(r.Context(), userID(r), r.PathValue("id"), req.Content)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.hub.Broadcast(m.HouseholdID, websocket.Event{Event: chat.EventMessageEdited, Data: m}, nil)
	writeJSON(w, http.StatusOK, m)
}

// Delete handles DELETE /api/messages/{id}
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	d, err := h.chat.Delete(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.hub.Broadcast(d.HouseholdID, websocket.Event{Event: chat.EventMessageDeleted, Data: d}, nil)
	w.WriteHeader(http.StatusNoContent)
}
