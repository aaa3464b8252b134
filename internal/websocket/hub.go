package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Event is the envelope for every frame sent to a client.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
	Ref   string `json:"ref,omitempty"`
}

// Inbound is a frame received from a client. Data is decoded by the
// dispatcher once the event name is known.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Ref   string          `json:"ref,omitempty"`
}

// Hub tracks connected clients and the household rooms they joined.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]map[string]struct{}
	rooms   map[string]map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]map[string]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.clients[c] = make(map[string]struct{})
	}
	h.mu.Unlock()
}

// Unregister drops the client from every room and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	joined, ok := h.clients[c]
	if !ok {
		return
	}
	for room := range joined {
		h.removeFromRoom(c, room)
	}
	delete(h.clients, c)
	close(c.send)
}

// Join adds a registered client to a room. It reports false if the client
// was already there or is not registered.
func (h *Hub) Join(c *Client, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	joined, ok := h.clients[c]
	if !ok {
		return false
	}
	if _, in := joined[room]; in {
		return false
	}
	joined[room] = struct{}{}
	members := h.rooms[room]
	if members == nil {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	return true
}

// Leave reports whether the client was in the room.
func (h *Hub) Leave(c *Client, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	joined, ok := h.clients[c]
	if !ok {
		return false
	}
	if _, in := joined[room]; !in {
		return false
	}
	delete(joined, room)
	h.removeFromRoom(c, room)
	return true
}

// EvictUser removes every connection of userID from the room and returns
// the clients it removed.
func (h *Hub) EvictUser(room, userID string) []*Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*Client
	for c := range h.rooms[room] {
		if c.UserID() != userID {
			continue
		}
		delete(h.clients[c], room)
		h.removeFromRoom(c, room)
		out = append(out, c)
	}
	return out
}

// CloseRoom removes every client from the room and returns them.
func (h *Hub) CloseRoom(room string) []*Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		delete(h.clients[c], room)
		out = append(out, c)
	}
	delete(h.rooms, room)
	return out
}

func (h *Hub) removeFromRoom(c *Client, room string) {
	members := h.rooms[room]
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Rooms lists the rooms a client has joined.
func (h *Hub) Rooms(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.clients[c]))
	for room := range h.clients[c] {
		out = append(out, room)
	}
	return out
}

func (h *Hub) InRoom(c *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[c][room]
	return ok
}

// Send queues an event for one client.
func (h *Hub) Send(c *Client, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal event", "event", ev.Event, "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; ok {
		h.enqueue(c, data, ev.Event)
	}
}

// Broadcast queues an event for every client in the room except skip,
// which may be nil.
func (h *Hub) Broadcast(room string, ev Event, skip *Client) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal broadcast", "event", ev.Event, "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		if c == skip {
			continue
		}
		h.enqueue(c, data, ev.Event)
	}
}

// enqueue must be called with h.mu held.
func (h *Hub) enqueue(c *Client, data []byte, event string) {
	select {
	case c.send <- data:
	default:
		h.logger.Warn("client buffer full, dropping event", "event", event, "user_id", c.UserID())
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
