// Package presence tracks which users are connected and which household
// chat rooms they are watching.
package presence

import (
	"context"
	"slices"
	"sync"
)

// Tracker counts connections so a user with several open tabs stays
// present until the last one goes away.
type Tracker interface {
	Connect(ctx context.Context, userID string) error
	// Disconnect reports true when the user has no connections left.
	Disconnect(ctx context.Context, userID string) (bool, error)
	Join(ctx context.Context, userID, householdID string) error
	// Leave reports true when the user's last connection left the room.
	Leave(ctx context.Context, userID, householdID string) (bool, error)
	InRoom(ctx context.Context, userID, householdID string) (bool, error)
	IsOnline(ctx context.Context, userID string) (bool, error)
	// Online lists users in the household room, sorted.
	Online(ctx context.Context, householdID string) ([]string, error)
}

// Memory is a single-process Tracker.
type Memory struct {
	mu    sync.Mutex
	conns map[string]int
	rooms map[string]map[string]int
}

func NewMemory() *Memory {
	return &Memory{
		conns: make(map[string]int),
		rooms: make(map[string]map[string]int),
	}
}

func (m *Memory) Connect(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[userID]++
	return nil
}

func (m *Memory) Disconnect(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conns[userID] <= 1 {
		delete(m.conns, userID)
		return true, nil
	}
	m.conns[userID]--
	return false, nil
}

func (m *Memory) Join(_ context.Context, userID, householdID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room := m.rooms[householdID]
	if room == nil {
		room = make(map[string]int)
		m.rooms[householdID] = room
	}
	room[userID]++
	return nil
}

func (m *Memory) Leave(_ context.Context, userID, householdID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room := m.rooms[householdID]
	if room[userID] == 0 {
		return false, nil
	}
	room[userID]--
	if room[userID] > 0 {
		return false, nil
	}
	delete(room, userID)
	if len(room) == 0 {
		delete(m.rooms, householdID)
	}
	return true, nil
}

func (m *Memory) InRoom(_ context.Context, userID, householdID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rooms[householdID][userID] > 0, nil
}

func (m *Memory) IsOnline(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conns[userID] > 0, nil
}

func (m *Memory) Online(_ context.Context, householdID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.rooms[householdID]))
	for uid := range m.rooms[householdID] {
		out = append(out, uid)
	}
	slices.Sort(out)
	return out, nil
}
