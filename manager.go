package puckroom

import (
	"context"
	"log/slog"
	"sync"
)

// RoomInfo is returned by the API for the room list.
type RoomInfo[RoomId comparable] struct {
	ID      RoomId `json:"id"`
	Status  string `json:"status"`
	Players int    `json:"players"`
}

// Manager holds rooms by id. Rooms are created on first join, or by Match, and remove
// themselves when they are disposed.
type Manager[RoomId comparable, PlayerID comparable] struct {
	mu    sync.RWMutex
	rooms map[RoomId]*Room[RoomId, PlayerID]

	ctx  context.Context
	opts Options[PlayerID]

	Slogger *slog.Logger
}

func NewManager[RoomId comparable, PlayerID comparable](ctx context.Context, opts Options[PlayerID]) *Manager[RoomId, PlayerID] {
	sl := opts.Slogger
	if sl == nil {
		sl = slog.Default()
	}
	return &Manager[RoomId, PlayerID]{
		rooms:   make(map[RoomId]*Room[RoomId, PlayerID]),
		ctx:     ctx,
		opts:    opts,
		Slogger: sl.With("component", "manager"),
	}
}

// GetOrCreate returns the live room for id, creating and starting it if needed. It returns nil
// once the manager's context is done.
func (m *Manager[RoomId, PlayerID]) GetOrCreate(id RoomId) *Room[RoomId, PlayerID] {
	if m.ctx.Err() != nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[id]; ok && r.GetStatus() != Disposing {
		return r
	}
	return m.create(id)
}

func (m *Manager[RoomId, PlayerID]) Get(id RoomId) (*Room[RoomId, PlayerID], bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

// Match pairs arrivals: it prefers a room with one participant waiting, then an empty room, and
// otherwise creates a room named by newID.
func (m *Manager[RoomId, PlayerID]) Match(newID func() RoomId) *Room[RoomId, PlayerID] {
	if m.ctx.Err() != nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var empty *Room[RoomId, PlayerID]
	for _, r := range m.rooms {
		switch r.GetStatus() {
		case WaitingForOpponent:
			return r
		case Lobby:
			if empty == nil {
				empty = r
			}
		}
	}
	if empty != nil {
		return empty
	}
	return m.create(newID())
}

// create must be called with m.mu held.
func (m *Manager[RoomId, PlayerID]) create(id RoomId) *Room[RoomId, PlayerID] {
	opts := m.opts
	var r *Room[RoomId, PlayerID]
	opts.OnDispose = func(reason string) {
		m.forget(id, r)
		if m.opts.OnDispose != nil {
			m.opts.OnDispose(reason)
		}
	}
	r = NewRoom[RoomId, PlayerID](m.ctx, id, opts)
	m.rooms[id] = r
	m.Slogger.Info("room created", "room", id)
	go r.Start()
	return r
}

func (m *Manager[RoomId, PlayerID]) forget(id RoomId, r *Room[RoomId, PlayerID]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.rooms[id]; ok && cur == r {
		delete(m.rooms, id)
		m.Slogger.Info("room removed", "room", id)
	}
}

// List returns all rooms with status and participant count.
func (m *Manager[RoomId, PlayerID]) List() []RoomInfo[RoomId] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RoomInfo[RoomId], 0, len(m.rooms))
	for id, r := range m.rooms {
		out = append(out, RoomInfo[RoomId]{ID: id, Status: r.GetStatus().String(), Players: r.NumPlayers()})
	}
	return out
}

func (m *Manager[RoomId, PlayerID]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// StopAll disposes every room and waits for each to finish.
func (m *Manager[RoomId, PlayerID]) StopAll() {
	m.mu.RLock()
	rooms := make([]*Room[RoomId, PlayerID], 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()
	for _, r := range rooms {
		r.Stop()
	}
}
