package domain

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Pusher pushes one serialized frame to a live transport. A failed push means
// the peer is gone or stalled; it is never fatal to the caller.
type Pusher interface {
	Push(data []byte) error
}

// Registry owns the live connection state: the session map, the room
// subscription index, and the user-to-connection index. It is also the
// broadcast router. All three structures are in-process only and rebuilt from
// zero on restart.
type Registry struct {
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	pushers  map[string]Pusher
	rooms    map[string]map[string]struct{} // roomID -> set of connIDs
	users    map[string]string              // userID -> connID
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logger,
		sessions: make(map[string]*Session),
		pushers:  make(map[string]Pusher),
		rooms:    make(map[string]map[string]struct{}),
		users:    make(map[string]string),
	}
}

// Add registers a new connection with empty session state.
func (r *Registry) Add(connID string, p Pusher) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	session := NewSession(connID)
	r.sessions[connID] = session
	r.pushers[connID] = p
	return session
}

func (r *Registry) Session(connID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[connID]
	return session, ok
}

// Subscribe puts a connection into a room's subscriber set and records the
// user-to-connection mapping. A connection subscribes to at most one room, so
// any previous membership is dropped in the same critical section.
func (r *Registry) Subscribe(connID, roomID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribeLocked(connID)
	set, ok := r.rooms[roomID]
	if !ok {
		set = make(map[string]struct{})
		r.rooms[roomID] = set
	}
	set[connID] = struct{}{}
	if userID != "" {
		r.users[userID] = connID
	}
}

// Unsubscribe removes a connection from its room's subscriber set, deleting
// the set once empty. Returns the room it was subscribed to.
func (r *Registry) Unsubscribe(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unsubscribeLocked(connID)
}

func (r *Registry) unsubscribeLocked(connID string) (string, bool) {
	for roomID, set := range r.rooms {
		if _, ok := set[connID]; ok {
			delete(set, connID)
			if len(set) == 0 {
				delete(r.rooms, roomID)
			}
			return roomID, true
		}
	}
	return "", false
}

// Deregister drops every trace of a connection. Idempotent; returns the
// session so the caller can finish its teardown cascade.
func (r *Registry) Deregister(connID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[connID]
	if !ok {
		return nil, false
	}
	delete(r.sessions, connID)
	delete(r.pushers, connID)
	r.unsubscribeLocked(connID)
	for userID, cid := range r.users {
		if cid == connID {
			delete(r.users, userID)
		}
	}
	return session, true
}

// Broadcast delivers one event to every subscriber of a room, optionally
// excluding the originating connection. An unknown room is a no-op. Delivery
// is fire-and-forget: a failed push is logged and the loop continues.
func (r *Registry) Broadcast(roomID string, event any, exclude string) {
	data, err := json.Marshal(event)
	if err != nil {
		r.logger.Error("marshal broadcast event", "room", roomID, "error", err)
		return
	}

	r.mu.RLock()
	targets := make(map[string]Pusher)
	for connID := range r.rooms[roomID] {
		if connID == exclude {
			continue
		}
		if p, ok := r.pushers[connID]; ok {
			targets[connID] = p
		}
	}
	r.mu.RUnlock()

	for connID, p := range targets {
		if err := p.Push(data); err != nil {
			r.logger.Warn("drop broadcast to connection", "conn", connID, "room", roomID, "error", err)
		}
	}
}

// Unicast delivers one event to exactly one connection.
func (r *Registry) Unicast(connID string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal unicast event: %w", err)
	}
	r.mu.RLock()
	p, ok := r.pushers[connID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("connection not registered: %s", connID)
	}
	return p.Push(data)
}

// ConnectionOf resolves the live connection of a user, if any.
func (r *Registry) ConnectionOf(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok := r.users[userID]
	return connID, ok
}

// RoomConnections returns a snapshot of a room's subscriber ids.
func (r *Registry) RoomConnections(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.rooms[roomID]))
	for connID := range r.rooms[roomID] {
		ids = append(ids, connID)
	}
	return ids
}

func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
