// Package runtime handles room lifecycles, event propagation, and
// delivery to connected participants. It orchestrates the system
// without containing business logic or domain rules.
package runtime

import (
	"sync"

	"atelier-chat/contract"
	"atelier-chat/domain/chat"
)

type Set map[contract.ConnID]struct{}

var _ contract.IRegistry = (*Registry)(nil)

// Registry is the live membership table: which connection is delivering
// into which room right now. It is a runtime projection rebuilt empty
// on every process start; membership is a session concept, not a
// business record.
//
// Invariant: a connection belongs to at most one room. Subscribe to a
// second room removes the first membership in the same critical
// section, so a fan-out read never observes both.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[contract.ConnID]contract.EventSink
	current     map[contract.ConnID]chat.RoomID
	roomMembers map[chat.RoomID]Set
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:    make(map[contract.ConnID]contract.EventSink),
		current:     make(map[contract.ConnID]chat.RoomID),
		roomMembers: make(map[chat.RoomID]Set),
	}
}

// SinksForRoom resolves the room's current members into their sinks.
// Called by the fan-out dispatcher at delivery time, never earlier.
// Returns nil if the room doesn't exist or has no members.
func (r *Registry) SinksForRoom(roomID chat.RoomID) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.roomMembers[roomID]
	if !ok {
		return nil
	}
	var activeSinks []contract.EventSink
	for connID := range members {
		if sink, exists := r.sessions[connID]; exists {
			activeSinks = append(activeSinks, sink)
		}
	}
	return activeSinks
}

// Subscribe registers a connection's sink and assigns it to a room.
// If the connection already belongs to a different room it is removed
// from that room first; re-subscribing to the same room is idempotent.
// The room the connection left (if any) is returned so the caller can
// garbage collect it.
func (r *Registry) Subscribe(connID contract.ConnID, roomID chat.RoomID, sink contract.EventSink) (chat.RoomID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var previous chat.RoomID
	moved := false
	if cur, ok := r.current[connID]; ok && cur != roomID {
		r.removeMember(cur, connID)
		previous = cur
		moved = true
	}

	r.sessions[connID] = sink
	r.current[connID] = roomID

	if _, ok := r.roomMembers[roomID]; !ok {
		r.roomMembers[roomID] = make(Set)
	}
	r.roomMembers[roomID][connID] = struct{}{}
	return previous, moved
}

// Unsubscribe removes a connection from a room. No error if it was not
// a member (idempotent); the sink stays registered so the connection
// can join another room.
func (r *Registry) Unsubscribe(connID contract.ConnID, roomID chat.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.current[connID]; ok && cur == roomID {
		delete(r.current, connID)
	}
	r.removeMember(roomID, connID)
}

// Drop removes a connection entirely on transport close.
func (r *Registry) Drop(connID contract.ConnID) (chat.RoomID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, connID)
	cur, wasMember := r.current[connID]
	if wasMember {
		delete(r.current, connID)
		r.removeMember(cur, connID)
	}
	return cur, wasMember
}

func (r *Registry) CurrentRoom(connID contract.ConnID) (chat.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cur, ok := r.current[connID]
	return cur, ok
}

func (r *Registry) MemberCount(roomID chat.RoomID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.roomMembers[roomID])
}

// removeMember must be called with the write lock held.
// Empty sets are dropped to prevent memory leaks over time.
func (r *Registry) removeMember(roomID chat.RoomID, connID contract.ConnID) {
	members, ok := r.roomMembers[roomID]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.roomMembers, roomID)
	}
}
