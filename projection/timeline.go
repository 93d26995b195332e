// Package projection keeps client-side read models of a room.
package projection

import (
	"sync"

	"github.com/google/uuid"

	"atelier-chat/domain/chat"
)

// Timeline is an ordered, deduplicated view of one room's messages.
// History pages and live deliveries can overlap (a message may arrive
// live and again inside a replayed page); the id set collapses them.
type Timeline struct {
	mu       sync.Mutex
	messages []chat.Message
	seen     map[uuid.UUID]struct{}
}

func NewTimeline() *Timeline {
	return &Timeline{seen: make(map[uuid.UUID]struct{})}
}

// Load merges a history page, oldest first. Pages arrive already
// sorted, and older pages sort before everything seen so far.
func (t *Timeline) Load(page []chat.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, message := range page {
		t.insert(message)
	}
}

// Append records one live delivery.
func (t *Timeline) Append(message chat.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.insert(message)
}

// Messages returns a copy of the timeline in creation order.
func (t *Timeline) Messages() []chat.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]chat.Message(nil), t.messages...)
}

func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

// Reset drops everything, used when the session switches rooms.
func (t *Timeline) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = nil
	t.seen = make(map[uuid.UUID]struct{})
}

func (t *Timeline) insert(message chat.Message) {
	if _, ok := t.seen[message.ID]; ok {
		return
	}
	t.seen[message.ID] = struct{}{}

	// Find the insertion point from the tail; live messages almost
	// always land at the end.
	i := len(t.messages)
	for i > 0 && t.messages[i-1].CreatedAt.After(message.CreatedAt) {
		i--
	}
	t.messages = append(t.messages, chat.Message{})
	copy(t.messages[i+1:], t.messages[i:])
	t.messages[i] = message
}
