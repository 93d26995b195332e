// Package observability aggregates runtime counters for the heartbeat
// worker and operator logs.
package observability

import (
	"sync/atomic"
)

type Manager struct {
	connectionsOpen   atomic.Int64
	messagesPersisted atomic.Uint64
	messagesDelivered atomic.Uint64
	messagesDropped   atomic.Uint64
	roomsActive       atomic.Int64
}

// Stats is a point-in-time snapshot of the counters.
type Stats struct {
	ConnectionsOpen   int64  `json:"connections_open"`
	MessagesPersisted uint64 `json:"messages_persisted"`
	MessagesDelivered uint64 `json:"messages_delivered"`
	MessagesDropped   uint64 `json:"messages_dropped"`
	RoomsActive       int64  `json:"rooms_active"`
}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) ConnectionOpened() { m.connectionsOpen.Add(1) }
func (m *Manager) ConnectionClosed() { m.connectionsOpen.Add(-1) }
func (m *Manager) MessagePersisted() { m.messagesPersisted.Add(1) }
func (m *Manager) MessageDelivered() { m.messagesDelivered.Add(1) }
func (m *Manager) MessageDropped()   { m.messagesDropped.Add(1) }
func (m *Manager) RoomOpened()       { m.roomsActive.Add(1) }
func (m *Manager) RoomClosed()       { m.roomsActive.Add(-1) }

func (m *Manager) Snapshot() Stats {
	return Stats{
		ConnectionsOpen:   m.connectionsOpen.Load(),
		MessagesPersisted: m.messagesPersisted.Load(),
		MessagesDelivered: m.messagesDelivered.Load(),
		MessagesDropped:   m.messagesDropped.Load(),
		RoomsActive:       m.roomsActive.Load(),
	}
}
