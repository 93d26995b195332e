// Package chat contains core concepts of the project chat.
// Messages are immutable and totally ordered per room by creation time.
// No runtime, network, or UI logic should be added here.
package chat

import (
	"time"

	"github.com/google/uuid"
)

// RoomID is the project identifier. One room exists per project.
type RoomID string

// Sender is the durable identity attached to a message: the internal
// user record id plus the display profile, never the raw auth-provider id.
type Sender struct {
	ID     string
	Name   string
	Avatar string
}

// Message represents an immutable chat event.
type Message struct {
	ID        uuid.UUID // unique identifier, server-assigned
	Room      RoomID
	Sender    Sender
	Content   string
	CreatedAt time.Time // server-assigned, UTC
}
