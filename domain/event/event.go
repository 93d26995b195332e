// Package event defines the domain events flowing through the runtime
// pipeline, from room workers to the fan-out dispatcher and its sinks.
package event

import (
	"atelier-chat/domain/chat"
)

// DomainEvent is implemented by every event the fan-out can carry.
type DomainEvent interface {
	Room() chat.RoomID
}

// MessageStored is emitted by a room worker once a message has been
// moderated and durably appended. It is the only event connected
// clients ever receive; its Message is the authoritative copy.
type MessageStored struct {
	Message       chat.Message
	CensoredWords []string
	Lang          string
}

func (e MessageStored) Room() chat.RoomID {
	return e.Message.Room
}

// ParticipantJoined and ParticipantLeft feed observability sinks only;
// they are never pushed to client connections.
type ParticipantJoined struct {
	RoomID chat.RoomID
	UserID string
}

func (e ParticipantJoined) Room() chat.RoomID { return e.RoomID }

type ParticipantLeft struct {
	RoomID chat.RoomID
	UserID string
}

func (e ParticipantLeft) Room() chat.RoomID { return e.RoomID }
