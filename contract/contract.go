//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"atelier-chat/domain/chat"
	"atelier-chat/domain/event"
)

// ConnID identifies one live duplex connection to a client process.
// A connection belongs to at most one room at a time.
type ConnID string

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives events fanned out to one consumer. Implementations
// must not block: a slow connection returns an error or drops rather
// than stalling the room's delivery.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

type IRegistry interface {
	SinksForRoom(roomID chat.RoomID) []EventSink
	// Subscribe adds the connection to roomID, first removing it from any
	// other room. Returns the room that was left, if any.
	Subscribe(connID ConnID, roomID chat.RoomID, sink EventSink) (previous chat.RoomID, moved bool)
	Unsubscribe(connID ConnID, roomID chat.RoomID)
	// Drop removes the connection entirely (transport close).
	Drop(connID ConnID) (previous chat.RoomID, wasMember bool)
	CurrentRoom(connID ConnID) (chat.RoomID, bool)
	MemberCount(roomID chat.RoomID) int
}

type IOrchestrator interface {
	JoinRoom(connID ConnID, roomID chat.RoomID, userID string, sink EventSink)
	LeaveRoom(connID ConnID, roomID chat.RoomID, userID string)
	DropConnection(connID ConnID)
	PostMessage(ctx context.Context, cmd chat.PostMessageCommand) error
	GetMessages(cmd chat.GetMessagesCommand) ([]chat.Message, *string, error)
	SearchMessages(ctx context.Context, roomID chat.RoomID, query string) ([]SearchHit, error)
	Start(ctx context.Context) error
	Stop()
}

// SearchHit is one full-text match inside a room's history.
type SearchHit struct {
	MessageID string
	Content   string
}
