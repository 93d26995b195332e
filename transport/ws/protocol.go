// Package ws exposes the chat over a WebSocket endpoint. The wire
// protocol is JSON envelopes: {"type": "...", "payload": {...}}.
package ws

import (
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"atelier-chat/contract"
	"atelier-chat/domain/chat"
	"atelier-chat/errors"
)

// Client-initiated event types.
const (
	EventIdentify       = "identify"
	EventJoinProject    = "join_project"
	EventLeaveProject   = "leave_project"
	EventLoadMessages   = "load_messages"
	EventSendMessage    = "send_message"
	EventSearchMessages = "search_messages"
)

// Server-initiated event types.
const (
	EventIdentified     = "identified"
	EventMessagesLoaded = "messages_loaded"
	EventNewMessage     = "new_message"
	EventSearchResults  = "search_results"
	EventError          = "error"
)

// Error codes carried in the error payload.
const (
	CodeAuthError       = "AUTH_ERROR"
	CodeNotAMember      = "NOT_A_MEMBER"
	CodeValidationError = "VALIDATION_ERROR"
	CodeInternalError   = "INTERNAL_ERROR"
)

// Envelope is the frame exchanged on the socket. Payload stays raw
// until the type is known.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewEnvelope(eventType string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: eventType, Payload: raw}, nil
}

type IdentifyPayload struct {
	Token string `json:"token" validate:"required"`
}

type JoinProjectPayload struct {
	ProjectID string `json:"projectId" validate:"required,excludesall=0x3A"`
}

type LeaveProjectPayload struct {
	ProjectID string `json:"projectId" validate:"required,excludesall=0x3A"`
}

type LoadMessagesPayload struct {
	ProjectID string  `json:"projectId" validate:"required,excludesall=0x3A"`
	Cursor    *string `json:"cursor,omitempty"`
}

type SendMessagePayload struct {
	ProjectID string `json:"projectId" validate:"required,excludesall=0x3A"`
	Message   string `json:"message" validate:"required"`
}

type SearchMessagesPayload struct {
	ProjectID string `json:"projectId" validate:"required,excludesall=0x3A"`
	Query     string `json:"query" validate:"required"`
}

// WireSender is the sender profile as rendered to clients.
type WireSender struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// WireMessage is a chat message as rendered to clients. CreatedAt is
// ISO-8601 in UTC.
type WireMessage struct {
	ID        string     `json:"id"`
	Sender    WireSender `json:"sender"`
	Message   string     `json:"message"`
	CreatedAt string     `json:"createdAt"`
}

func ToWire(message chat.Message) WireMessage {
	return WireMessage{
		ID: message.ID.String(),
		Sender: WireSender{
			ID:     message.Sender.ID,
			Name:   message.Sender.Name,
			Avatar: message.Sender.Avatar,
		},
		Message:   message.Content,
		CreatedAt: message.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// FromWire rebuilds the domain message from its wire form; the id and
// timestamp are trusted as server issued.
func FromWire(wire WireMessage) (chat.Message, error) {
	createdAt, err := time.Parse(time.RFC3339, wire.CreatedAt)
	if err != nil {
		return chat.Message{}, err
	}
	id, err := uuid.Parse(wire.ID)
	if err != nil {
		return chat.Message{}, err
	}
	return chat.Message{
		ID: id,
		Sender: chat.Sender{
			ID:     wire.Sender.ID,
			Name:   wire.Sender.Name,
			Avatar: wire.Sender.Avatar,
		},
		Content:   wire.Message,
		CreatedAt: createdAt,
	}, nil
}

type IdentifiedPayload struct {
	User WireSender `json:"user"`
}

type MessagesLoadedPayload struct {
	ProjectID string        `json:"projectId"`
	Messages  []WireMessage `json:"messages"`
	Cursor    *string       `json:"cursor,omitempty"`
}

type NewMessagePayload struct {
	ProjectID string      `json:"projectId"`
	Message   WireMessage `json:"message"`
}

type SearchResultsPayload struct {
	ProjectID string            `json:"projectId"`
	Query     string            `json:"query"`
	Hits      []SearchHitResult `json:"hits"`
}

type SearchHitResult struct {
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toWireHits(hits []contract.SearchHit) []SearchHitResult {
	return lo.Map(hits, func(hit contract.SearchHit, _ int) SearchHitResult {
		return SearchHitResult{MessageID: hit.MessageID, Content: hit.Content}
	})
}

// errorCode maps domain errors to the wire-level code the client
// branches on. Unknown errors stay internal; their details never leave
// the server.
func errorCode(err error) string {
	switch {
	case stderrors.Is(err, errors.ErrIdentityUnresolved):
		return CodeAuthError
	case stderrors.Is(err, errors.ErrNotAProjectMember):
		return CodeNotAMember
	case stderrors.Is(err, errors.ErrEmptyMessage),
		stderrors.Is(err, errors.ErrUnknownEvent),
		stderrors.Is(err, errors.ErrAlreadyIdentified),
		stderrors.Is(err, errors.ErrInvalidRoom),
		stderrors.Is(err, errors.ErrRoomBusy):
		return CodeValidationError
	default:
		return CodeInternalError
	}
}
