package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"atelier-chat/contract"
	"atelier-chat/domain/chat"
	"atelier-chat/domain/event"
	"atelier-chat/errors"
	"atelier-chat/identity"
	"atelier-chat/membership"
	"atelier-chat/observability"
)

// connState is the lifecycle of one socket. Transitions only happen on
// the read loop goroutine, so no lock guards them.
type connState int

const (
	stateConnected connState = iota
	stateIdentified
	stateRoomMember
	stateDisconnected
)

const writeTimeout = 10 * time.Second

var _ contract.EventSink = (*Connection)(nil)

// Connection adapts one WebSocket to the chat runtime. It is both the
// command entry point (read loop) and an EventSink the fan-out pushes
// room events into. Outbound frames go through a buffered channel;
// when the peer cannot keep up the channel fills and deliveries are
// refused rather than stalling the room.
type Connection struct {
	id           contract.ConnID
	socket       *websocket.Conn
	resolver     identity.IResolver
	policy       membership.IPolicy
	orchestrator contract.IOrchestrator
	monitoring   *observability.Manager
	validate     *validator.Validate
	log          *slog.Logger

	outbound chan Envelope
	closeMu  sync.RWMutex
	closed   bool

	state connState
	user  chat.Sender
	room  chat.RoomID
}

func newConnection(
	id contract.ConnID,
	socket *websocket.Conn,
	resolver identity.IResolver,
	policy membership.IPolicy,
	orchestrator contract.IOrchestrator,
	monitoring *observability.Manager,
	validate *validator.Validate,
	log *slog.Logger,
	outboundBuffer int) *Connection {
	return &Connection{
		id:           id,
		socket:       socket,
		resolver:     resolver,
		policy:       policy,
		orchestrator: orchestrator,
		monitoring:   monitoring,
		validate:     validate,
		log:          log.With("conn", id),
		outbound:     make(chan Envelope, outboundBuffer),
	}
}

// Consume receives a domain event from the fan-out. Only stored
// messages become frames; the push is non-blocking so a saturated peer
// is reported back as a drop.
func (c *Connection) Consume(_ context.Context, evt event.DomainEvent) error {
	stored, ok := evt.(event.MessageStored)
	if !ok {
		return nil
	}
	envelope, err := NewEnvelope(EventNewMessage, NewMessagePayload{
		ProjectID: string(stored.Message.Room),
		Message:   ToWire(stored.Message),
	})
	if err != nil {
		return err
	}
	return c.push(envelope)
}

// push queues a frame without ever blocking. The close flag keeps a
// late fan-out delivery from hitting a closed channel.
func (c *Connection) push(envelope Envelope) error {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed {
		return errors.ErrSessionClosed
	}
	select {
	case c.outbound <- envelope:
		return nil
	default:
		return fmt.Errorf("outbound buffer full: %w", errors.ErrSessionClosed)
	}
}

// Run pumps the socket until the peer disconnects, then releases every
// resource the connection holds. Implicit-leave: membership does not
// survive the socket.
func (c *Connection) Run(ctx context.Context) {
	c.monitoring.ConnectionOpened()
	defer func() {
		c.state = stateDisconnected
		c.orchestrator.DropConnection(c.id)
		c.monitoring.ConnectionClosed()
		c.closeMu.Lock()
		c.closed = true
		c.closeMu.Unlock()
		close(c.outbound)
		c.log.Debug("Connection closed")
	}()

	go c.writePump()
	c.readLoop(ctx)
}

func (c *Connection) readLoop(ctx context.Context) {
	for {
		var envelope Envelope
		if err := c.socket.ReadJSON(&envelope); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("Read failed", "error", err)
			}
			return
		}
		c.dispatch(ctx, envelope)
	}
}

func (c *Connection) writePump() {
	for envelope := range c.outbound {
		_ = c.socket.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.socket.WriteJSON(envelope); err != nil {
			c.log.Debug("Write failed", "error", err)
			_ = c.socket.Close()
			// Drain so Consume and send never block on a dead peer.
			for range c.outbound {
			}
			return
		}
	}
	_ = c.socket.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
	_ = c.socket.Close()
}

func (c *Connection) dispatch(ctx context.Context, envelope Envelope) {
	var err error
	switch envelope.Type {
	case EventIdentify:
		err = c.handleIdentify(envelope)
	case EventJoinProject:
		err = c.handleJoin(envelope)
	case EventLeaveProject:
		err = c.handleLeave(envelope)
	case EventLoadMessages:
		err = c.handleLoadMessages(envelope)
	case EventSendMessage:
		err = c.handleSendMessage(ctx, envelope)
	case EventSearchMessages:
		err = c.handleSearch(ctx, envelope)
	default:
		err = fmt.Errorf("%w: %q", errors.ErrUnknownEvent, envelope.Type)
	}
	if err != nil {
		c.sendError(err)
	}
}

// handleIdentify resolves the provider token exactly once per socket.
// A connection that re-identified mid-session would keep its room
// membership while carrying a different user, so the identity is fixed
// for the socket's lifetime; switching users means reconnecting.
func (c *Connection) handleIdentify(envelope Envelope) error {
	if c.state != stateConnected {
		return fmt.Errorf("%w: reconnect to switch users", errors.ErrAlreadyIdentified)
	}
	var payload IdentifyPayload
	if err := c.decode(envelope, &payload); err != nil {
		return err
	}
	user, err := c.resolver.Resolve(payload.Token)
	if err != nil {
		return err
	}
	c.user = user
	c.state = stateIdentified
	c.log.Info("Connection identified", "user", user.ID)
	return c.send(EventIdentified, IdentifiedPayload{User: WireSender{
		ID:     user.ID,
		Name:   user.Name,
		Avatar: user.Avatar,
	}})
}

// handleJoin checks the membership policy, subscribes the connection,
// and replays the room history. Joining a second room leaves the first.
func (c *Connection) handleJoin(envelope Envelope) error {
	if c.state == stateConnected {
		return fmt.Errorf("%w: identify first", errors.ErrIdentityUnresolved)
	}
	var payload JoinProjectPayload
	if err := c.decode(envelope, &payload); err != nil {
		return err
	}
	roomID := chat.RoomID(payload.ProjectID)
	if err := c.policy.Allowed(c.user.ID, roomID); err != nil {
		return err
	}

	c.orchestrator.JoinRoom(c.id, roomID, c.user.ID, c)
	c.room = roomID
	c.state = stateRoomMember

	return c.sendHistory(roomID, nil)
}

func (c *Connection) handleLeave(envelope Envelope) error {
	var payload LeaveProjectPayload
	if err := c.decode(envelope, &payload); err != nil {
		return err
	}
	roomID := chat.RoomID(payload.ProjectID)
	if c.state != stateRoomMember || c.room != roomID {
		return nil // leaving a room you are not in is a no-op
	}
	c.orchestrator.LeaveRoom(c.id, roomID, c.user.ID)
	c.room = ""
	c.state = stateIdentified
	return nil
}

func (c *Connection) handleLoadMessages(envelope Envelope) error {
	var payload LoadMessagesPayload
	if err := c.decode(envelope, &payload); err != nil {
		return err
	}
	roomID := chat.RoomID(payload.ProjectID)
	if c.state != stateRoomMember || c.room != roomID {
		return fmt.Errorf("%w: join %q first", errors.ErrNotAProjectMember, payload.ProjectID)
	}
	return c.sendHistory(roomID, payload.Cursor)
}

func (c *Connection) handleSendMessage(ctx context.Context, envelope Envelope) error {
	var payload SendMessagePayload
	if err := c.decode(envelope, &payload); err != nil {
		return err
	}
	roomID := chat.RoomID(payload.ProjectID)
	if c.state != stateRoomMember || c.room != roomID {
		return fmt.Errorf("%w: join %q first", errors.ErrNotAProjectMember, payload.ProjectID)
	}
	if strings.TrimSpace(payload.Message) == "" {
		return errors.ErrEmptyMessage
	}
	return c.orchestrator.PostMessage(ctx, chat.PostMessageCommand{
		RoomID:     roomID,
		Sender:     c.user,
		Content:    payload.Message,
		ReceivedAt: time.Now().UTC(),
	})
}

func (c *Connection) handleSearch(ctx context.Context, envelope Envelope) error {
	var payload SearchMessagesPayload
	if err := c.decode(envelope, &payload); err != nil {
		return err
	}
	roomID := chat.RoomID(payload.ProjectID)
	if c.state != stateRoomMember || c.room != roomID {
		return fmt.Errorf("%w: join %q first", errors.ErrNotAProjectMember, payload.ProjectID)
	}
	hits, err := c.orchestrator.SearchMessages(ctx, roomID, payload.Query)
	if err != nil {
		return err
	}
	return c.send(EventSearchResults, SearchResultsPayload{
		ProjectID: payload.ProjectID,
		Query:     payload.Query,
		Hits:      toWireHits(hits),
	})
}

func (c *Connection) sendHistory(roomID chat.RoomID, cursor *string) error {
	messages, next, err := c.orchestrator.GetMessages(chat.GetMessagesCommand{RoomID: roomID, Cursor: cursor})
	if err != nil {
		return err
	}
	wireMessages := make([]WireMessage, 0, len(messages))
	for _, message := range messages {
		wireMessages = append(wireMessages, ToWire(message))
	}
	return c.send(EventMessagesLoaded, MessagesLoadedPayload{
		ProjectID: string(roomID),
		Messages:  wireMessages,
		Cursor:    next,
	})
}

func (c *Connection) decode(envelope Envelope, payload any) error {
	if err := json.Unmarshal(envelope.Payload, payload); err != nil {
		return fmt.Errorf("%w: bad %s payload", errors.ErrUnknownEvent, envelope.Type)
	}
	if err := c.validate.Struct(payload); err != nil {
		return fmt.Errorf("%w: %s", errors.ErrUnknownEvent, err)
	}
	return nil
}

// send queues a frame for the peer; the write pump owns the socket.
func (c *Connection) send(eventType string, payload any) error {
	envelope, err := NewEnvelope(eventType, payload)
	if err != nil {
		return err
	}
	return c.push(envelope)
}

func (c *Connection) sendError(err error) {
	c.log.Debug("Rejecting client event", "error", err)
	_ = c.send(EventError, ErrorPayload{Code: errorCode(err), Message: err.Error()})
}
