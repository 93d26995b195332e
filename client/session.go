// Package client is the Go-side session adapter for the chat endpoint.
// It speaks the same envelope protocol as the browser app and keeps a
// local timeline of the joined room.
package client

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"atelier-chat/domain/chat"
	"atelier-chat/errors"
	"atelier-chat/projection"
	"atelier-chat/transport/ws"
)

// Status tracks the session lifecycle as seen by subscribers.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusIdentified   Status = "identified"
	StatusJoined       Status = "joined"
	StatusDisconnected Status = "disconnected"
)

const requestTimeout = 10 * time.Second

// Session is a connected chat client. One request is in flight at a
// time; live messages arrive on their own path and never interleave
// with request replies. The session performs no local echo: a sent
// message shows up in the timeline only once the server fans it out.
type Session struct {
	log      *slog.Logger
	socket   *websocket.Conn
	timeline *projection.Timeline

	writeMu sync.Mutex // socket writes
	reqMu   sync.Mutex // one request/reply exchange at a time

	mu       sync.Mutex // session state below
	user     chat.Sender
	room     chat.RoomID
	cursor   *string
	waiter   chan ws.Envelope
	subs     map[int]func(chat.Message)
	statSubs map[int]func(Status)
	errSubs  map[int]func(code, message string)
	nextSub  int
	closed   bool

	done chan struct{}
}

// Dial connects to a chat endpoint ("ws://host/ws") and starts the
// read loop. The returned session is in the connected state; call
// Identify before anything else.
func Dial(ctx context.Context, url string, log *slog.Logger) (*Session, error) {
	socket, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	session := &Session{
		log:      log,
		socket:   socket,
		timeline: projection.NewTimeline(),
		subs:     make(map[int]func(chat.Message)),
		statSubs: make(map[int]func(Status)),
		errSubs:  make(map[int]func(string, string)),
		done:     make(chan struct{}),
	}
	go session.readLoop()
	session.notifyStatus(StatusConnected)
	return session, nil
}

// Identify exchanges the provider token for the server-side profile.
func (s *Session) Identify(token string) (chat.Sender, error) {
	reply, err := s.request(ws.EventIdentify, ws.IdentifyPayload{Token: token}, ws.EventIdentified)
	if err != nil {
		return chat.Sender{}, err
	}
	var payload ws.IdentifiedPayload
	if err := json.Unmarshal(reply.Payload, &payload); err != nil {
		return chat.Sender{}, err
	}
	user := chat.Sender{ID: payload.User.ID, Name: payload.User.Name, Avatar: payload.User.Avatar}

	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
	s.notifyStatus(StatusIdentified)
	return user, nil
}

// Join enters a project room and returns its latest history page,
// oldest first. Joining while in another room leaves that room; the
// timeline restarts for the new one.
func (s *Session) Join(projectID string) ([]chat.Message, error) {
	room := chat.RoomID(projectID)

	// The room is recorded before the request goes out: a live frame
	// racing the history page counts as the new room's traffic instead
	// of being discarded as stale, and the timeline's id dedup collapses
	// any overlap with the page.
	s.mu.Lock()
	previousRoom := s.room
	previousCursor := s.cursor
	s.room = room
	s.cursor = nil
	s.mu.Unlock()
	s.timeline.Reset()

	reply, err := s.request(ws.EventJoinProject, ws.JoinProjectPayload{ProjectID: projectID}, ws.EventMessagesLoaded)
	if err != nil {
		s.mu.Lock()
		s.room = previousRoom
		s.cursor = previousCursor
		s.mu.Unlock()
		return nil, err
	}
	var payload ws.MessagesLoadedPayload
	if err := json.Unmarshal(reply.Payload, &payload); err != nil {
		return nil, err
	}
	page, err := fromWirePage(payload.Messages, room)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cursor = payload.Cursor
	s.mu.Unlock()

	s.timeline.Load(page)
	s.notifyStatus(StatusJoined)
	return page, nil
}

// Leave exits the current room. Not being in one is a no-op.
func (s *Session) Leave() error {
	s.mu.Lock()
	room := s.room
	s.room = ""
	s.cursor = nil
	s.mu.Unlock()
	if room == "" {
		return nil
	}
	s.timeline.Reset()
	if err := s.write(ws.EventLeaveProject, ws.LeaveProjectPayload{ProjectID: string(room)}); err != nil {
		return err
	}
	s.notifyStatus(StatusIdentified)
	return nil
}

// Send posts a message to the joined room. Delivery is asynchronous:
// the message appears through OnMessage and the timeline once the
// server has persisted and fanned it out.
func (s *Session) Send(message string) error {
	s.mu.Lock()
	room := s.room
	s.mu.Unlock()
	if room == "" {
		return errors.ErrNotAProjectMember
	}
	return s.write(ws.EventSendMessage, ws.SendMessagePayload{
		ProjectID: string(room),
		Message:   message,
	})
}

// LoadMore fetches the page preceding what the timeline already holds.
// It returns the page and whether older messages may remain.
func (s *Session) LoadMore() ([]chat.Message, bool, error) {
	s.mu.Lock()
	room := s.room
	cursor := s.cursor
	s.mu.Unlock()
	if room == "" {
		return nil, false, errors.ErrNotAProjectMember
	}
	if cursor == nil {
		return nil, false, nil
	}

	reply, err := s.request(ws.EventLoadMessages,
		ws.LoadMessagesPayload{ProjectID: string(room), Cursor: cursor},
		ws.EventMessagesLoaded)
	if err != nil {
		return nil, false, err
	}
	var payload ws.MessagesLoadedPayload
	if err := json.Unmarshal(reply.Payload, &payload); err != nil {
		return nil, false, err
	}
	page, err := fromWirePage(payload.Messages, room)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	s.cursor = payload.Cursor
	s.mu.Unlock()

	s.timeline.Load(page)
	return page, payload.Cursor != nil, nil
}

// Search runs a full-text query over the joined room's history.
func (s *Session) Search(query string) ([]ws.SearchHitResult, error) {
	s.mu.Lock()
	room := s.room
	s.mu.Unlock()
	if room == "" {
		return nil, errors.ErrNotAProjectMember
	}

	reply, err := s.request(ws.EventSearchMessages,
		ws.SearchMessagesPayload{ProjectID: string(room), Query: query},
		ws.EventSearchResults)
	if err != nil {
		return nil, err
	}
	var payload ws.SearchResultsPayload
	if err := json.Unmarshal(reply.Payload, &payload); err != nil {
		return nil, err
	}
	return payload.Hits, nil
}

// Messages returns the current timeline, oldest first.
func (s *Session) Messages() []chat.Message {
	return s.timeline.Messages()
}

// User returns the identified profile, zero before Identify.
func (s *Session) User() chat.Sender {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// OnMessage subscribes to live deliveries for the joined room. The
// returned function cancels the subscription.
func (s *Session) OnMessage(fn func(chat.Message)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// OnStatus subscribes to session lifecycle changes.
func (s *Session) OnStatus(fn func(Status)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.statSubs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.statSubs, id)
	}
}

// OnError subscribes to unsolicited server error frames (a rejected
// Send, for instance, reports back this way).
func (s *Session) OnError(fn func(code, message string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.errSubs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.errSubs, id)
	}
}

// Close tears the session down. Safe to call twice.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.writeMu.Lock()
	_ = s.socket.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()
	err := s.socket.Close()
	<-s.done
	return err
}

// request performs one write-and-wait exchange. An error frame in
// place of the expected reply resolves the wait with that error.
func (s *Session) request(eventType string, payload any, replyType string) (ws.Envelope, error) {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()

	waiter := make(chan ws.Envelope, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ws.Envelope{}, errors.ErrSessionClosed
	}
	s.waiter = waiter
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.waiter = nil
		s.mu.Unlock()
	}()

	if err := s.write(eventType, payload); err != nil {
		return ws.Envelope{}, err
	}

	select {
	case reply, ok := <-waiter:
		if !ok {
			return ws.Envelope{}, errors.ErrSessionClosed
		}
		if reply.Type == ws.EventError {
			return ws.Envelope{}, decodeErrorFrame(reply)
		}
		if reply.Type != replyType {
			return ws.Envelope{}, fmt.Errorf("%w: unexpected reply %q", errors.ErrUnknownEvent, reply.Type)
		}
		return reply, nil
	case <-s.done:
		return ws.Envelope{}, errors.ErrSessionClosed
	case <-time.After(requestTimeout):
		return ws.Envelope{}, fmt.Errorf("timed out waiting for %s", replyType)
	}
}

func (s *Session) write(eventType string, payload any) error {
	envelope, err := ws.NewEnvelope(eventType, payload)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.socket.WriteJSON(envelope)
}

func (s *Session) readLoop() {
	defer func() {
		s.mu.Lock()
		s.closed = true
		waiter := s.waiter
		s.waiter = nil
		s.mu.Unlock()
		if waiter != nil {
			close(waiter)
		}
		close(s.done)
		s.notifyStatus(StatusDisconnected)
	}()

	for {
		var envelope ws.Envelope
		if err := s.socket.ReadJSON(&envelope); err != nil {
			return
		}
		switch envelope.Type {
		case ws.EventNewMessage:
			s.handleNewMessage(envelope)
		case ws.EventError:
			s.handleErrorFrame(envelope)
		default:
			s.deliverReply(envelope)
		}
	}
}

func (s *Session) handleNewMessage(envelope ws.Envelope) {
	var payload ws.NewMessagePayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		s.log.Warn("Undecodable message frame", "error", err)
		return
	}
	message, err := ws.FromWire(payload.Message)
	if err != nil {
		s.log.Warn("Undecodable message frame", "error", err)
		return
	}
	message.Room = chat.RoomID(payload.ProjectID)

	s.mu.Lock()
	current := s.room
	listeners := make([]func(chat.Message), 0, len(s.subs))
	for _, fn := range s.subs {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	// A frame for a room we already left is stale; skip it.
	if current != message.Room {
		return
	}
	s.timeline.Append(message)
	for _, fn := range listeners {
		fn(message)
	}
}

// handleErrorFrame resolves a pending request if one is waiting,
// otherwise fans the error out to OnError subscribers.
//
// The protocol carries no correlation ids, so attribution leans on the
// single-in-flight request discipline (reqMu): while a request waits,
// the only error frames the server can emit for this socket are replies
// to it or to an earlier fire-and-forget Send, and a Send rejection
// racing a pending request would resolve that request instead of
// reaching OnError. Callers who need exact attribution should not
// overlap Send with a request/reply call.
func (s *Session) handleErrorFrame(envelope ws.Envelope) {
	s.mu.Lock()
	waiter := s.waiter
	s.mu.Unlock()
	if waiter != nil {
		select {
		case waiter <- envelope:
			return
		default:
		}
	}

	var payload ws.ErrorPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		s.log.Warn("Undecodable error frame", "error", err)
		return
	}
	s.mu.Lock()
	listeners := make([]func(string, string), 0, len(s.errSubs))
	for _, fn := range s.errSubs {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(payload.Code, payload.Message)
	}
}

func (s *Session) deliverReply(envelope ws.Envelope) {
	s.mu.Lock()
	waiter := s.waiter
	s.mu.Unlock()
	if waiter == nil {
		s.log.Debug("Reply with no pending request", "type", envelope.Type)
		return
	}
	select {
	case waiter <- envelope:
	default:
	}
}

func (s *Session) notifyStatus(status Status) {
	s.mu.Lock()
	listeners := make([]func(Status), 0, len(s.statSubs))
	for _, fn := range s.statSubs {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(status)
	}
}

func decodeErrorFrame(envelope ws.Envelope) error {
	var payload ws.ErrorPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return fmt.Errorf("undecodable error frame: %w", err)
	}
	switch payload.Code {
	case ws.CodeAuthError:
		return fmt.Errorf("%w: %s", errors.ErrIdentityUnresolved, payload.Message)
	case ws.CodeNotAMember:
		return fmt.Errorf("%w: %s", errors.ErrNotAProjectMember, payload.Message)
	default:
		return stderrors.New(payload.Message)
	}
}

func fromWirePage(wireMessages []ws.WireMessage, room chat.RoomID) ([]chat.Message, error) {
	page := make([]chat.Message, 0, len(wireMessages))
	for _, wire := range wireMessages {
		message, err := ws.FromWire(wire)
		if err != nil {
			return nil, err
		}
		message.Room = room
		page = append(page, message)
	}
	return page, nil
}
