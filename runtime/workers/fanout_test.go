package workers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"atelier-chat/contract"
	"atelier-chat/domain/chat"
	"atelier-chat/domain/event"
	"atelier-chat/observability"
)

type recordingSink struct {
	mu     sync.Mutex
	events []event.DomainEvent
	fail   bool
}

func (s *recordingSink) Consume(_ context.Context, e event.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return fmt.Errorf("sink full")
	}
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) Events() []event.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.DomainEvent(nil), s.events...)
}

type fixedRegistry struct {
	sinks []contract.EventSink
}

func (r *fixedRegistry) SinksForRoom(chat.RoomID) []contract.EventSink { return r.sinks }
func (r *fixedRegistry) Subscribe(contract.ConnID, chat.RoomID, contract.EventSink) (chat.RoomID, bool) {
	return "", false
}
func (r *fixedRegistry) Unsubscribe(contract.ConnID, chat.RoomID)      {}
func (r *fixedRegistry) Drop(contract.ConnID) (chat.RoomID, bool)      { return "", false }
func (r *fixedRegistry) CurrentRoom(contract.ConnID) (chat.RoomID, bool) { return "", false }
func (r *fixedRegistry) MemberCount(chat.RoomID) int                   { return len(r.sinks) }

func stored(room chat.RoomID, content string) event.MessageStored {
	return event.MessageStored{Message: chat.Message{
		ID:        uuid.New(),
		Room:      room,
		Sender:    chat.Sender{ID: "u-alice", Name: "Alice"},
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}}
}

func TestEventFanout_Delivers_To_All_Members_In_Order(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromString("DEBUG")
	monitoring := observability.NewManager()

	member1 := &recordingSink{}
	member2 := &recordingSink{}
	permanent := &recordingSink{}
	registry := &fixedRegistry{sinks: []contract.EventSink{member1, member2}}

	fanout := NewEventFanout(log, registry, []contract.EventSink{permanent},
		make(chan event.DomainEvent), time.Second, monitoring)

	// When three messages fan out for the room
	first := stored("proj-1", "first")
	second := stored("proj-1", "second")
	third := stored("proj-1", "third")
	ctx := context.Background()
	fanout.Fanout(ctx, first)
	fanout.Fanout(ctx, second)
	fanout.Fanout(ctx, third)

	// Then every sink observed them exactly once, in append order
	want := []event.DomainEvent{first, second, third}
	req.Equal(want, member1.Events())
	req.Equal(want, member2.Events())
	req.Equal(want, permanent.Events())
	req.Equal(uint64(6), monitoring.Snapshot().MessagesDelivered)
}

func TestEventFanout_Broken_Sink_Does_Not_Block_Others(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromString("DEBUG")
	monitoring := observability.NewManager()

	broken := &recordingSink{fail: true}
	healthy := &recordingSink{}
	registry := &fixedRegistry{sinks: []contract.EventSink{broken, healthy}}

	fanout := NewEventFanout(log, registry, nil,
		make(chan event.DomainEvent), time.Second, monitoring)

	evt := stored("proj-1", "hello")
	fanout.Fanout(context.Background(), evt)

	req.Empty(broken.Events())
	req.Equal([]event.DomainEvent{evt}, healthy.Events())

	stats := monitoring.Snapshot()
	req.Equal(uint64(1), stats.MessagesDelivered)
	req.Equal(uint64(1), stats.MessagesDropped)
}

func TestEventFanout_Run_Consumes_Channel(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromString("DEBUG")

	member := &recordingSink{}
	registry := &fixedRegistry{sinks: []contract.EventSink{member}}
	events := make(chan event.DomainEvent, 4)

	fanout := NewEventFanout(log, registry, nil, events, time.Second, observability.NewManager())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = fanout.Run(ctx)
		close(done)
	}()

	evt := stored("proj-1", "via channel")
	events <- evt

	req.Eventually(func() bool {
		return len(member.Events()) == 1
	}, time.Second, 10*time.Millisecond)
	req.Equal(evt, member.Events()[0])

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("fanout did not stop on context cancellation")
	}
}

func TestEventFanout_Participant_Events_Not_Counted(t *testing.T) {
	req := require.New(t)
	monitoring := observability.NewManager()
	member := &recordingSink{}
	registry := &fixedRegistry{sinks: []contract.EventSink{member}}

	fanout := NewEventFanout(logs.GetLoggerFromString("DEBUG"), registry, nil,
		make(chan event.DomainEvent), time.Second, monitoring)

	fanout.Fanout(context.Background(), event.ParticipantJoined{RoomID: "proj-1", UserID: "u-alice"})

	req.Len(member.Events(), 1)
	req.Equal(uint64(0), monitoring.Snapshot().MessagesDelivered)
}
