package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"atelier-chat/contract"
	"atelier-chat/domain/chat"
	"atelier-chat/domain/event"
	"atelier-chat/errors"
	"atelier-chat/moderation"
	"atelier-chat/observability"
	"atelier-chat/repositories"
	"atelier-chat/runtime/workers"
	"atelier-chat/search"
)

var _ contract.IOrchestrator = (*Orchestrator)(nil)

// roomHandle is the write side of one active room: the command channel
// its worker drains. closed guards against sending after garbage
// collection.
type roomHandle struct {
	commands chan chat.Command
	closed   bool
}

// Orchestrator wires registry, room workers, and the fan-out pipeline.
// Rooms are created lazily on first join and garbage collected when
// their last member leaves; the worker drains pending appends first.
type Orchestrator struct {
	mu             sync.Mutex
	log            *slog.Logger
	supervisor     contract.ISupervisor
	registry       contract.IRegistry
	messages       repositories.IMessageRepository
	moderator      *moderation.Moderator
	index          *search.MessageIndex
	monitoring     *observability.Manager
	events         chan event.DomainEvent
	rooms          map[chat.RoomID]*roomHandle
	permanentSinks []contract.EventSink
	bufferSize     int
	sinkTimeout    time.Duration
	heartbeat      time.Duration

	runCtx context.Context
	cancel context.CancelFunc
}

func NewOrchestrator(
	log *slog.Logger,
	supervisor contract.ISupervisor,
	registry contract.IRegistry,
	messages repositories.IMessageRepository,
	moderator *moderation.Moderator,
	index *search.MessageIndex,
	monitoring *observability.Manager,
	bufferSize int,
	sinkTimeout time.Duration,
	heartbeat time.Duration) *Orchestrator {
	return &Orchestrator{
		log:         log,
		supervisor:  supervisor,
		registry:    registry,
		messages:    messages,
		moderator:   moderator,
		index:       index,
		monitoring:  monitoring,
		events:      make(chan event.DomainEvent, bufferSize),
		rooms:       make(map[chat.RoomID]*roomHandle),
		bufferSize:  bufferSize,
		sinkTimeout: sinkTimeout,
		heartbeat:   heartbeat,
	}
}

// Add registers extra permanent sinks before Start (projections,
// test probes). Connection sinks go through the registry instead.
func (o *Orchestrator) Add(sinks ...contract.EventSink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.permanentSinks = append(o.permanentSinks, sinks...)
}

// Start launches the long-lived workers and returns; room workers are
// started on demand by JoinRoom. Must be called before any room
// operation.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	runCtx, cancel := context.WithCancel(ctx)
	o.runCtx = runCtx
	o.cancel = cancel

	sinks := o.permanentSinks
	if o.index != nil {
		sinks = append(sinks, o.index)
	}
	fanout := workers.NewEventFanout(o.log, o.registry, sinks, o.events, o.sinkTimeout, o.monitoring)
	o.supervisor.Add(fanout)
	if o.heartbeat > 0 {
		o.supervisor.Add(workers.NewHeartbeatWorker(o.log, o.monitoring, o.heartbeat))
	}
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers")
	go o.supervisor.Run(runCtx)
	return nil
}

// Stop initiates a graceful shutdown: workers observe the cancellation
// and stop; room workers abandon queued commands at this point, which
// only happens on process exit.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	if o.cancel != nil {
		o.cancel()
	}
	o.supervisor.Stop()
}

// JoinRoom records the membership and guarantees the room's worker is
// running. If the connection was in another room it is moved, and the
// previous room is collected when left empty.
func (o *Orchestrator) JoinRoom(connID contract.ConnID, roomID chat.RoomID, userID string, sink contract.EventSink) {
	previous, moved := o.registry.Subscribe(connID, roomID, sink)

	o.mu.Lock()
	o.ensureRoomLocked(roomID)
	if moved {
		o.collectLocked(previous)
	}
	o.mu.Unlock()

	o.emit(event.ParticipantJoined{RoomID: roomID, UserID: userID})
}

func (o *Orchestrator) LeaveRoom(connID contract.ConnID, roomID chat.RoomID, userID string) {
	o.registry.Unsubscribe(connID, roomID)

	o.mu.Lock()
	o.collectLocked(roomID)
	o.mu.Unlock()

	o.emit(event.ParticipantLeft{RoomID: roomID, UserID: userID})
}

// DropConnection releases everything tied to a closed transport.
func (o *Orchestrator) DropConnection(connID contract.ConnID) {
	previous, wasMember := o.registry.Drop(connID)
	if !wasMember {
		return
	}
	o.mu.Lock()
	o.collectLocked(previous)
	o.mu.Unlock()
}

// PostMessage hands a send intent to the room's worker. Appends for one
// room are serialized by that worker, so acceptance order is delivery
// order. A full queue is reported to the sender instead of dropping
// silently.
func (o *Orchestrator) PostMessage(_ context.Context, cmd chat.PostMessageCommand) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	handle, ok := o.rooms[cmd.Room()]
	if !ok || handle.closed {
		return errors.ErrNotAProjectMember
	}
	select {
	case handle.commands <- cmd:
		return nil
	default:
		o.log.Warn("Room command queue full", "room", cmd.Room())
		return errors.ErrRoomBusy
	}
}

func (o *Orchestrator) GetMessages(cmd chat.GetMessagesCommand) ([]chat.Message, *string, error) {
	diskMessages, cursor, err := o.messages.History(cmd.RoomID, cmd.Cursor)
	if err != nil {
		return nil, nil, err
	}
	messages := lo.Map(diskMessages, func(item repositories.DiskMessage, _ int) chat.Message {
		return repositories.FromDisk(item)
	})
	return messages, cursor, nil
}

func (o *Orchestrator) SearchMessages(ctx context.Context, roomID chat.RoomID, query string) ([]contract.SearchHit, error) {
	return o.index.Search(ctx, roomID, query)
}

// ensureRoomLocked starts the room's worker on first join.
// Must be called with o.mu held, after Start.
func (o *Orchestrator) ensureRoomLocked(roomID chat.RoomID) {
	if _, ok := o.rooms[roomID]; ok {
		return
	}
	handle := &roomHandle{commands: make(chan chat.Command, o.bufferSize)}
	o.rooms[roomID] = handle
	o.monitoring.RoomOpened()

	worker := workers.NewRoomWorker(roomID, handle.commands, o.events,
		o.moderator, o.messages, o.monitoring, o.log)
	o.supervisor.Start(o.runCtx, worker)
	o.log.Info("Room opened", "room", roomID)
}

// collectLocked closes the room worker once the last member left.
// Closing the channel lets the worker finish pending appends before it
// returns; a fresh join later simply opens a new worker.
func (o *Orchestrator) collectLocked(roomID chat.RoomID) {
	if o.registry.MemberCount(roomID) > 0 {
		return
	}
	handle, ok := o.rooms[roomID]
	if !ok || handle.closed {
		return
	}
	handle.closed = true
	close(handle.commands)
	delete(o.rooms, roomID)
	o.monitoring.RoomClosed()
	o.log.Info("Room collected", "room", roomID)
}

// emit pushes an observability event without ever blocking a caller.
func (o *Orchestrator) emit(evt event.DomainEvent) {
	select {
	case o.events <- evt:
	default:
		o.log.Debug("Event channel full, observability event lost", "room", evt.Room())
	}
}
