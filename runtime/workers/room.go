package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/google/uuid"

	"atelier-chat/contract"
	"atelier-chat/domain/chat"
	"atelier-chat/domain/event"
	"atelier-chat/moderation"
	"atelier-chat/observability"
	"atelier-chat/repositories"
)

var _ contract.Worker = (*RoomWorker)(nil)

// RoomWorker owns one room's whole write path: moderation, persistence,
// and event emission all happen on this goroutine, in command arrival
// order. That single ownership is what makes the history order and the
// fan-out order coincide for a room; different rooms run independently.
//
// The worker drains its command channel before exiting, so an append
// accepted before the channel closed still completes and fans out even
// if its sender is already gone.
type RoomWorker struct {
	room       chat.RoomID
	commands   chan chat.Command
	events     chan event.DomainEvent
	moderator  *moderation.Moderator
	messages   repositories.IMessageRepository
	monitoring *observability.Manager
	log        *slog.Logger
}

func NewRoomWorker(
	room chat.RoomID,
	commands chan chat.Command,
	events chan event.DomainEvent,
	moderator *moderation.Moderator,
	messages repositories.IMessageRepository,
	monitoring *observability.Manager,
	log *slog.Logger) *RoomWorker {
	return &RoomWorker{
		room:       room,
		commands:   commands,
		events:     events,
		moderator:  moderator,
		messages:   messages,
		monitoring: monitoring,
		log:        log,
	}
}

func (w *RoomWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping worker", "room", w.room)
			return ctx.Err()
		case cmd, ok := <-w.commands:
			if !ok {
				w.log.Debug("Room channel closed", "room", w.room)
				return nil
			}
			postCmd, ok := cmd.(chat.PostMessageCommand)
			if !ok {
				continue
			}
			stored, err := w.process(postCmd)
			if err != nil {
				// Validation failures were already reported to the
				// sender at the transport; anything landing here is a
				// storage problem worth surfacing.
				w.log.Error("failed to append message",
					"room", w.room,
					"sender", postCmd.Sender.ID,
					"error", err)
				continue
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case w.events <- stored:
			}
		}
	}
}

// process moderates and persists one message, assigning the
// authoritative id and timestamp.
func (w *RoomWorker) process(cmd chat.PostMessageCommand) (event.MessageStored, error) {
	sanitized, foundWords := w.moderator.Censor(cmd.Content)

	lang := ""
	if len(foundWords) > 0 {
		info := whatlanggo.Detect(cmd.Content)
		lang = info.Lang.Iso6391()
		w.log.Warn(fmt.Sprintf("Masked %d span(s) in message", len(foundWords)),
			"room", w.room,
			"sender", cmd.Sender.ID,
			"lang", lang,
			"words", foundWords)
	}

	message := chat.Message{
		ID:        uuid.New(),
		Room:      w.room,
		Sender:    cmd.Sender,
		Content:   sanitized,
		CreatedAt: time.Now().UTC(),
	}

	if err := w.messages.Append(repositories.ToDisk(message)); err != nil {
		return event.MessageStored{}, err
	}
	w.monitoring.MessagePersisted()

	return event.MessageStored{
		Message:       message,
		CensoredWords: foundWords,
		Lang:          lang,
	}, nil
}
