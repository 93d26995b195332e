package search

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"atelier-chat/domain/chat"
	"atelier-chat/domain/event"
)

func testIndex(t *testing.T) *MessageIndex {
	t.Helper()
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })
	return NewMessageIndex(writer, slog.Default(), 20)
}

func storedEvent(room chat.RoomID, content string) event.MessageStored {
	return event.MessageStored{Message: chat.Message{
		ID:        uuid.New(),
		Room:      room,
		Sender:    chat.Sender{ID: "u-alice", Name: "Alice"},
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}}
}

func Test_Search_Finds_Indexed_Message(t *testing.T) {
	req := require.New(t)
	index := testIndex(t)
	ctx := context.Background()

	evt := storedEvent("proj-1", "what about a teal velvet sofa")
	req.NoError(index.Consume(ctx, evt))
	req.NoError(index.Consume(ctx, storedEvent("proj-1", "the kitchen needs more light")))

	hits, err := index.Search(ctx, chat.RoomID("proj-1"), "sofa")
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal(evt.Message.ID.String(), hits[0].MessageID)
	req.Equal("what about a teal velvet sofa", hits[0].Content)
}

func Test_Search_Scoped_To_Room(t *testing.T) {
	req := require.New(t)
	index := testIndex(t)
	ctx := context.Background()

	req.NoError(index.Consume(ctx, storedEvent("proj-1", "walnut dining table")))
	req.NoError(index.Consume(ctx, storedEvent("proj-2", "walnut bookshelf")))

	hits, err := index.Search(ctx, chat.RoomID("proj-2"), "walnut")
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal("walnut bookshelf", hits[0].Content)
}

func Test_Search_No_Match(t *testing.T) {
	req := require.New(t)
	index := testIndex(t)
	ctx := context.Background()

	req.NoError(index.Consume(ctx, storedEvent("proj-1", "walnut dining table")))

	hits, err := index.Search(ctx, chat.RoomID("proj-1"), "marble")
	req.NoError(err)
	req.Empty(hits)
}

func Test_Consume_Ignores_Other_Events(t *testing.T) {
	req := require.New(t)
	index := testIndex(t)

	req.NoError(index.Consume(context.Background(), event.ParticipantJoined{
		RoomID: "proj-1", UserID: "u-alice",
	}))
}
