// Package search maintains a full-text index over stored messages.
// It is fed as a permanent fan-out sink and queried per room; it is a
// projection rebuilt from the message log, never a source of truth.
package search

import (
	"context"
	"log/slog"

	"github.com/blugelabs/bluge"

	"atelier-chat/contract"
	"atelier-chat/domain/chat"
	"atelier-chat/domain/event"
)

var _ contract.EventSink = (*MessageIndex)(nil)

type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
	limit  int
}

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger, limit int) *MessageIndex {
	return &MessageIndex{writer: writer, log: log, limit: limit}
}

// Consume indexes stored messages as they fan out. Indexing lag is
// invisible to chat delivery; a failed update only degrades search.
func (i *MessageIndex) Consume(_ context.Context, e event.DomainEvent) error {
	stored, ok := e.(event.MessageStored)
	if !ok {
		return nil
	}
	message := stored.Message

	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewKeywordField("room", string(message.Room))).
		AddField(bluge.NewTextField("content", message.Content).StoreValue()).
		AddField(bluge.NewKeywordField("author", message.Sender.ID)).
		AddField(bluge.NewDateTimeField("at", message.CreatedAt))

	if err := i.writer.Update(doc.ID(), doc); err != nil {
		i.log.Error("failed to index message", "message_id", message.ID, "error", err)
		return err
	}
	return nil
}

// Search returns the best matches for query inside one room's history.
func (i *MessageIndex) Search(ctx context.Context, room chat.RoomID, query string) ([]contract.SearchHit, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(string(room)).SetField("room")).
		AddMust(bluge.NewMatchQuery(query).SetField("content"))

	request := bluge.NewTopNSearch(i.limit, q)
	iterator, err := reader.Search(ctx, request)
	if err != nil {
		return nil, err
	}

	var hits []contract.SearchHit
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			break
		}

		var hit contract.SearchHit
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				hit.MessageID = string(value)
			case "content":
				hit.Content = string(value)
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
