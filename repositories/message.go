//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"atelier-chat/domain/chat"
	"atelier-chat/errors"
)

type IMessageRepository interface {
	Append(message DiskMessage) error
	History(room chat.RoomID, cursor *string) ([]DiskMessage, *string, error)
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

// NewMessageRepository builds the append-only message log. A nil
// limitMessages disables pagination: History then returns the full log.
func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

// DiskMessage is the stored form of a chat message. The sender profile
// is snapshotted at append time so history can be rendered without a
// directory lookup.
type DiskMessage struct {
	ID           uuid.UUID `json:"id"`
	Room         string    `json:"room"`
	SenderID     string    `json:"sender_id"`
	SenderName   string    `json:"sender_name"`
	SenderAvatar string    `json:"sender_avatar,omitempty"`
	Content      string    `json:"content"`
	At           time.Time `json:"at"`
}

// Append persists a message in BadgerDB.
// The key is formatted as "msg:{room_id}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two messages
//     arrive at the same nanosecond.
//
// An empty or whitespace-only body is rejected before any write, and so
// is a room id containing the key separator: "a" and "a:x" would
// otherwise share a prefix and leak across rooms on scan.
func (m MessageRepository) Append(message DiskMessage) error {
	if strings.TrimSpace(message.Content) == "" {
		return errors.ErrEmptyMessage
	}
	if strings.ContainsRune(message.Room, ':') {
		return errors.ErrInvalidRoom
	}
	key := fmt.Sprintf("msg:%s:%019d:%s",
		message.Room,
		message.At.UnixNano(),
		message.ID,
	)
	bytes, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

// History retrieves messages for a room using a prefix scan.
// Thanks to the padded timestamp in the key, messages are naturally sorted by time.
// The scan walks backwards from the cursor (or from the most recent entry when the
// cursor is nil) and stops once the configured limitMessages is reached; the page
// is then returned in ascending creation order, with a cursor for older messages.
func (m MessageRepository) History(room chat.RoomID, cursor *string) ([]DiskMessage, *string, error) {
	if strings.ContainsRune(string(room), ':') {
		return nil, nil, errors.ErrInvalidRoom
	}
	var raw [][]byte
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("msg:%s:", room)
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past the newest possible key, then walk backwards.
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(raw) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *m.limitMessages))
				break
			}
			item := it.Item()
			// Memorize cursor part of the actual key
			lastKey = string(item.Key()[prefixLen:])
			err := item.Value(func(value []byte) error {
				raw = append(raw, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	// The scan collected newest first; callers always get ascending order.
	diskMessages := make([]DiskMessage, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var message DiskMessage
		if err = json.Unmarshal(raw[i], &message); err != nil {
			return nil, nil, err
		}
		diskMessages = append(diskMessages, message)
	}
	if lastKey == "" {
		return diskMessages, nil, nil
	}
	return diskMessages, &lastKey, nil
}

// FromDisk converts a stored record back to the domain message.
func FromDisk(message DiskMessage) chat.Message {
	return chat.Message{
		ID:   message.ID,
		Room: chat.RoomID(message.Room),
		Sender: chat.Sender{
			ID:     message.SenderID,
			Name:   message.SenderName,
			Avatar: message.SenderAvatar,
		},
		Content:   message.Content,
		CreatedAt: message.At,
	}
}

// ToDisk snapshots a domain message for storage.
func ToDisk(message chat.Message) DiskMessage {
	return DiskMessage{
		ID:           message.ID,
		Room:         string(message.Room),
		SenderID:     message.Sender.ID,
		SenderName:   message.Sender.Name,
		SenderAvatar: message.Sender.Avatar,
		Content:      message.Content,
		At:           message.CreatedAt,
	}
}
