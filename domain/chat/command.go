package chat

import "time"

type Command interface {
	Room() RoomID
}

// PostMessageCommand carries a validated send intent into a room's
// processing pipeline. ReceivedAt is when the server accepted the
// intent; the stored message gets its own timestamp at append time.
type PostMessageCommand struct {
	RoomID     RoomID
	Sender     Sender
	Content    string
	ReceivedAt time.Time
}

func (c PostMessageCommand) Room() RoomID {
	return c.RoomID
}

// GetMessagesCommand requests a page of history. A nil cursor starts
// from the most recent message.
type GetMessagesCommand struct {
	RoomID RoomID
	Cursor *string
}

func (c GetMessagesCommand) Room() RoomID {
	return c.RoomID
}
