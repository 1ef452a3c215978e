package ws

import (
	"encoding/json"
	"time"
)

// Outbound event frames. Every frame carries a "type" discriminator so
// clients can switch on it.

type UserCountEvent struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type MessageEvent struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	MediaURL  string    `json:"media_url,omitempty"`
	MediaType string    `json:"media_type,omitempty"`
}

type ReactionEvent struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
	UserID    string `json:"user_id"`
}

type ReplyEvent struct {
	Type      string    `json:"type"`
	MessageID string    `json:"message_id"`
	Reply     ReplyBody `json:"reply"`
}

type ReplyBody struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

type RoomClosedEvent struct {
	Type string `json:"type"`
}

// Inbound is a client frame. Typing indicators carry Type "typing" and are
// rebroadcast verbatim; everything else is a content message.
type Inbound struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Sender    string `json:"sender"`
	MediaURL  string `json:"media_url"`
	MediaType string `json:"media_type"`
}

// UserCount builds a presence frame.
func UserCount(n int) []byte {
	return Marshal(UserCountEvent{Type: "user_count", Count: n})
}

// RoomClosed builds the frame sent before a room's connections are dropped.
func RoomClosed() []byte {
	return Marshal(RoomClosedEvent{Type: "room_closed"})
}

// Marshal encodes an event frame. Event structs cannot fail to encode.
func Marshal(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
