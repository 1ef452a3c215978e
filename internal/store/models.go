package store

import "time"

type Room struct {
	Code      string
	CreatedAt time.Time
	ExpiresAt time.Time
	Messages  []Message
}

type Message struct {
	ID        string
	Sender    string
	Content   string // ciphertext when Encrypted is set
	Encrypted bool
	MediaURL  string
	MediaType string
	Reactions map[string][]string // emoji -> user ids
	Replies   []Reply
	CreatedAt time.Time
}

type Reply struct {
	ID                string    `json:"id"`
	OriginalMessageID string    `json:"original_message_id"`
	Sender            string    `json:"sender"`
	Content           string    `json:"content"`
	Encrypted         bool      `json:"encrypted"`
	CreatedAt         time.Time `json:"created_at"`
}
