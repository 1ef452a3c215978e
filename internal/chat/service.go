package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/loveyoulani/chat/internal/store"
	"github.com/loveyoulani/chat/internal/ws"
	"github.com/loveyoulani/chat/pkg/metrics"
)

// RoomStore is the persistence contract the pipeline consumes.
// *store.Postgres implements it.
type RoomStore interface {
	InsertRoom(ctx context.Context, code string, createdAt, expiresAt time.Time) error
	FindRoomByCode(ctx context.Context, code string) (store.Room, error)
	AppendMessage(ctx context.Context, code string, m store.Message) error
	UpdateReaction(ctx context.Context, code, messageID, emoji, userID string) error
	AppendReply(ctx context.Context, code, messageID string, r store.Reply) error
	DeleteExpired(ctx context.Context, now time.Time) ([]string, error)
	ExtendRoom(ctx context.Context, code string, newExpiresAt time.Time) error
	DeleteRoom(ctx context.Context, code string) error
}

// Broadcaster fans events out to a room's live connections.
// *ws.Registry implements it.
type Broadcaster interface {
	Broadcast(code string, payload []byte)
	CloseRoom(code string, payload []byte)
}

const createAttempts = 5

type Service struct {
	log     *slog.Logger
	db      RoomStore
	reg     Broadcaster
	box     *SecretBox // nil means plaintext at rest
	ttl     time.Duration
	newCode func() string
	now     func() time.Time
}

func NewService(log *slog.Logger, db RoomStore, reg Broadcaster, box *SecretBox, ttl time.Duration) *Service {
	return &Service{
		log:     log,
		db:      db,
		reg:     reg,
		box:     box,
		ttl:     ttl,
		newCode: newCodeGenerator(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateRoom allocates a fresh code and inserts the room. Code clashes
// are retried a few times before giving up.
func (s *Service) CreateRoom(ctx context.Context) (store.Room, error) {
	var err error
	for i := 0; i < createAttempts; i++ {
		code := s.newCode()
		now := s.now()
		exp := now.Add(s.ttl)
		err = s.db.InsertRoom(ctx, code, now, exp)
		if err == nil {
			s.log.Info("room.created", "room", code, "expires_at", exp)
			return store.Room{Code: code, CreatedAt: now, ExpiresAt: exp}, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return store.Room{}, err
		}
	}
	return store.Room{}, fmt.Errorf("allocate room code: %w", err)
}

// RoomExists reports whether a room is in the store.
func (s *Service) RoomExists(ctx context.Context, code string) error {
	_, err := s.db.FindRoomByCode(ctx, code)
	return err
}

// Post runs the message pipeline for an inbound content frame: assign an
// id, encrypt for storage, persist, then broadcast the plaintext event.
// Persist failures mean no broadcast, never the other way around.
func (s *Service) Post(ctx context.Context, code string, in ws.Inbound) error {
	id := uuid.NewString()
	now := s.now()

	content := in.Content
	encrypted := false
	if s.box != nil {
		ct, err := s.box.Seal(in.Content)
		if err != nil {
			return fmt.Errorf("seal message: %w", err)
		}
		content = ct
		encrypted = true
	}

	m := store.Message{
		ID:        id,
		Sender:    in.Sender,
		Content:   content,
		Encrypted: encrypted,
		MediaURL:  in.MediaURL,
		MediaType: in.MediaType,
		CreatedAt: now,
	}
	if err := s.db.AppendMessage(ctx, code, m); err != nil {
		return err
	}
	metrics.MessagesTotal.Inc()

	s.reg.Broadcast(code, ws.Marshal(ws.MessageEvent{
		Type:      "message",
		ID:        id,
		Content:   in.Content,
		Sender:    in.Sender,
		Timestamp: now,
		MediaURL:  in.MediaURL,
		MediaType: in.MediaType,
	}))
	return nil
}

// React upserts userID under emoji on a message. Reacting twice with the
// same emoji is a no-op for the count. NotFound if the message isn't in
// the room; nothing is broadcast in that case.
func (s *Service) React(ctx context.Context, code, messageID, emoji, userID string) error {
	if _, err := uuid.Parse(messageID); err != nil {
		return store.ErrNotFound
	}
	if err := s.db.UpdateReaction(ctx, code, messageID, emoji, userID); err != nil {
		return err
	}
	s.reg.Broadcast(code, ws.Marshal(ws.ReactionEvent{
		Type:      "reaction",
		MessageID: messageID,
		Emoji:     emoji,
		UserID:    userID,
	}))
	return nil
}

// Reply appends a reply to an existing message and broadcasts it with
// plaintext content. NotFound if the target message doesn't exist.
func (s *Service) Reply(ctx context.Context, code, messageID, content, sender string) (store.Reply, error) {
	if _, err := uuid.Parse(messageID); err != nil {
		return store.Reply{}, store.ErrNotFound
	}
	now := s.now()
	r := store.Reply{
		ID:                uuid.NewString(),
		OriginalMessageID: messageID,
		Sender:            sender,
		Content:           content,
		CreatedAt:         now,
	}
	if s.box != nil {
		ct, err := s.box.Seal(content)
		if err != nil {
			return store.Reply{}, fmt.Errorf("seal reply: %w", err)
		}
		r.Content = ct
		r.Encrypted = true
	}
	if err := s.db.AppendReply(ctx, code, messageID, r); err != nil {
		return store.Reply{}, err
	}

	s.reg.Broadcast(code, ws.Marshal(ws.ReplyEvent{
		Type:      "reply",
		MessageID: messageID,
		Reply: ws.ReplyBody{
			ID:        r.ID,
			Content:   content,
			Sender:    sender,
			Timestamp: now,
		},
	}))
	r.Content = content
	r.Encrypted = false
	return r, nil
}

// ExtendRoom pushes the expiry to now + extra.
func (s *Service) ExtendRoom(ctx context.Context, code string, extra time.Duration) (time.Time, error) {
	exp := s.now().Add(extra)
	if err := s.db.ExtendRoom(ctx, code, exp); err != nil {
		return time.Time{}, err
	}
	s.log.Info("room.extended", "room", code, "expires_at", exp)
	return exp, nil
}

// DeleteRoom removes the room and drops its live connections with a
// room_closed notice.
func (s *Service) DeleteRoom(ctx context.Context, code string) error {
	if err := s.db.DeleteRoom(ctx, code); err != nil {
		return err
	}
	s.reg.CloseRoom(code, ws.RoomClosed())
	return nil
}

// Transcript is a room's decrypted message history.
type Transcript struct {
	Code      string              `json:"code"`
	CreatedAt time.Time           `json:"created_at"`
	ExpiresAt time.Time           `json:"expires_at"`
	Messages  []TranscriptMessage `json:"messages"`
}

type TranscriptMessage struct {
	ID        string              `json:"id"`
	Sender    string              `json:"sender"`
	Content   string              `json:"content"`
	Timestamp time.Time           `json:"timestamp"`
	MediaURL  string              `json:"media_url,omitempty"`
	MediaType string              `json:"media_type,omitempty"`
	Reactions map[string][]string `json:"reactions,omitempty"`
	Replies   []TranscriptReply   `json:"replies,omitempty"`
	Error     string              `json:"error,omitempty"`
}

type TranscriptReply struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// Transcript fetches a room and decrypts its messages. A message that
// fails to decrypt is surfaced with an error marker; the rest of the
// transcript is unaffected.
func (s *Service) Transcript(ctx context.Context, code string) (Transcript, error) {
	rm, err := s.db.FindRoomByCode(ctx, code)
	if err != nil {
		return Transcript{}, err
	}

	t := Transcript{Code: rm.Code, CreatedAt: rm.CreatedAt, ExpiresAt: rm.ExpiresAt}
	for _, m := range rm.Messages {
		tm := TranscriptMessage{
			ID:        m.ID,
			Sender:    m.Sender,
			Content:   m.Content,
			Timestamp: m.CreatedAt,
			MediaURL:  m.MediaURL,
			MediaType: m.MediaType,
			Reactions: m.Reactions,
		}
		if m.Encrypted {
			tm.Content, err = s.open(m.Content)
			if err != nil {
				tm.Content = ""
				tm.Error = "decrypt failed"
			}
		}
		for _, r := range m.Replies {
			tr := TranscriptReply{ID: r.ID, Sender: r.Sender, Content: r.Content, Timestamp: r.CreatedAt}
			if r.Encrypted {
				tr.Content, err = s.open(r.Content)
				if err != nil {
					tr.Content = ""
					tr.Error = "decrypt failed"
				}
			}
			tm.Replies = append(tm.Replies, tr)
		}
		t.Messages = append(t.Messages, tm)
	}
	return t, nil
}

func (s *Service) open(ciphertext string) (string, error) {
	if s.box == nil {
		return "", ErrDecrypt
	}
	return s.box.Open(ciphertext)
}
