package chat

import (
	"context"
	"io"
	"sync"
	"time"

	"log/slog"

	"github.com/loveyoulani/chat/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore is an in-memory RoomStore with the same error contract as
// the postgres implementation.
type fakeStore struct {
	mu    sync.Mutex
	rooms map[string]*store.Room

	insertErrs []error // scripted InsertRoom results, popped per call
	appendErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{rooms: map[string]*store.Room{}}
}

func (f *fakeStore) addRoom(code string, expiresAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms[code] = &store.Room{Code: code, CreatedAt: time.Now().UTC(), ExpiresAt: expiresAt}
}

func (f *fakeStore) InsertRoom(_ context.Context, code string, createdAt, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.insertErrs) > 0 {
		err := f.insertErrs[0]
		f.insertErrs = f.insertErrs[1:]
		if err != nil {
			return err
		}
	}
	if _, ok := f.rooms[code]; ok {
		return store.ErrConflict
	}
	f.rooms[code] = &store.Room{Code: code, CreatedAt: createdAt, ExpiresAt: expiresAt}
	return nil
}

func (f *fakeStore) FindRoomByCode(_ context.Context, code string) (store.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rm, ok := f.rooms[code]
	if !ok {
		return store.Room{}, store.ErrNotFound
	}
	return *rm, nil
}

func (f *fakeStore) AppendMessage(_ context.Context, code string, m store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	rm, ok := f.rooms[code]
	if !ok {
		return store.ErrNotFound
	}
	rm.Messages = append(rm.Messages, m)
	return nil
}

func (f *fakeStore) UpdateReaction(_ context.Context, code, messageID, emoji, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.findMessage(code, messageID)
	if m == nil {
		return store.ErrNotFound
	}
	if m.Reactions == nil {
		m.Reactions = map[string][]string{}
	}
	for _, u := range m.Reactions[emoji] {
		if u == userID {
			return nil
		}
	}
	m.Reactions[emoji] = append(m.Reactions[emoji], userID)
	return nil
}

func (f *fakeStore) AppendReply(_ context.Context, code, messageID string, r store.Reply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.findMessage(code, messageID)
	if m == nil {
		return store.ErrNotFound
	}
	m.Replies = append(m.Replies, r)
	return nil
}

func (f *fakeStore) DeleteExpired(_ context.Context, now time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var codes []string
	for code, rm := range f.rooms {
		if !rm.ExpiresAt.After(now) {
			codes = append(codes, code)
			delete(f.rooms, code)
		}
	}
	return codes, nil
}

func (f *fakeStore) ExtendRoom(_ context.Context, code string, newExpiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rm, ok := f.rooms[code]
	if !ok {
		return store.ErrNotFound
	}
	rm.ExpiresAt = newExpiresAt
	return nil
}

func (f *fakeStore) DeleteRoom(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rooms[code]; !ok {
		return store.ErrNotFound
	}
	delete(f.rooms, code)
	return nil
}

// findMessage must be called with f.mu held.
func (f *fakeStore) findMessage(code, messageID string) *store.Message {
	rm, ok := f.rooms[code]
	if !ok {
		return nil
	}
	for i := range rm.Messages {
		if rm.Messages[i].ID == messageID {
			return &rm.Messages[i]
		}
	}
	return nil
}

// fakeBroadcaster records fan-out calls.
type fakeBroadcaster struct {
	mu     sync.Mutex
	events []broadcastCall
	closed []string
}

type broadcastCall struct {
	code    string
	payload []byte
}

func (f *fakeBroadcaster) Broadcast(code string, payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, broadcastCall{code: code, payload: payload})
}

func (f *fakeBroadcaster) CloseRoom(code string, payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, code)
}

func (f *fakeBroadcaster) calls() []broadcastCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]broadcastCall(nil), f.events...)
}

func (f *fakeBroadcaster) closedRooms() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.closed...)
}
