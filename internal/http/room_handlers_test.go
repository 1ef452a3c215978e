package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loveyoulani/chat/internal/app"
	"github.com/loveyoulani/chat/internal/chat"
	"github.com/loveyoulani/chat/internal/store"
	"github.com/loveyoulani/chat/internal/ws"
)

// memStore is a minimal in-memory RoomStore for handler tests.
type memStore struct {
	mu    sync.Mutex
	rooms map[string]*store.Room
}

func newMemStore() *memStore { return &memStore{rooms: map[string]*store.Room{}} }

func (f *memStore) InsertRoom(_ context.Context, code string, createdAt, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rooms[code]; ok {
		return store.ErrConflict
	}
	f.rooms[code] = &store.Room{Code: code, CreatedAt: createdAt, ExpiresAt: expiresAt}
	return nil
}

func (f *memStore) FindRoomByCode(_ context.Context, code string) (store.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rm, ok := f.rooms[code]
	if !ok {
		return store.Room{}, store.ErrNotFound
	}
	return *rm, nil
}

func (f *memStore) AppendMessage(_ context.Context, code string, m store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rm, ok := f.rooms[code]
	if !ok {
		return store.ErrNotFound
	}
	rm.Messages = append(rm.Messages, m)
	return nil
}

func (f *memStore) UpdateReaction(_ context.Context, code, messageID, emoji, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.find(code, messageID)
	if m == nil {
		return store.ErrNotFound
	}
	if m.Reactions == nil {
		m.Reactions = map[string][]string{}
	}
	m.Reactions[emoji] = append(m.Reactions[emoji], userID)
	return nil
}

func (f *memStore) AppendReply(_ context.Context, code, messageID string, r store.Reply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.find(code, messageID)
	if m == nil {
		return store.ErrNotFound
	}
	m.Replies = append(m.Replies, r)
	return nil
}

func (f *memStore) DeleteExpired(context.Context, time.Time) ([]string, error) { return nil, nil }

func (f *memStore) ExtendRoom(_ context.Context, code string, newExpiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rm, ok := f.rooms[code]
	if !ok {
		return store.ErrNotFound
	}
	rm.ExpiresAt = newExpiresAt
	return nil
}

func (f *memStore) DeleteRoom(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rooms[code]; !ok {
		return store.ErrNotFound
	}
	delete(f.rooms, code)
	return nil
}

func (f *memStore) find(code, messageID string) *store.Message {
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

func newTestServer(t *testing.T) (*httptest.Server, *chat.Service) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := app.Config{
		Env:       "test",
		JWTSecret: "test-secret",
		CORSAllow: []string{"http://localhost"},
		RoomTTL:   24 * time.Hour,
	}
	db := newMemStore()
	reg := ws.NewRegistry(logger)
	svc := chat.NewService(logger, db, reg, nil, cfg.RoomTTL)
	hub := ws.NewHub(logger, reg, svc)

	// Unreachable redis: the limiter fails open, which is what we want here.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})

	srv := httptest.NewServer(NewRouter(cfg, logger, hub, svc, rdb))
	t.Cleanup(srv.Close)
	return srv, svc
}

type createdRoom struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
	Token     string    `json:"token"`
}

func createRoom(t *testing.T, srv *httptest.Server) createdRoom {
	t.Helper()
	resp, err := http.Post(srv.URL+"/rooms", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out createdRoom
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Code, 10)
	require.NotEmpty(t, out.Token)
	return out
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestCreateAndFetchRoom(t *testing.T) {
	srv, _ := newTestServer(t)
	rm := createRoom(t, srv)

	resp, err := http.Get(srv.URL + "/rooms/" + rm.Code)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tr chat.Transcript
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tr))
	assert.Equal(t, rm.Code, tr.Code)
	assert.Empty(t, tr.Messages)
}

func TestFetchUnknownRoom(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/rooms/nosuchroom")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExtendRequiresRoomToken(t *testing.T) {
	srv, _ := newTestServer(t)
	rm := createRoom(t, srv)
	other := createRoom(t, srv)

	// No token.
	resp := doJSON(t, http.MethodPost, srv.URL+"/rooms/"+rm.Code+"/extend", "", map[string]int{"hours": 48})
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Token for a different room.
	resp = doJSON(t, http.MethodPost, srv.URL+"/rooms/"+rm.Code+"/extend", other.Token, map[string]int{"hours": 48})
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// The room's own token.
	resp = doJSON(t, http.MethodPost, srv.URL+"/rooms/"+rm.Code+"/extend", rm.Token, map[string]int{"hours": 48})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out createdRoom
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.ExpiresAt.After(rm.ExpiresAt))
}

func TestDeleteRoom(t *testing.T) {
	srv, _ := newTestServer(t)
	rm := createRoom(t, srv)

	resp := doJSON(t, http.MethodDelete, srv.URL+"/rooms/"+rm.Code, rm.Token, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	get, err := http.Get(srv.URL + "/rooms/" + rm.Code)
	require.NoError(t, err)
	get.Body.Close()
	assert.Equal(t, http.StatusNotFound, get.StatusCode)
}

func TestReactAndReply(t *testing.T) {
	srv, svc := newTestServer(t)
	rm := createRoom(t, srv)

	// Seed one message through the pipeline.
	require.NoError(t, svc.Post(context.Background(), rm.Code, ws.Inbound{Content: "hi", Sender: "alice"}))
	tr, err := svc.Transcript(context.Background(), rm.Code)
	require.NoError(t, err)
	require.Len(t, tr.Messages, 1)
	id := tr.Messages[0].ID

	resp := doJSON(t, http.MethodPost, srv.URL+"/rooms/"+rm.Code+"/messages/"+id+"/react", "",
		map[string]string{"emoji": "🔥", "user_id": "u1"})
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/rooms/"+rm.Code+"/messages/"+id+"/reply", "",
		map[string]string{"content": "me too", "sender": "bob"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var rep store.Reply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rep))
	assert.Equal(t, id, rep.OriginalMessageID)
	assert.Equal(t, "me too", rep.Content)
}

func TestReactUnknownMessage(t *testing.T) {
	srv, _ := newTestServer(t)
	rm := createRoom(t, srv)

	resp := doJSON(t, http.MethodPost, srv.URL+"/rooms/"+rm.Code+"/messages/0b7f4e2a-9a1f-4b57-8f3e-1c2d3e4f5a6b/react", "",
		map[string]string{"emoji": "🔥", "user_id": "u1"})
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
