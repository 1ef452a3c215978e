package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"log/slog"

	"github.com/loveyoulani/chat/internal/store"
)

// Pipeline turns inbound content frames into persisted, broadcast
// messages. Implemented by the chat service.
type Pipeline interface {
	Post(ctx context.Context, code string, in Inbound) error
	RoomExists(ctx context.Context, code string) error
}

type Hub struct {
	log  *slog.Logger
	reg  *Registry
	pipe Pipeline
}

// NewHub wires the registry to the message pipeline
func NewHub(log *slog.Logger, reg *Registry, pipe Pipeline) *Hub {
	return &Hub{log: log, reg: reg, pipe: pipe}
}

// Registry exposes the connection registry for collaborators that need
// to fan out events (service, sweeper).
func (h *Hub) Registry() *Registry { return h.reg }

// ServeWS handles a /ws/{code} connection for its whole lifetime:
// accept, register, serve inbound frames, unregister.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := r.PathValue("code")
	if code == "" {
		http.Error(w, "room code required", http.StatusBadRequest)
		return
	}
	if err := h.pipe.RoomExists(ctx, code); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		http.Error(w, "store unavailable", http.StatusInternalServerError)
		return
	}

	conn, err := Accept(w, r)
	if err != nil {
		h.log.Error("ws.accept", "err", err)
		return
	}

	c := NewConn(conn, code)
	go c.WriteLoop(ctx)
	h.reg.Join(code, c)
	h.log.Debug("ws.join", "room", code)

	for {
		payload, ok := c.Read(ctx)
		if !ok {
			break
		}

		var in Inbound
		if err := json.Unmarshal(payload, &in); err != nil {
			// One bad frame does not kill the session.
			h.log.Debug("ws.frame.malformed", "room", code, "err", err)
			continue
		}

		if in.Type == "typing" {
			// Typing indicators are never persisted; rebroadcast verbatim.
			h.reg.Broadcast(code, payload)
			continue
		}

		if in.Content == "" || in.Sender == "" {
			h.log.Debug("ws.frame.malformed", "room", code, "err", "missing content or sender")
			continue
		}

		if err := h.pipe.Post(ctx, code, in); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Room swept mid-session; nothing left to write to.
				h.log.Info("ws.room.gone", "room", code)
				break
			}
			// Persist failed: the message was not broadcast. Keep serving.
			h.log.Error("ws.post", "room", code, "err", err)
		}
	}

	h.reg.Leave(code, c)
	_ = c.Close()
	h.log.Debug("ws.leave", "room", code)
}
