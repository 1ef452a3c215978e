package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"log/slog"

	"github.com/loveyoulani/chat/internal/chat"
	"github.com/loveyoulani/chat/internal/store"
	"github.com/loveyoulani/chat/pkg/auth"
)

type RoomsAPI struct {
	Log *slog.Logger
	Svc *chat.Service
	JWT *auth.JWT
}

type roomResponse struct {
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Token     string    `json:"token,omitempty"`
}

// Create makes a new room and returns its code plus the admin token that
// authorizes extend/delete.
func (a *RoomsAPI) Create(w http.ResponseWriter, r *http.Request) {
	rm, err := a.Svc.CreateRoom(r.Context())
	if err != nil {
		a.Log.Error("room.create", "err", err)
		http.Error(w, "could not create room", http.StatusInternalServerError)
		return
	}

	tok, err := a.JWT.Sign(rm.Code, time.Until(rm.ExpiresAt))
	if err != nil {
		http.Error(w, "could not issue token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(roomResponse{Code: rm.Code, CreatedAt: rm.CreatedAt, ExpiresAt: rm.ExpiresAt, Token: tok})
}

// Get returns room metadata and the decrypted transcript.
func (a *RoomsAPI) Get(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	t, err := a.Svc.Transcript(r.Context(), code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, t)
}

type extendReq struct {
	Hours int `json:"hours"`
}

// Extend pushes the room expiry out. Requires the room's admin token.
func (a *RoomsAPI) Extend(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	var req extendReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Hours <= 0 {
		req.Hours = 24
	}

	exp, err := a.Svc.ExtendRoom(r.Context(), code, time.Duration(req.Hours)*time.Hour)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, roomResponse{Code: code, ExpiresAt: exp})
}

// Delete removes a room immediately. Requires the room's admin token.
func (a *RoomsAPI) Delete(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if err := a.Svc.DeleteRoom(r.Context(), code); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reactReq struct {
	Emoji  string `json:"emoji"`
	UserID string `json:"user_id"`
}

// React records an emoji reaction on a message and fans it out.
func (a *RoomsAPI) React(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	id := r.PathValue("id")

	var req reactReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Emoji == "" || req.UserID == "" {
		http.Error(w, "emoji and user_id required", http.StatusBadRequest)
		return
	}

	if err := a.Svc.React(r.Context(), code, id, req.Emoji, req.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "message not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type replyReq struct {
	Content string `json:"content"`
	Sender  string `json:"sender"`
}

// Reply appends a reply to a message and fans it out.
func (a *RoomsAPI) Reply(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	id := r.PathValue("id")

	var req replyReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" || req.Sender == "" {
		http.Error(w, "content and sender required", http.StatusBadRequest)
		return
	}

	rep, err := a.Svc.Reply(r.Context(), code, id, req.Content, req.Sender)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "message not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(rep)
}

// send JSON with proper headers
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
