package httpx

import (
	"net/http"
	"strings"

	"github.com/rs/cors"

	"github.com/loveyoulani/chat/internal/app"
	"github.com/loveyoulani/chat/pkg/auth"
)

type Middleware struct {
	cors *cors.Cors
	auth *auth.JWT
}

// NewMiddleware builds the shared middleware stack from config
func NewMiddleware(cfg app.Config) *Middleware {
	return &Middleware{
		cors: cors.New(cors.Options{
			AllowedOrigins:   cfg.CORSAllow,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}),
		auth: auth.New(cfg.JWTSecret),
	}
}

// Wrap applies CORS to a handler
func (m *Middleware) Wrap(h http.Handler) http.Handler {
	return m.cors.Handler(h)
}

// RoomAuth enforces a room admin token scoped to the {code} in the path
func (m *Middleware) RoomAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b := r.Header.Get("Authorization")
		if !strings.HasPrefix(b, "Bearer ") {
			http.Error(w, "no token", http.StatusUnauthorized)
			return
		}
		tok := strings.TrimPrefix(b, "Bearer ")
		code, err := m.auth.Verify(tok)
		if err != nil {
			http.Error(w, "bad token", http.StatusUnauthorized)
			return
		}
		if code != r.PathValue("code") {
			http.Error(w, "token is for a different room", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithRoom(r.Context(), code)))
	})
}
