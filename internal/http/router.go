package httpx

import (
	"net/http"
	"time"

	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/loveyoulani/chat/internal/app"
	"github.com/loveyoulani/chat/internal/chat"
	"github.com/loveyoulani/chat/internal/ws"
	"github.com/loveyoulani/chat/pkg/auth"
	"github.com/loveyoulani/chat/pkg/metrics"
	"github.com/loveyoulani/chat/pkg/ratelimit"
)

// NewRouter wires up all HTTP routes, middleware, and handlers
func NewRouter(cfg app.Config, logger *slog.Logger, hub *ws.Hub, svc *chat.Service, rdb *redis.Client) http.Handler {
	mw := NewMiddleware(cfg)
	api := &RoomsAPI{Log: logger, Svc: svc, JWT: auth.New(cfg.JWTSecret)}

	// Creation is the abuse magnet; messages are already bounded by the
	// room's live connections.
	createLimit := ratelimit.New(rdb, "rl:create", 10, time.Minute)
	mutateLimit := ratelimit.New(rdb, "rl:mutate", 60, time.Minute)

	mux := http.NewServeMux()

	// Health / readiness / metrics
	mux.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) }))
	mux.Handle("/readyz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) }))
	mux.Handle("/metrics", metrics.Handler())

	// Room-scoped websocket endpoint
	mux.Handle("GET /ws/{code}", http.HandlerFunc(hub.ServeWS))

	// Room lifecycle
	mux.Handle("POST /rooms", createLimit.Middleware(http.HandlerFunc(api.Create)))
	mux.Handle("GET /rooms/{code}", http.HandlerFunc(api.Get))
	mux.Handle("POST /rooms/{code}/extend", mw.RoomAuth(http.HandlerFunc(api.Extend)))
	mux.Handle("DELETE /rooms/{code}", mw.RoomAuth(http.HandlerFunc(api.Delete)))

	// Message sub-records
	mux.Handle("POST /rooms/{code}/messages/{id}/react", mutateLimit.Middleware(http.HandlerFunc(api.React)))
	mux.Handle("POST /rooms/{code}/messages/{id}/reply", mutateLimit.Middleware(http.HandlerFunc(api.Reply)))

	return mw.Wrap(mux)
}
