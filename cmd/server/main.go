package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/loveyoulani/chat/internal/app"
	"github.com/loveyoulani/chat/internal/chat"
	httpx "github.com/loveyoulani/chat/internal/http"
	"github.com/loveyoulani/chat/internal/store"
	"github.com/loveyoulani/chat/internal/ws"
)

func main() {
	// Load local .env (dev only)
	_ = godotenv.Load()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	logger := app.NewLogger(cfg.Env)

	// Cancel on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Postgres connection + migrations
	pg, err := store.NewPostgres(ctx, cfg, logger)
	if err != nil {
		logger.Error("postgres connect", "err", err)
		log.Fatal(err)
	}
	defer pg.Close()
	if err := store.RunMigrations(ctx, pg, logger); err != nil {
		logger.Error("migrations", "err", err)
		log.Fatal(err)
	}

	// Redis backs the rate limiter
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("redis connect", "err", err)
		log.Fatal(err)
	}
	defer rdb.Close()

	// Transcript encryption at rest, if a key is configured
	var box *chat.SecretBox
	if len(cfg.MessageKey) > 0 {
		box, err = chat.NewSecretBox(cfg.MessageKey)
		if err != nil {
			log.Fatal(err)
		}
		logger.Info("encryption.enabled")
	}

	// Connection registry + message pipeline
	reg := ws.NewRegistry(logger)
	svc := chat.NewService(logger, pg, reg, box, cfg.RoomTTL)
	hub := ws.NewHub(logger, reg, svc)

	// Expired-room sweeper; ctx cancellation stops it before pg closes
	sweeper := chat.NewSweeper(logger, pg, reg, cfg.SweepInterval)
	go sweeper.Run(ctx)

	// HTTP + WS router
	router := httpx.NewRouter(cfg, logger, hub, svc, rdb)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server
	go func() {
		logger.Info("server.listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server.crash", "err", err)
			cancel()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("server.shutdown.start")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)

	logger.Info("server.shutdown.complete")
	_ = os.Stdout.Sync()
}
