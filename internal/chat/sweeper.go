package chat

import (
	"context"
	"time"

	"log/slog"

	"github.com/loveyoulani/chat/internal/ws"
	"github.com/loveyoulani/chat/pkg/metrics"
)

// Sweeper reclaims rooms past their expiry. Listeners still attached to
// a swept room get a room_closed frame and are dropped rather than left
// to fail on their next write.
type Sweeper struct {
	log      *slog.Logger
	db       RoomStore
	reg      Broadcaster
	interval time.Duration
	now      func() time.Time
}

func NewSweeper(log *slog.Logger, db RoomStore, reg Broadcaster, interval time.Duration) *Sweeper {
	return &Sweeper{
		log:      log,
		db:       db,
		reg:      reg,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper.stopped")
			return
		case <-t.C:
			s.sweep(ctx)
		}
	}
}

// sweep deletes every expired room, then disconnects any listeners those
// rooms still had. Store errors are logged and retried next tick.
func (s *Sweeper) sweep(ctx context.Context) {
	codes, err := s.db.DeleteExpired(ctx, s.now())
	if err != nil {
		s.log.Error("sweep.failed", "err", err)
		return
	}
	for _, code := range codes {
		s.reg.CloseRoom(code, ws.RoomClosed())
		metrics.RoomsSwept.Inc()
	}
	if len(codes) > 0 {
		s.log.Info("rooms.swept", "count", len(codes))
	}
}
