package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter is a fixed-window rate limiter keyed by client IP, backed by
// a shared Redis counter so limits hold across restarts.
type Limiter struct {
	rdb    *redis.Client
	prefix string
	max    int           // requests per window
	per    time.Duration // window size
}

// New creates an IP-based limiter allowing max requests per window.
func New(rdb *redis.Client, prefix string, max int, per time.Duration) *Limiter {
	return &Limiter{rdb: rdb, prefix: prefix, max: max, per: per}
}

// allow increments the caller's window counter and reports whether the
// request is within the limit. Fails open on Redis errors.
func (l *Limiter) allow(r *http.Request) bool {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	key := l.prefix + ":" + ip + ":" + strconv.FormatInt(time.Now().Unix()/int64(l.per.Seconds()), 10)

	ctx := r.Context()
	n, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return true
	}
	if n == 1 {
		l.rdb.Expire(ctx, key, l.per)
	}
	return n <= int64(l.max)
}

// Middleware enforces the rate limit before calling the next handler
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(r) {
			http.Error(w, "rate limit", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
