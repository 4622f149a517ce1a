package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nikhilbhutani/transcribegateway/internal/cache"
)

// Limiter decides whether a client identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimit hands requests over the limit to onLimit, which decides the
// response; a nil onLimit answers 429. Retry-After is set either way.
// Limiter errors fail open.
func RateLimit(l Limiter, onLimit http.Handler) func(http.Handler) http.Handler {
	if onLimit == nil {
		onLimit = http.HandlerFunc(tooManyRequests)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, err := l.Allow(r.Context(), clientKey(r))
			if err != nil {
				slog.Warn("rate limiter unavailable, allowing request", "error", err)
				ok = true
			}
			if !ok {
				w.Header().Set("Retry-After", "1")
				onLimit.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func tooManyRequests(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
}

func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

type visitor struct {
	tokens   float64
	lastSeen time.Time
}

// MemoryLimiter is a per-process token bucket keyed by client.
type MemoryLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     float64 // tokens per second
	burst    float64 // max tokens
	now      func() time.Time
	done     chan struct{}
}

func NewMemoryLimiter(rps float64, burst int) *MemoryLimiter {
	rl := &MemoryLimiter{
		visitors: make(map[string]*visitor),
		rate:     rps,
		burst:    float64(burst),
		now:      time.Now,
		done:     make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

func (rl *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, exists := rl.visitors[key]
	if !exists {
		v = &visitor{tokens: rl.burst, lastSeen: now}
		rl.visitors[key] = v
	}

	v.tokens += now.Sub(v.lastSeen).Seconds() * rl.rate
	if v.tokens > rl.burst {
		v.tokens = rl.burst
	}
	v.lastSeen = now

	if v.tokens < 1 {
		return false, nil
	}
	v.tokens--
	return true, nil
}

// Close stops the background cleanup goroutine.
func (rl *MemoryLimiter) Close() {
	close(rl.done)
}

func (rl *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
		}
		rl.mu.Lock()
		for key, v := range rl.visitors {
			if rl.now().Sub(v.lastSeen) > 3*time.Minute {
				delete(rl.visitors, key)
			}
		}
		rl.mu.Unlock()
	}
}

// RedisLimiter is a fixed one-second window shared by every gateway replica.
type RedisLimiter struct {
	counter *cache.Counter
	limit   int64
}

// NewRedisLimiter allows up to burst requests per client per second; rps
// raises the window budget when it exceeds burst.
func NewRedisLimiter(counter *cache.Counter, rps float64, burst int) *RedisLimiter {
	limit := int64(burst)
	if int64(rps) > limit {
		limit = int64(rps)
	}
	return &RedisLimiter{counter: counter, limit: limit}
}

func (rl *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	window := time.Now().Unix()
	n, err := rl.counter.IncrWindow(ctx, key+":"+strconv.FormatInt(window, 10), 2*time.Second)
	if err != nil {
		return false, err
	}
	return n <= rl.limit, nil
}
