package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Allower is the per-caller admission check behind the rate-limit
// middleware. The in-memory limiter serves single-process deployments;
// the Redis limiter coordinates across processes.
type Allower interface {
	Allow(ctx context.Context, callerID string) (bool, error)
}

// MemoryLimiter keeps one token bucket per caller with background
// cleanup of idle entries. Close stops the cleanup goroutine.
type MemoryLimiter struct {
	mu      sync.Mutex
	callers map[string]*callerBucket
	rps     rate.Limit
	burst   int

	stop     chan struct{}
	stopOnce sync.Once
}

type callerBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewMemoryLimiter(rps, burst int) *MemoryLimiter {
	l := &MemoryLimiter{
		callers: make(map[string]*callerBucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		stop:    make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// Close stops the background cleanup. Safe to call more than once.
func (l *MemoryLimiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *MemoryLimiter) Allow(_ context.Context, callerID string) (bool, error) {
	l.mu.Lock()
	b, ok := l.callers[callerID]
	if !ok {
		b = &callerBucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.callers[callerID] = b
	}
	b.lastSeen = time.Now()
	l.mu.Unlock()
	return b.limiter.Allow(), nil
}

func (l *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			for id, b := range l.callers {
				if time.Since(b.lastSeen) > 3*time.Minute {
					delete(l.callers, id)
				}
			}
			l.mu.Unlock()
		}
	}
}

// redisTokenBucketScript runs the token bucket atomically in Redis.
// KEYS[1] = bucket key, ARGV[1] = refill rate/s, ARGV[2] = capacity,
// ARGV[3] = cost, ARGV[4] = unix timestamp (fractional seconds).
var redisTokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = tokens + elapsed * rate
    if tokens > capacity then
        tokens = capacity
    end
    last_refill = now
end

local allowed = 0
if tokens >= cost then
    tokens = tokens - cost
    allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 60)

return allowed
`)

// RedisLimiter is a token bucket shared across processes.
type RedisLimiter struct {
	client *redis.Client
	rps    float64
	burst  int
}

func NewRedisLimiter(addr string, rps, burst int) *RedisLimiter {
	return &RedisLimiter{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		rps:    float64(rps),
		burst:  burst,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, callerID string) (bool, error) {
	key := "limiter:" + callerID
	now := float64(time.Now().UnixMicro()) / 1e6
	res, err := redisTokenBucketScript.Run(ctx, l.client, []string{key}, l.rps, l.burst, 1, now).Result()
	if err != nil {
		return false, fmt.Errorf("redis limiter: %w", err)
	}
	allowed, _ := res.(int64)
	return allowed == 1, nil
}

// RateLimit wraps a handler with the admission check, keyed by client IP.
// A limiter backend failure fails open with a warning; chat availability
// wins over strict limiting.
func RateLimit(limiter Allower, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, err := limiter.Allow(r.Context(), clientIP(r))
		if err != nil {
			slog.Warn("rate limiter unavailable, admitting request", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			writeTooManyRequests(w, 5)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = strings.Trim(r.RemoteAddr, "[]")
	}
	return ip
}
