package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"cronostudio/internal/metrics"
	"cronostudio/internal/model"
)

// Policy is one fixed-window rate-limit budget.
type Policy struct {
	Name        string
	MaxRequests int64
	Window      time.Duration
}

// Preconfigured budgets. Auth endpoints are throttled hard because they
// are the brute-force surface.
var (
	PolicyAPI    = Policy{Name: "api", MaxRequests: 100, Window: 15 * time.Minute}
	PolicyAuth   = Policy{Name: "auth", MaxRequests: 5, Window: 15 * time.Minute}
	PolicyUpload = Policy{Name: "upload", MaxRequests: 10, Window: 60 * time.Minute}
)

// CounterStore increments a windowed counter and reports how long remains
// until the window resets.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, remaining time.Duration, err error)
}

// RateLimiter enforces fixed-window counting keyed by path and client IP.
// When disabled it passes every request through untouched.
type RateLimiter struct {
	store   CounterStore
	enabled bool
	metrics *metrics.Metrics
}

func NewRateLimiter(store CounterStore, enabled bool, m *metrics.Metrics) *RateLimiter {
	if store == nil {
		store = NewMemoryCounterStore()
	}
	return &RateLimiter{store: store, enabled: enabled, metrics: m}
}

// Limit applies one policy to the wrapped routes.
func (l *RateLimiter) Limit(policy Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !l.enabled {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := policy.Name + ":" + r.URL.Path + ":" + clientIPForLimit(r)

			count, remaining, err := l.store.Incr(r.Context(), key, policy.Window)
			if err != nil {
				// A broken counter store must not take the API down.
				slog.Warn("rate limit store error", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if count > policy.MaxRequests {
				l.metrics.RecordRateLimited(policy.Name)

				retryAfter := int(math.Ceil(remaining.Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = jsonEncode(w, model.APIResponse{
					Success: false,
					Error: &model.APIError{
						Code:    "RATE_LIMITED",
						Message: "too many requests",
					},
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIPForLimit resolves the client IP from proxy headers, first match
// wins. Requests with no proxy header share the "unknown" bucket.
func clientIPForLimit(r *http.Request) string {
	for _, header := range []string{"x-forwarded-for", "x-real-ip", "cf-connecting-ip"} {
		if value := strings.TrimSpace(r.Header.Get(header)); value != "" {
			if idx := strings.IndexByte(value, ','); idx >= 0 {
				value = strings.TrimSpace(value[:idx])
			}
			return value
		}
	}
	return "unknown"
}

// redisCounterStore is the shared fixed-window counter: INCR plus EXPIRE
// on the first hit of a window, TTL for the Retry-After remainder.
type redisCounterStore struct {
	client *redis.Client
}

func NewRedisCounterStore(client *redis.Client) CounterStore {
	return &redisCounterStore{client: client}
}

func (s *redisCounterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}

	if count == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, err
		}
		return count, window, nil
	}

	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		return count, window, err
	}
	return count, ttl, nil
}

// memoryCounterStore is the per-instance fallback. It gives no
// cross-instance consistency; acceptable for single-instance deployments
// or when Redis is unreachable.
type memoryCounterStore struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
}

type memoryWindow struct {
	count   int64
	resetAt time.Time
}

func NewMemoryCounterStore() CounterStore {
	return &memoryCounterStore{windows: map[string]*memoryWindow{}}
}

func (s *memoryCounterStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.windows[key]
	if !ok || !entry.resetAt.After(now) {
		entry = &memoryWindow{resetAt: now.Add(window)}
		s.windows[key] = entry
		s.gcLocked(now)
	}

	entry.count++
	return entry.count, entry.resetAt.Sub(now), nil
}

func (s *memoryCounterStore) gcLocked(now time.Time) {
	if len(s.windows) < 10000 {
		return
	}
	for key, entry := range s.windows {
		if !entry.resetAt.After(now) {
			delete(s.windows, key)
		}
	}
}
