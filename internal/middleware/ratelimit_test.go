package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func limitedRequest(t *testing.T, handler http.Handler, ip string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.Header.Set("x-forwarded-for", ip)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterBlocksOverBudget(t *testing.T) {
	limiter := NewRateLimiter(NewMemoryCounterStore(), true, nil)
	policy := Policy{Name: "auth", MaxRequests: 2, Window: time.Minute}
	handler := limiter.Limit(policy)(okHandler())

	assert.Equal(t, http.StatusOK, limitedRequest(t, handler, "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, limitedRequest(t, handler, "10.0.0.1").Code)

	rec := limitedRequest(t, handler, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", decodeErrorCode(t, rec))

	retryAfter := rec.Header().Get("Retry-After")
	require.NotEmpty(t, retryAfter)
	assert.NotEqual(t, "0", retryAfter)

	// A different client keeps its own budget.
	assert.Equal(t, http.StatusOK, limitedRequest(t, handler, "10.0.0.2").Code)
}

func TestRateLimiterWindowRollover(t *testing.T) {
	limiter := NewRateLimiter(NewMemoryCounterStore(), true, nil)
	policy := Policy{Name: "auth", MaxRequests: 1, Window: 50 * time.Millisecond}
	handler := limiter.Limit(policy)(okHandler())

	assert.Equal(t, http.StatusOK, limitedRequest(t, handler, "10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, limitedRequest(t, handler, "10.0.0.1").Code)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, http.StatusOK, limitedRequest(t, handler, "10.0.0.1").Code)
}

func TestRateLimiterDisabledPassesThrough(t *testing.T) {
	limiter := NewRateLimiter(NewMemoryCounterStore(), false, nil)
	policy := Policy{Name: "auth", MaxRequests: 1, Window: time.Minute}
	handler := limiter.Limit(policy)(okHandler())

	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, limitedRequest(t, handler, "10.0.0.1").Code)
	}
}

type failingStore struct{}

func (failingStore) Incr(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, context.DeadlineExceeded
}

func TestRateLimiterFailsOpen(t *testing.T) {
	limiter := NewRateLimiter(failingStore{}, true, nil)
	handler := limiter.Limit(PolicyAuth)(okHandler())

	assert.Equal(t, http.StatusOK, limitedRequest(t, handler, "10.0.0.1").Code)
}

func TestRedisCounterStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisCounterStore(client)
	ctx := context.Background()

	count, remaining, err := store.Incr(ctx, "auth:/api/auth/login:10.0.0.1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, time.Minute, remaining)

	count, remaining, err = store.Incr(ctx, "auth:/api/auth/login:10.0.0.1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.LessOrEqual(t, remaining, time.Minute)
	assert.Greater(t, remaining, time.Duration(0))

	// Window expiry resets the counter.
	mr.FastForward(time.Minute + time.Second)
	count, _, err = store.Incr(ctx, "auth:/api/auth/login:10.0.0.1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRateLimiterWithRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	limiter := NewRateLimiter(NewRedisCounterStore(client), true, nil)
	policy := Policy{Name: "auth", MaxRequests: 1, Window: time.Minute}
	handler := limiter.Limit(policy)(okHandler())

	assert.Equal(t, http.StatusOK, limitedRequest(t, handler, "10.0.0.1").Code)

	rec := limitedRequest(t, handler, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestClientIPForLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "unknown", clientIPForLimit(req))

	req.Header.Set("cf-connecting-ip", "3.3.3.3")
	assert.Equal(t, "3.3.3.3", clientIPForLimit(req))

	req.Header.Set("x-real-ip", "2.2.2.2")
	assert.Equal(t, "2.2.2.2", clientIPForLimit(req))

	req.Header.Set("x-forwarded-for", "1.1.1.1, 9.9.9.9")
	assert.Equal(t, "1.1.1.1", clientIPForLimit(req))
}
