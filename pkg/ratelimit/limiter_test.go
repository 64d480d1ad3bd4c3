package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestTokenBucket_Allow(t *testing.T) {
	clock := newFakeClock()
	tb := NewTokenBucket(5, 1.0, clock.Now)

	for i := 0; i < 5; i++ {
		ok, _ := tb.Allow()
		assert.True(t, ok, "request %d should be allowed", i+1)
	}

	ok, retryAfter := tb.Allow()
	assert.False(t, ok, "6th request should be denied")
	assert.Equal(t, time.Second, retryAfter)

	clock.Advance(2 * time.Second)

	ok, _ = tb.Allow()
	assert.True(t, ok)
	ok, _ = tb.Allow()
	assert.True(t, ok)
	ok, _ = tb.Allow()
	assert.False(t, ok)
}

func TestTokenBucket_CapacityIsCeiling(t *testing.T) {
	clock := newFakeClock()
	tb := NewTokenBucket(2, 1.0, clock.Now)

	clock.Advance(time.Hour)
	assert.Equal(t, 2.0, tb.Tokens())
}

func TestRateLimiter_Remaining(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(3, 1.0, 0, WithClock(clock.Now))

	assert.Equal(t, 3, rl.Remaining("x"), "unknown keys have a full bucket")
	rl.Allow("x")
	rl.Allow("x")
	assert.Equal(t, 1, rl.Remaining("x"))

	clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, 2, rl.Remaining("x"), "partial tokens are not counted")
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(2, 1.0, 0, WithClock(clock.Now))

	ok, _ := rl.Allow("key1")
	assert.True(t, ok)
	ok, _ = rl.Allow("key1")
	assert.True(t, ok)
	ok, _ = rl.Allow("key1")
	assert.False(t, ok)

	ok, _ = rl.Allow("key2")
	assert.True(t, ok)

	clock.Advance(time.Second)
	ok, _ = rl.Allow("key1")
	assert.True(t, ok)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(1, 1.0, time.Minute, WithClock(clock.Now))
	defer rl.Close()

	rl.Allow("a")
	clock.Advance(30 * time.Second)
	rl.Allow("b")

	clock.Advance(45 * time.Second)
	assert.Equal(t, 1, rl.Cleanup(), "only the idle bucket is removed")

	clock.Advance(30 * time.Second)
	assert.Equal(t, 1, rl.Cleanup())
	assert.Equal(t, 0, rl.Cleanup())

	rl.Close()
	rl.Close()
}

func TestMiddleware(t *testing.T) {
	clock := newFakeClock()
	m := NewMiddleware(Config{Capacity: 2, RefillRate: 0.1}, WithClock(clock.Now))
	defer m.Close()

	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(remote string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/auth/send-otp", nil)
		r.RemoteAddr = remote
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusOK, call("10.0.0.1:5678").Code)

	w := call("10.0.0.1:9999")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "10", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Too many requests. Please try again later.", body["message"])

	assert.Equal(t, http.StatusOK, call("10.0.0.2:1234").Code, "other clients are unaffected")

	clock.Advance(10 * time.Second)
	assert.Equal(t, http.StatusOK, call("10.0.0.1:1234").Code)
}
