package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestRateLimiter_LimitsPerClient(t *testing.T) {
	rl := NewRateLimiter(context.Background(), 1, 2)
	defer rl.Stop()
	handler := rl.Middleware()(okHandler())

	request := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, request("10.0.0.1:1000").Code)
	// a different port is the same client
	assert.Equal(t, http.StatusOK, request("10.0.0.1:2000").Code)

	w := request("10.0.0.1:3000")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, request("10.0.0.2:1000").Code)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(context.Background(), 10, 10)
	defer rl.Stop()

	rl.getLimiter("stale")
	rl.getLimiter("fresh")

	rl.mu.Lock()
	rl.limiters["stale"].lastAccess = time.Now().Add(-2 * limiterTTL)
	rl.mu.Unlock()

	rl.cleanup(time.Now())
	assert.Equal(t, 1, rl.size())
}

func TestRateLimiter_CleanupCapsSize(t *testing.T) {
	rl := NewRateLimiter(context.Background(), 10, 10)
	defer rl.Stop()

	now := time.Now()
	rl.mu.Lock()
	for i := 0; i < maxLimiters+10; i++ {
		rl.limiters[fmt.Sprintf("client-%d", i)] = &limiterEntry{lastAccess: now.Add(time.Duration(i) * time.Millisecond)}
	}
	rl.mu.Unlock()

	rl.cleanup(now)

	assert.Equal(t, maxLimiters/2, rl.size())
	rl.mu.RLock()
	_, newest := rl.limiters[fmt.Sprintf("client-%d", maxLimiters+9)]
	_, oldest := rl.limiters["client-0"]
	rl.mu.RUnlock()
	assert.True(t, newest)
	assert.False(t, oldest)
}

func TestRateLimiter_StopEndsCleanupLoop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rl := NewRateLimiter(context.Background(), 1, 1)
	rl.Stop()
	rl.Stop()
}

func TestRateLimiter_ContextEndsCleanupLoop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	NewRateLimiter(ctx, 1, 1)
	cancel()
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.5:5555"
	assert.Equal(t, "192.168.1.5", clientIP(req))

	req.RemoteAddr = "192.168.1.5"
	assert.Equal(t, "192.168.1.5", clientIP(req))
}
