package middleware

import (
	"context"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// Maximum number of limiters to keep in memory
	maxLimiters = 10000
	// Time after which an inactive limiter is removed
	cleanupInterval = 5 * time.Minute
	// Limiter is considered inactive if not used for this duration
	limiterTTL = 15 * time.Minute
)

// limiterEntry wraps a rate.Limiter with last access time
type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter provides per-client rate limiting for HTTP requests with memory management
type RateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a new rate limiter whose cleanup runs until ctx is
// cancelled or Stop is called.
// requestsPerSecond: maximum average rate of requests per IP
// burst: maximum burst size (tokens bucket capacity)
func NewRateLimiter(ctx context.Context, requestsPerSecond float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		stopCh:   make(chan struct{}),
	}

	// Start background cleanup goroutine
	go rl.cleanupLoop(ctx)

	return rl
}

// cleanupLoop periodically removes inactive limiters to prevent memory leaks
func (rl *RateLimiter) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.cleanup(time.Now())
		}
	}
}

// cleanup drops limiters idle for longer than limiterTTL. If the map is
// still over maxLimiters, the least recently used half is dropped too.
func (rl *RateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, entry := range rl.limiters {
		if now.Sub(entry.lastAccess) > limiterTTL {
			delete(rl.limiters, key)
		}
	}

	if len(rl.limiters) <= maxLimiters {
		return
	}

	keys := make([]string, 0, len(rl.limiters))
	for k := range rl.limiters {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return rl.limiters[keys[i]].lastAccess.Before(rl.limiters[keys[j]].lastAccess)
	})
	for _, k := range keys[:len(keys)-maxLimiters/2] {
		delete(rl.limiters, k)
	}
}

func (rl *RateLimiter) size() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.limiters)
}

// Stop stops the cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCh)
	})
}

// getLimiter returns the rate limiter for a given key (usually IP address)
// Creates a new limiter if one doesn't exist and updates last access time
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	// Try read lock first for better concurrency
	rl.mu.RLock()
	entry, exists := rl.limiters[key]
	rl.mu.RUnlock()

	if exists {
		// Update last access time
		rl.mu.Lock()
		entry.lastAccess = time.Now()
		rl.mu.Unlock()
		return entry.limiter
	}

	// Need to create new limiter
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check after acquiring write lock
	entry, exists = rl.limiters[key]
	if exists {
		entry.lastAccess = time.Now()
		return entry.limiter
	}

	// Create new limiter
	entry = &limiterEntry{
		limiter:    rate.NewLimiter(rl.rate, rl.burst),
		lastAccess: time.Now(),
	}
	rl.limiters[key] = entry
	return entry.limiter
}

// Middleware returns a chi-compatible middleware function
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter := rl.getLimiter(clientIP(r))

			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				http.Error(w, `{"error":"Rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port from RemoteAddr, which chimiddleware.RealIP has
// already replaced with the forwarded address when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
