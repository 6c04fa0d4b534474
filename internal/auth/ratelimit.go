package auth

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

// Login throttling defaults
const (
	DefaultMaxFailedAttempts = 5
	DefaultRateLimitWindow   = 15 * time.Minute
	DefaultCleanupInterval   = 5 * time.Minute
)

// RateLimiterConfig tunes the failed-login throttle.
type RateLimiterConfig struct {
	MaxFailedAttempts int
	Window            time.Duration
	CleanupInterval   time.Duration
}

// DefaultRateLimiterConfig returns the default throttle settings.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		MaxFailedAttempts: DefaultMaxFailedAttempts,
		Window:            DefaultRateLimitWindow,
		CleanupInterval:   DefaultCleanupInterval,
	}
}

// failureRecord counts failed attempts from one IP within a window anchored
// at the first failure.
type failureRecord struct {
	count       int
	windowStart time.Time
}

// RateLimiter throttles clients that keep failing authentication. State is
// per-IP and expires once the window passes without further failures.
type RateLimiter struct {
	mu       sync.RWMutex
	failures map[string]*failureRecord
	config   RateLimiterConfig
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a RateLimiter and starts its expiry loop.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		failures: make(map[string]*failureRecord),
		config:   config,
		stopCh:   make(chan struct{}),
	}

	go rl.expireLoop()

	return rl
}

func (rl *RateLimiter) expireLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.removeExpired()
		}
	}
}

func (rl *RateLimiter) removeExpired() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for ip, rec := range rl.failures {
		if now.Sub(rec.windowStart) > rl.config.Window {
			delete(rl.failures, ip)
		}
	}
}

// Stop terminates the expiry loop.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCh)
	})
}

// IsLimited reports whether the IP has exhausted its failed attempts for the
// current window.
func (rl *RateLimiter) IsLimited(ip string) bool {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	rec, ok := rl.failures[ip]
	if !ok {
		return false
	}
	if time.Since(rec.windowStart) > rl.config.Window {
		return false
	}
	return rec.count >= rl.config.MaxFailedAttempts
}

// RecordFailure counts one failed authentication attempt against the IP. A
// failure after the window expires starts a fresh window.
func (rl *RateLimiter) RecordFailure(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rec, ok := rl.failures[ip]
	if !ok || time.Since(rec.windowStart) > rl.config.Window {
		rl.failures[ip] = &failureRecord{count: 1, windowStart: time.Now()}
		return
	}
	rec.count++
}

// Reset clears the IP's failure state, typically after a successful login.
func (rl *RateLimiter) Reset(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.failures, ip)
}

// GetClientIP resolves the client address, preferring proxy headers over the
// socket peer.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First hop in the chain is the original client.
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
