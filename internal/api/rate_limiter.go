package api

import (
	"sync"
	"time"
)

// loginLimiter throttles login attempts per username with a sliding
// one-minute window. Keyed by the attempted username rather than the caller
// address so a credential-stuffing run against one account is cut off
// regardless of source.
type loginLimiter struct {
	mu       sync.Mutex
	attempts map[string]*attemptWindow
	limit    int
}

type attemptWindow struct {
	count       int
	windowStart time.Time
}

func newLoginLimiter(limit int) *loginLimiter {
	return &loginLimiter{
		attempts: make(map[string]*attemptWindow),
		limit:    limit,
	}
}

// allow reports whether another attempt for this username is permitted.
func (l *loginLimiter) allow(username string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	window, ok := l.attempts[username]
	if !ok || now.Sub(window.windowStart) >= time.Minute {
		l.attempts[username] = &attemptWindow{count: 1, windowStart: now}
		return true
	}

	if window.count >= l.limit {
		return false
	}

	window.count++
	return true
}

// cleanup drops stale entries; called periodically from the server.
func (l *loginLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for username, window := range l.attempts {
		if now.Sub(window.windowStart) > 5*time.Minute {
			delete(l.attempts, username)
		}
	}
}
