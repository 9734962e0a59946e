package main

import (
	"sync"
	"time"
)

// RateLimiter is a fixed-window per-IP request limiter.
type RateLimiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	requests map[string]*windowEntry
}

type windowEntry struct {
	count   int
	started time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per window for
// each client IP.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:    limit,
		window:   window,
		requests: make(map[string]*windowEntry),
	}
}

// Allow reports whether a request from ip fits in the current window.
func (rl *RateLimiter) Allow(ip string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, exists := rl.requests[ip]
	if !exists || now.Sub(entry.started) >= rl.window {
		entry = &windowEntry{started: now}
		rl.requests[ip] = entry
	}

	if entry.count >= rl.limit {
		return false
	}
	entry.count++
	return true
}

// Cleanup drops windows that have fully elapsed so idle IPs do not
// accumulate. Run periodically.
func (rl *RateLimiter) Cleanup() {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for ip, entry := range rl.requests {
		if now.Sub(entry.started) >= rl.window {
			delete(rl.requests, ip)
		}
	}
}
