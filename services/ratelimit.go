package services

import (
	"sync"
	"time"
)

type rateWindow struct {
	count int
	start time.Time
}

// RateLimiter bounds job-creation requests per client with a fixed
// window counter: the count resets on the first request after the
// window has aged out. Not a precise sliding window, but O(1) per
// check and per client.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*rateWindow
	max     int
	window  time.Duration
	stale   time.Duration
}

func NewRateLimiter(max int, window, stale time.Duration) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*rateWindow),
		max:     max,
		window:  window,
		stale:   stale,
	}
}

// Allow records one request for the client and reports whether it is
// within the configured budget.
func (rl *RateLimiter) Allow(clientID string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.clients[clientID]
	if !ok || now.Sub(w.start) > rl.window {
		rl.clients[clientID] = &rateWindow{count: 1, start: now}
		return true
	}
	if w.count >= rl.max {
		return false
	}
	w.count++
	return true
}

// SweepStale drops clients whose window is older than the staleness
// threshold, bounding memory growth from churn of distinct clients.
func (rl *RateLimiter) SweepStale(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for id, w := range rl.clients {
		if now.Sub(w.start) > rl.stale {
			delete(rl.clients, id)
			removed++
		}
	}
	return removed
}
