package ratelimiter

import (
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int
}

// FixedWindowRateLimiter allows limit requests per client in each window.
// A client's window starts with its first request.
type FixedWindowRateLimiter struct {
	sync.Mutex
	clients map[string]*window
	limit   int
	window  time.Duration
	now     func() time.Time
}

func NewFixedWindowLimiter(limit int, w time.Duration) *FixedWindowRateLimiter {
	return &FixedWindowRateLimiter{
		clients: make(map[string]*window),
		limit:   limit,
		window:  w,
		now:     time.Now,
	}
}

// Allow records a request from ip. When the limit is hit it reports how long
// until the client's window resets.
func (rl *FixedWindowRateLimiter) Allow(ip string) (bool, time.Duration) {
	rl.Lock()
	defer rl.Unlock()

	now := rl.now()
	rl.evict(now)

	w, ok := rl.clients[ip]
	if !ok {
		w = &window{start: now}
		rl.clients[ip] = w
	}
	if w.count < rl.limit {
		w.count++
		return true, 0
	}
	return false, w.start.Add(rl.window).Sub(now)
}

// evict drops expired windows; callers hold the lock.
func (rl *FixedWindowRateLimiter) evict(now time.Time) {
	for ip, w := range rl.clients {
		if now.Sub(w.start) >= rl.window {
			delete(rl.clients, ip)
		}
	}
}
