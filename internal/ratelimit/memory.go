package ratelimit

import (
	"context"
	"sync"
	"time"
)

const sweepEvery = 256

// MemoryLimiter keeps counters in process. Counts are lost on restart and
// are not shared between replicas.
type MemoryLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    int
	window   time.Duration
	calls    int
	now      func() time.Time
}

type visitor struct {
	count     int
	lastReset time.Time
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

func (rl *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.calls++
	if rl.calls%sweepEvery == 0 {
		rl.sweep(now)
	}

	v, ok := rl.visitors[key]
	if !ok || now.Sub(v.lastReset) >= rl.window {
		rl.visitors[key] = &visitor{count: 1, lastReset: now}
		return Decision{Allowed: true, Remaining: rl.limit - 1}, nil
	}

	v.count++
	if v.count > rl.limit {
		return Decision{RetryAfter: v.lastReset.Add(rl.window).Sub(now)}, nil
	}
	return Decision{Allowed: true, Remaining: rl.limit - v.count}, nil
}

func (rl *MemoryLimiter) sweep(now time.Time) {
	for key, v := range rl.visitors {
		if now.Sub(v.lastReset) >= rl.window {
			delete(rl.visitors, key)
		}
	}
}
