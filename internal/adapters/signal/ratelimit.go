package signal

import (
	"sync"
	"time"

	"github.com/avdeev/signalhub/internal/core"
)

// ConnRateLimiter bounds how many signaling requests a connection may issue
// per sliding window. Engine-backed requests are expensive; a misbehaving
// client must not starve the rest of the room.
type ConnRateLimiter struct {
	mu       sync.Mutex
	history  map[core.ConnID][]time.Time
	limit    int
	interval time.Duration
}

func NewConnRateLimiter(limit int, interval time.Duration) *ConnRateLimiter {
	return &ConnRateLimiter{
		history:  make(map[core.ConnID][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *ConnRateLimiter) Allow(conn core.ConnID) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[conn]

	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[conn] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[conn] = fresh

	return true
}

// Forget drops the connection's history. Called on disconnect so the map
// does not grow with dead connections.
func (rl *ConnRateLimiter) Forget(conn core.ConnID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, conn)
}
