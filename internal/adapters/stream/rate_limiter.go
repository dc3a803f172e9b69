package stream

import (
	"sync"
	"time"

	"github.com/mirko1075/in-one-button-be/internal/domain"
)

// sweepEvery is the number of Allow calls between full sweeps of identities
// whose attempts have all aged out of the window.
const sweepEvery = 64

// StartRateLimiter caps how often one identity may issue stream:start within
// a sliding window. Timestamps per identity are kept in arrival order, so
// trimming the window is a prefix cut rather than a rebuild. Idle identities
// are swept periodically to keep the map from growing with every identity
// ever seen.
type StartRateLimiter struct {
	mu       sync.Mutex
	history  map[domain.Identity][]time.Time
	limit    int
	interval time.Duration
	ops      int
}

func NewStartRateLimiter(limit int, interval time.Duration) *StartRateLimiter {
	return &StartRateLimiter{
		history:  make(map[domain.Identity][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *StartRateLimiter) Allow(id domain.Identity) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	rl.ops++
	if rl.ops >= sweepEvery {
		rl.ops = 0
		rl.sweep(windowStart)
	}

	attempts := trim(rl.history[id], windowStart)
	if len(attempts) >= rl.limit {
		rl.history[id] = attempts
		return false
	}
	rl.history[id] = append(attempts, now)
	return true
}

// trim cuts the stale prefix. Attempts are appended in order, so the first
// in-window timestamp marks where the live suffix begins.
func trim(attempts []time.Time, windowStart time.Time) []time.Time {
	i := 0
	for i < len(attempts) && !attempts[i].After(windowStart) {
		i++
	}
	return attempts[i:]
}

// sweep drops identities with no attempts inside the window. Caller holds mu.
func (rl *StartRateLimiter) sweep(windowStart time.Time) {
	for id, attempts := range rl.history {
		if len(attempts) == 0 || !attempts[len(attempts)-1].After(windowStart) {
			delete(rl.history, id)
		}
	}
}
