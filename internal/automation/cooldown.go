package automation

import (
	"sync"
	"time"
)

// cooldown suppresses repeated firings of the same automation within ttl.
// It is safe for concurrent use.
type cooldown struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

func newCooldown(ttl time.Duration, now func() time.Time) *cooldown {
	return &cooldown{seen: make(map[string]time.Time), ttl: ttl, now: now}
}

// claim returns true and records key when key has not fired within ttl.
func (c *cooldown) claim(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if last, ok := c.seen[key]; ok && now.Sub(last) < c.ttl {
		return false
	}
	c.seen[key] = now
	return true
}

// cleanup drops expired entries.
func (c *cooldown) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, ts := range c.seen {
		if now.Sub(ts) >= c.ttl {
			delete(c.seen, k)
		}
	}
}
