package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// releaseLua deletes KEYS[1] only while it still holds the caller's token.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

const releaseTimeout = 5 * time.Second

// LockManager implements domain.LockManager with SET NX PX and a
// token-checked release. The scheduler uses it so that only one process
// ticks at a time.
type LockManager struct {
	rdb     *redis.Client
	release *redis.Script
}

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		rdb:     c.Underlying(),
		release: redis.NewScript(releaseLua),
	}
}

func lockKey(key string) string {
	return keyPrefix + "lock:" + key
}

// Acquire takes the lock for ttl. The returned release func is idempotent
// and runs on a fresh context so it succeeds after the caller's ctx ends.
// A lock held by someone else yields domain.ErrLockHeld.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	k := lockKey(key)

	ok, err := lm.rdb.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			rctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			_ = lm.release.Run(rctx, lm.rdb, []string{k}, token).Err()
		})
	}, nil
}

var _ domain.LockManager = (*LockManager)(nil)
