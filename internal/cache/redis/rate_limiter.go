package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// slidingWindowLua trims entries older than the window from the sorted set
// at KEYS[1] and admits the request when fewer than ARGV[3] remain.
// ARGV: now (µs), window (µs), limit, member.
// Returns {allowed, count}.
const slidingWindowLua = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local count = redis.call('ZCARD', KEYS[1])
if count < limit then
    redis.call('ZADD', KEYS[1], now, ARGV[4])
    redis.call('PEXPIRE', KEYS[1], math.ceil(window / 1000))
    return {1, count + 1}
end
return {0, count}
`

// RateLimiter implements domain.RateLimiter with a sliding window kept in
// a Redis sorted set. It backs the API rate limit middleware so the limit
// holds across replicas.
type RateLimiter struct {
	rdb    *redis.Client
	window *redis.Script
	now    func() time.Time
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{
		rdb:    c.Underlying(),
		window: redis.NewScript(slidingWindowLua),
		now:    time.Now,
	}
}

func rateLimitKey(key string) string {
	return keyPrefix + "ratelimit:" + key
}

// Allow counts one request for key and reports whether it fits within
// limit requests per window.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	res, err := rl.window.Run(ctx, rl.rdb,
		[]string{rateLimitKey(key)},
		rl.now().UnixMicro(), window.Microseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(res) < 2 {
		return false, fmt.Errorf("redis: rate limit %s: unexpected reply length %d", key, len(res))
	}
	return res[0] == 1, nil
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
