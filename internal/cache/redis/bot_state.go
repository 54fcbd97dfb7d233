package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// BotState implements domain.BotStateStore. Each bot's counters live in
// the hash decisionbot:bot:{name}; increments use HINCRBYFLOAT so they are
// atomic across processes.
type BotState struct {
	rdb *redis.Client
}

// NewBotState creates a BotState backed by the given Client.
func NewBotState(c *Client) *BotState {
	return &BotState{rdb: c.Underlying()}
}

func botKey(bot string) string { return keyPrefix + "bot:" + bot }

// Counter returns one counter. Missing counters read as 0.
func (b *BotState) Counter(ctx context.Context, bot, name string) (float64, error) {
	v, err := b.rdb.HGet(ctx, botKey(bot), name).Float64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis: counter %s/%s: %w", bot, name, err)
	}
	return v, nil
}

// Counters returns every counter of bot.
func (b *BotState) Counters(ctx context.Context, bot string) (map[string]float64, error) {
	raw, err := b.rdb.HGetAll(ctx, botKey(bot)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: counters %s: %w", bot, err)
	}
	return parseCounters(bot, raw)
}

// Incr adds delta to a counter.
func (b *BotState) Incr(ctx context.Context, bot, name string, delta float64) error {
	if err := b.rdb.HIncrByFloat(ctx, botKey(bot), name, delta).Err(); err != nil {
		return fmt.Errorf("redis: incr %s/%s: %w", bot, name, err)
	}
	return nil
}

func parseCounters(bot string, raw map[string]string) (map[string]float64, error) {
	out := make(map[string]float64, len(raw))
	for k, s := range raw {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("redis: parse counter %s/%s: %w", bot, k, err)
		}
		out[k] = v
	}
	return out, nil
}

var _ domain.BotStateStore = (*BotState)(nil)
