package redis

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// TagSink implements domain.TagSink by adding tags to Redis sets keyed by
// target: decisionbot:tags:bot:{name} or decisionbot:tags:position:{id}.
type TagSink struct {
	rdb *redis.Client
}

// NewTagSink creates a TagSink backed by the given Client.
func NewTagSink(c *Client) *TagSink {
	return &TagSink{rdb: c.Underlying()}
}

func tagKey(p domain.TagPayload) (string, error) {
	switch p.Target {
	case domain.TagTargetBot:
		return keyPrefix + "tags:bot:" + p.BotName, nil
	case domain.TagTargetPosition:
		if p.PositionID == "" {
			return "", fmt.Errorf("redis: position tag without position id")
		}
		return keyPrefix + "tags:position:" + p.PositionID, nil
	default:
		return "", fmt.Errorf("redis: unknown tag target %q", p.Target)
	}
}

// Accept implements domain.TagSink.
func (t *TagSink) Accept(ctx context.Context, p domain.TagPayload) error {
	if len(p.Tags) == 0 {
		return nil
	}
	key, err := tagKey(p)
	if err != nil {
		return err
	}
	members := make([]any, len(p.Tags))
	for i, tag := range p.Tags {
		members[i] = tag
	}
	if err := t.rdb.SAdd(ctx, key, members...).Err(); err != nil {
		return fmt.Errorf("redis: add tags %s: %w", key, err)
	}
	return nil
}

// BotTags returns the sorted tag set of bot.
func (t *TagSink) BotTags(ctx context.Context, bot string) ([]string, error) {
	key, _ := tagKey(domain.TagPayload{Target: domain.TagTargetBot, BotName: bot})
	tags, err := t.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: bot tags %s: %w", bot, err)
	}
	sort.Strings(tags)
	return tags, nil
}

var _ domain.TagSink = (*TagSink)(nil)
