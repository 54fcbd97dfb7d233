package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

const defaultStreamMaxLen int64 = 10000

// SignalBus implements domain.SignalBus with Redis Pub/Sub for live
// listeners and Redis Streams for the durable execution log.
type SignalBus struct {
	rdb    *redis.Client
	maxLen int64
}

// NewSignalBus creates a SignalBus. Streams are trimmed to roughly maxLen
// entries; maxLen <= 0 selects 10000.
func NewSignalBus(c *Client, maxLen int64) *SignalBus {
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return &SignalBus{rdb: c.Underlying(), maxLen: maxLen}
}

// Publish sends payload to a Pub/Sub channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// StreamAppend appends payload to stream with XADD MAXLEN ~.
func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	err := sb.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: sb.maxLen,
		Approx: true,
		Values: map[string]any{"payload": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// StreamRead returns up to count entries after lastID, oldest first. An
// empty or "0" lastID reads from the start. It never blocks.
func (sb *SignalBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	start := "-"
	if lastID != "" && lastID != "0" && lastID != "0-0" {
		start = "(" + lastID
	}
	if count <= 0 {
		count = 100
	}
	res, err := sb.rdb.XRangeN(ctx, stream, start, "+", int64(count)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: stream read %s: %w", stream, err)
	}
	return streamMessages(res), nil
}

func streamMessages(in []redis.XMessage) []domain.StreamMessage {
	out := make([]domain.StreamMessage, 0, len(in))
	for _, msg := range in {
		var data []byte
		switch v := msg.Values["payload"].(type) {
		case string:
			data = []byte(v)
		case []byte:
			data = v
		default:
			continue
		}
		out = append(out, domain.StreamMessage{ID: msg.ID, Payload: data})
	}
	return out
}

var _ domain.SignalBus = (*SignalBus)(nil)
