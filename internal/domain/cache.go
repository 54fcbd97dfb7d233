package domain

import (
	"context"
	"time"
)

// MarketDataProvider serves market snapshots and price history. Price and
// Snapshot return ErrNotFound for unknown symbols.
type MarketDataProvider interface {
	Price(ctx context.Context, symbol, field string) (float64, error)
	PriceHistory(ctx context.Context, symbol string, lookback int) ([]float64, error)
	Snapshot(ctx context.Context, symbol string) (MarketSnapshot, error)
}

// BotStateStore holds per-bot numeric counters. Absent counters read as 0.
type BotStateStore interface {
	Counter(ctx context.Context, bot, name string) (float64, error)
	Counters(ctx context.Context, bot string) (map[string]float64, error)
	Incr(ctx context.Context, bot, name string, delta float64) error
}

// NotificationSink accepts notification actions.
type NotificationSink interface {
	Accept(ctx context.Context, payload NotificationPayload) error
}

// TagSink accepts tag actions.
type TagSink interface {
	Accept(ctx context.Context, payload TagPayload) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
