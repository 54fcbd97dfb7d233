package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/decisionbot/internal/decision"
	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// MarketData implements domain.MarketDataProvider over Redis.
//
// Key schema:
//
//	decisionbot:market:{symbol}  - hash, field "data" holds the JSON snapshot
//	decisionbot:history:{symbol} - list of closing prices, oldest first
type MarketData struct {
	rdb        *redis.Client
	ttl        time.Duration
	historyCap int64
}

// NewMarketData creates a MarketData store. Snapshots expire after ttl
// (zero keeps them forever) and at most historyCap prices are retained
// per symbol.
func NewMarketData(c *Client, ttl time.Duration, historyCap int) *MarketData {
	if historyCap <= 0 {
		historyCap = 500
	}
	return &MarketData{rdb: c.Underlying(), ttl: ttl, historyCap: int64(historyCap)}
}

func marketKey(symbol string) string  { return keyPrefix + "market:" + symbol }
func historyKey(symbol string) string { return keyPrefix + "history:" + symbol }

// SetSnapshot stores snap and appends its last price to the history list.
func (m *MarketData) SetSnapshot(ctx context.Context, snap domain.MarketSnapshot) error {
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now().UTC()
	}
	hist := snap.History
	snap.History = nil
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", snap.Symbol, err)
	}

	pipe := m.rdb.TxPipeline()
	key := marketKey(snap.Symbol)
	pipe.HSet(ctx, key, "data", data)
	if m.ttl > 0 {
		pipe.Expire(ctx, key, m.ttl)
	}
	points := hist
	if len(points) == 0 && snap.Last > 0 {
		points = []float64{snap.Last}
	}
	if len(points) > 0 {
		hk := historyKey(snap.Symbol)
		vals := make([]any, len(points))
		for i, p := range points {
			vals[i] = strconv.FormatFloat(p, 'f', -1, 64)
		}
		pipe.RPush(ctx, hk, vals...)
		pipe.LTrim(ctx, hk, -m.historyCap, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", snap.Symbol, err)
	}
	return nil
}

// Snapshot returns the stored snapshot for symbol without history.
func (m *MarketData) Snapshot(ctx context.Context, symbol string) (domain.MarketSnapshot, error) {
	data, err := m.rdb.HGet(ctx, marketKey(symbol), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.MarketSnapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("redis: get snapshot %s: %w", symbol, err)
	}
	var snap domain.MarketSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("redis: unmarshal snapshot %s: %w", symbol, err)
	}
	return snap, nil
}

// Price returns one named field of the symbol's snapshot.
func (m *MarketData) Price(ctx context.Context, symbol, field string) (float64, error) {
	snap, err := m.Snapshot(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return decision.PriceField(snap, field)
}

// PriceHistory returns up to lookback of the most recent prices, oldest
// first. lookback <= 0 returns everything retained.
func (m *MarketData) PriceHistory(ctx context.Context, symbol string, lookback int) ([]float64, error) {
	start := int64(0)
	if lookback > 0 {
		start = -int64(lookback)
	}
	raw, err := m.rdb.LRange(ctx, historyKey(symbol), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: price history %s: %w", symbol, err)
	}
	if len(raw) == 0 {
		return nil, domain.ErrNotFound
	}
	return parseFloats(symbol, raw)
}

func parseFloats(symbol string, raw []string) ([]float64, error) {
	out := make([]float64, len(raw))
	for i, s := range raw {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("redis: parse history %s[%d]: %w", symbol, i, err)
		}
		out[i] = v
	}
	return out, nil
}

var _ domain.MarketDataProvider = (*MarketData)(nil)
