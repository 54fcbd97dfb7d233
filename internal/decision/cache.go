package decision

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

type cacheEntry struct {
	result    domain.DetailedDecisionResult
	createdAt time.Time
	ttl       time.Duration
}

// resultCache is a capacity-bounded LRU of leaf results with a per-entry TTL.
// Concurrent misses on one key are collapsed into a single computation.
type resultCache struct {
	entries *lru.Cache[uint64, cacheEntry]
	ttl     time.Duration
	now     func() time.Time
	flight  singleflight.Group
}

func newResultCache(capacity int, ttl time.Duration, now func() time.Time) (*resultCache, error) {
	entries, err := lru.New[uint64, cacheEntry](capacity)
	if err != nil {
		return nil, fmt.Errorf("decision: create cache: %w", err)
	}
	return &resultCache{entries: entries, ttl: ttl, now: now}, nil
}

// get returns a live entry. Expired entries are removed.
func (c *resultCache) get(key uint64) (domain.DetailedDecisionResult, bool) {
	e, ok := c.entries.Get(key)
	if !ok {
		return domain.DetailedDecisionResult{}, false
	}
	if c.now().Sub(e.createdAt) >= e.ttl {
		c.entries.Remove(key)
		return domain.DetailedDecisionResult{}, false
	}
	return e.result, true
}

func (c *resultCache) put(key uint64, res domain.DetailedDecisionResult) {
	c.entries.Add(key, cacheEntry{result: res, createdAt: c.now(), ttl: c.ttl})
}

// getOrCompute returns the cached result for key, or runs compute once for all
// concurrent callers and stores its result. hit is false only for the caller
// whose compute ran.
func (c *resultCache) getOrCompute(key uint64, compute func() domain.DetailedDecisionResult) (res domain.DetailedDecisionResult, hit bool) {
	if r, ok := c.get(key); ok {
		return r, true
	}
	computed := false
	v, _, _ := c.flight.Do(strconv.FormatUint(key, 16), func() (any, error) {
		if r, ok := c.get(key); ok {
			return r, nil
		}
		computed = true
		r := compute()
		c.put(key, r)
		return r, nil
	})
	return v.(domain.DetailedDecisionResult), !computed
}

func (c *resultCache) purge() { c.entries.Purge() }

func (c *resultCache) len() int { return c.entries.Len() }

// cacheKey hashes the normalized config together with the slice of the
// context its recipe kind reads. Any encoding failure is returned so the
// caller can bypass the cache.
func cacheKey(cfg *domain.DecisionConfig, dc *domain.DecisionContext) (uint64, error) {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return 0, fmt.Errorf("decision: encode config: %w", err)
	}
	slice, err := json.Marshal(contextSlice(cfg, dc))
	if err != nil {
		return 0, fmt.Errorf("decision: encode context slice: %w", err)
	}
	h := xxhash.New()
	_, _ = h.Write(cfgJSON)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(slice)
	return h.Sum64(), nil
}

// contextSlice selects the context data a leaf of cfg's kind depends on.
func contextSlice(cfg *domain.DecisionConfig, dc *domain.DecisionContext) any {
	minute := dc.EvaluatedAt.Truncate(time.Minute)
	switch {
	case cfg.Stock != nil:
		snap, ok := dc.MarketData[cfg.Stock.Symbol]
		if !ok {
			return struct{ Missing string }{cfg.Stock.Symbol}
		}
		snap.History = nil
		return snap
	case cfg.Indicator != nil:
		snap, ok := dc.MarketData[cfg.Indicator.Symbol]
		if !ok {
			return struct{ Missing string }{cfg.Indicator.Symbol}
		}
		return snap
	case cfg.Position != nil:
		return struct {
			Positions []domain.PositionSnapshot
			Minute    time.Time
		}{dc.Positions, minute}
	case cfg.Bot != nil:
		return struct {
			BotState  map[string]float64
			Positions []domain.PositionSnapshot
		}{dc.BotState, dc.Positions}
	case cfg.General != nil:
		if cfg.General.Condition == ConditionMarketRegime {
			snap, ok := dc.MarketData[RegimeSymbol]
			if !ok {
				return struct{ Missing string }{RegimeSymbol}
			}
			return snap
		}
		vix, ok := dc.MarketData[VIXSymbol]
		return struct {
			Minute time.Time
			VIX    float64
			HasVIX bool
		}{minute, vix.MarkPrice(), ok}
	}
	return nil
}
