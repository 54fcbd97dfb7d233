package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/decisionbot/internal/decision"
	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// BotState implements domain.BotStateStore in memory.
type BotState struct {
	mu       sync.Mutex
	counters map[string]map[string]float64
}

// NewBotState creates an empty BotState.
func NewBotState() *BotState {
	return &BotState{counters: make(map[string]map[string]float64)}
}

// Counter returns one counter, 0 when absent.
func (b *BotState) Counter(_ context.Context, bot, name string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counters[bot][name], nil
}

// Counters returns a copy of every counter of bot.
func (b *BotState) Counters(_ context.Context, bot string) (map[string]float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := maps.Clone(b.counters[bot])
	if out == nil {
		out = map[string]float64{}
	}
	return out, nil
}

// Incr adds delta to a counter.
func (b *BotState) Incr(_ context.Context, bot, name string, delta float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.counters[bot]
	if m == nil {
		m = make(map[string]float64)
		b.counters[bot] = m
	}
	m[name] += delta
	return nil
}

// MarketData implements domain.MarketDataProvider over snapshots pushed
// with SetSnapshot.
type MarketData struct {
	mu         sync.RWMutex
	snaps      map[string]domain.MarketSnapshot
	history    map[string][]float64
	historyCap int
}

// NewMarketData creates an empty MarketData keeping at most historyCap
// prices per symbol.
func NewMarketData(historyCap int) *MarketData {
	if historyCap <= 0 {
		historyCap = 500
	}
	return &MarketData{
		snaps:      make(map[string]domain.MarketSnapshot),
		history:    make(map[string][]float64),
		historyCap: historyCap,
	}
}

// SetSnapshot stores snap and appends to the symbol's history: the
// snapshot's own History when given, its last price otherwise.
func (m *MarketData) SetSnapshot(_ context.Context, snap domain.MarketSnapshot) error {
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now().UTC()
	}
	points := snap.History
	if len(points) == 0 && snap.Last > 0 {
		points = []float64{snap.Last}
	}
	snap.History = nil

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[snap.Symbol] = snap
	h := append(m.history[snap.Symbol], points...)
	if len(h) > m.historyCap {
		h = slices.Clone(h[len(h)-m.historyCap:])
	}
	m.history[snap.Symbol] = h
	return nil
}

// Snapshot returns the stored snapshot of symbol.
func (m *MarketData) Snapshot(_ context.Context, symbol string) (domain.MarketSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snaps[symbol]
	if !ok {
		return domain.MarketSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

// Price returns one field of the symbol's snapshot.
func (m *MarketData) Price(ctx context.Context, symbol, field string) (float64, error) {
	snap, err := m.Snapshot(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return decision.PriceField(snap, field)
}

// PriceHistory returns up to lookback recent prices, oldest first.
func (m *MarketData) PriceHistory(_ context.Context, symbol string, lookback int) ([]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h := m.history[symbol]
	if len(h) == 0 {
		return nil, domain.ErrNotFound
	}
	if lookback > 0 && lookback < len(h) {
		h = h[len(h)-lookback:]
	}
	return slices.Clone(h), nil
}

// TagSink implements domain.TagSink in memory.
type TagSink struct {
	mu   sync.Mutex
	tags map[string]map[string]struct{}
}

// NewTagSink creates an empty TagSink.
func NewTagSink() *TagSink {
	return &TagSink{tags: make(map[string]map[string]struct{})}
}

// Accept implements domain.TagSink.
func (t *TagSink) Accept(_ context.Context, p domain.TagPayload) error {
	key := string(p.Target) + ":" + p.BotName
	if p.Target == domain.TagTargetPosition {
		key = string(p.Target) + ":" + p.PositionID
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.tags[key]
	if set == nil {
		set = make(map[string]struct{})
		t.tags[key] = set
	}
	for _, tag := range p.Tags {
		set[tag] = struct{}{}
	}
	return nil
}

// BotTags returns the sorted tags of bot.
func (t *TagSink) BotTags(_ context.Context, bot string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.tags[string(domain.TagTargetBot)+":"+bot]
	out := make([]string, 0, len(set))
	for tag := range set {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out, nil
}

var (
	_ domain.BotStateStore      = (*BotState)(nil)
	_ domain.MarketDataProvider = (*MarketData)(nil)
	_ domain.TagSink            = (*TagSink)(nil)
)
