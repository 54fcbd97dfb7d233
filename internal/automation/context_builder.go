package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// DefaultHistoryLookback is the number of closes fetched when a snapshot
// carries no history of its own.
const DefaultHistoryLookback = 250

// StoreContextBuilder builds decision contexts from the market data,
// position and bot state collaborators. Unknown symbols are left out of the
// context so the evaluator reports them as unavailable data.
type StoreContextBuilder struct {
	market    domain.MarketDataProvider
	positions domain.PositionStore
	bots      domain.BotStateStore
	loc       *time.Location
	lookback  int
}

// NewStoreContextBuilder creates a StoreContextBuilder. Evaluation times are
// expressed in loc; a nil loc means UTC.
func NewStoreContextBuilder(market domain.MarketDataProvider, positions domain.PositionStore, bots domain.BotStateStore, loc *time.Location) *StoreContextBuilder {
	if loc == nil {
		loc = time.UTC
	}
	return &StoreContextBuilder{
		market:    market,
		positions: positions,
		bots:      bots,
		loc:       loc,
		lookback:  DefaultHistoryLookback,
	}
}

// Build fetches every symbol concurrently, then the bot's positions and
// counters. Open positions are valued at the latest snapshot of their
// symbol, so PnL fields reflect the market at evaluation time.
func (b *StoreContextBuilder) Build(ctx context.Context, state domain.ExternalState, symbols []string) (domain.DecisionContext, error) {
	now := state.Now
	if now.IsZero() {
		now = time.Now()
	}
	dc := domain.DecisionContext{
		MarketData:  make(map[string]domain.MarketSnapshot, len(symbols)),
		BotState:    map[string]float64{},
		EvaluatedAt: now.In(b.loc),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, sym := range symbols {
		g.Go(func() error {
			snap, ok, err := b.snapshot(gctx, sym)
			if err != nil || !ok {
				return err
			}
			mu.Lock()
			dc.MarketData[sym] = snap
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.DecisionContext{}, err
	}

	if b.positions != nil {
		positions, err := b.positions.ListPositions(ctx, domain.PositionFilter{BotName: state.BotName})
		if err != nil {
			return domain.DecisionContext{}, fmt.Errorf("automation: list positions: %w", err)
		}
		if err := b.markPositions(ctx, positions, dc.MarketData); err != nil {
			return domain.DecisionContext{}, err
		}
		dc.Positions = positions
	}
	if b.bots != nil {
		counters, err := b.bots.Counters(ctx, state.BotName)
		if err != nil {
			return domain.DecisionContext{}, fmt.Errorf("automation: bot counters: %w", err)
		}
		if counters != nil {
			dc.BotState = counters
		}
	}
	return dc, nil
}

func (b *StoreContextBuilder) snapshot(ctx context.Context, sym string) (domain.MarketSnapshot, bool, error) {
	snap, err := b.market.Snapshot(ctx, sym)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.MarketSnapshot{}, false, nil
	}
	if err != nil {
		return domain.MarketSnapshot{}, false, fmt.Errorf("automation: snapshot %s: %w", sym, err)
	}
	if len(snap.History) == 0 {
		hist, err := b.market.PriceHistory(ctx, sym, b.lookback)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return domain.MarketSnapshot{}, false, fmt.Errorf("automation: history %s: %w", sym, err)
		}
		snap.History = hist
	}
	return snap, true, nil
}

// markPositions values the open positions at their symbol's mark price.
// Symbols not already in market are looked up once each; a symbol without
// data leaves its positions at the stored valuation.
func (b *StoreContextBuilder) markPositions(ctx context.Context, positions []domain.PositionSnapshot, market map[string]domain.MarketSnapshot) error {
	prices := make(map[string]float64)
	for i := range positions {
		p := &positions[i]
		if p.State != domain.PositionOpen {
			continue
		}
		price, seen := prices[p.Symbol]
		if !seen {
			if snap, ok := market[p.Symbol]; ok {
				price = snap.MarkPrice()
			} else {
				snap, err := b.market.Snapshot(ctx, p.Symbol)
				switch {
				case errors.Is(err, domain.ErrNotFound):
				case err != nil:
					return fmt.Errorf("automation: snapshot %s: %w", p.Symbol, err)
				default:
					price = snap.MarkPrice()
				}
			}
			prices[p.Symbol] = price
		}
		p.Mark(price)
	}
	return nil
}
