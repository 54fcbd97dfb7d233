package decision

import (
	"context"
	"math"
	"time"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

const scenarioHistoryLen = 60

// scenario is a synthetic market profile applied to every symbol a config
// references.
type scenario struct {
	name        string
	description string
	build       func(symbols []string, now time.Time) *domain.DecisionContext
}

// TestConfig runs cfg against a fixed battery of synthetic contexts. The
// passes are isolated: the live cache and statistics are not touched.
func (e *Engine) TestConfig(cfg *domain.DecisionConfig) domain.ConfigTestReport {
	report := domain.ConfigTestReport{
		Valid:   true,
		Summary: make(map[domain.DecisionResult]int),
	}
	if cfg == nil {
		report.Valid = false
		report.Error = domain.ErrInvalidConfig.Error() + ": nil config"
		return report
	}
	if err := cfg.Validate(); err != nil {
		report.Valid = false
		report.Error = err.Error()
	}

	symbols := cfg.Symbols()
	now := e.now()
	for _, sc := range scenarios() {
		dc := sc.build(symbols, now)
		res := e.evaluate(context.Background(), cfg, dc, 0, false)
		report.Scenarios = append(report.Scenarios, domain.ScenarioResult{
			Scenario:    sc.name,
			Description: sc.description,
			Result:      res,
		})
		report.Summary[res.Result]++
	}
	return report
}

func scenarios() []scenario {
	return []scenario{
		{
			name:        "bull",
			description: "rising prices, low volatility, no positions",
			build: func(symbols []string, now time.Time) *domain.DecisionContext {
				return &domain.DecisionContext{
					MarketData:  marketFor(symbols, 460, 20, 15, trending(400, 1)),
					BotState:    map[string]float64{},
					EvaluatedAt: now,
				}
			},
		},
		{
			name:        "bear",
			description: "falling prices, elevated volatility, one losing position",
			build: func(symbols []string, now time.Time) *domain.DecisionContext {
				return &domain.DecisionContext{
					MarketData:  marketFor(symbols, 420, 60, 25, trending(480, -1)),
					Positions:   []domain.PositionSnapshot{syntheticPosition(symbols, now.Add(-5*24*time.Hour), 450, 420)},
					BotState:    map[string]float64{"open_positions": 1, "total_pnl": -300},
					EvaluatedAt: now,
				}
			},
		},
		{
			name:        "high_volatility",
			description: "choppy prices, VIX above 30, bot under drawdown",
			build: func(symbols []string, now time.Time) *domain.DecisionContext {
				return &domain.DecisionContext{
					MarketData:  marketFor(symbols, 440, 80, 35, oscillating(440, 15)),
					BotState:    map[string]float64{"open_positions": 2, "total_pnl": -500},
					EvaluatedAt: now,
				}
			},
		},
		{
			name:        "empty_data",
			description: "no market data, positions or bot state",
			build: func(_ []string, now time.Time) *domain.DecisionContext {
				return &domain.DecisionContext{
					MarketData:  map[string]domain.MarketSnapshot{},
					BotState:    map[string]float64{},
					EvaluatedAt: now,
				}
			},
		},
		{
			name:        "stale_positions",
			description: "flat prices with a position open for 45 days",
			build: func(symbols []string, now time.Time) *domain.DecisionContext {
				return &domain.DecisionContext{
					MarketData:  marketFor(symbols, 440, 40, 20, oscillating(440, 1)),
					Positions:   []domain.PositionSnapshot{syntheticPosition(symbols, now.Add(-45*24*time.Hour), 440, 441)},
					BotState:    map[string]float64{"open_positions": 1},
					EvaluatedAt: now,
				}
			},
		},
	}
}

// marketFor gives every symbol the same profile. The VIX symbol always gets
// the supplied volatility level.
func marketFor(symbols []string, last, ivRank, vix float64, history []float64) map[string]domain.MarketSnapshot {
	out := make(map[string]domain.MarketSnapshot, len(symbols)+1)
	for _, s := range symbols {
		out[s] = domain.MarketSnapshot{
			Symbol:    s,
			Last:      last,
			Bid:       last - 0.05,
			Ask:       last + 0.05,
			Open:      history[len(history)-2],
			High:      last * 1.01,
			Low:       last * 0.99,
			Close:     last,
			PrevClose: history[len(history)-2],
			Volume:    1_000_000,
			IVRank:    ivRank,
			History:   append(append([]float64(nil), history[:len(history)-1]...), last),
		}
	}
	out[VIXSymbol] = domain.MarketSnapshot{Symbol: VIXSymbol, Last: vix, Close: vix, PrevClose: vix}
	return out
}

func syntheticPosition(symbols []string, openedAt time.Time, entry, current float64) domain.PositionSnapshot {
	sym := "SPY"
	if len(symbols) > 0 && symbols[0] != VIXSymbol {
		sym = symbols[0]
	}
	return domain.PositionSnapshot{
		ID:            "scenario-position",
		Symbol:        sym,
		Strategy:      "scenario",
		State:         domain.PositionOpen,
		Quantity:      10,
		EntryPrice:    entry,
		CurrentPrice:  current,
		UnrealizedPnL: (current - entry) * 10,
		OpenedAt:      openedAt,
	}
}

func trending(start, step float64) []float64 {
	out := make([]float64, scenarioHistoryLen)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func oscillating(center, amplitude float64) []float64 {
	out := make([]float64, scenarioHistoryLen)
	for i := range out {
		out[i] = center + amplitude*math.Sin(float64(i))
	}
	return out
}
