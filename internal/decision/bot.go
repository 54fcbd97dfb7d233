package decision

import (
	"fmt"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

type botEvaluator struct{}

func (botEvaluator) Kind() domain.RecipeKind { return domain.RecipeBot }

// Evaluate reads the counter from bot state. A few aggregate fields fall back
// to values derived from the context positions; anything else defaults to 0.
func (botEvaluator) Evaluate(dc *domain.DecisionContext, cfg *domain.DecisionConfig) (Verdict, error) {
	p := cfg.Bot
	if p == nil {
		return Verdict{}, fmt.Errorf("%w: bot parameters missing", domain.ErrInvalidConfig)
	}
	v, ok := dc.BotState[p.Field]
	if !ok {
		v = derivedBotField(dc, p.Field)
	}
	return compareNumber("bot "+p.Field, v, p.Comparison, confidenceDeterministic)
}

func derivedBotField(dc *domain.DecisionContext, field string) float64 {
	switch field {
	case "open_positions":
		return float64(len(dc.OpenPositions()))
	case "total_positions":
		return float64(len(dc.Positions))
	case "total_pnl":
		var sum float64
		for _, p := range dc.Positions {
			sum += p.UnrealizedPnL + p.RealizedPnL
		}
		return sum
	case "unrealized_pnl":
		var sum float64
		for _, p := range dc.OpenPositions() {
			sum += p.UnrealizedPnL
		}
		return sum
	}
	return 0
}
