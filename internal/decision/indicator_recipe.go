package decision

import (
	"fmt"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

type indicatorEvaluator struct{}

func (indicatorEvaluator) Kind() domain.RecipeKind { return domain.RecipeIndicator }

func (indicatorEvaluator) Evaluate(dc *domain.DecisionContext, cfg *domain.DecisionConfig) (Verdict, error) {
	p := cfg.Indicator
	if p == nil {
		return Verdict{}, fmt.Errorf("%w: indicator parameters missing", domain.ErrInvalidConfig)
	}
	snap, ok := dc.Market(p.Symbol)
	if !ok {
		return Verdict{}, fmt.Errorf("%w: %s", domain.ErrSymbolNotFound, p.Symbol)
	}
	value, err := Compute(p.Indicator, snap.History, p.Period)
	if err != nil {
		return Verdict{}, fmt.Errorf("%s %s(%d): %w", p.Symbol, p.Indicator, p.Period, err)
	}

	if p.Signal != "" {
		got := Signal(p.Indicator, value, snap.Last)
		yes := got == p.Signal
		return Verdict{
			Yes:        yes,
			Confidence: confidenceIndicator,
			Reasoning:  fmt.Sprintf("%s %s(%d)=%.2f signal %s, want %s", p.Symbol, p.Indicator, p.Period, value, got, p.Signal),
		}, nil
	}

	label := fmt.Sprintf("%s %s(%d)", p.Symbol, p.Indicator, p.Period)
	return compareNumber(label, value, p.Comparison, confidenceIndicator)
}
