package decision

import (
	"fmt"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// Confidence levels reported by the recipe evaluators.
const (
	confidenceDeterministic = 1.0
	confidenceIndicator     = 0.85
)

// Verdict is the outcome of one leaf evaluation.
type Verdict struct {
	Yes        bool
	Confidence float64
	Reasoning  string
}

// Evaluator evaluates one recipe kind. Implementations are pure functions of
// the config and the context.
type Evaluator interface {
	Kind() domain.RecipeKind
	Evaluate(dc *domain.DecisionContext, cfg *domain.DecisionConfig) (Verdict, error)
}

// defaultEvaluators is the closed set of leaf evaluators.
func defaultEvaluators() map[domain.RecipeKind]Evaluator {
	evals := []Evaluator{
		stockEvaluator{},
		indicatorEvaluator{},
		positionEvaluator{},
		botEvaluator{},
		generalEvaluator{},
	}
	m := make(map[domain.RecipeKind]Evaluator, len(evals))
	for _, e := range evals {
		m[e.Kind()] = e
	}
	return m
}

// compareNumber runs a numeric leaf comparison and builds its reasoning.
func compareNumber(label string, actual float64, cmp domain.Comparison, confidence float64) (Verdict, error) {
	left := domain.Number(actual)
	ok, err := Compare(cmp.Operator, left, cmp.Value, cmp.Value2)
	if err != nil {
		return Verdict{}, fmt.Errorf("%s: %w", label, err)
	}
	return Verdict{
		Yes:        ok,
		Confidence: confidence,
		Reasoning:  fmt.Sprintf("%s: %s = %t", label, describe(cmp.Operator, left, cmp.Value, cmp.Value2), ok),
	}, nil
}
