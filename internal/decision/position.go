package decision

import (
	"fmt"
	"math"
	"time"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

type positionEvaluator struct{}

func (positionEvaluator) Kind() domain.RecipeKind { return domain.RecipePosition }

func (positionEvaluator) Evaluate(dc *domain.DecisionContext, cfg *domain.DecisionConfig) (Verdict, error) {
	p := cfg.Position
	if p == nil {
		return Verdict{}, fmt.Errorf("%w: position parameters missing", domain.ErrInvalidConfig)
	}
	pos, err := selectPosition(dc, p)
	if err != nil {
		return Verdict{}, err
	}
	v, err := PositionField(pos, p.Field, dc.EvaluatedAt)
	if err != nil {
		return Verdict{}, err
	}
	return compareNumber(fmt.Sprintf("position %s %s", pos.ID, p.Field), v, p.Comparison, confidenceDeterministic)
}

// selectPosition matches by id first. Otherwise it returns the most recent
// open position passing the symbol and strategy filters.
func selectPosition(dc *domain.DecisionContext, p *domain.PositionParams) (domain.PositionSnapshot, error) {
	id := p.PositionID
	if id == "" && p.Reference != "" && p.Reference != "current" {
		id = p.Reference
	}
	if id != "" {
		for _, pos := range dc.Positions {
			if pos.ID == id {
				return pos, nil
			}
		}
		return domain.PositionSnapshot{}, fmt.Errorf("%w: id %s", domain.ErrPositionNotFound, id)
	}

	open := dc.OpenPositions()
	for i := len(open) - 1; i >= 0; i-- {
		pos := open[i]
		if p.Symbol != "" && pos.Symbol != p.Symbol {
			continue
		}
		if p.Strategy != "" && pos.Strategy != p.Strategy {
			continue
		}
		return pos, nil
	}
	return domain.PositionSnapshot{}, fmt.Errorf("%w: symbol=%q strategy=%q", domain.ErrPositionNotFound, p.Symbol, p.Strategy)
}

// PositionField reads a named attribute of a position.
func PositionField(pos domain.PositionSnapshot, field string, now time.Time) (float64, error) {
	switch field {
	case "days_open":
		return pos.DaysOpen(now), nil
	case "unrealized_pnl":
		return pos.UnrealizedPnL, nil
	case "realized_pnl":
		return pos.RealizedPnL, nil
	case "total_pnl":
		return pos.UnrealizedPnL + pos.RealizedPnL, nil
	case "quantity":
		return pos.Quantity, nil
	case "entry_price":
		return pos.EntryPrice, nil
	case "current_price":
		return pos.CurrentPrice, nil
	case "market_value":
		return pos.CurrentPrice * pos.Quantity, nil
	case "return_percent", "return_percentage":
		basis := math.Abs(pos.EntryPrice * pos.Quantity)
		if basis == 0 {
			return 0, fmt.Errorf("%w: position %s has no cost basis", domain.ErrInsufficientData, pos.ID)
		}
		return (pos.UnrealizedPnL + pos.RealizedPnL) / basis * 100, nil
	default:
		return 0, fmt.Errorf("%w: unknown position_field %q", domain.ErrInvalidConfig, field)
	}
}
