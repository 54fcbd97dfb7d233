package decision

import (
	"fmt"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

type stockEvaluator struct{}

func (stockEvaluator) Kind() domain.RecipeKind { return domain.RecipeStock }

func (stockEvaluator) Evaluate(dc *domain.DecisionContext, cfg *domain.DecisionConfig) (Verdict, error) {
	p := cfg.Stock
	if p == nil {
		return Verdict{}, fmt.Errorf("%w: stock parameters missing", domain.ErrInvalidConfig)
	}
	snap, ok := dc.Market(p.Symbol)
	if !ok {
		return Verdict{}, fmt.Errorf("%w: %s", domain.ErrSymbolNotFound, p.Symbol)
	}
	v, err := PriceField(snap, p.PriceField)
	if err != nil {
		return Verdict{}, err
	}
	return compareNumber(fmt.Sprintf("stock %s %s", p.Symbol, p.PriceField), v, p.Comparison, confidenceDeterministic)
}

// PriceField reads a named field of a market snapshot. Both short names
// (last, bid) and suffixed names (last_price, bid_price) are accepted.
func PriceField(m domain.MarketSnapshot, field string) (float64, error) {
	switch field {
	case "", "last", "last_price", "price":
		return m.Last, nil
	case "bid", "bid_price":
		return m.Bid, nil
	case "ask", "ask_price":
		return m.Ask, nil
	case "mid", "mid_price":
		return m.Mid(), nil
	case "open":
		return m.Open, nil
	case "high":
		return m.High, nil
	case "low":
		return m.Low, nil
	case "close":
		return m.Close, nil
	case "prev_close":
		return m.PrevClose, nil
	case "volume":
		return m.Volume, nil
	case "iv_rank":
		return m.IVRank, nil
	case "change":
		if m.PrevClose == 0 {
			return 0, fmt.Errorf("%w: %s has no previous close", domain.ErrInsufficientData, m.Symbol)
		}
		return m.Last - m.PrevClose, nil
	case "change_percent":
		if m.PrevClose == 0 {
			return 0, fmt.Errorf("%w: %s has no previous close", domain.ErrInsufficientData, m.Symbol)
		}
		return (m.Last - m.PrevClose) / m.PrevClose * 100, nil
	case "bid_ask_spread", "spread":
		return m.Ask - m.Bid, nil
	default:
		return 0, fmt.Errorf("%w: unknown price_field %q", domain.ErrInvalidConfig, field)
	}
}
