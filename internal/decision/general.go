package decision

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// General condition types.
const (
	ConditionMarketTime            = "market_time"
	ConditionVIXLevel              = "vix_level"
	ConditionDayOfWeek             = "day_of_week"
	ConditionVolatilityEnvironment = "volatility_environment"
	ConditionMarketRegime          = "market_regime"
)

// Market data keys consulted by the VIX and regime conditions.
const (
	VIXSymbol    = "VIX"
	RegimeSymbol = "SPY"
)

type generalEvaluator struct{}

func (generalEvaluator) Kind() domain.RecipeKind { return domain.RecipeGeneral }

func (generalEvaluator) Evaluate(dc *domain.DecisionContext, cfg *domain.DecisionConfig) (Verdict, error) {
	p := cfg.General
	if p == nil {
		return Verdict{}, fmt.Errorf("%w: general parameters missing", domain.ErrInvalidConfig)
	}
	switch p.Condition {
	case ConditionMarketTime:
		return evalMarketTime(dc, p)
	case ConditionDayOfWeek, "market_day":
		return evalDayOfWeek(dc, p)
	case ConditionVIXLevel:
		vix, err := vixLevel(dc)
		if err != nil {
			return Verdict{}, err
		}
		return compareNumber("VIX", vix, p.Comparison, confidenceDeterministic)
	case ConditionVolatilityEnvironment:
		vix, err := vixLevel(dc)
		if err != nil {
			return Verdict{}, err
		}
		return compareNumber(fmt.Sprintf("volatility environment (VIX %.2f)", vix), float64(VolatilityBucket(vix)), p.Comparison, confidenceDeterministic)
	case ConditionMarketRegime:
		return evalMarketRegime(dc, p)
	default:
		return Verdict{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedCondition, p.Condition)
	}
}

// VolatilityBucket classifies a VIX level: 1 low (<15), 3 high (>25), 2 otherwise.
func VolatilityBucket(vix float64) int {
	switch {
	case vix < 15:
		return 1
	case vix > 25:
		return 3
	}
	return 2
}

// MarketRegime classifies price against its 20 and 50 period SMAs: 1 bull
// when price > sma20 > sma50, -1 bear when price < sma20 < sma50, 0 otherwise.
func MarketRegime(price, sma20, sma50 float64) int {
	switch {
	case price > sma20 && sma20 > sma50:
		return 1
	case price < sma20 && sma20 < sma50:
		return -1
	}
	return 0
}

// vixLevel reads the VIX mark price: Last, falling back to Close.
func vixLevel(dc *domain.DecisionContext) (float64, error) {
	snap, ok := dc.Market(VIXSymbol)
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrSymbolNotFound, VIXSymbol)
	}
	v := snap.MarkPrice()
	if v <= 0 {
		return 0, fmt.Errorf("%w: %s has no price", domain.ErrInsufficientData, VIXSymbol)
	}
	return v, nil
}

func evalMarketRegime(dc *domain.DecisionContext, p *domain.GeneralParams) (Verdict, error) {
	snap, ok := dc.Market(RegimeSymbol)
	if !ok {
		return Verdict{}, fmt.Errorf("%w: %s", domain.ErrSymbolNotFound, RegimeSymbol)
	}
	sma20, err := SMA(snap.History, 20)
	if err != nil {
		return Verdict{}, fmt.Errorf("market_regime: %w", err)
	}
	sma50, err := SMA(snap.History, 50)
	if err != nil {
		return Verdict{}, fmt.Errorf("market_regime: %w", err)
	}
	price := snap.MarkPrice()
	regime := MarketRegime(price, sma20, sma50)
	label := fmt.Sprintf("market regime (%s %.2f, sma20 %.2f, sma50 %.2f)", RegimeSymbol, price, sma20, sma50)
	return compareNumber(label, float64(regime), p.Comparison, confidenceIndicator)
}

// evalMarketTime compares the evaluation time of day against "HH:MM" operands,
// both expressed as minutes after midnight.
func evalMarketTime(dc *domain.DecisionContext, p *domain.GeneralParams) (Verdict, error) {
	cmp := p.Comparison
	right, err := clockOperand(cmp.Value)
	if err != nil {
		return Verdict{}, err
	}
	right2, err := clockOperand(cmp.Value2)
	if err != nil {
		return Verdict{}, err
	}
	now := dc.EvaluatedAt
	minutes := float64(now.Hour()*60 + now.Minute())
	return compareNumber("time "+now.Format("15:04"), minutes,
		domain.Comparison{Operator: cmp.Operator, Value: right, Value2: right2}, confidenceDeterministic)
}

// clockOperand converts an "HH:MM" string operand to minutes. Numeric
// operands are taken as minutes already.
func clockOperand(v *domain.Value) (*domain.Value, error) {
	if v == nil || v.Kind == domain.ValueNumber {
		return v, nil
	}
	var h, m int
	if _, err := fmt.Sscanf(v.Str, "%d:%d", &h, &m); err != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return nil, fmt.Errorf("%w: time %q is not HH:MM", domain.ErrInvalidConfig, v.Str)
	}
	return domain.NumberPtr(float64(h*60 + m)), nil
}

// evalDayOfWeek checks membership of the evaluation weekday in Days, or
// compares the weekday name against Value when Days is empty.
func evalDayOfWeek(dc *domain.DecisionContext, p *domain.GeneralParams) (Verdict, error) {
	today := dc.EvaluatedAt.Weekday().String()
	if len(p.Days) > 0 {
		for _, d := range p.Days {
			if strings.EqualFold(d, today) {
				return Verdict{Yes: true, Confidence: confidenceDeterministic, Reasoning: fmt.Sprintf("%s in %v", today, p.Days)}, nil
			}
		}
		return Verdict{Confidence: confidenceDeterministic, Reasoning: fmt.Sprintf("%s not in %v", today, p.Days)}, nil
	}

	op := p.Operator
	if op == "" {
		op = domain.OpEqual
	}
	left := domain.String(today)
	ok, err := Compare(op, left, p.Value, p.Value2)
	if err != nil {
		return Verdict{}, fmt.Errorf("day_of_week: %w", err)
	}
	return Verdict{
		Yes:        ok,
		Confidence: confidenceDeterministic,
		Reasoning:  fmt.Sprintf("day_of_week: %s = %t", describe(op, left, p.Value, p.Value2), ok),
	}, nil
}
