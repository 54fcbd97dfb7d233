package decision

import (
	"fmt"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// Indicator names accepted by the indicator recipe.
const (
	IndicatorSMA  = "sma"
	IndicatorEMA  = "ema"
	IndicatorRSI  = "rsi"
	IndicatorMACD = "macd"
)

// MACD periods. The indicator recipe's period does not apply to MACD.
const (
	MACDFast = 12
	MACDSlow = 26
)

// Discrete indicator signals.
const (
	SignalBuy     = "buy"
	SignalSell    = "sell"
	SignalNeutral = "neutral"
)

// SMA returns the mean of the last period values of series.
func SMA(series []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, domain.ErrInvalidPeriod
	}
	if len(series) < period {
		return 0, fmt.Errorf("%w: sma(%d) needs %d values, have %d", domain.ErrInsufficientData, period, period, len(series))
	}
	var sum float64
	for _, v := range series[len(series)-period:] {
		sum += v
	}
	return sum / float64(period), nil
}

// EMA seeds with the SMA of the first period values and then smooths every
// later value with k = 2/(period+1).
func EMA(series []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, domain.ErrInvalidPeriod
	}
	if len(series) < period {
		return 0, fmt.Errorf("%w: ema(%d) needs %d values, have %d", domain.ErrInsufficientData, period, period, len(series))
	}
	ema, _ := SMA(series[:period], period)
	k := 2.0 / float64(period+1)
	for _, p := range series[period:] {
		ema = (p-ema)*k + ema
	}
	return ema, nil
}

// RSI uses a simple mean of gains and losses over the first period deltas,
// then Wilder smoothing for the remaining deltas. It needs period+1 prices and
// returns 100 when the average loss is zero.
func RSI(series []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, domain.ErrInvalidPeriod
	}
	if len(series) < period+1 {
		return 0, fmt.Errorf("%w: rsi(%d) needs %d prices, have %d", domain.ErrInsufficientData, period, period+1, len(series))
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := series[i] - series[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	p := float64(period)
	for i := period + 1; i < len(series); i++ {
		d := series[i] - series[i-1]
		var g, l float64
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*(p-1) + g) / p
		avgLoss = (avgLoss*(p-1) + l) / p
	}

	if avgLoss == 0 {
		return 100, nil
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), nil
}

// MACD returns the MACD line, EMA(12) minus EMA(26), at the last value of
// series.
func MACD(series []float64) (float64, error) {
	if len(series) < MACDSlow {
		return 0, fmt.Errorf("%w: macd needs %d values, have %d", domain.ErrInsufficientData, MACDSlow, len(series))
	}
	fast, err := EMA(series, MACDFast)
	if err != nil {
		return 0, err
	}
	slow, err := EMA(series, MACDSlow)
	if err != nil {
		return 0, err
	}
	return fast - slow, nil
}

// Compute dispatches to the named indicator.
func Compute(name string, series []float64, period int) (float64, error) {
	switch name {
	case IndicatorSMA:
		return SMA(series, period)
	case IndicatorEMA:
		return EMA(series, period)
	case IndicatorRSI:
		return RSI(series, period)
	case IndicatorMACD:
		return MACD(series)
	default:
		return 0, fmt.Errorf("%w: %q", domain.ErrUnsupportedIndicator, name)
	}
}

// Signal maps an indicator value to buy, sell or neutral. RSI uses the
// 30/70 bands, moving averages compare against the last price and MACD
// reads the sign of the line.
func Signal(name string, value, last float64) string {
	switch name {
	case IndicatorRSI:
		switch {
		case value < 30:
			return SignalBuy
		case value > 70:
			return SignalSell
		}
	case IndicatorSMA, IndicatorEMA:
		switch {
		case last > value:
			return SignalBuy
		case last < value:
			return SignalSell
		}
	case IndicatorMACD:
		switch {
		case value > 0:
			return SignalBuy
		case value < 0:
			return SignalSell
		}
	}
	return SignalNeutral
}
