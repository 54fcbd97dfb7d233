package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

func series(from, to float64) []float64 {
	var out []float64
	if from <= to {
		for v := from; v <= to; v++ {
			out = append(out, v)
		}
		return out
	}
	for v := from; v >= to; v-- {
		out = append(out, v)
	}
	return out
}

func TestSMA(t *testing.T) {
	v, err := SMA(series(1, 10), 5)
	require.NoError(t, err)
	assert.Equal(t, 8.0, v)

	_, err = SMA(series(1, 3), 5)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)

	_, err = SMA(series(1, 3), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidPeriod)
}

func TestEMA(t *testing.T) {
	// Seed SMA(1,2,3)=2, k=0.5: 4 -> 3, 5 -> 4.
	v, err := EMA(series(1, 5), 3)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, v, 1e-9)

	flat := []float64{7, 7, 7, 7, 7, 7}
	v, err = EMA(flat, 4)
	require.NoError(t, err)
	assert.InDelta(t, 7.0, v, 1e-9)

	_, err = EMA(series(1, 2), 3)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestRSI(t *testing.T) {
	up, err := RSI(series(1, 30), 14)
	require.NoError(t, err)
	assert.Equal(t, 100.0, up)

	down, err := RSI(series(30, 1), 14)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, down, 1e-9)

	// Alternating +1/-1 moves balance out.
	alt := make([]float64, 15)
	for i := range alt {
		alt[i] = float64(10 + i%2)
	}
	mid, err := RSI(alt, 14)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, mid, 1e-9)

	// Seed over +1,+1,-1 gives 2/3 and 1/3. Wilder steps for +2 then -1
	// give 20/27 and 13/27, so RS = 20/13.
	smoothed, err := RSI([]float64{10, 11, 12, 11, 13, 12}, 3)
	require.NoError(t, err)
	assert.InDelta(t, 100-100*13.0/33.0, smoothed, 1e-9)

	_, err = RSI(series(1, 14), 14)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestMACD(t *testing.T) {
	// On a unit-slope line an SMA-seeded EMA(n) lags by (n-1)/2, so the
	// line is 12.5 - 5.5.
	v, err := MACD(series(1, 30))
	require.NoError(t, err)
	assert.InDelta(t, 7.0, v, 1e-9)

	v, err = Compute(IndicatorMACD, series(30, 1), 0)
	require.NoError(t, err)
	assert.InDelta(t, -7.0, v, 1e-9)

	v, err = MACD([]float64{5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, v, 1e-9)

	_, err = MACD(series(1, 25))
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestComputeUnknownIndicator(t *testing.T) {
	_, err := Compute("stochastic", series(1, 30), 14)
	assert.ErrorIs(t, err, domain.ErrUnsupportedIndicator)
}

func TestSignal(t *testing.T) {
	assert.Equal(t, SignalBuy, Signal(IndicatorRSI, 25, 0))
	assert.Equal(t, SignalSell, Signal(IndicatorRSI, 75, 0))
	assert.Equal(t, SignalNeutral, Signal(IndicatorRSI, 50, 0))
	assert.Equal(t, SignalBuy, Signal(IndicatorSMA, 100, 105))
	assert.Equal(t, SignalSell, Signal(IndicatorEMA, 100, 95))
	assert.Equal(t, SignalNeutral, Signal(IndicatorSMA, 100, 100))
	assert.Equal(t, SignalBuy, Signal(IndicatorMACD, 0.4, 0))
	assert.Equal(t, SignalSell, Signal(IndicatorMACD, -0.4, 0))
}
