package indicators

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMAKnownValues(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}

	sma := SMA(values, 3)
	require.NotNil(t, sma)
	assert.InDelta(t, 2.0, sma[2], 1e-9)
	assert.InDelta(t, 3.0, sma[3], 1e-9)
	assert.InDelta(t, 4.0, sma[4], 1e-9)
}

func TestSMAInsufficientData(t *testing.T) {
	assert.Nil(t, SMA([]float64{1, 2}, 3))
	assert.Nil(t, SMA(nil, 3))
	assert.Nil(t, SMA([]float64{1, 2, 3}, 0))
}

func TestEMASeededWithSMA(t *testing.T) {
	values := []float64{2, 4, 6, 8, 10}

	ema := EMA(values, 3)
	require.NotNil(t, ema)
	assert.InDelta(t, 4.0, ema[2], 1e-9) // seed = mean(2,4,6)
	// multiplier = 0.5: 4 + (8-4)*0.5 = 6
	assert.InDelta(t, 6.0, ema[3], 1e-9)
	assert.InDelta(t, 8.0, ema[4], 1e-9)
}

func TestRSIExtremes(t *testing.T) {
	up := make([]float64, 30)
	down := make([]float64, 30)
	for i := range up {
		up[i] = 100 + float64(i)
		down[i] = 100 - float64(i)
	}

	rsiUp := RSI(up, 14)
	require.NotNil(t, rsiUp)
	last, ok := Last(rsiUp)
	require.True(t, ok)
	assert.Equal(t, 100.0, last, "monotonic rise has no losses")

	rsiDown := RSI(down, 14)
	last, _ = Last(rsiDown)
	assert.Equal(t, 0.0, last, "monotonic fall has no gains")
}

func TestMACDInsufficientData(t *testing.T) {
	closes := make([]float64, 20)
	macd, sig, hist := MACD(closes, 12, 26, 9)
	assert.Nil(t, macd)
	assert.Nil(t, sig)
	assert.Nil(t, hist)
}

func TestMACDHistogramIsDifference(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i%7)
	}

	macd, sig, hist := MACD(closes, 12, 26, 9)
	require.NotNil(t, hist)
	for i := 34; i < len(closes); i++ {
		assert.InDelta(t, macd[i]-sig[i], hist[i], 1e-9)
	}
}

func TestKDJFlatMarket(t *testing.T) {
	n := 20
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		highs[i], lows[i], closes[i] = 100, 100, 100
	}

	k, d, _ := KDJ(highs, lows, closes, 9, 3, 3)
	require.NotNil(t, k)
	// RSV pins to 50 when the range is degenerate; K and D converge there.
	lastK, _ := Last(k)
	lastD, _ := Last(d)
	assert.InDelta(t, 50.0, lastK, 1e-6)
	assert.InDelta(t, 50.0, lastD, 1e-6)
}

// RSI stays in [0, 100] and K/D stay in [0, 100] for any price path.
func TestProperty_OscillatorBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	pricesGen := gen.SliceOfN(40, gen.Float64Range(1, 1000))

	properties.Property("RSI within [0, 100]", prop.ForAll(
		func(closes []float64) bool {
			rsi := RSI(closes, 14)
			if rsi == nil {
				return false
			}
			for i := 14; i < len(rsi); i++ {
				if rsi[i] < 0 || rsi[i] > 100 {
					return false
				}
			}
			return true
		},
		pricesGen,
	))

	properties.Property("KDJ K and D within [0, 100]", prop.ForAll(
		func(closes []float64) bool {
			highs := make([]float64, len(closes))
			lows := make([]float64, len(closes))
			for i, c := range closes {
				highs[i] = c * 1.01
				lows[i] = c * 0.99
			}
			k, d, _ := KDJ(highs, lows, closes, 9, 3, 3)
			if k == nil {
				return false
			}
			for i := 8; i < len(k); i++ {
				if k[i] < 0 || k[i] > 100 || d[i] < 0 || d[i] > 100 {
					return false
				}
			}
			return true
		},
		pricesGen,
	))

	properties.TestingRun(t)
}

// Bollinger bands are always ordered lower <= middle <= upper.
func TestProperty_BollingerBandOrdering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("band ordering holds", prop.ForAll(
		func(closes []float64) bool {
			upper, middle, lower := Bollinger(closes, 20, 2.0)
			if upper == nil {
				return false
			}
			for i := 19; i < len(closes); i++ {
				if lower[i] > middle[i] || middle[i] > upper[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(40, gen.Float64Range(1, 1000)),
	))

	properties.TestingRun(t)
}
