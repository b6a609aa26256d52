// Package indicators provides technical indicator calculations used by
// the signal strategies. All functions are pure: they take price series
// and return value series aligned to the input, or nil when there is not
// enough data for the requested period.
package indicators

import "math"

// SMA calculates the Simple Moving Average of values.
func SMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	result := make([]float64, len(values))
	for i := period - 1; i < len(values); i++ {
		result[i] = mean(values[i-period+1 : i+1])
	}
	return result
}

// EMA calculates the Exponential Moving Average of values. The first
// value at index period-1 is seeded with an SMA.
func EMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	result := make([]float64, len(values))
	multiplier := 2.0 / float64(period+1)

	result[period-1] = mean(values[:period])
	for i := period; i < len(values); i++ {
		result[i] = (values[i]-result[i-1])*multiplier + result[i-1]
	}
	return result
}

// MACD calculates Moving Average Convergence Divergence: the MACD line
// (fast EMA - slow EMA), the signal line (EMA of the MACD line), and the
// histogram (MACD - signal).
func MACD(closes []float64, fast, slow, signal int) (macd, sig, hist []float64) {
	if fast <= 0 || slow <= fast || signal <= 0 {
		return nil, nil, nil
	}
	if len(closes) < slow+signal {
		return nil, nil, nil
	}

	emaFast := EMA(closes, fast)
	emaSlow := EMA(closes, slow)

	n := len(closes)
	macd = make([]float64, n)
	for i := slow - 1; i < n; i++ {
		macd[i] = emaFast[i] - emaSlow[i]
	}

	sigTail := EMA(macd[slow-1:], signal)
	sig = make([]float64, n)
	hist = make([]float64, n)
	for i := slow - 1 + signal - 1; i < n; i++ {
		sig[i] = sigTail[i-(slow-1)]
		hist[i] = macd[i] - sig[i]
	}
	return macd, sig, hist
}

// RSI calculates the Relative Strength Index using Wilder smoothing.
func RSI(closes []float64, period int) []float64 {
	if period <= 0 || len(closes) < period+1 {
		return nil
	}

	n := len(closes)
	result := make([]float64, n)
	gains := make([]float64, n)
	losses := make([]float64, n)

	for i := 1; i < n; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	avgGain := mean(gains[1 : period+1])
	avgLoss := mean(losses[1 : period+1])
	result[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < n; i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
		result[i] = rsiValue(avgGain, avgLoss)
	}
	return result
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// KDJ calculates the stochastic KDJ oscillator. RSV is the raw stochastic
// over the last n candles; K and D are smoothed with the conventional
// (m-1)/m recursion; J = 3K - 2D.
func KDJ(highs, lows, closes []float64, n, m1, m2 int) (k, d, j []float64) {
	if n <= 0 || m1 <= 0 || m2 <= 0 {
		return nil, nil, nil
	}
	if len(closes) < n || len(highs) < n || len(lows) < n {
		return nil, nil, nil
	}

	length := len(closes)
	k = make([]float64, length)
	d = make([]float64, length)
	j = make([]float64, length)

	prevK, prevD := 50.0, 50.0
	for i := n - 1; i < length; i++ {
		highest := highs[i-n+1]
		lowest := lows[i-n+1]
		for x := i - n + 2; x <= i; x++ {
			highest = math.Max(highest, highs[x])
			lowest = math.Min(lowest, lows[x])
		}

		rsv := 50.0
		if highest != lowest {
			rsv = (closes[i] - lowest) / (highest - lowest) * 100
		}

		k[i] = (prevK*float64(m1-1) + rsv) / float64(m1)
		d[i] = (prevD*float64(m2-1) + k[i]) / float64(m2)
		j[i] = 3*k[i] - 2*d[i]
		prevK, prevD = k[i], d[i]
	}
	return k, d, j
}

// Bollinger calculates Bollinger Bands around an SMA with stdDev widths.
func Bollinger(closes []float64, period int, stdDevs float64) (upper, middle, lower []float64) {
	if period <= 1 || len(closes) < period {
		return nil, nil, nil
	}

	n := len(closes)
	upper = make([]float64, n)
	middle = make([]float64, n)
	lower = make([]float64, n)

	for i := period - 1; i < n; i++ {
		win := closes[i-period+1 : i+1]
		m := mean(win)
		sd := stdDev(win, m)
		middle[i] = m
		upper[i] = m + stdDevs*sd
		lower[i] = m - stdDevs*sd
	}
	return upper, middle, lower
}

// Last returns the final value of a series and whether the series is
// usable (non-nil and non-empty).
func Last(series []float64) (float64, bool) {
	if len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1], true
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

func stdDev(values []float64, m float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sq float64
	for _, v := range values {
		sq += (v - m) * (v - m)
	}
	return math.Sqrt(sq / float64(len(values)-1))
}
