package scanner

// Pure indicator math over bar series. No clocks, no randomness: identical
// input always produces identical output.

// SMA over the last period values. Returns 0 when there is not enough data.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// EMA over the whole series, seeded with the SMA of the first period values.
func EMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	ema := SMA(values[:period], period)
	k := 2.0 / float64(period+1)
	for _, v := range values[period:] {
		ema = ema + k*(v-ema)
	}
	return ema
}

// RSI with Wilder smoothing. Returns 50 (neutral) when the series is too
// short to say anything.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return 50
	}
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// RangePosition places price inside the [low, high] band of the last period
// bars: 0 at the low, 1 at the high.
func RangePosition(price float64, highs, lows []float64, period int) float64 {
	if period <= 0 || len(highs) < period || len(lows) < period {
		return 0.5
	}
	hi, lo := highs[len(highs)-period], lows[len(lows)-period]
	for _, h := range highs[len(highs)-period:] {
		if h > hi {
			hi = h
		}
	}
	for _, l := range lows[len(lows)-period:] {
		if l < lo {
			lo = l
		}
	}
	if hi <= lo {
		return 0.5
	}
	pos := (price - lo) / (hi - lo)
	if pos < 0 {
		return 0
	}
	if pos > 1 {
		return 1
	}
	return pos
}

// Slope is the least-squares slope of the series normalized by its mean, so
// +0.01 means roughly +1% per step. Returns 0 for flat or degenerate input.
func Slope(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	slope := (fn*sumXY - sumX*sumY) / denom
	mean := sumY / fn
	if mean == 0 {
		return 0
	}
	return slope / mean
}
