package scanner

import (
	"math"

	"trade_engine/internal/models"
	"trade_engine/internal/modules/config"
)

// Weights combine the raw sub-scores into the composite. Each raw sub-score
// is bounded to [0,100]; with weights summing to 1 the total stays in
// [0,100] and is non-decreasing in every sub-score.
type Weights struct {
	Momentum    float64
	Volume      float64
	Technical   float64
	Trend       float64
	VolumeTrend float64
}

func WeightsFromConfig(cfg config.ScannerConfig) Weights {
	return Weights{
		Momentum:    cfg.WeightMomentum,
		Volume:      cfg.WeightVolume,
		Technical:   cfg.WeightTechnical,
		Trend:       cfg.WeightTrend,
		VolumeTrend: cfg.WeightVolumeTrend,
	}
}

type moverSignal struct {
	percentMove float64
	volumeRatio float64
}

// Score builds the composite opportunity score from a snapshot and the mover
// signal already computed for it. Deterministic: no clocks, no randomness.
func Score(cfg config.ScannerConfig, w Weights, snap *models.MarketSnapshot, sig moverSignal) models.OpportunityScore {
	direction := models.DirectionBullish
	if sig.percentMove < 0 {
		direction = models.DirectionBearish
	}

	dailyCloses := closesOf(snap.Daily)
	dailyHighs, dailyLows := highsLowsOf(snap.Daily)
	dailyVolumes := volumesOf(snap.Daily)

	sub := models.SubScores{
		Momentum:      w.Momentum * momentumRaw(sig.percentMove, cfg.MoveThresholdPct),
		VolumeConfirm: w.Volume * volumeRaw(sig.volumeRatio, cfg.VolumeRatioMin),
		Technical:     w.Technical * technicalRaw(snap.Last, dailyCloses, dailyHighs, dailyLows, cfg.RSIPeriod, direction),
		TrendStrength: w.Trend * trendRaw(snap.Last, dailyCloses, direction),
		VolumeTrend:   w.VolumeTrend * volumeTrendRaw(dailyVolumes),
	}

	return models.OpportunityScore{
		Symbol:      snap.Symbol,
		Total:       clamp(sub.Total(), 0, 100),
		Sub:         sub,
		Direction:   direction,
		PercentMove: sig.percentMove,
	}
}

// momentumRaw: 50 at the mover threshold, 100 at twice the threshold.
func momentumRaw(percentMove, threshold float64) float64 {
	if threshold <= 0 {
		return 0
	}
	return clamp(math.Abs(percentMove)/threshold*50, 0, 100)
}

// volumeRaw: 50 at the minimum confirming ratio, 100 at twice it.
func volumeRaw(ratio, minRatio float64) float64 {
	if minRatio <= 0 {
		return 0
	}
	return clamp(ratio/minRatio*50, 0, 100)
}

// technicalRaw rewards RSI headroom in the move's direction plus price above
// (below, for bearish) the 20-day average, and distance from the opposing
// edge of the 20-day range.
func technicalRaw(price float64, closes, highs, lows []float64, rsiPeriod int, dir models.Direction) float64 {
	rsi := RSI(closes, rsiPeriod)
	ma20 := SMA(closes, 20)
	rangePos := RangePosition(price, highs, lows, 20)

	var rsiPts float64 // 0..40, headroom before exhaustion
	if dir == models.DirectionBullish {
		switch {
		case rsi >= 75:
			rsiPts = 5
		case rsi >= 60:
			rsiPts = 25
		case rsi >= 45:
			rsiPts = 40
		case rsi >= 30:
			rsiPts = 30
		default:
			rsiPts = 15
		}
	} else {
		switch {
		case rsi <= 25:
			rsiPts = 5
		case rsi <= 40:
			rsiPts = 25
		case rsi <= 55:
			rsiPts = 40
		case rsi <= 70:
			rsiPts = 30
		default:
			rsiPts = 15
		}
	}

	var maPts float64 // 0..30, price on the right side of MA20
	if ma20 > 0 {
		if (dir == models.DirectionBullish && price > ma20) ||
			(dir == models.DirectionBearish && price < ma20) {
			maPts = 30
		} else {
			maPts = 10
		}
	}

	var rangePts float64 // 0..30, room toward resistance (support for bearish)
	if dir == models.DirectionBullish {
		rangePts = (1 - rangePos) * 30
	} else {
		rangePts = rangePos * 30
	}

	return clamp(rsiPts+maPts+rangePts, 0, 100)
}

// trendRaw scores moving-average alignment with the move's direction.
func trendRaw(price float64, closes []float64, dir models.Direction) float64 {
	ma20 := SMA(closes, 20)
	ma50 := SMA(closes, 50)
	if ma20 == 0 || ma50 == 0 {
		return 50
	}

	bullAligned := price > ma20 && ma20 > ma50
	bearAligned := price < ma20 && ma20 < ma50

	switch {
	case dir == models.DirectionBullish && bullAligned:
		return 100
	case dir == models.DirectionBearish && bearAligned:
		return 100
	case dir == models.DirectionBullish && price > ma20:
		return 70
	case dir == models.DirectionBearish && price < ma20:
		return 70
	case bullAligned || bearAligned:
		return 20 // aligned against the move
	default:
		return 40
	}
}

// volumeTrendRaw maps the daily volume slope to [0,100]: 50 flat, 100 at
// +5%/day or steeper.
func volumeTrendRaw(volumes []float64) float64 {
	s := Slope(volumes)
	return clamp(50+s/0.05*50, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func closesOf(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func volumesOf(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}

func highsLowsOf(bars []models.Bar) (highs, lows []float64) {
	highs = make([]float64, len(bars))
	lows = make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
	}
	return highs, lows
}
