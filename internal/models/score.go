package models

type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
)

// SubScores are the named components of the composite opportunity score.
// Each is already weighted, so the total is their plain sum.
type SubScores struct {
	Momentum      float64 `json:"momentum"`
	VolumeConfirm float64 `json:"volume_confirm"`
	Technical     float64 `json:"technical"`
	TrendStrength float64 `json:"trend_strength"`
	VolumeTrend   float64 `json:"volume_trend"`
}

func (s SubScores) Total() float64 {
	return s.Momentum + s.VolumeConfirm + s.Technical + s.TrendStrength + s.VolumeTrend
}

// OpportunityScore is the scanner's verdict for one mover.
type OpportunityScore struct {
	Symbol      string
	Total       float64 // [0,100], sum of sub-scores
	Sub         SubScores
	Direction   Direction
	PercentMove float64 // move over the lookback window, signed

	// Advisory context, never part of the score.
	OptionsAvailable bool
	Headlines        []Headline
}
