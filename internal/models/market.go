package models

import "time"

// Bar is one OHLCV candle of any interval.
type Bar struct {
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
	Start  time.Time `json:"start"`
}

type Quote struct {
	Bid  float64 `json:"bid"`
	Ask  float64 `json:"ask"`
	Last float64 `json:"last"`
}

// MarketSnapshot is everything the scanner needs for one symbol on one cycle.
// Built fresh each cycle, never persisted.
type MarketSnapshot struct {
	Symbol   string
	Last     float64
	Bid      float64
	Ask      float64
	Intraday []Bar // short-interval bars, oldest first, spans at least the lookback window
	Daily    []Bar // daily bars for trend indicators, oldest first
	At       time.Time
}

// Headline carries a sentiment value in [-1, +1]. SentimentEstimated marks a
// heuristic substitute for a feed that supplied none; consumers must be able
// to tell the two apart.
type Headline struct {
	Title              string    `json:"title"`
	Source             string    `json:"source"`
	PublishedAt        time.Time `json:"published_at"`
	Sentiment          float64   `json:"sentiment"`
	SentimentEstimated bool      `json:"sentiment_estimated"`
}

// AggregateSentiment averages headline sentiment, returning 0 for no news.
func AggregateSentiment(headlines []Headline) float64 {
	if len(headlines) == 0 {
		return 0
	}
	var sum float64
	for _, h := range headlines {
		sum += h.Sentiment
	}
	return sum / float64(len(headlines))
}
