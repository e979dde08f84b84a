package models

import "time"

type OptionType string

const (
	OptionCall OptionType = "call"
	OptionPut  OptionType = "put"
)

type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
}

// OptionContract is one options-chain entry. GreeksEstimated marks heuristic
// values substituted when the gateway returned none; downstream consumers must
// be able to tell the two apart.
type OptionContract struct {
	Underlying      string     `json:"underlying"`
	Strike          float64    `json:"strike"`
	Expiration      time.Time  `json:"expiration"`
	Type            OptionType `json:"type"`
	Bid             float64    `json:"bid"`
	Ask             float64    `json:"ask"`
	Greeks          Greeks     `json:"greeks"`
	GreeksEstimated bool       `json:"greeks_estimated"`
}

// Mid returns the contract mid price, falling back to whichever side is set.
func (c OptionContract) Mid() float64 {
	if c.Bid > 0 && c.Ask > 0 {
		return (c.Bid + c.Ask) / 2
	}
	if c.Ask > 0 {
		return c.Ask
	}
	return c.Bid
}

// DaysToExpiration counts whole calendar days from now to expiration, never negative.
func DaysToExpiration(expiration time.Time, now time.Time) int {
	d := int(expiration.Sub(now).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
