package models

import "time"

type InstrumentType string

const (
	InstrumentEquity InstrumentType = "equity"
	InstrumentCall   InstrumentType = "call"
	InstrumentPut    InstrumentType = "put"
)

// Position is one open holding. Quantity is shares for equity, contracts for
// options, and never negative.
type Position struct {
	Symbol     string         `json:"symbol"`
	Instrument InstrumentType `json:"instrument"`
	Quantity   int            `json:"quantity"`
	Entry      float64        `json:"entry"`
	Current    float64        `json:"current"`

	// Option fields, zero for equity.
	Strike     float64   `json:"strike,omitempty"`
	Expiration time.Time `json:"expiration,omitempty"`

	Target float64 `json:"target"`
	Stop   float64 `json:"stop"`

	OpenedAt time.Time `json:"opened_at"`
	Updated  time.Time `json:"updated"`
}

func (p Position) IsOption() bool {
	return p.Instrument == InstrumentCall || p.Instrument == InstrumentPut
}

// UnitValue is the dollar value of one quantity unit at the given price.
// Option contracts settle 100 shares each.
func (p Position) UnitValue(price float64) float64 {
	if p.IsOption() {
		return price * 100
	}
	return price
}

// UnrealizedPnL in dollars at the currently tracked price.
func (p Position) UnrealizedPnL() float64 {
	return (p.UnitValue(p.Current) - p.UnitValue(p.Entry)) * float64(p.Quantity)
}

// UnrealizedPct relative to the entry price.
func (p Position) UnrealizedPct() float64 {
	if p.Entry == 0 {
		return 0
	}
	return (p.Current - p.Entry) / p.Entry * 100
}

// DTE is the option's days to expiration at the given instant.
func (p Position) DTE(now time.Time) int {
	if !p.IsOption() {
		return 0
	}
	return DaysToExpiration(p.Expiration, now)
}
