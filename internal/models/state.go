package models

import "time"

// SystemState is the orchestrator-level run state.
type SystemState string

const (
	StateRunning          SystemState = "RUNNING"
	StatePaused           SystemState = "PAUSED"
	StateCircuitTripped   SystemState = "CIRCUIT_TRIPPED"
	StateEmergencyStopped SystemState = "EMERGENCY_STOPPED"
)

// Account is the brokerage account snapshot used for sizing.
type Account struct {
	Equity      float64 `json:"equity"`
	BuyingPower float64 `json:"buying_power"`
}

// RiskSnapshot is a consistent read of the risk manager's state, for status
// reporting and persistence.
type RiskSnapshot struct {
	DailyLoss      float64   `json:"daily_loss"`
	CircuitBreaker bool      `json:"circuit_breaker"`
	LastReset      time.Time `json:"last_reset"`
	OpenPositions  int       `json:"open_positions"`
	PortfolioHeat  float64   `json:"portfolio_heat"`
}
