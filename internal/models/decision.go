package models

// Action is the tagged instrument/side variant every consumer must switch on
// exhaustively.
type Action string

const (
	ActionBuyEquity Action = "BUY_EQUITY"
	ActionBuyCall   Action = "BUY_CALL"
	ActionBuyPut    Action = "BUY_PUT"
	ActionHold      Action = "HOLD"
	ActionClose     Action = "CLOSE"
)

// IsEntry reports whether the action opens exposure.
func (a Action) IsEntry() bool {
	switch a {
	case ActionBuyEquity, ActionBuyCall, ActionBuyPut:
		return true
	}
	return false
}

type RiskTier string

const (
	TierLow    RiskTier = "LOW"
	TierMedium RiskTier = "MEDIUM"
	TierHigh   RiskTier = "HIGH"
)

// ExitTrigger names why the monitor asked for a close.
type ExitTrigger string

const (
	ExitProfitTarget ExitTrigger = "profit_target"
	ExitStopLoss     ExitTrigger = "stop_loss"
	ExitExpiration   ExitTrigger = "expiration"
	ExitManual       ExitTrigger = "manual"
)

// Decision is immutable once built and consumed exactly once by the risk
// manager. Quantity is zero until sizing approves it.
type Decision struct {
	Symbol     string
	Action     Action
	Confidence float64 // [0,1]
	Entry      float64
	Target     float64
	Stop       float64
	Tier       RiskTier

	// Option leg, only set for BUY_CALL / BUY_PUT.
	Option *OptionContract

	// Trigger is only set on the exit path.
	Trigger ExitTrigger

	// Quantity: the full position for CLOSE (set by the decision engine),
	// the approved size for entries (set by the risk manager).
	Quantity int

	Reason string
}
