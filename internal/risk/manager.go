package risk

import (
	"fmt"
	"math"
	"time"

	"trade_engine/internal/models"
)

type RejectReason string

const (
	ReasonCircuitBreaker RejectReason = "circuit_breaker_tripped"
	ReasonMaxPositions   RejectReason = "max_positions_reached"
	ReasonBuyingPower    RejectReason = "insufficient_buying_power"
	ReasonPremiumBound   RejectReason = "premium_exceeds_limit"
	ReasonDTEBound       RejectReason = "dte_out_of_band"
	ReasonNotActionable  RejectReason = "not_actionable"
)

// Rejection is a terminal validation outcome. It is never retried; the
// orchestrator notifies and moves on. Detail is fit for direct display.
type Rejection struct {
	Reason RejectReason
	Detail string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

func reject(reason RejectReason, format string, args ...any) *Rejection {
	return &Rejection{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Manager is the gating authority: every decision passes through Approve
// before it may reach the execution controller.
type Manager struct {
	state  *State
	limits *Limits
}

func NewManager(state *State, limits *Limits) *Manager {
	return &Manager{state: state, limits: limits}
}

func (m *Manager) State() *State   { return m.state }
func (m *Manager) Limits() *Limits { return m.limits }

// Approve runs the validation pipeline in fixed order, short-circuiting on
// the first failure, and returns a sized copy of the decision. The input
// decision is never mutated. CLOSE bypasses every entry gate: unwinding risk
// must always be possible.
func (m *Manager) Approve(d *models.Decision, acct models.Account, openPositions int, now time.Time) (*models.Decision, error) {
	switch d.Action {
	case models.ActionClose:
		sized := *d
		return &sized, nil
	case models.ActionHold:
		return nil, reject(ReasonNotActionable, "HOLD carries no order")
	case models.ActionBuyEquity, models.ActionBuyCall, models.ActionBuyPut:
		// entry pipeline below
	default:
		return nil, reject(ReasonNotActionable, "unknown action %q", d.Action)
	}

	lim := m.limits.Snapshot()

	// 1. Circuit breaker.
	if m.state.Tripped() {
		return nil, reject(ReasonCircuitBreaker, "daily loss limit reached, new entries halted until reset")
	}

	// 2. Position count.
	if openPositions >= lim.MaxOpenPositions {
		return nil, reject(ReasonMaxPositions, "%d open positions at limit %d", openPositions, lim.MaxOpenPositions)
	}

	unitCost, err := unitCost(d)
	if err != nil {
		return nil, err
	}

	// 3. Buying power floor: one unit must be affordable.
	if unitCost > acct.BuyingPower {
		return nil, reject(ReasonBuyingPower, "unit cost $%.2f exceeds buying power $%.2f", unitCost, acct.BuyingPower)
	}

	// 4. Per-instrument bounds.
	if err := optionBounds(d, unitCost, lim, now); err != nil {
		return nil, err
	}

	// 5. Sizing, re-checked against buying power.
	qty := Size(acct.Equity, d.Confidence, unitCost, lim)
	if float64(qty)*unitCost > acct.BuyingPower {
		qty = int(math.Floor(acct.BuyingPower / unitCost))
	}
	if qty <= 0 {
		return nil, reject(ReasonBuyingPower, "allocation sizes to zero units at $%.2f", unitCost)
	}

	sized := *d
	sized.Quantity = qty
	return &sized, nil
}

// unitCost is the dollar cost of one share or one contract.
func unitCost(d *models.Decision) (float64, error) {
	switch d.Action {
	case models.ActionBuyEquity:
		if d.Entry <= 0 {
			return 0, reject(ReasonNotActionable, "no entry price for %s", d.Symbol)
		}
		return d.Entry, nil

	case models.ActionBuyCall, models.ActionBuyPut:
		if d.Option == nil {
			return 0, reject(ReasonNotActionable, "option decision without a leg for %s", d.Symbol)
		}
		premium := d.Option.Mid() * 100
		if premium <= 0 {
			return 0, reject(ReasonNotActionable, "no premium quote for %s", d.Symbol)
		}
		return premium, nil
	}
	return 0, reject(ReasonNotActionable, "unknown action %q", d.Action)
}

// optionBounds applies the premium cap and DTE band to option entries.
// Equity entries carry no per-instrument bounds.
func optionBounds(d *models.Decision, premium float64, lim LimitsSnapshot, now time.Time) error {
	if d.Action != models.ActionBuyCall && d.Action != models.ActionBuyPut {
		return nil
	}
	if premium > lim.MaxPremiumPerContract {
		return reject(ReasonPremiumBound, "premium $%.2f above limit $%.2f", premium, lim.MaxPremiumPerContract)
	}
	dte := models.DaysToExpiration(d.Option.Expiration, now)
	if dte < lim.MinDTE || dte > lim.MaxDTE {
		return reject(ReasonDTEBound, "DTE %d outside [%d, %d]", dte, lim.MinDTE, lim.MaxDTE)
	}
	return nil
}

// Size computes the deterministic whole-unit quantity: equity times the base
// allocation, scaled by a confidence multiplier that grows from 1.0 at 60%
// confidence by 0.8 per full point, capped at the configured maximum.
func Size(equity, confidence, unitCost float64, lim LimitsSnapshot) int {
	if unitCost <= 0 || equity <= 0 {
		return 0
	}
	mult := 1 + (confidence-0.60)*0.8
	if mult < 1 {
		mult = 1
	}
	if mult > lim.MaxConfidenceMult {
		mult = lim.MaxConfidenceMult
	}
	target := equity * lim.BaseAllocationPct / 100 * mult
	return int(math.Floor(target / unitCost))
}
