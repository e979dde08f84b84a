package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trade_engine/internal/models"
	"trade_engine/internal/modules/config"
	"trade_engine/internal/positions"
	"trade_engine/pkg/logger"

	"github.com/pkg/errors"
)

// PriceSource is the slice of the market-data client the monitor needs.
// LastKnown is the stale fallback used when a live quote is unavailable.
type PriceSource interface {
	GetQuote(ctx context.Context, symbol string) (models.Quote, error)
	LastKnown(symbol string) (float64, bool)
}

// ExitPlanner builds the CLOSE decision for a triggered position.
type ExitPlanner interface {
	DecideExit(pos models.Position, price float64, trigger models.ExitTrigger) *models.Decision
}

// Alert is one notification event produced by a sweep.
type Alert struct {
	Symbol  string
	Type    models.AlertType
	Message string
}

// Monitor walks open positions, refreshes their prices and raises exit
// decisions plus notifications. Dedup only suppresses repeat notifications;
// a still-triggered position produces a CLOSE on every sweep until it fills.
type Monitor struct {
	md       PriceSource
	registry *positions.Registry
	planner  ExitPlanner

	profitTargetPct    float64
	stopLossPct        float64
	significantMovePct float64
	forceCloseDTE      int
	dedupWindow        time.Duration

	mu    sync.Mutex
	fired map[string]*models.AlertRecord
}

func New(md PriceSource, reg *positions.Registry, planner ExitPlanner, cfg config.ExitConfig) *Monitor {
	return &Monitor{
		md:                 md,
		registry:           reg,
		planner:            planner,
		profitTargetPct:    cfg.ProfitTargetPct,
		stopLossPct:        cfg.StopLossPct,
		significantMovePct: cfg.SignificantMovePct,
		forceCloseDTE:      cfg.ForceCloseDTE,
		dedupWindow:        cfg.AlertDedupWindow,
		fired:              make(map[string]*models.AlertRecord),
	}
}

// Sweep evaluates every open position once. A failed price fetch with no
// stale fallback skips that position and never aborts the sweep.
func (m *Monitor) Sweep(ctx context.Context, now time.Time) ([]Alert, []*models.Decision) {
	var alerts []Alert
	var exits []*models.Decision

	for _, pos := range m.registry.List() {
		price, err := m.currentPrice(ctx, pos.Symbol)
		if err != nil {
			logger.Error("[MONITOR] %s: %v, skipping", pos.Symbol, err)
			continue
		}
		updated, ok := m.registry.UpdatePrice(ctx, pos.Symbol, price, now)
		if !ok {
			continue
		}

		a, d := m.evaluate(updated, now)
		alerts = append(alerts, a...)
		if d != nil {
			exits = append(exits, d)
		}
	}
	return alerts, exits
}

// Forget drops dedup state for a symbol, called once its position is closed
// so a reopened position alerts fresh.
func (m *Monitor) Forget(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, typ := range []models.AlertType{
		models.AlertProfitTarget, models.AlertStopLoss,
		models.AlertSignificantMove, models.AlertExpirationWarning,
	} {
		delete(m.fired, dedupKey(symbol, typ))
	}
}

func (m *Monitor) currentPrice(ctx context.Context, symbol string) (float64, error) {
	q, err := m.md.GetQuote(ctx, symbol)
	if err == nil {
		return q.Last, nil
	}
	if last, ok := m.md.LastKnown(symbol); ok {
		logger.Warn("[MONITOR] %s quote failed, using last known %.2f: %v", symbol, last, err)
		return last, nil
	}
	return 0, errors.Wrap(err, "no price available")
}

// evaluate applies the exit rules in priority order. Expiration outranks
// price rules because the position is forced out regardless of P&L.
func (m *Monitor) evaluate(pos models.Position, now time.Time) ([]Alert, *models.Decision) {
	if pos.IsOption() {
		if dte := pos.DTE(now); dte <= m.forceCloseDTE {
			var alerts []Alert
			if m.shouldWarnExpiration(pos.Symbol, dte, now) {
				alerts = append(alerts, Alert{
					Symbol: pos.Symbol,
					Type:   models.AlertExpirationWarning,
					Message: fmt.Sprintf("%s: %d DTE, forcing close (threshold %d)",
						pos.Symbol, dte, m.forceCloseDTE),
				})
			}
			return alerts, m.planner.DecideExit(pos, pos.Current, models.ExitExpiration)
		}
	}

	pct := pos.UnrealizedPct()
	switch {
	case pct >= m.profitTargetPct:
		var alerts []Alert
		if m.shouldFire(pos.Symbol, models.AlertProfitTarget, now) {
			alerts = append(alerts, Alert{
				Symbol:  pos.Symbol,
				Type:    models.AlertProfitTarget,
				Message: fmt.Sprintf("%s: +%.2f%% hit profit target %.1f%%", pos.Symbol, pct, m.profitTargetPct),
			})
		}
		return alerts, m.planner.DecideExit(pos, pos.Current, models.ExitProfitTarget)

	case pct <= -m.stopLossPct:
		var alerts []Alert
		if m.shouldFire(pos.Symbol, models.AlertStopLoss, now) {
			alerts = append(alerts, Alert{
				Symbol:  pos.Symbol,
				Type:    models.AlertStopLoss,
				Message: fmt.Sprintf("%s: %.2f%% breached stop loss %.1f%%", pos.Symbol, pct, m.stopLossPct),
			})
		}
		return alerts, m.planner.DecideExit(pos, pos.Current, models.ExitStopLoss)

	case pct >= m.significantMovePct || pct <= -m.significantMovePct:
		if m.shouldFire(pos.Symbol, models.AlertSignificantMove, now) {
			return []Alert{{
				Symbol:  pos.Symbol,
				Type:    models.AlertSignificantMove,
				Message: fmt.Sprintf("%s: moved %.2f%% since entry", pos.Symbol, pct),
			}}, nil
		}
	}
	return nil, nil
}

// shouldFire is the time-window dedup for price alerts.
func (m *Monitor) shouldFire(symbol string, typ models.AlertType, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := dedupKey(symbol, typ)
	if rec, ok := m.fired[key]; ok && now.Sub(rec.LastFired) < m.dedupWindow {
		return false
	}
	m.fired[key] = &models.AlertRecord{Symbol: symbol, Type: typ, LastFired: now}
	return true
}

// shouldWarnExpiration dedups by threshold crossing instead of time: one
// warning when DTE first reaches the force-close level, then one more at 3
// and at 1 as the contract keeps decaying.
func (m *Monitor) shouldWarnExpiration(symbol string, dte int, now time.Time) bool {
	crossed := m.forceCloseDTE
	for _, t := range []int{3, 1} {
		if t < m.forceCloseDTE && dte <= t {
			crossed = t
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := dedupKey(symbol, models.AlertExpirationWarning)
	if rec, ok := m.fired[key]; ok && crossed >= rec.Threshold {
		return false
	}
	m.fired[key] = &models.AlertRecord{
		Symbol: symbol, Type: models.AlertExpirationWarning,
		LastFired: now, Threshold: crossed,
	}
	return true
}

func dedupKey(symbol string, typ models.AlertType) string {
	return symbol + "/" + string(typ)
}
