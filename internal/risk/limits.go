package risk

import (
	"fmt"
	"sync"

	"trade_engine/internal/modules/config"
)

// LimitRange documents the valid interval for one runtime-tunable limit.
// The same table backs config validation and the control surface.
type LimitRange struct {
	Min float64
	Max float64
}

var limitRanges = map[string]LimitRange{
	"max_daily_loss":           {Min: 100, Max: 100000},
	"max_open_positions":       {Min: 1, Max: 50},
	"base_allocation_pct":      {Min: 0.5, Max: 25},
	"max_confidence_mult":      {Min: 1, Max: 3},
	"max_premium_per_contract": {Min: 50, Max: 10000},
}

// ConfigValidationError reports an out-of-range limit update. Nothing is
// applied when it is returned.
type ConfigValidationError struct {
	Name   string
	Value  float64
	Bounds LimitRange
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("limit %s=%g out of range [%g, %g]", e.Name, e.Value, e.Bounds.Min, e.Bounds.Max)
}

// Limits is the shared, runtime-mutable limit set read by the risk manager.
// One writer at a time; readers get a consistent copy via Snapshot.
type Limits struct {
	mu sync.RWMutex

	maxDailyLoss          float64
	maxOpenPositions      int
	baseAllocationPct     float64
	maxConfidenceMult     float64
	maxPremiumPerContract float64
	minDTE                int
	maxDTE                int
}

// LimitsSnapshot is an immutable copy for one validation pass.
type LimitsSnapshot struct {
	MaxDailyLoss          float64
	MaxOpenPositions      int
	BaseAllocationPct     float64
	MaxConfidenceMult     float64
	MaxPremiumPerContract float64
	MinDTE                int
	MaxDTE                int
}

func NewLimits(cfg config.RiskConfig) *Limits {
	return &Limits{
		maxDailyLoss:          cfg.MaxDailyLoss,
		maxOpenPositions:      cfg.MaxOpenPositions,
		baseAllocationPct:     cfg.BaseAllocationPct,
		maxConfidenceMult:     cfg.MaxConfidenceMult,
		maxPremiumPerContract: cfg.MaxPremiumPerContract,
		minDTE:                cfg.MinDTE,
		maxDTE:                cfg.MaxDTE,
	}
}

func (l *Limits) Snapshot() LimitsSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return LimitsSnapshot{
		MaxDailyLoss:          l.maxDailyLoss,
		MaxOpenPositions:      l.maxOpenPositions,
		BaseAllocationPct:     l.baseAllocationPct,
		MaxConfidenceMult:     l.maxConfidenceMult,
		MaxPremiumPerContract: l.maxPremiumPerContract,
		MinDTE:                l.minDTE,
		MaxDTE:                l.maxDTE,
	}
}

// Update validates the new value against the documented range and applies it
// atomically. Unknown names and out-of-range values change nothing.
func (l *Limits) Update(name string, value float64) error {
	bounds, ok := limitRanges[name]
	if !ok {
		return fmt.Errorf("unknown limit %q", name)
	}
	if value < bounds.Min || value > bounds.Max {
		return &ConfigValidationError{Name: name, Value: value, Bounds: bounds}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	switch name {
	case "max_daily_loss":
		l.maxDailyLoss = value
	case "max_open_positions":
		l.maxOpenPositions = int(value)
	case "base_allocation_pct":
		l.baseAllocationPct = value
	case "max_confidence_mult":
		l.maxConfidenceMult = value
	case "max_premium_per_contract":
		l.maxPremiumPerContract = value
	}
	return nil
}

// Ranges returns the documented limit ranges for status display.
func Ranges() map[string]LimitRange {
	out := make(map[string]LimitRange, len(limitRanges))
	for k, v := range limitRanges {
		out[k] = v
	}
	return out
}
