package decision

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"trade_engine/internal/models"
	"trade_engine/internal/modules/config"
	"trade_engine/pkg/logger"
)

// OptionsData is the slice of the market data gateway the engine needs for
// leg selection.
type OptionsData interface {
	GetOptionsChain(ctx context.Context, symbol string, minDTE, maxDTE int) ([]models.OptionContract, error)
}

type Engine struct {
	options OptionsData
	cfg     config.EntryConfig
}

func New(options OptionsData, cfg config.EntryConfig) *Engine {
	return &Engine{options: options, cfg: cfg}
}

// Confidence derives the decision confidence from a composite score and an
// optional sentiment adjustment in [-1,+1]. The shift is bounded per
// magnitude bucket and the result clamped to [0,1]:
//
//	|s| >= 0.5  ->  +/- 0.15
//	|s| >= 0.2  ->  +/- 0.08
//	|s| >  0    ->  +/- 0.03
func Confidence(score float64, sentiment float64) float64 {
	conf := score / 100

	var shift float64
	switch mag := math.Abs(sentiment); {
	case mag >= 0.5:
		shift = 0.15
	case mag >= 0.2:
		shift = 0.08
	case mag > 0:
		shift = 0.03
	}
	if sentiment < 0 {
		shift = -shift
	}

	conf += shift
	if conf < 0 {
		return 0
	}
	if conf > 1 {
		return 1
	}
	return conf
}

// Decide maps a mover's score and sentiment to an entry decision. A tie at
// the exact option threshold resolves to equity, the lower-leverage
// instrument.
func (e *Engine) Decide(ctx context.Context, score models.OpportunityScore, last float64, sentiment float64) *models.Decision {
	conf := Confidence(score.Total, sentiment)
	bullish := score.Direction == models.DirectionBullish

	switch {
	case conf > e.cfg.HighConfidence && bullish:
		return e.optionEntry(ctx, score, last, conf, models.ActionBuyCall)

	case conf > e.cfg.HighConfidence && !bullish:
		return e.optionEntry(ctx, score, last, conf, models.ActionBuyPut)

	case conf >= e.cfg.MidConfidence && bullish:
		return e.equityEntry(score.Symbol, last, conf, "mid-band confidence")

	case conf >= e.cfg.MidConfidence && !bullish:
		// No short-equity support in this design: a bearish signal below the
		// options threshold has no instrument to express it.
		return hold(score.Symbol, conf, "bearish signal below options confidence")

	default:
		return hold(score.Symbol, conf, fmt.Sprintf("confidence %.0f%% below entry band", conf*100))
	}
}

// DecideExit always produces a full-quantity CLOSE. Closing must never be
// blocked, so the caller supplies the best price it has (live or last-known).
func (e *Engine) DecideExit(pos models.Position, price float64, trigger models.ExitTrigger) *models.Decision {
	if price <= 0 {
		price = pos.Current
	}
	return &models.Decision{
		Symbol:     pos.Symbol,
		Action:     models.ActionClose,
		Confidence: 1,
		Entry:      price,
		Tier:       models.TierLow,
		Trigger:    trigger,
		Quantity:   pos.Quantity,
		Reason:     fmt.Sprintf("close %s: %s", pos.Symbol, trigger),
	}
}

func (e *Engine) optionEntry(ctx context.Context, score models.OpportunityScore, last, conf float64, action models.Action) *models.Decision {
	optType := models.OptionCall
	if action == models.ActionBuyPut {
		optType = models.OptionPut
	}

	chain, err := e.options.GetOptionsChain(ctx, score.Symbol, e.cfg.MinDTE, e.cfg.MaxDTE)
	if err != nil {
		// Entry data gap degrades to HOLD, never to a blind order.
		logger.Warn("[DECIDE] %s options chain unavailable: %v", score.Symbol, err)
		return hold(score.Symbol, conf, "options chain unavailable")
	}

	leg := selectLeg(chain, optType, last, e.cfg.OTMSteps, e.cfg.MinDTE, e.cfg.MaxDTE)
	if leg == nil {
		// No contract in the DTE band: take the lower-leverage route.
		return e.equityEntry(score.Symbol, last, conf, "no contract in DTE band, degraded to equity")
	}

	d := e.equityEntry(score.Symbol, last, conf, string(action))
	d.Action = action
	d.Tier = models.TierHigh
	d.Option = leg
	if action == models.ActionBuyPut {
		// Put profits from downside: mirror target and stop.
		d.Target = last * (1 - e.cfg.TargetPct/100)
		d.Stop = last * (1 + e.cfg.StopPct/100)
	}
	return d
}

func (e *Engine) equityEntry(symbol string, last, conf float64, reason string) *models.Decision {
	return &models.Decision{
		Symbol:     symbol,
		Action:     models.ActionBuyEquity,
		Confidence: conf,
		Entry:      last,
		Target:     last * (1 + e.cfg.TargetPct/100),
		Stop:       last * (1 - e.cfg.StopPct/100),
		Tier:       models.TierMedium,
		Reason:     reason,
	}
}

func hold(symbol string, conf float64, reason string) *models.Decision {
	return &models.Decision{
		Symbol:     symbol,
		Action:     models.ActionHold,
		Confidence: conf,
		Tier:       models.TierLow,
		Reason:     reason,
	}
}

// selectLeg picks the strike nearest the moneyness preference (otmSteps
// strikes out of the money, 0 = ATM) among contracts inside the DTE band,
// preferring the expiration closest to the middle of the band.
func selectLeg(chain []models.OptionContract, optType models.OptionType, spot float64, otmSteps, minDTE, maxDTE int) *models.OptionContract {
	now := time.Now()

	inBand := chain[:0:0]
	for _, c := range chain {
		if c.Type != optType {
			continue
		}
		dte := models.DaysToExpiration(c.Expiration, now)
		if dte < minDTE || dte > maxDTE {
			continue
		}
		inBand = append(inBand, c)
	}
	if len(inBand) == 0 {
		return nil
	}

	// Group by expiration, pick the one nearest the band midpoint.
	midDTE := (minDTE + maxDTE) / 2
	byExp := map[time.Time][]models.OptionContract{}
	for _, c := range inBand {
		byExp[c.Expiration] = append(byExp[c.Expiration], c)
	}
	var bestExp time.Time
	bestDist := math.MaxInt
	for exp := range byExp {
		dist := abs(models.DaysToExpiration(exp, now) - midDTE)
		if dist < bestDist || (dist == bestDist && exp.Before(bestExp)) {
			bestExp, bestDist = exp, dist
		}
	}

	strikes := byExp[bestExp]
	sort.Slice(strikes, func(i, j int) bool { return strikes[i].Strike < strikes[j].Strike })

	// ATM index: strike nearest spot.
	atm := 0
	for i, c := range strikes {
		if math.Abs(c.Strike-spot) < math.Abs(strikes[atm].Strike-spot) {
			atm = i
		}
	}

	// OTM means higher strikes for calls, lower for puts.
	idx := atm
	if optType == models.OptionCall {
		idx += otmSteps
	} else {
		idx -= otmSteps
	}
	if idx < 0 {
		idx = 0
	}
	if idx >= len(strikes) {
		idx = len(strikes) - 1
	}

	leg := strikes[idx]
	return &leg
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
