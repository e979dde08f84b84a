package executor

import (
	"context"
	"time"

	"trade_engine/internal/models"
	broker "trade_engine/internal/modules/broker/service"
	"trade_engine/internal/positions"
	"trade_engine/internal/risk"
	"trade_engine/pkg/logger"

	"github.com/pkg/errors"
)

const (
	maxAttempts = 3
	baseBackoff = 500 * time.Millisecond
)

// Broker is the order surface the executor needs from the brokerage gateway.
type Broker interface {
	PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error)
	PlaceProtective(ctx context.Context, symbol string, quantity int, stop, target float64) error
}

// CloseReport is the outcome of a completed exit.
type CloseReport struct {
	FillPrice float64
	Realized  float64
	Tripped   bool
}

// Executor turns approved decisions into brokerage orders and keeps the
// position registry in step with fills. A position exists only after a fill
// is confirmed; a failed submission leaves no trace.
type Executor struct {
	broker   Broker
	registry *positions.Registry
	risk     *risk.Manager

	now   func() time.Time
	sleep func(time.Duration)
}

func New(b Broker, reg *positions.Registry, rm *risk.Manager) *Executor {
	return &Executor{
		broker:   b,
		registry: reg,
		risk:     rm,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// Open submits an entry order for an approved decision and registers the
// resulting position. Protective stop/target orders are attached after the
// fill; their failure is logged but never unwinds the fill.
func (e *Executor) Open(ctx context.Context, d *models.Decision) (models.Position, error) {
	if !d.Action.IsEntry() {
		return models.Position{}, errors.Errorf("open %s: action %s is not an entry", d.Symbol, d.Action)
	}

	req := broker.OrderRequest{
		Symbol:     d.Symbol,
		Quantity:   d.Quantity,
		Side:       broker.SideBuy,
		Instrument: instrumentOf(d.Action),
	}
	if d.Option != nil {
		req.Strike = d.Option.Strike
		req.Expiration = d.Option.Expiration.Format("2006-01-02")
	}

	res, err := e.submit(ctx, req)
	if err != nil {
		return models.Position{}, errors.Wrapf(err, "open %s", d.Symbol)
	}

	now := e.now()
	pos := models.Position{
		Symbol:     d.Symbol,
		Instrument: req.Instrument,
		Quantity:   d.Quantity,
		Entry:      res.FillPrice,
		Current:    res.FillPrice,
		Target:     d.Target,
		Stop:       d.Stop,
		OpenedAt:   now,
		Updated:    now,
	}
	if d.Option != nil {
		pos.Strike = d.Option.Strike
		pos.Expiration = d.Option.Expiration
	}
	e.registry.Put(ctx, &pos)
	logger.Info("[EXECUTOR] opened %s %s x%d @ %.2f", pos.Instrument, pos.Symbol, pos.Quantity, pos.Entry)

	if err := e.broker.PlaceProtective(ctx, d.Symbol, d.Quantity, d.Stop, d.Target); err != nil {
		logger.Error("[EXECUTOR] protective orders %s: %v", d.Symbol, err)
	}
	return pos, nil
}

// Close sells out the position named by a CLOSE decision, removes it from the
// registry and posts the realized P&L to the risk state. The report says
// whether that posting tripped the circuit breaker.
func (e *Executor) Close(ctx context.Context, d *models.Decision) (CloseReport, error) {
	pos, ok := e.registry.Get(d.Symbol)
	if !ok {
		return CloseReport{}, errors.Errorf("close %s: no open position", d.Symbol)
	}

	req := broker.OrderRequest{
		Symbol:     pos.Symbol,
		Quantity:   pos.Quantity,
		Side:       broker.SideSell,
		Instrument: pos.Instrument,
	}
	if pos.IsOption() {
		req.Strike = pos.Strike
		req.Expiration = pos.Expiration.Format("2006-01-02")
	}

	res, err := e.submit(ctx, req)
	if err != nil {
		return CloseReport{}, errors.Wrapf(err, "close %s", d.Symbol)
	}

	realized := (pos.UnitValue(res.FillPrice) - pos.UnitValue(pos.Entry)) * float64(pos.Quantity)
	e.registry.Remove(ctx, pos.Symbol)

	// The position has left the book: refresh the open mark before posting
	// the realized delta, or its unrealized share would count twice.
	maxLoss := e.risk.Limits().Snapshot().MaxDailyLoss
	marked := e.risk.State().MarkOpenPnL(e.registry.UnrealizedPnL(), maxLoss)
	tripped := e.risk.State().RecordPnL(realized, maxLoss) || marked
	logger.Info("[EXECUTOR] closed %s x%d @ %.2f, realized %.2f (%s)",
		pos.Symbol, pos.Quantity, res.FillPrice, realized, d.Trigger)
	return CloseReport{FillPrice: res.FillPrice, Realized: realized, Tripped: tripped}, nil
}

// submit retries transient gateway failures with exponential backoff and
// gives up after maxAttempts. Permanent failures return on the first try.
func (e *Executor) submit(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := e.broker.PlaceOrder(ctx, req)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !broker.IsTransient(err) {
			return broker.OrderResult{}, err
		}
		if attempt == maxAttempts {
			break
		}
		delay := baseBackoff << (attempt - 1)
		logger.Error("[EXECUTOR] %s %s attempt %d/%d failed: %v, retrying in %s",
			req.Side, req.Symbol, attempt, maxAttempts, err, delay)
		select {
		case <-ctx.Done():
			return broker.OrderResult{}, ctx.Err()
		default:
		}
		e.sleep(delay)
	}
	return broker.OrderResult{}, errors.Wrapf(lastErr, "gave up after %d attempts", maxAttempts)
}

func instrumentOf(a models.Action) models.InstrumentType {
	switch a {
	case models.ActionBuyCall:
		return models.InstrumentCall
	case models.ActionBuyPut:
		return models.InstrumentPut
	default:
		return models.InstrumentEquity
	}
}
