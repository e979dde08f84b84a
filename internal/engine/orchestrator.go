package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"trade_engine/internal/decision"
	"trade_engine/internal/executor"
	"trade_engine/internal/models"
	"trade_engine/internal/modules/config"
	"trade_engine/internal/monitor"
	"trade_engine/internal/notify"
	"trade_engine/internal/positions"
	"trade_engine/internal/risk"
	"trade_engine/internal/scanner"
	"trade_engine/pkg/logger"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
)

// AccountSource is the sizing input the scan cycle needs from the brokerage.
type AccountSource interface {
	GetAccount(ctx context.Context) (models.Account, error)
}

// RiskPersistence keeps the risk snapshot durable across restarts.
type RiskPersistence interface {
	Save(ctx context.Context, snap models.RiskSnapshot) error
	Load(ctx context.Context) (models.RiskSnapshot, bool, error)
}

// PositionLoader rebuilds the registry at startup.
type PositionLoader interface {
	LoadAll(ctx context.Context) ([]*models.Position, error)
}

// StatusReport is a consistent snapshot for the operator surface.
type StatusReport struct {
	State     models.SystemState
	Watchlist []string
	Positions []models.Position
	Risk      models.RiskSnapshot
}

// Orchestrator owns the run-state machine and drives the scan and monitor
// pipelines. The scheduler guarantees a cycle never overlaps itself; the
// orchestrator guarantees both cycles respect the current state.
type Orchestrator struct {
	scanner  *scanner.Scanner
	decider  *decision.Engine
	risk     *risk.Manager
	exec     *executor.Executor
	monitor  *monitor.Monitor
	registry *positions.Registry
	account  AccountSource
	notifier notify.Notifier
	store    RiskPersistence // nil when persistence is disabled

	now func() time.Time

	mu        sync.Mutex
	state     models.SystemState
	watchlist map[string]struct{}
	equity    float64 // last account equity seen by a scan cycle
}

func NewOrchestrator(
	sc *scanner.Scanner,
	de *decision.Engine,
	rm *risk.Manager,
	ex *executor.Executor,
	mon *monitor.Monitor,
	reg *positions.Registry,
	account AccountSource,
	notifier notify.Notifier,
	store RiskPersistence,
	cfg *config.Config,
) *Orchestrator {
	wl := make(map[string]struct{}, len(cfg.Watchlist))
	for _, s := range cfg.Watchlist {
		wl[s] = struct{}{}
	}
	return &Orchestrator{
		scanner:   sc,
		decider:   de,
		risk:      rm,
		exec:      ex,
		monitor:   mon,
		registry:  reg,
		account:   account,
		notifier:  notifier,
		store:     store,
		now:       time.Now,
		state:     models.StateRunning,
		watchlist: wl,
	}
}

// Bootstrap restores persisted positions and risk state. Called once before
// the scheduler starts; a tripped breaker survives a restart.
func (o *Orchestrator) Bootstrap(ctx context.Context, loader PositionLoader) error {
	if loader != nil {
		persisted, err := loader.LoadAll(ctx)
		if err != nil {
			return errors.Wrap(err, "restore positions")
		}
		o.registry.Seed(persisted)
		logger.Info("[ENGINE] restored %d open positions", len(persisted))
	}

	if o.store != nil {
		snap, found, err := o.store.Load(ctx)
		if err != nil {
			return errors.Wrap(err, "restore risk state")
		}
		if found {
			o.risk.State().Restore(snap)
			if snap.CircuitBreaker {
				o.setState(models.StateCircuitTripped)
				logger.Info("[ENGINE] circuit breaker restored tripped, daily loss %.2f", snap.DailyLoss)
			}
		}
	}

	// Only drift after this point counts toward today's loss; drawdown from
	// previous sessions is already in the persisted accumulator.
	o.risk.State().Rebase(o.registry.UnrealizedPnL())

	o.notifier.Sendf("engine started: state %s, %d restored positions, watching %v",
		o.State(), o.registry.Count(), o.Watchlist())
	return nil
}

// RunScanCycle is one pass of the entry pipeline:
// scan -> decide -> risk gate -> execute.
func (o *Orchestrator) RunScanCycle(ctx context.Context) {
	if s := o.State(); s != models.StateRunning {
		logger.Info("[ENGINE] scan cycle skipped, state %s", s)
		return
	}
	span, ctx := opentracing.StartSpanFromContext(ctx, "scan_cycle")
	defer span.Finish()

	acct, err := o.account.GetAccount(ctx)
	if err != nil {
		logger.Error("[ENGINE] scan cycle aborted, account unavailable: %v", err)
		return
	}
	o.setEquity(acct.Equity)

	candidates := o.scanner.Scan(ctx, o.Watchlist())
	for _, cand := range candidates {
		if o.State() != models.StateRunning {
			return
		}
		o.processCandidate(ctx, cand, acct)
	}
	o.persistRisk(ctx)
}

func (o *Orchestrator) processCandidate(ctx context.Context, cand scanner.Candidate, acct models.Account) {
	sentiment := models.AggregateSentiment(cand.Score.Headlines)
	d := o.decider.Decide(ctx, cand.Score, cand.Snapshot.Last, sentiment)
	if d.Action == models.ActionHold {
		logger.Info("[ENGINE] %s: HOLD (%s)", d.Symbol, d.Reason)
		return
	}
	if _, open := o.registry.Get(d.Symbol); open {
		logger.Info("[ENGINE] %s: position already open, skipping entry", d.Symbol)
		return
	}

	approved, err := o.risk.Approve(d, acct, o.registry.Count(), o.now())
	if err != nil {
		logger.Info("[ENGINE] %s %s rejected: %v", d.Symbol, d.Action, err)
		o.notifier.Sendf("entry rejected %s %s: %v", d.Symbol, d.Action, err)
		return
	}

	pos, err := o.exec.Open(ctx, approved)
	if err != nil {
		logger.Error("[ENGINE] %s %s failed: %v", d.Symbol, d.Action, err)
		o.notifier.Sendf("entry failed %s %s: %v", d.Symbol, d.Action, err)
		return
	}
	o.notifier.Sendf("opened %s %s x%d @ %.2f (confidence %.0f%%)",
		pos.Instrument, pos.Symbol, pos.Quantity, pos.Entry, approved.Confidence*100)
}

// RunMonitorCycle sweeps open positions. It keeps running while paused or
// tripped so exits and alerts are never blind; only an emergency stop, which
// has already flattened the book, silences it.
func (o *Orchestrator) RunMonitorCycle(ctx context.Context) {
	if o.State() == models.StateEmergencyStopped {
		return
	}
	span, ctx := opentracing.StartSpanFromContext(ctx, "monitor_cycle")
	defer span.Finish()

	alerts, exits := o.monitor.Sweep(ctx, o.now())
	tripped := o.markOpenRisk()
	for _, a := range alerts {
		o.notifier.Sendf("[%s] %s", a.Type, a.Message)
	}
	for _, d := range exits {
		o.closePosition(ctx, d)
	}
	if tripped || len(exits) > 0 {
		o.persistRisk(ctx)
	}
}

// markOpenRisk folds the open book's mark-to-market P&L into the daily loss,
// so positions bleeding inside the stop-loss band can trip the breaker before
// they ever close. Returns true when this mark tripped it.
func (o *Orchestrator) markOpenRisk() bool {
	maxLoss := o.risk.Limits().Snapshot().MaxDailyLoss
	if !o.risk.State().MarkOpenPnL(o.registry.UnrealizedPnL(), maxLoss) {
		return false
	}
	if o.compareAndSetState(models.StateRunning, models.StateCircuitTripped) {
		logger.Error("[ENGINE] circuit breaker tripped on open positions, daily loss %.2f",
			o.risk.State().Snapshot().DailyLoss)
		o.notifier.Send("circuit breaker tripped: new entries halted until daily reset")
	}
	return true
}

func (o *Orchestrator) closePosition(ctx context.Context, d *models.Decision) {
	rep, err := o.exec.Close(ctx, d)
	if err != nil {
		logger.Error("[ENGINE] close %s failed: %v", d.Symbol, err)
		o.notifier.Sendf("close failed %s (%s): %v", d.Symbol, d.Trigger, err)
		return
	}
	o.monitor.Forget(d.Symbol)
	o.notifier.Sendf("closed %s @ %.2f, realized %+.2f (%s)", d.Symbol, rep.FillPrice, rep.Realized, d.Trigger)

	if rep.Tripped && o.compareAndSetState(models.StateRunning, models.StateCircuitTripped) {
		logger.Error("[ENGINE] circuit breaker tripped, daily loss %.2f", o.risk.State().Snapshot().DailyLoss)
		o.notifier.Send("circuit breaker tripped: new entries halted until daily reset")
	}
}

// DailyReset clears the daily loss counter and re-arms a tripped breaker.
func (o *Orchestrator) DailyReset(ctx context.Context) {
	now := o.now()
	o.risk.State().Reset(now)
	if o.compareAndSetState(models.StateCircuitTripped, models.StateRunning) {
		o.notifier.Send("daily reset: circuit breaker re-armed")
	}
	o.persistRisk(ctx)
	logger.Info("[ENGINE] daily risk reset at %s", now.Format(time.RFC3339))
}

// Heartbeat reports liveness with the headline numbers.
func (o *Orchestrator) Heartbeat() {
	snap := o.risk.State().Snapshot()
	logger.Info("[ENGINE] heartbeat: state=%s positions=%d dailyLoss=%.2f breaker=%v",
		o.State(), o.registry.Count(), snap.DailyLoss, snap.CircuitBreaker)
	o.notifier.Sendf("heartbeat: %s, %d open, daily loss %.2f",
		o.State(), o.registry.Count(), snap.DailyLoss)
}

// Pause suspends the entry pipeline. Monitoring and exits keep running.
func (o *Orchestrator) Pause() error {
	if !o.compareAndSetState(models.StateRunning, models.StatePaused) {
		return errors.Errorf("cannot pause from state %s", o.State())
	}
	logger.Info("[ENGINE] paused")
	return nil
}

// Resume returns a paused engine to RUNNING. From an emergency stop it only
// goes as far as PAUSED, so restarting entries takes a second explicit step.
func (o *Orchestrator) Resume() error {
	if o.compareAndSetState(models.StateEmergencyStopped, models.StatePaused) {
		logger.Info("[ENGINE] resumed from emergency stop to PAUSED")
		return nil
	}
	if !o.compareAndSetState(models.StatePaused, models.StateRunning) {
		return errors.Errorf("cannot resume from state %s", o.State())
	}
	logger.Info("[ENGINE] resumed")
	return nil
}

// EmergencyStop flattens every open position at market and halts both
// pipelines until an explicit Resume.
func (o *Orchestrator) EmergencyStop(ctx context.Context) error {
	o.mu.Lock()
	if o.state == models.StateEmergencyStopped {
		o.mu.Unlock()
		return errors.New("already stopped")
	}
	o.state = models.StateEmergencyStopped
	o.mu.Unlock()

	open := o.registry.List()
	logger.Error("[ENGINE] emergency stop: closing %d positions", len(open))
	var failed int
	for _, pos := range open {
		d := o.decider.DecideExit(pos, pos.Current, models.ExitManual)
		// CLOSE passes the risk gate untouched; routed through regardless so
		// every order shares one path.
		approved, err := o.risk.Approve(d, models.Account{}, o.registry.Count(), o.now())
		if err != nil {
			failed++
			logger.Error("[ENGINE] emergency close %s rejected: %v", pos.Symbol, err)
			continue
		}
		if _, err := o.exec.Close(ctx, approved); err != nil {
			failed++
			logger.Error("[ENGINE] emergency close %s failed: %v", pos.Symbol, err)
		}
	}
	o.persistRisk(ctx)
	o.notifier.Sendf("EMERGENCY STOP: %d positions closed, %d failed", len(open)-failed, failed)
	if failed > 0 {
		return errors.Errorf("%d positions failed to close", failed)
	}
	return nil
}

// UpdateLimit changes one risk limit at runtime, subject to range validation.
func (o *Orchestrator) UpdateLimit(name string, value float64) error {
	if err := o.risk.Limits().Update(name, value); err != nil {
		return err
	}
	o.notifier.Sendf("risk limit %s set to %g", name, value)
	return nil
}

func (o *Orchestrator) Watch(symbol string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.watchlist[symbol] = struct{}{}
}

func (o *Orchestrator) Unwatch(symbol string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.watchlist, symbol)
}

func (o *Orchestrator) Watchlist() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.watchlist))
	for s := range o.watchlist {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (o *Orchestrator) Status() StatusReport {
	return StatusReport{
		State:     o.State(),
		Watchlist: o.Watchlist(),
		Positions: o.registry.List(),
		Risk:      o.risk.State().Snapshot(),
	}
}

func (o *Orchestrator) State() models.SystemState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s models.SystemState) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) compareAndSetState(from, to models.SystemState) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != from {
		return false
	}
	o.state = to
	return true
}

// persistRisk refreshes exposure counters and writes the snapshot through.
// Heat is computed against the equity cached from the last scan cycle; until
// a scan has run, the previously tracked heat is kept rather than zeroed.
func (o *Orchestrator) persistRisk(ctx context.Context) {
	st := o.risk.State()
	if eq := o.lastEquity(); eq > 0 {
		st.TrackExposure(o.registry.Count(), o.registry.Heat(eq))
	} else {
		st.TrackExposure(o.registry.Count(), st.Snapshot().PortfolioHeat)
	}
	if o.store == nil {
		return
	}
	if err := o.store.Save(ctx, st.Snapshot()); err != nil {
		logger.Error("[ENGINE] persist risk state: %v", err)
	}
}

func (o *Orchestrator) setEquity(equity float64) {
	o.mu.Lock()
	o.equity = equity
	o.mu.Unlock()
}

func (o *Orchestrator) lastEquity() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.equity
}

// String renders the status for chat commands.
func (r StatusReport) String() string {
	return fmt.Sprintf("state: %s\nwatchlist: %v\nopen positions: %d\ndaily loss: %.2f\nbreaker: %v",
		r.State, r.Watchlist, len(r.Positions), r.Risk.DailyLoss, r.Risk.CircuitBreaker)
}
