package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"trade_engine/internal/decision"
	"trade_engine/internal/executor"
	"trade_engine/internal/models"
	broker "trade_engine/internal/modules/broker/service"
	"trade_engine/internal/modules/config"
	"trade_engine/internal/monitor"
	"trade_engine/internal/positions"
	"trade_engine/internal/risk"
	"trade_engine/internal/scanner"

	"github.com/pkg/errors"
)

type fakeMarket struct {
	quotes map[string]float64
	chain  []models.OptionContract
}

func (f *fakeMarket) GetQuote(_ context.Context, symbol string) (models.Quote, error) {
	p, ok := f.quotes[symbol]
	if !ok {
		return models.Quote{}, errors.New("no quote")
	}
	return models.Quote{Last: p}, nil
}

func (f *fakeMarket) GetBars(context.Context, string, string, int) ([]models.Bar, error) {
	return nil, nil
}

func (f *fakeMarket) GetOptionsChain(context.Context, string, int, int) ([]models.OptionContract, error) {
	return f.chain, nil
}

func (f *fakeMarket) GetNews(context.Context, string, int) ([]models.Headline, error) {
	return nil, nil
}

func (f *fakeMarket) LastKnown(string) (float64, bool) { return 0, false }

type fakeBrokerage struct {
	account      models.Account
	accountCalls int
	fill         float64
	orders       []broker.OrderRequest
}

func (f *fakeBrokerage) GetAccount(context.Context) (models.Account, error) {
	f.accountCalls++
	return f.account, nil
}

func (f *fakeBrokerage) PlaceOrder(_ context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	f.orders = append(f.orders, req)
	return broker.OrderResult{OrderID: "o1", Status: broker.OrderFilled, FillPrice: f.fill}, nil
}

func (f *fakeBrokerage) PlaceProtective(context.Context, string, int, float64, float64) error {
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (f *fakeNotifier) Send(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, text)
}

func (f *fakeNotifier) Sendf(format string, args ...interface{}) {
	f.Send(fmt.Sprintf(format, args...))
}

type fakeRiskStore struct {
	snap  models.RiskSnapshot
	found bool
	saves int
}

func (f *fakeRiskStore) Save(_ context.Context, snap models.RiskSnapshot) error {
	f.snap, f.found = snap, true
	f.saves++
	return nil
}

func (f *fakeRiskStore) Load(context.Context) (models.RiskSnapshot, bool, error) {
	return f.snap, f.found, nil
}

type fakeLoader struct{ positions []*models.Position }

func (f *fakeLoader) LoadAll(context.Context) ([]*models.Position, error) {
	return f.positions, nil
}

func testEngineConfig() *config.Config {
	cfg := &config.Config{Watchlist: []string{"AAPL", "SPY"}}
	cfg.Entry = config.EntryConfig{
		HighConfidence: 0.75, MidConfidence: 0.60,
		OTMSteps: 0, MinDTE: 30, MaxDTE: 45, StopPct: 3, TargetPct: 6,
	}
	cfg.Risk = config.RiskConfig{
		MaxDailyLoss: 1000, MaxOpenPositions: 5, BaseAllocationPct: 5,
		MaxConfidenceMult: 1.5, MaxPremiumPerContract: 500, MinDTE: 7, MaxDTE: 60,
	}
	cfg.Exit = config.ExitConfig{
		ProfitTargetPct: 20, StopLossPct: 10, SignificantMovePct: 5,
		ForceCloseDTE: 7, AlertDedupWindow: 30 * time.Minute,
	}
	return cfg
}

type testRig struct {
	orch     *Orchestrator
	market   *fakeMarket
	broker   *fakeBrokerage
	notifier *fakeNotifier
	registry *positions.Registry
	risk     *risk.Manager
	store    *fakeRiskStore
}

func newTestRig() *testRig {
	cfg := testEngineConfig()
	market := &fakeMarket{quotes: map[string]float64{}}
	brk := &fakeBrokerage{account: models.Account{Equity: 50000, BuyingPower: 50000}, fill: 100}
	notifier := &fakeNotifier{}
	st := &fakeRiskStore{}

	reg := positions.NewRegistry(nil)
	rm := risk.NewManager(risk.NewState(), risk.NewLimits(cfg.Risk))
	sc := scanner.New(market, cfg.Scanner, cfg.Entry, time.Second)
	de := decision.New(market, cfg.Entry)
	ex := executor.New(brk, reg, rm)
	mon := monitor.New(market, reg, de, cfg.Exit)

	orch := NewOrchestrator(sc, de, rm, ex, mon, reg, brk, notifier, st, cfg)
	return &testRig{orch: orch, market: market, broker: brk, notifier: notifier, registry: reg, risk: rm, store: st}
}

func (r *testRig) notified(substr string) bool {
	r.notifier.mu.Lock()
	defer r.notifier.mu.Unlock()
	for _, m := range r.notifier.msgs {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

func bullishCandidate(symbol string, total, last float64) scanner.Candidate {
	return scanner.Candidate{
		Score: models.OpportunityScore{
			Symbol:    symbol,
			Total:     total,
			Direction: models.DirectionBullish,
		},
		Snapshot: &models.MarketSnapshot{Symbol: symbol, Last: last},
	}
}

func TestPauseResumeTransitions(t *testing.T) {
	r := newTestRig()

	if err := r.orch.Pause(); err != nil {
		t.Fatalf("pause from RUNNING: %v", err)
	}
	if r.orch.State() != models.StatePaused {
		t.Fatalf("state = %s, want PAUSED", r.orch.State())
	}
	if err := r.orch.Pause(); err == nil {
		t.Error("second pause must fail")
	}
	if err := r.orch.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if err := r.orch.Resume(); err == nil {
		t.Error("resume while running must fail")
	}
}

func TestScanCycleSkippedWhenPaused(t *testing.T) {
	r := newTestRig()
	if err := r.orch.Pause(); err != nil {
		t.Fatal(err)
	}

	r.orch.RunScanCycle(context.Background())
	if r.broker.accountCalls != 0 {
		t.Errorf("paused scan cycle hit the brokerage %d times", r.broker.accountCalls)
	}
}

func TestCandidateFlowsThroughRiskToOrder(t *testing.T) {
	r := newTestRig()
	r.broker.fill = 3.10
	exp := time.Now().AddDate(0, 0, 37)
	r.market.chain = []models.OptionContract{{
		Underlying: "AAPL", Strike: 180, Expiration: exp,
		Type: models.OptionCall, Bid: 3.0, Ask: 3.2,
	}}

	r.orch.processCandidate(context.Background(), bullishCandidate("AAPL", 85, 180), r.broker.account)

	pos, ok := r.registry.Get("AAPL")
	if !ok {
		t.Fatal("no position after approved entry")
	}
	if pos.Instrument != models.InstrumentCall {
		t.Errorf("instrument = %s, want call", pos.Instrument)
	}
	if len(r.broker.orders) != 1 || r.broker.orders[0].Side != broker.SideBuy {
		t.Fatalf("orders = %+v", r.broker.orders)
	}
	if !r.notified("opened") {
		t.Errorf("no entry notification: %v", r.notifier.msgs)
	}
}

func TestRejectedEntryLeavesNoSideEffects(t *testing.T) {
	r := newTestRig()
	r.risk.State().RecordPnL(-1500, 1000) // trip the breaker

	r.orch.processCandidate(context.Background(), bullishCandidate("AAPL", 85, 180), r.broker.account)

	if r.registry.Count() != 0 {
		t.Error("rejected entry created a position")
	}
	if len(r.broker.orders) != 0 {
		t.Errorf("rejected entry placed %d orders", len(r.broker.orders))
	}
}

func TestRejectedEntryNotifiesReason(t *testing.T) {
	r := newTestRig()
	r.risk.State().RecordPnL(-1500, 1000) // trip the breaker

	r.orch.processCandidate(context.Background(), bullishCandidate("AAPL", 85, 180), r.broker.account)

	if !r.notified("entry rejected AAPL") {
		t.Errorf("rejection not surfaced: %v", r.notifier.msgs)
	}
	if !r.notified("circuit_breaker_tripped") {
		t.Errorf("rejection reason missing from notification: %v", r.notifier.msgs)
	}
}

func TestDuplicatePositionSkipsEntry(t *testing.T) {
	r := newTestRig()
	r.registry.Put(context.Background(), &models.Position{
		Symbol: "AAPL", Instrument: models.InstrumentEquity, Quantity: 1, Entry: 100, Current: 100,
	})

	r.orch.processCandidate(context.Background(), bullishCandidate("AAPL", 85, 180), r.broker.account)
	if len(r.broker.orders) != 0 {
		t.Errorf("entry placed for symbol with open position: %+v", r.broker.orders)
	}
}

func TestMonitorCycleRunsWhilePaused(t *testing.T) {
	r := newTestRig()
	r.registry.Put(context.Background(), &models.Position{
		Symbol: "AAPL", Instrument: models.InstrumentEquity, Quantity: 10,
		Entry: 178.50, Current: 178.50, Target: 189.21, Stop: 173.15,
	})
	r.market.quotes["AAPL"] = 214.30
	r.broker.fill = 214.30
	if err := r.orch.Pause(); err != nil {
		t.Fatal(err)
	}

	r.orch.RunMonitorCycle(context.Background())

	if r.registry.Count() != 0 {
		t.Error("profit-target close did not run while paused")
	}
	if !r.notified("profit target") {
		t.Errorf("no profit-target alert: %v", r.notifier.msgs)
	}
	if !r.notified("closed AAPL") {
		t.Errorf("no close notification: %v", r.notifier.msgs)
	}
}

func TestStopLossTripsBreakerAndResets(t *testing.T) {
	r := newTestRig()
	r.registry.Put(context.Background(), &models.Position{
		Symbol: "TSLA", Instrument: models.InstrumentEquity, Quantity: 100,
		Entry: 100, Current: 100,
	})
	r.market.quotes["TSLA"] = 85
	r.broker.fill = 85

	r.orch.RunMonitorCycle(context.Background())

	if r.orch.State() != models.StateCircuitTripped {
		t.Fatalf("state = %s, want CIRCUIT_TRIPPED after 1500 loss", r.orch.State())
	}
	if !r.notified("circuit breaker tripped") {
		t.Errorf("no breaker notification: %v", r.notifier.msgs)
	}

	// Tripped state blocks the scan cycle entirely.
	calls := r.broker.accountCalls
	r.orch.RunScanCycle(context.Background())
	if r.broker.accountCalls != calls {
		t.Error("tripped scan cycle still hit the brokerage")
	}

	r.orch.DailyReset(context.Background())
	if r.orch.State() != models.StateRunning {
		t.Fatalf("state = %s after reset, want RUNNING", r.orch.State())
	}
	if r.risk.State().Tripped() {
		t.Error("breaker still tripped after daily reset")
	}
	if !r.store.found {
		t.Error("reset not persisted")
	}
}

func TestUnrealizedLossTripsBreaker(t *testing.T) {
	r := newTestRig()
	r.registry.Put(context.Background(), &models.Position{
		Symbol: "NVDA", Instrument: models.InstrumentEquity, Quantity: 200,
		Entry: 100, Current: 100,
	})
	// -9% sits inside the 10% stop, but 200 shares down $9 is an $1800
	// drawdown against the $1000 daily limit.
	r.market.quotes["NVDA"] = 91

	r.orch.RunMonitorCycle(context.Background())

	if r.registry.Count() != 1 {
		t.Fatal("position closed although the stop was not hit")
	}
	if r.orch.State() != models.StateCircuitTripped {
		t.Fatalf("state = %s, want CIRCUIT_TRIPPED on open-book loss", r.orch.State())
	}
	if !r.risk.State().Tripped() {
		t.Fatal("breaker not tripped by the mark")
	}
	if got := r.risk.State().Snapshot().DailyLoss; got != 1800 {
		t.Errorf("daily loss = %g, want 1800", got)
	}
	if !r.notified("circuit breaker tripped") {
		t.Errorf("no breaker notification: %v", r.notifier.msgs)
	}

	// New entries are refused while the book bleeds.
	r.orch.processCandidate(context.Background(), bullishCandidate("AAPL", 85, 180), r.broker.account)
	if len(r.broker.orders) != 0 {
		t.Errorf("entry ordered with the breaker tripped: %+v", r.broker.orders)
	}
}

func TestHeatPersistedFromMonitorCycle(t *testing.T) {
	r := newTestRig()
	for _, p := range []*models.Position{
		{Symbol: "AAPL", Instrument: models.InstrumentEquity, Quantity: 10, Entry: 178.50, Current: 178.50},
		{Symbol: "MSFT", Instrument: models.InstrumentEquity, Quantity: 10, Entry: 300, Current: 300},
	} {
		r.registry.Put(context.Background(), p)
	}
	r.market.quotes["AAPL"] = 214.30 // profit target, closes
	r.market.quotes["MSFT"] = 301
	r.broker.fill = 214.30

	r.orch.RunScanCycle(context.Background()) // caches account equity
	r.orch.RunMonitorCycle(context.Background())

	if r.registry.Count() != 1 {
		t.Fatalf("open positions = %d, want 1 after the profit-target close", r.registry.Count())
	}
	want := 301.0 * 10 / 50000
	if got := r.store.snap.PortfolioHeat; got != want {
		t.Errorf("persisted heat = %g, want %g", got, want)
	}
}

func TestEmergencyStopFlattensBook(t *testing.T) {
	r := newTestRig()
	for _, sym := range []string{"AAPL", "MSFT"} {
		r.registry.Put(context.Background(), &models.Position{
			Symbol: sym, Instrument: models.InstrumentEquity, Quantity: 1, Entry: 100, Current: 100,
		})
	}

	if err := r.orch.EmergencyStop(context.Background()); err != nil {
		t.Fatalf("EmergencyStop: %v", err)
	}
	if r.registry.Count() != 0 {
		t.Errorf("open positions after stop: %d", r.registry.Count())
	}
	if r.orch.State() != models.StateEmergencyStopped {
		t.Fatalf("state = %s", r.orch.State())
	}
	if err := r.orch.EmergencyStop(context.Background()); err == nil {
		t.Error("second stop must fail")
	}

	// Both cycles are inert afterwards.
	orders := len(r.broker.orders)
	r.orch.RunScanCycle(context.Background())
	r.orch.RunMonitorCycle(context.Background())
	if len(r.broker.orders) != orders {
		t.Error("cycles still placed orders after emergency stop")
	}

	// Recovery is two explicit steps: stopped -> PAUSED -> RUNNING.
	if err := r.orch.Resume(); err != nil {
		t.Fatalf("resume from stop: %v", err)
	}
	if r.orch.State() != models.StatePaused {
		t.Fatalf("state after first resume = %s, want PAUSED", r.orch.State())
	}
	if err := r.orch.Resume(); err != nil {
		t.Fatalf("second resume: %v", err)
	}
	if r.orch.State() != models.StateRunning {
		t.Fatalf("state after second resume = %s, want RUNNING", r.orch.State())
	}
}

func TestWatchlistMutations(t *testing.T) {
	r := newTestRig()
	r.orch.Watch("NVDA")
	r.orch.Unwatch("SPY")

	got := r.orch.Watchlist()
	want := []string{"AAPL", "NVDA"}
	if len(got) != len(want) {
		t.Fatalf("watchlist = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("watchlist = %v, want %v", got, want)
		}
	}
}

func TestBootstrapRestoresPositionsAndBreaker(t *testing.T) {
	r := newTestRig()
	r.store.snap = models.RiskSnapshot{DailyLoss: 1200, CircuitBreaker: true}
	r.store.found = true
	loader := &fakeLoader{positions: []*models.Position{
		{Symbol: "AAPL", Instrument: models.InstrumentEquity, Quantity: 3, Entry: 100, Current: 110},
	}}

	if err := r.orch.Bootstrap(context.Background(), loader); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if r.registry.Count() != 1 {
		t.Errorf("restored positions = %d, want 1", r.registry.Count())
	}
	if r.orch.State() != models.StateCircuitTripped {
		t.Errorf("state = %s, want CIRCUIT_TRIPPED from persisted snapshot", r.orch.State())
	}
	if !r.risk.State().Tripped() {
		t.Error("risk state not restored tripped")
	}
}

func TestUpdateLimitValidatesRange(t *testing.T) {
	r := newTestRig()
	if err := r.orch.UpdateLimit("max_daily_loss", 2000); err != nil {
		t.Fatalf("valid update: %v", err)
	}
	if got := r.risk.Limits().Snapshot().MaxDailyLoss; got != 2000 {
		t.Errorf("max_daily_loss = %g, want 2000", got)
	}
	if err := r.orch.UpdateLimit("max_daily_loss", -5); err == nil {
		t.Error("out-of-range update must fail")
	}
	if err := r.orch.UpdateLimit("nope", 1); err == nil {
		t.Error("unknown limit must fail")
	}
}
