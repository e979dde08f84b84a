package monitor

import (
	"context"
	"testing"
	"time"

	"trade_engine/internal/models"
	"trade_engine/internal/modules/config"
	"trade_engine/internal/positions"

	"github.com/pkg/errors"
)

type fakePrices struct {
	last  map[string]float64
	fail  map[string]bool
	stale map[string]float64
}

func (f *fakePrices) GetQuote(_ context.Context, symbol string) (models.Quote, error) {
	if f.fail[symbol] {
		return models.Quote{}, errors.New("gateway down")
	}
	return models.Quote{Last: f.last[symbol]}, nil
}

func (f *fakePrices) LastKnown(symbol string) (float64, bool) {
	p, ok := f.stale[symbol]
	return p, ok
}

type fakePlanner struct {
	triggers []models.ExitTrigger
}

func (f *fakePlanner) DecideExit(pos models.Position, price float64, trigger models.ExitTrigger) *models.Decision {
	f.triggers = append(f.triggers, trigger)
	return &models.Decision{
		Symbol: pos.Symbol, Action: models.ActionClose,
		Quantity: pos.Quantity, Entry: price, Trigger: trigger,
	}
}

func testConfig() config.ExitConfig {
	return config.ExitConfig{
		ProfitTargetPct:    20,
		StopLossPct:        10,
		SignificantMovePct: 5,
		ForceCloseDTE:      7,
		AlertDedupWindow:   30 * time.Minute,
	}
}

func newTestMonitor(prices *fakePrices) (*Monitor, *positions.Registry, *fakePlanner) {
	reg := positions.NewRegistry(nil)
	planner := &fakePlanner{}
	return New(prices, reg, planner, testConfig()), reg, planner
}

func TestSweepProfitTargetClosesPosition(t *testing.T) {
	prices := &fakePrices{last: map[string]float64{"AAPL": 214.30}}
	m, reg, _ := newTestMonitor(prices)
	reg.Put(context.Background(), &models.Position{
		Symbol: "AAPL", Instrument: models.InstrumentEquity, Quantity: 10,
		Entry: 178.50, Current: 178.50,
	})

	alerts, exits := m.Sweep(context.Background(), time.Now())
	if len(alerts) != 1 || alerts[0].Type != models.AlertProfitTarget {
		t.Fatalf("alerts = %+v, want one profit_target", alerts)
	}
	if len(exits) != 1 || exits[0].Trigger != models.ExitProfitTarget {
		t.Fatalf("exits = %+v, want one profit_target close", exits)
	}
	if exits[0].Quantity != 10 {
		t.Errorf("close quantity = %d, want full position", exits[0].Quantity)
	}
	if got, _ := reg.Get("AAPL"); got.Current != 214.30 {
		t.Errorf("tracked price = %.2f, want 214.30", got.Current)
	}
}

func TestSweepStopLossClosesPosition(t *testing.T) {
	prices := &fakePrices{last: map[string]float64{"TSLA": 89.50}}
	m, reg, _ := newTestMonitor(prices)
	reg.Put(context.Background(), &models.Position{
		Symbol: "TSLA", Instrument: models.InstrumentEquity, Quantity: 5,
		Entry: 100, Current: 100,
	})

	alerts, exits := m.Sweep(context.Background(), time.Now())
	if len(alerts) != 1 || alerts[0].Type != models.AlertStopLoss {
		t.Fatalf("alerts = %+v, want one stop_loss", alerts)
	}
	if len(exits) != 1 || exits[0].Trigger != models.ExitStopLoss {
		t.Fatalf("exits = %+v, want one stop_loss close", exits)
	}
}

func TestSweepSignificantMoveAlertsWithoutClosing(t *testing.T) {
	prices := &fakePrices{last: map[string]float64{"MSFT": 94}}
	m, reg, _ := newTestMonitor(prices)
	reg.Put(context.Background(), &models.Position{
		Symbol: "MSFT", Instrument: models.InstrumentEquity, Quantity: 3,
		Entry: 100, Current: 100,
	})

	alerts, exits := m.Sweep(context.Background(), time.Now())
	if len(alerts) != 1 || alerts[0].Type != models.AlertSignificantMove {
		t.Fatalf("alerts = %+v, want one significant_move", alerts)
	}
	if len(exits) != 0 {
		t.Fatalf("exits = %+v, significant move must not close", exits)
	}
}

func TestAlertDedupWindowSuppressesRepeatsNotCloses(t *testing.T) {
	prices := &fakePrices{last: map[string]float64{"AAPL": 125}}
	m, reg, _ := newTestMonitor(prices)
	reg.Put(context.Background(), &models.Position{
		Symbol: "AAPL", Instrument: models.InstrumentEquity, Quantity: 1,
		Entry: 100, Current: 100,
	})

	t0 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	alerts, exits := m.Sweep(context.Background(), t0)
	if len(alerts) != 1 || len(exits) != 1 {
		t.Fatalf("first sweep: alerts=%d exits=%d, want 1/1", len(alerts), len(exits))
	}

	alerts, exits = m.Sweep(context.Background(), t0.Add(5*time.Minute))
	if len(alerts) != 0 {
		t.Errorf("alert inside dedup window not suppressed: %+v", alerts)
	}
	if len(exits) != 1 {
		t.Errorf("close suppressed by dedup: exits=%d, want 1", len(exits))
	}

	alerts, _ = m.Sweep(context.Background(), t0.Add(31*time.Minute))
	if len(alerts) != 1 {
		t.Errorf("alert after dedup window expired: got %d, want 1", len(alerts))
	}
}

func TestExpirationForcesCloseRegardlessOfPnL(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	prices := &fakePrices{last: map[string]float64{"SPY": 3.15}}
	m, reg, planner := newTestMonitor(prices)
	reg.Put(context.Background(), &models.Position{
		Symbol: "SPY", Instrument: models.InstrumentCall, Quantity: 2,
		Entry: 3.10, Current: 3.10, Strike: 485,
		Expiration: now.AddDate(0, 0, 7),
	})

	alerts, exits := m.Sweep(context.Background(), now)
	if len(alerts) != 1 || alerts[0].Type != models.AlertExpirationWarning {
		t.Fatalf("alerts = %+v, want one expiration_warning", alerts)
	}
	if len(exits) != 1 || exits[0].Trigger != models.ExitExpiration {
		t.Fatalf("exits = %+v, want one expiration close", exits)
	}
	if len(planner.triggers) != 1 || planner.triggers[0] != models.ExitExpiration {
		t.Errorf("triggers = %v", planner.triggers)
	}
}

func TestExpirationWarningDedupsByDTE(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	prices := &fakePrices{last: map[string]float64{"SPY": 3.10}}
	m, reg, _ := newTestMonitor(prices)
	exp := now.AddDate(0, 0, 6)
	reg.Put(context.Background(), &models.Position{
		Symbol: "SPY", Instrument: models.InstrumentCall, Quantity: 1,
		Entry: 3.10, Current: 3.10, Expiration: exp,
	})

	alerts, exits := m.Sweep(context.Background(), now)
	if len(alerts) != 1 {
		t.Fatalf("first sweep alerts = %d, want 1", len(alerts))
	}

	// Same DTE an hour later: warning suppressed, forced close still raised.
	alerts, exits = m.Sweep(context.Background(), now.Add(time.Hour))
	if len(alerts) != 0 {
		t.Errorf("repeat warning at same DTE: %+v", alerts)
	}
	if len(exits) != 1 {
		t.Errorf("forced close suppressed: exits=%d", len(exits))
	}

	// DTE 5 is inside the same threshold band, still suppressed.
	alerts, _ = m.Sweep(context.Background(), now.AddDate(0, 0, 1))
	if len(alerts) != 0 {
		t.Errorf("warning inside the same threshold band: %+v", alerts)
	}

	// DTE 3 crosses the next threshold, so the warning fires again.
	alerts, _ = m.Sweep(context.Background(), now.AddDate(0, 0, 3))
	if len(alerts) != 1 {
		t.Errorf("warning at threshold 3: got %d alerts, want 1", len(alerts))
	}
}

func TestSweepSkipsPositionWithoutPrice(t *testing.T) {
	prices := &fakePrices{
		last: map[string]float64{"GOOD": 130},
		fail: map[string]bool{"BAD": true},
	}
	m, reg, _ := newTestMonitor(prices)
	reg.Put(context.Background(), &models.Position{
		Symbol: "BAD", Instrument: models.InstrumentEquity, Quantity: 1, Entry: 100, Current: 100,
	})
	reg.Put(context.Background(), &models.Position{
		Symbol: "GOOD", Instrument: models.InstrumentEquity, Quantity: 1, Entry: 100, Current: 100,
	})

	alerts, exits := m.Sweep(context.Background(), time.Now())
	if len(exits) != 1 || exits[0].Symbol != "GOOD" {
		t.Fatalf("exits = %+v, want only GOOD", exits)
	}
	for _, a := range alerts {
		if a.Symbol == "BAD" {
			t.Errorf("alert for unpriced position: %+v", a)
		}
	}
}

func TestSweepUsesStaleFallbackPrice(t *testing.T) {
	prices := &fakePrices{
		fail:  map[string]bool{"AAPL": true},
		stale: map[string]float64{"AAPL": 125},
	}
	m, reg, _ := newTestMonitor(prices)
	reg.Put(context.Background(), &models.Position{
		Symbol: "AAPL", Instrument: models.InstrumentEquity, Quantity: 1,
		Entry: 100, Current: 100,
	})

	_, exits := m.Sweep(context.Background(), time.Now())
	if len(exits) != 1 || exits[0].Trigger != models.ExitProfitTarget {
		t.Fatalf("exits = %+v, want profit target from stale price", exits)
	}
}

func TestForgetResetsDedup(t *testing.T) {
	prices := &fakePrices{last: map[string]float64{"AAPL": 125}}
	m, reg, _ := newTestMonitor(prices)
	reg.Put(context.Background(), &models.Position{
		Symbol: "AAPL", Instrument: models.InstrumentEquity, Quantity: 1,
		Entry: 100, Current: 100,
	})

	t0 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	m.Sweep(context.Background(), t0)
	m.Forget("AAPL")

	alerts, _ := m.Sweep(context.Background(), t0.Add(time.Minute))
	if len(alerts) != 1 {
		t.Errorf("alert after Forget: got %d, want 1", len(alerts))
	}
}
