package decision

import (
	"context"
	"testing"
	"time"

	"trade_engine/internal/models"
	"trade_engine/internal/modules/config"

	"github.com/pkg/errors"
)

type fakeOptions struct {
	chain []models.OptionContract
	err   error
}

func (f *fakeOptions) GetOptionsChain(_ context.Context, _ string, _, _ int) ([]models.OptionContract, error) {
	return f.chain, f.err
}

func entryCfg() config.EntryConfig {
	return config.EntryConfig{
		HighConfidence: 0.75,
		MidConfidence:  0.60,
		OTMSteps:       0,
		MinDTE:         30,
		MaxDTE:         45,
		StopPct:        3,
		TargetPct:      6,
	}
}

func testChain(optType models.OptionType, dte int, strikes ...float64) []models.OptionContract {
	exp := time.Now().AddDate(0, 0, dte).Truncate(24 * time.Hour).Add(24 * time.Hour)
	out := make([]models.OptionContract, 0, len(strikes))
	for _, k := range strikes {
		out = append(out, models.OptionContract{
			Underlying: "AAPL",
			Strike:     k,
			Expiration: exp,
			Type:       optType,
			Bid:        3.0,
			Ask:        3.4,
		})
	}
	return out
}

func bullScore(total float64) models.OpportunityScore {
	return models.OpportunityScore{
		Symbol:      "AAPL",
		Total:       total,
		Direction:   models.DirectionBullish,
		PercentMove: 1.8,
	}
}

func TestConfidence_SentimentBuckets(t *testing.T) {
	cases := []struct {
		score     float64
		sentiment float64
		want      float64
	}{
		{85, 0, 0.85},
		{85, -0.6, 0.70},  // strong negative pulls a full bucket
		{85, 0.6, 1.0},    // clamped at 1
		{85, 0.3, 0.93},
		{85, -0.1, 0.82},
		{5, -0.9, 0},      // clamped at 0
	}
	for _, c := range cases {
		got := Confidence(c.score, c.sentiment)
		if diff := got - c.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("Confidence(%.0f, %+.1f) = %.3f, want %.3f", c.score, c.sentiment, got, c.want)
		}
	}
}

func TestDecide_HighConfidenceBullishBuysCall(t *testing.T) {
	e := New(&fakeOptions{chain: testChain(models.OptionCall, 37, 480, 485, 490)}, entryCfg())

	d := e.Decide(context.Background(), bullScore(85), 485.50, 0)
	if d.Action != models.ActionBuyCall {
		t.Fatalf("action = %s, want BUY_CALL", d.Action)
	}
	if d.Option == nil || d.Option.Strike != 485 {
		t.Fatalf("expected ATM strike 485, got %+v", d.Option)
	}
	if d.Tier != models.TierHigh {
		t.Errorf("tier = %s, want HIGH", d.Tier)
	}
}

func TestDecide_NegativeSentimentDropsToEquity(t *testing.T) {
	e := New(&fakeOptions{chain: testChain(models.OptionCall, 37, 480, 485, 490)}, entryCfg())

	d := e.Decide(context.Background(), bullScore(85), 485.50, -0.6)
	if d.Action != models.ActionBuyEquity {
		t.Fatalf("action = %s, want BUY_EQUITY (confidence shifted to mid band)", d.Action)
	}
	if d.Option != nil {
		t.Error("equity decision must not carry an option leg")
	}
}

func TestDecide_ThresholdTieResolvesToEquity(t *testing.T) {
	e := New(&fakeOptions{chain: testChain(models.OptionCall, 37, 480, 485, 490)}, entryCfg())

	// Exactly at the high threshold: the lower-leverage instrument wins.
	d := e.Decide(context.Background(), bullScore(75), 485.50, 0)
	if d.Action != models.ActionBuyEquity {
		t.Fatalf("action at exact threshold = %s, want BUY_EQUITY", d.Action)
	}
}

func TestDecide_BearishHighConfidenceBuysPut(t *testing.T) {
	e := New(&fakeOptions{chain: testChain(models.OptionPut, 37, 480, 485, 490)}, entryCfg())

	score := bullScore(85)
	score.Direction = models.DirectionBearish
	score.PercentMove = -2.1

	d := e.Decide(context.Background(), score, 485.50, 0)
	if d.Action != models.ActionBuyPut {
		t.Fatalf("action = %s, want BUY_PUT", d.Action)
	}
	if d.Target >= d.Entry {
		t.Errorf("put target %.2f should sit below entry %.2f", d.Target, d.Entry)
	}
	if d.Stop <= d.Entry {
		t.Errorf("put stop %.2f should sit above entry %.2f", d.Stop, d.Entry)
	}
}

func TestDecide_NoContractInBandDegradesToEquity(t *testing.T) {
	// Chain exists but every expiration is outside the 30-45 DTE band.
	e := New(&fakeOptions{chain: testChain(models.OptionCall, 10, 480, 485)}, entryCfg())

	d := e.Decide(context.Background(), bullScore(85), 485.50, 0)
	if d.Action != models.ActionBuyEquity {
		t.Fatalf("action = %s, want degrade to BUY_EQUITY", d.Action)
	}
}

func TestDecide_ChainErrorHolds(t *testing.T) {
	e := New(&fakeOptions{err: errors.New("gateway timeout")}, entryCfg())

	d := e.Decide(context.Background(), bullScore(85), 485.50, 0)
	if d.Action != models.ActionHold {
		t.Fatalf("action = %s, want HOLD on entry data gap", d.Action)
	}
}

func TestDecide_LowConfidenceHolds(t *testing.T) {
	e := New(&fakeOptions{}, entryCfg())

	d := e.Decide(context.Background(), bullScore(40), 485.50, 0)
	if d.Action != models.ActionHold {
		t.Fatalf("action = %s, want HOLD", d.Action)
	}
}

func TestDecideExit_FullQuantityClose(t *testing.T) {
	e := New(&fakeOptions{}, entryCfg())
	pos := models.Position{
		Symbol:     "AAPL",
		Instrument: models.InstrumentEquity,
		Quantity:   6,
		Entry:      178.50,
		Current:    214.30,
	}

	d := e.DecideExit(pos, 214.30, models.ExitProfitTarget)
	if d.Action != models.ActionClose {
		t.Fatalf("action = %s, want CLOSE", d.Action)
	}
	if d.Quantity != 6 {
		t.Errorf("close quantity = %d, want full 6", d.Quantity)
	}

	// Price gap must not block the close: falls back to the tracked price.
	d = e.DecideExit(pos, 0, models.ExitStopLoss)
	if d.Entry != 214.30 {
		t.Errorf("expected last-known price fallback 214.30, got %.2f", d.Entry)
	}
}

func TestSelectLeg_OTMStepsAndPutDirection(t *testing.T) {
	chain := testChain(models.OptionCall, 37, 470, 475, 480, 485, 490, 495)

	leg := selectLeg(chain, models.OptionCall, 481, 2, 30, 45)
	if leg == nil || leg.Strike != 490 {
		t.Fatalf("call 2 steps OTM from ATM 480: got %+v, want strike 490", leg)
	}

	puts := testChain(models.OptionPut, 37, 470, 475, 480, 485, 490)
	leg = selectLeg(puts, models.OptionPut, 481, 1, 30, 45)
	if leg == nil || leg.Strike != 475 {
		t.Fatalf("put 1 step OTM from ATM 480: got %+v, want strike 475", leg)
	}
}
