package risk

import (
	"sync"
	"time"

	"trade_engine/internal/models"
)

// State is the process-wide risk accumulator and circuit breaker. Mutated
// only by the manager and the daily reset; both the scan and monitor cycles
// read it, so every access goes through the mutex.
//
// The daily loss combines realized P&L from closes with the mark-to-market
// drift of the open book since the last reset, so positions bleeding inside
// the stop-loss band count against the limit before they ever close.
type State struct {
	mu sync.Mutex

	realizedLoss  float64 // positive = accumulated realized loss
	openPnL       float64 // latest signed mark of the open book
	openBaseline  float64 // open-book mark at the last reset
	tripped       bool
	lastReset     time.Time
	openPositions int
	portfolioHeat float64
}

func NewState() *State {
	return &State{lastReset: time.Now()}
}

// Restore seeds the state from a persisted snapshot at startup.
func (s *State) Restore(snap models.RiskSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.realizedLoss = snap.DailyLoss
	s.openPnL = 0
	s.openBaseline = 0
	s.tripped = snap.CircuitBreaker
	s.lastReset = snap.LastReset
}

// Rebase anchors the open-book mark so that only drift after this point
// counts toward the daily loss. Called once at bootstrap, after the registry
// is seeded, so drawdown from previous sessions is not recounted.
func (s *State) Rebase(openPnL float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openPnL = openPnL
	s.openBaseline = openPnL
}

// RecordPnL posts a realized P&L delta from a closed position (negative =
// loss) and trips the breaker when the combined loss reaches the limit.
// Returns true when this call tripped it.
func (s *State) RecordPnL(pnl float64, maxDailyLoss float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.realizedLoss -= pnl
	return s.tripLocked(maxDailyLoss)
}

// MarkOpenPnL replaces the unrealized mark for the whole open book and trips
// the breaker when the combined loss reaches the limit. The monitor sweep
// calls it after refreshing prices; the executor calls it after a close so
// the closed position's unrealized share does not double-count against the
// realized delta it is about to post.
func (s *State) MarkOpenPnL(pnl float64, maxDailyLoss float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openPnL = pnl
	return s.tripLocked(maxDailyLoss)
}

func (s *State) tripLocked(maxDailyLoss float64) bool {
	if !s.tripped && maxDailyLoss > 0 && s.dailyLossLocked() >= maxDailyLoss {
		s.tripped = true
		return true
	}
	return false
}

// dailyLossLocked is realized loss plus the open book's drift since the last
// reset. Gains on either side offset losses on the other.
func (s *State) dailyLossLocked() float64 {
	return s.realizedLoss - (s.openPnL - s.openBaseline)
}

func (s *State) Tripped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tripped
}

// Reset reopens the breaker and clears the loss accumulator. The open book's
// current mark becomes the new baseline, so a position carried overnight
// starts the day at zero contribution. Only the scheduled daily reset and
// the manual override call this.
func (s *State) Reset(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.realizedLoss = 0
	s.openBaseline = s.openPnL
	s.tripped = false
	s.lastReset = now
}

// TrackExposure updates the open-position count and portfolio heat after the
// registry changed.
func (s *State) TrackExposure(openPositions int, heat float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openPositions = openPositions
	s.portfolioHeat = heat
}

func (s *State) Snapshot() models.RiskSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	loss := s.dailyLossLocked()
	if loss < 0 {
		loss = 0 // net-up day reports zero loss
	}
	return models.RiskSnapshot{
		DailyLoss:      loss,
		CircuitBreaker: s.tripped,
		LastReset:      s.lastReset,
		OpenPositions:  s.openPositions,
		PortfolioHeat:  s.portfolioHeat,
	}
}
