package scanner

import (
	"context"
	"math"
	"sync"
	"time"

	"trade_engine/internal/models"
	"trade_engine/internal/modules/config"
	"trade_engine/pkg/logger"
)

// MarketData is what the scanner needs from the market data gateway.
type MarketData interface {
	GetQuote(ctx context.Context, symbol string) (models.Quote, error)
	GetBars(ctx context.Context, symbol, interval string, limit int) ([]models.Bar, error)
	GetOptionsChain(ctx context.Context, symbol string, minDTE, maxDTE int) ([]models.OptionContract, error)
	GetNews(ctx context.Context, symbol string, limit int) ([]models.Headline, error)
}

// Candidate pairs a mover's score with the snapshot it came from so the
// decision engine sees the same data the scanner saw.
type Candidate struct {
	Score    models.OpportunityScore
	Snapshot *models.MarketSnapshot
}

type Scanner struct {
	md      MarketData
	cfg     config.ScannerConfig
	entry   config.EntryConfig
	weights Weights
	timeout time.Duration
}

func New(md MarketData, cfg config.ScannerConfig, entry config.EntryConfig, timeout time.Duration) *Scanner {
	return &Scanner{
		md:      md,
		cfg:     cfg,
		entry:   entry,
		weights: WeightsFromConfig(cfg),
		timeout: timeout,
	}
}

const (
	intradayInterval   = "5m"
	intradayBarMinutes = 5
	trailingVolumeBars = 20
	dailyHistoryBars   = 60
	maxConcurrentScans = 4
)

// Scan evaluates the whole watchlist and returns the movers worth a
// decision. A gateway failure for one symbol skips that symbol only; a cycle
// where every symbol fails returns an empty slice, never an error.
func (s *Scanner) Scan(ctx context.Context, watchlist []string) []Candidate {
	var (
		mu         sync.Mutex
		candidates []Candidate
		wg         sync.WaitGroup
	)
	sem := make(chan struct{}, maxConcurrentScans)

	for _, symbol := range watchlist {
		wg.Add(1)
		sem <- struct{}{}
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-sem }()

			symCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			cand, err := s.scanSymbol(symCtx, symbol)
			if err != nil {
				logger.Warn("[SCAN] %s skipped: %v", symbol, err)
				return
			}
			if cand == nil {
				return // no signal
			}
			mu.Lock()
			candidates = append(candidates, *cand)
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()

	return candidates
}

func (s *Scanner) scanSymbol(ctx context.Context, symbol string) (*Candidate, error) {
	lookbackBars := s.cfg.LookbackMinutes / intradayBarMinutes
	if lookbackBars < 1 {
		lookbackBars = 1
	}

	intraday, err := s.md.GetBars(ctx, symbol, intradayInterval, lookbackBars+trailingVolumeBars)
	if err != nil {
		return nil, err
	}
	quote, err := s.md.GetQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}

	sig, ok := s.detectMover(intraday, lookbackBars)
	if !ok {
		return nil, nil
	}

	daily, err := s.md.GetBars(ctx, symbol, "1d", dailyHistoryBars)
	if err != nil {
		return nil, err
	}

	snap := &models.MarketSnapshot{
		Symbol:   symbol,
		Last:     quote.Last,
		Bid:      quote.Bid,
		Ask:      quote.Ask,
		Intraday: intraday,
		Daily:    daily,
		At:       time.Now(),
	}

	score := Score(s.cfg, s.weights, snap, sig)

	// Advisory enrichment only: failures here never drop the candidate and
	// the score is already final.
	if chain, err := s.md.GetOptionsChain(ctx, symbol, s.entry.MinDTE, s.entry.MaxDTE); err == nil {
		score.OptionsAvailable = len(chain) > 0
	}
	if news, err := s.md.GetNews(ctx, symbol, s.cfg.NewsLimit); err == nil {
		score.Headlines = news
	}

	logger.Info("[SCAN] %s mover: move=%.2f%% vol=%.1fx score=%.0f dir=%s",
		symbol, sig.percentMove, sig.volumeRatio, score.Total, score.Direction)

	return &Candidate{Score: score, Snapshot: snap}, nil
}

// detectMover checks the two gates: percent move over the lookback window
// and latest-bar volume against the trailing average.
func (s *Scanner) detectMover(intraday []models.Bar, lookbackBars int) (moverSignal, bool) {
	if len(intraday) < lookbackBars+1 {
		return moverSignal{}, false
	}

	last := intraday[len(intraday)-1]
	ref := intraday[len(intraday)-1-lookbackBars]
	if ref.Close <= 0 {
		return moverSignal{}, false
	}
	percentMove := (last.Close - ref.Close) / ref.Close * 100

	trailing := intraday[:len(intraday)-1]
	if len(trailing) > trailingVolumeBars {
		trailing = trailing[len(trailing)-trailingVolumeBars:]
	}
	var avgVol float64
	for _, b := range trailing {
		avgVol += b.Volume
	}
	avgVol /= float64(len(trailing))
	if avgVol <= 0 {
		return moverSignal{}, false
	}
	volumeRatio := last.Volume / avgVol

	if math.Abs(percentMove) < s.cfg.MoveThresholdPct || volumeRatio < s.cfg.VolumeRatioMin {
		return moverSignal{}, false
	}
	return moverSignal{percentMove: percentMove, volumeRatio: volumeRatio}, true
}
