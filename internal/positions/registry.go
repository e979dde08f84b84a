package positions

import (
	"context"
	"sync"
	"time"

	"trade_engine/internal/models"
	"trade_engine/pkg/logger"
)

// Store is the durable side of the registry. The registry never trusts the
// store for reads; it is a write-through so a restart can rebuild the map.
type Store interface {
	Upsert(ctx context.Context, p *models.Position) error
	Delete(ctx context.Context, symbol string) error
}

// Registry is the single authority on open positions. The scan cycle and the
// monitor cycle both mutate it, so all access is serialized here.
type Registry struct {
	mu    sync.RWMutex
	open  map[string]*models.Position
	store Store // nil in tests
}

func NewRegistry(store Store) *Registry {
	return &Registry{
		open:  make(map[string]*models.Position),
		store: store,
	}
}

// Seed loads previously persisted positions at startup.
func (r *Registry) Seed(positions []*models.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range positions {
		cp := *p
		r.open[p.Symbol] = &cp
	}
}

func (r *Registry) Put(ctx context.Context, p *models.Position) {
	cp := *p
	r.mu.Lock()
	r.open[cp.Symbol] = &cp
	r.mu.Unlock()

	r.persist(ctx, &cp)
}

// UpdatePrice moves the tracked price for a symbol and returns the updated
// copy, or false when no position is open for it.
func (r *Registry) UpdatePrice(ctx context.Context, symbol string, price float64, now time.Time) (models.Position, bool) {
	r.mu.Lock()
	p, ok := r.open[symbol]
	if !ok {
		r.mu.Unlock()
		return models.Position{}, false
	}
	p.Current = price
	p.Updated = now
	cp := *p
	r.mu.Unlock()

	r.persist(ctx, &cp)
	return cp, true
}

func (r *Registry) Remove(ctx context.Context, symbol string) {
	r.mu.Lock()
	delete(r.open, symbol)
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Delete(ctx, symbol); err != nil {
			logger.Error("[REGISTRY] delete %s: %v", symbol, err)
		}
	}
}

func (r *Registry) Get(symbol string) (models.Position, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.open[symbol]
	if !ok {
		return models.Position{}, false
	}
	return *p, true
}

// List returns consistent copies of every open position.
func (r *Registry) List() []models.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Position, 0, len(r.open))
	for _, p := range r.open {
		out = append(out, *p)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.open)
}

// UnrealizedPnL is the signed mark-to-market P&L of the whole open book at
// the last tracked prices.
func (r *Registry) UnrealizedPnL() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total float64
	for _, p := range r.open {
		total += p.UnrealizedPnL()
	}
	return total
}

// Heat is total open notional over equity, the portfolio-heat measure the
// risk state tracks.
func (r *Registry) Heat(equity float64) float64 {
	if equity <= 0 {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var notional float64
	for _, p := range r.open {
		notional += p.UnitValue(p.Current) * float64(p.Quantity)
	}
	return notional / equity
}

func (r *Registry) persist(ctx context.Context, p *models.Position) {
	if r.store == nil {
		return
	}
	if err := r.store.Upsert(ctx, p); err != nil {
		logger.Error("[REGISTRY] persist %s: %v", p.Symbol, err)
	}
}
