// Package portfolio tracks per-mint holdings derived from trade records and
// values them in SOL.
package portfolio

import (
	"sort"
	"sync"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/solana"
)

// Holding is the quantity and SOL cost basis held for one mint.
type Holding struct {
	Mint     string
	Quantity uint64  // raw token units
	CostSol  float64 // remaining cost basis
	MarkSol  float64 // last valuation, zero until marked
}

// Value returns the mark when known, otherwise the cost basis.
func (h Holding) Value() float64 {
	if h.MarkSol > 0 {
		return h.MarkSol
	}
	return h.CostSol
}

// Book is an average-cost position book. Safe for concurrent use.
type Book struct {
	mu       sync.RWMutex
	holdings map[string]*Holding
	realized float64
}

// NewBook creates an empty book.
func NewBook() *Book {
	return &Book{holdings: make(map[string]*Holding)}
}

// Apply folds a trade record into the book and returns the realized PnL in
// SOL. Failed trades and buys realize nothing. Sells of untracked mints have
// no known basis and realize zero.
func (b *Book) Apply(rec domain.TradeRecord) float64 {
	if !rec.Succeeded() {
		return 0
	}
	mint := rec.Mint()
	if mint == "" || mint == solana.WrappedSOLMint {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	h := b.holdings[mint]
	switch rec.Action {
	case domain.ActionBuy:
		if h == nil {
			h = &Holding{Mint: mint}
			b.holdings[mint] = h
		}
		h.Quantity += rec.AmountOut
		h.CostSol += rec.SolAmount
		h.MarkSol = 0
		return 0

	case domain.ActionSell:
		if h == nil || h.Quantity == 0 {
			return 0
		}
		sold := rec.AmountIn
		if sold > h.Quantity {
			sold = h.Quantity
		}
		basis := h.CostSol * float64(sold) / float64(h.Quantity)
		pnl := rec.SolAmount - basis
		h.Quantity -= sold
		h.CostSol -= basis
		h.MarkSol = 0
		if h.Quantity == 0 {
			delete(b.holdings, mint)
		}
		b.realized += pnl
		return pnl
	}
	return 0
}

// Mark sets the current SOL value of a held mint.
func (b *Book) Mark(mint string, valueSol float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if h := b.holdings[mint]; h != nil {
		h.MarkSol = valueSol
	}
}

// Holdings returns a copy of all holdings sorted by mint.
func (b *Book) Holdings() []Holding {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Holding, 0, len(b.holdings))
	for _, h := range b.holdings {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Mint < out[j].Mint })
	return out
}

// Holding returns the holding for mint.
func (b *Book) Holding(mint string) (Holding, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	h, ok := b.holdings[mint]
	if !ok {
		return Holding{}, false
	}
	return *h, true
}

// Mints returns the held mints, sorted.
func (b *Book) Mints() []string {
	hs := b.Holdings()
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = h.Mint
	}
	return out
}

// Positions implements safety.PositionSource.
func (b *Book) Positions() []domain.Position {
	hs := b.Holdings()
	out := make([]domain.Position, len(hs))
	for i, h := range hs {
		out[i] = domain.Position{Mint: h.Mint, ValueSol: h.Value()}
	}
	return out
}

// RealizedPnL returns the cumulative realized PnL since the book was created.
func (b *Book) RealizedPnL() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.realized
}
