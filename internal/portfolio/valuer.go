package portfolio

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"solana-trade-engine/internal/price"
	"solana-trade-engine/internal/solana"
)

// ValueSink receives each computed portfolio value.
type ValueSink func(valueSol float64)

// Valuer computes the account's SOL-denominated value: native balance plus
// each held mint's on-chain balance at the feed's SOL price.
type Valuer struct {
	rpc    solana.RPCClient
	feed   price.Feed
	owner  string
	book   *Book
	clock  clock.Clock
	logger *slog.Logger
}

// NewValuer creates a valuer. feed must quote prices in SOL.
func NewValuer(rpc solana.RPCClient, feed price.Feed, owner string, book *Book, clk clock.Clock, logger *slog.Logger) *Valuer {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Valuer{
		rpc:    rpc,
		feed:   feed,
		owner:  owner,
		book:   book,
		clock:  clk,
		logger: logger.With("component", "portfolio"),
	}
}

// Value returns the current total in SOL and marks each holding in the book.
// Mints without a price contribute nothing.
func (v *Valuer) Value(ctx context.Context) (float64, error) {
	lamports, err := v.rpc.GetBalance(ctx, v.owner)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	total := float64(lamports) / float64(solana.LamportsPerSOL)

	mints := v.book.Mints()
	if len(mints) == 0 {
		return total, nil
	}

	prices, err := v.feed.Prices(ctx, mints)
	if err != nil {
		return 0, fmt.Errorf("get prices: %w", err)
	}

	for _, mint := range mints {
		p, ok := prices[mint]
		if !ok {
			continue
		}
		bal, err := v.rpc.GetTokenBalance(ctx, v.owner, mint)
		if err != nil {
			return 0, fmt.Errorf("get token balance %s: %w", mint, err)
		}
		value := bal.UIAmount * p
		v.book.Mark(mint, value)
		total += value
	}
	return total, nil
}

// Run values the portfolio every interval and passes the result to sink
// until ctx is cancelled. Errors are logged and the tick skipped.
func (v *Valuer) Run(ctx context.Context, interval time.Duration, sink ValueSink) {
	ticker := v.clock.Ticker(interval)
	defer ticker.Stop()

	v.tick(ctx, sink)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.tick(ctx, sink)
		}
	}
}

func (v *Valuer) tick(ctx context.Context, sink ValueSink) {
	value, err := v.Value(ctx)
	if err != nil {
		if ctx.Err() == nil {
			v.logger.Warn("portfolio valuation failed", "error", err)
		}
		return
	}
	v.logger.Debug("portfolio valued", "value_sol", value)
	sink(value)
}
