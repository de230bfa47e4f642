// Package metrics summarizes an account's trade records per strategy source.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

// AllSources is the Source of the summary covering every trade.
const AllSources = "all"

// ErrNoTrades is returned when no trades are available for aggregation.
var ErrNoTrades = errors.New("no trades available for aggregation")

// Summary aggregates one group of trade records. SOL figures count only
// trades that landed.
type Summary struct {
	Source string

	TotalTrades int
	Succeeded   int
	Failed      int
	SuccessRate float64
	Buys        int
	Sells       int
	Tokens      int // distinct mints traded

	SolBought float64
	SolSold   float64
	NetSol    float64 // SolSold - SolBought

	SizeMean   float64
	SizeMedian float64
	SizeP90    float64
	SizeStddev float64

	// MaxOutflow is the largest peak-to-trough drop of cumulative net SOL flow.
	MaxOutflow             float64
	MaxConsecutiveFailures int
}

// Summarize returns one summary per source, sorted by source, followed by
// the AllSources summary.
func Summarize(trades []*domain.TradeRecord) ([]*Summary, error) {
	if len(trades) == 0 {
		return nil, ErrNoTrades
	}

	bySource := make(map[string][]*domain.TradeRecord)
	for _, t := range trades {
		bySource[string(t.Source)] = append(bySource[string(t.Source)], t)
	}
	sources := make([]string, 0, len(bySource))
	for s := range bySource {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	out := make([]*Summary, 0, len(sources)+1)
	for _, s := range sources {
		out = append(out, computeFromTrades(bySource[s], s))
	}
	return append(out, computeFromTrades(trades, AllSources)), nil
}

// SummarizeAccount loads every trade of accountID from store and summarizes it.
func SummarizeAccount(ctx context.Context, store storage.TradeRecordStore, accountID string) ([]*Summary, error) {
	trades, err := store.GetByAccount(ctx, accountID, 0)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}
	return Summarize(trades)
}
