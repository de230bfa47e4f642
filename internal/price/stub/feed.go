// Package stub provides an in-memory price.Feed.
package stub

import (
	"context"
	"sync"

	"solana-trade-engine/internal/price"
)

// Feed returns configured prices and records each requested batch.
type Feed struct {
	mu     sync.Mutex
	prices map[string]float64

	// Err, when set, is returned by Prices.
	Err   error
	Calls [][]string
}

var _ price.Feed = (*Feed)(nil)

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{prices: make(map[string]float64)}
}

// Set sets the price of mint.
func (f *Feed) Set(mint string, p float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[mint] = p
}

// Delete removes mint so that it is reported as unpriced.
func (f *Feed) Delete(mint string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.prices, mint)
}

// Prices implements price.Feed.
func (f *Feed) Prices(_ context.Context, mints []string) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, append([]string(nil), mints...))
	if f.Err != nil {
		return nil, f.Err
	}
	out := make(map[string]float64, len(mints))
	for _, m := range mints {
		if p, ok := f.prices[m]; ok {
			out[m] = p
		}
	}
	return out, nil
}

// CallCount returns the number of Prices calls.
func (f *Feed) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}
