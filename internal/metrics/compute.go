package metrics

import (
	"math"
	"sort"

	"solana-trade-engine/internal/domain"
)

// computeFromTrades calculates the summary of one group of trades.
// Trades are sorted by Timestamp ASC, ID ASC before computing
// order-dependent metrics (MaxOutflow, MaxConsecutiveFailures).
func computeFromTrades(trades []*domain.TradeRecord, source string) *Summary {
	n := len(trades)
	if n == 0 {
		return &Summary{Source: source}
	}

	sorted := make([]*domain.TradeRecord, n)
	copy(sorted, trades)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		return sorted[i].ID < sorted[j].ID
	})

	s := &Summary{Source: source, TotalTrades: n}
	tokens := make(map[string]struct{})
	var sizes, flows []float64
	for _, t := range sorted {
		if !t.Succeeded() {
			s.Failed++
			continue
		}
		s.Succeeded++
		tokens[t.Mint()] = struct{}{}
		sizes = append(sizes, t.SolAmount)
		if t.Action == domain.ActionBuy {
			s.SolBought += t.SolAmount
			s.Buys++
			flows = append(flows, -t.SolAmount)
		} else {
			s.SolSold += t.SolAmount
			s.Sells++
			flows = append(flows, t.SolAmount)
		}
	}
	s.Tokens = len(tokens)
	s.SuccessRate = computeRate(s.Succeeded, n)
	s.NetSol = s.SolSold - s.SolBought

	sortedSizes := make([]float64, len(sizes))
	copy(sortedSizes, sizes)
	sort.Float64s(sortedSizes)
	s.SizeMean = computeMean(sizes)
	s.SizeMedian = computePercentile(sortedSizes, 0.50)
	s.SizeP90 = computePercentile(sortedSizes, 0.90)
	s.SizeStddev = computeStddev(sizes, s.SizeMean)

	s.MaxOutflow = computeMaxDrawdown(flows)
	s.MaxConsecutiveFailures = computeMaxConsecutiveFailures(sorted)
	return s
}

// computeRate calculates part / total.
func computeRate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}

// computeMean calculates arithmetic mean.
func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computePercentile uses linear interpolation.
// sorted must be pre-sorted ASC; p is 0.10 for the 10th percentile.
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// computeMaxDrawdown calculates the worst peak-to-trough on cumulative flows.
// Flows must be in chronological order.
func computeMaxDrawdown(flows []float64) float64 {
	cumulative := 0.0
	peak := 0.0
	maxDrawdown := 0.0

	for _, f := range flows {
		cumulative += f
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}
	return maxDrawdown
}

// computeMaxConsecutiveFailures finds the longest streak of failed swaps.
// Trades must be in chronological order.
func computeMaxConsecutiveFailures(trades []*domain.TradeRecord) int {
	maxStreak := 0
	current := 0

	for _, t := range trades {
		if t.Succeeded() {
			current = 0
			continue
		}
		current++
		if current > maxStreak {
			maxStreak = current
		}
	}
	return maxStreak
}
