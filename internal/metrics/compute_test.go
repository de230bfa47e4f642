package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage/memory"
)

var t0 = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func trade(id string, src domain.Source, action domain.Action, mint string, sol float64, ok bool, minute int) *domain.TradeRecord {
	r := &domain.TradeRecord{
		ID: id, AccountID: "acct-1", Source: src, Action: action,
		SolAmount: sol, Status: domain.TradeStatusSuccess,
		Timestamp: t0.Add(time.Duration(minute) * time.Minute),
	}
	if action == domain.ActionBuy {
		r.OutputMint = mint
	} else {
		r.InputMint = mint
	}
	if !ok {
		r.Status = domain.TradeStatusFailed
		r.Error = "boom"
	}
	return r
}

func TestComputePercentile(t *testing.T) {
	assert.Equal(t, 0.0, computePercentile(nil, 0.5))
	assert.Equal(t, 3.0, computePercentile([]float64{3}, 0.9))
	assert.InDelta(t, 2.5, computePercentile([]float64{1, 2, 3, 4}, 0.5), 1e-9)
	assert.InDelta(t, 4.0, computePercentile([]float64{1, 2, 3, 4}, 1.0), 1e-9)
}

func TestComputeStddev(t *testing.T) {
	assert.Equal(t, 0.0, computeStddev([]float64{5}, 5))
	// values 2,4,4,4,5,5,7,9: mean 5, sample variance 32/7
	vals := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 2.138, computeStddev(vals, computeMean(vals)), 1e-3)
}

func TestComputeMaxDrawdown(t *testing.T) {
	// -1 -> -1, +3 -> 2 (peak), -2.5 -> -0.5
	assert.InDelta(t, 2.5, computeMaxDrawdown([]float64{-1, 3, -2.5}), 1e-9)
	// drop below the zero start counts too
	assert.InDelta(t, 1.5, computeMaxDrawdown([]float64{-0.5, -1}), 1e-9)
	assert.Equal(t, 0.0, computeMaxDrawdown(nil))
}

func TestComputeFromTrades_OrderDependent(t *testing.T) {
	// out of order on purpose; sorted by timestamp the failures are 2 in a row
	trades := []*domain.TradeRecord{
		trade("c", domain.SourceDCA, domain.ActionBuy, "A", 0.1, false, 3),
		trade("a", domain.SourceDCA, domain.ActionBuy, "A", 0.1, true, 1),
		trade("b", domain.SourceDCA, domain.ActionBuy, "A", 0.1, false, 2),
		trade("d", domain.SourceDCA, domain.ActionSell, "A", 0.3, true, 4),
		trade("e", domain.SourceDCA, domain.ActionBuy, "B", 0.2, false, 5),
	}

	s := computeFromTrades(trades, "dca")
	assert.Equal(t, 5, s.TotalTrades)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 3, s.Failed)
	assert.InDelta(t, 0.4, s.SuccessRate, 1e-9)
	assert.Equal(t, 1, s.Buys)
	assert.Equal(t, 1, s.Sells)
	assert.Equal(t, 1, s.Tokens)
	assert.InDelta(t, 0.1, s.SolBought, 1e-9)
	assert.InDelta(t, 0.3, s.SolSold, 1e-9)
	assert.InDelta(t, 0.2, s.NetSol, 1e-9)
	assert.InDelta(t, 0.2, s.SizeMean, 1e-9)
	assert.InDelta(t, 0.1, s.MaxOutflow, 1e-9)
	assert.Equal(t, 2, s.MaxConsecutiveFailures)
}

func TestSummarize(t *testing.T) {
	_, err := Summarize(nil)
	require.ErrorIs(t, err, ErrNoTrades)

	trades := []*domain.TradeRecord{
		trade("1", domain.SourceTrigger, domain.ActionSell, "A", 0.5, true, 1),
		trade("2", domain.SourceCopy, domain.ActionBuy, "B", 0.2, true, 2),
		trade("3", domain.SourceCopy, domain.ActionBuy, "C", 0.2, true, 3),
	}
	out, err := Summarize(trades)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "copy", out[0].Source)
	assert.Equal(t, 2, out[0].Tokens)
	assert.Equal(t, "trigger", out[1].Source)
	assert.Equal(t, AllSources, out[2].Source)
	assert.Equal(t, 3, out[2].TotalTrades)
	assert.InDelta(t, 0.1, out[2].NetSol, 1e-9)
}

func TestSummarizeAccount(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTradeRecordStore()
	require.NoError(t, store.Insert(ctx, trade("1", domain.SourceManual, domain.ActionBuy, "A", 1, true, 0)))

	out, err := SummarizeAccount(ctx, store, "acct-1")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "manual", out[0].Source)

	_, err = SummarizeAccount(ctx, store, "other")
	assert.ErrorIs(t, err, ErrNoTrades)
}
