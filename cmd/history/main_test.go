package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-engine/internal/config"
	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/solana"
	"solana-trade-engine/internal/storage/sqlite"
)

const bonkMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"

func seed(t *testing.T, path string) {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer db.Close()

	store := sqlite.NewTradeRecordStore(db)
	ts := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.InsertBulk(ctx, []*domain.TradeRecord{
		{
			ID: "t1", AccountID: "acct-1", Source: domain.SourceDCA, RefID: "order-1",
			Action: domain.ActionBuy, InputMint: solana.WrappedSOLMint, OutputMint: bonkMint,
			AmountIn: 100_000_000, AmountOut: 5_000_000, SolAmount: 0.1,
			Signature: "sig-1", Status: domain.TradeStatusSuccess, Timestamp: ts,
		},
		{
			ID: "t2", AccountID: "acct-1", Source: domain.SourceTrigger, RefID: "trig-1",
			Action: domain.ActionSell, InputMint: bonkMint, OutputMint: solana.WrappedSOLMint,
			AmountIn: 5_000_000, SolAmount: 0.12,
			Status: domain.TradeStatusFailed, Error: "slippage exceeded", Timestamp: ts.Add(time.Hour),
		},
	}))
}

func TestRun_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.db")
	seed(t, path)
	cfg := config.StorageConfig{SQLitePath: path}

	var buf bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, "acct-1", "", 0, &buf))
	out := buf.String()
	assert.Contains(t, out, "dca")
	assert.Contains(t, out, "slippage exceeded")
	assert.Contains(t, out, "2 trades, 0.1000 SOL spent, 0.0000 SOL received")

	buf.Reset()
	require.NoError(t, run(context.Background(), cfg, "acct-1", "order-1", 0, &buf))
	assert.Contains(t, buf.String(), "1 trades")
	assert.NotContains(t, buf.String(), "slippage")
}

func TestRun_Empty(t *testing.T) {
	cfg := config.StorageConfig{SQLitePath: filepath.Join(t.TempDir(), "empty.db")}
	var buf bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, "nobody", "", 10, &buf))
	assert.Equal(t, "no trades\n", buf.String())
}

func TestRun_NoStore(t *testing.T) {
	err := run(context.Background(), config.StorageConfig{}, "acct-1", "", 10, &bytes.Buffer{})
	require.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab…", truncate("abcdef", 2))
}

func TestRunSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.db")
	seed(t, path)
	cfg := config.StorageConfig{SQLitePath: path}

	var buf bytes.Buffer
	require.NoError(t, runSummary(context.Background(), cfg, "acct-1", &buf))
	out := buf.String()
	assert.Contains(t, out, "dca")
	assert.Contains(t, out, "trigger")
	assert.Contains(t, out, "all")
	assert.Contains(t, out, "50.0%")

	buf.Reset()
	require.NoError(t, runSummary(context.Background(), cfg, "nobody", &buf))
	assert.Equal(t, "no trades\n", buf.String())
}
