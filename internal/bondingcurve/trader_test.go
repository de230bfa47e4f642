package bondingcurve

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/solana"
	solstub "solana-trade-engine/internal/solana/stub"
	"solana-trade-engine/internal/swap"
	"solana-trade-engine/internal/wallet"
)

type denyGuard struct{}

func (denyGuard) CheckTrade(domain.Action, float64, string) error {
	return domain.Policy("safety.validate", "kill switch active")
}

func unsignedTx(kp *wallet.Keypair) []byte {
	var tx bytes.Buffer
	tx.WriteByte(1)
	tx.Write(make([]byte, 64))
	tx.Write([]byte{0x80, 1, 0, 1, 2})
	tx.Write(kp.PublicKeyBytes())
	tx.Write(make([]byte, 32))
	tx.Write(bytes.Repeat([]byte{3}, 32))
	tx.Write([]byte{0, 0})
	return tx.Bytes()
}

func setup(t *testing.T, curve *Curve) (*solstub.RPCClient, *wallet.Keypair, string, *httptest.Server, *[]BuildRequest) {
	t.Helper()

	kp, err := wallet.NewKeypair()
	require.NoError(t, err)
	mintKp, err := wallet.NewKeypair()
	require.NoError(t, err)
	mint := mintKp.PublicKey()

	rpc := solstub.NewRPCClient()
	addr, err := DeriveAddress(mint)
	require.NoError(t, err)
	rpc.Accounts[addr] = &solana.AccountInfo{
		Owner: ProgramID,
		Data:  base64.StdEncoding.EncodeToString(curve.Encode([8]byte{})),
	}

	var requests []BuildRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req BuildRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests = append(requests, req)
		w.Write(unsignedTx(kp))
	}))
	t.Cleanup(server.Close)

	return rpc, kp, mint, server, &requests
}

func TestTrader_Buy(t *testing.T) {
	rpc, kp, mint, server, requests := setup(t, freshCurve())

	var records []domain.TradeRecord
	sender := swap.NewSender(rpc, kp, solana.ConfirmOptions{PollInterval: time.Millisecond, Timeout: time.Second})
	trader := NewTrader("acct-1", NewReader(rpc), NewTradeClient(server.URL, 100), sender, nil,
		func(_ context.Context, rec domain.TradeRecord) { records = append(records, rec) },
		TraderConfig{SlippageBps: 1000, PriorityFeeSol: 0.0005}, nil)

	trade, err := trader.Buy(context.Background(), mint, 500_000_000)
	require.NoError(t, err)
	assert.Equal(t, "stubsig1", trade.Signature)
	assert.Greater(t, trade.Quote.AmountOut, uint64(0))

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	assert.Equal(t, "buy", req.Action)
	assert.Equal(t, mint, req.Mint)
	assert.Equal(t, kp.PublicKey(), req.PublicKey)
	assert.Equal(t, "true", req.DenominatedInSol)
	assert.InDelta(t, 0.5, req.Amount, 1e-12)
	assert.InDelta(t, 10.0, req.Slippage, 1e-12)
	assert.Equal(t, "pump", req.Pool)

	require.Len(t, records, 1)
	assert.Equal(t, domain.SourceBondingCurve, records[0].Source)
	assert.Equal(t, domain.TradeStatusSuccess, records[0].Status)
	assert.Equal(t, mint, records[0].Mint())
	assert.InDelta(t, 0.5, records[0].SolAmount, 1e-12)
}

func TestTrader_GuardRejects(t *testing.T) {
	rpc, kp, mint, server, requests := setup(t, freshCurve())

	sender := swap.NewSender(rpc, kp, solana.ConfirmOptions{PollInterval: time.Millisecond, Timeout: time.Second})
	trader := NewTrader("acct-1", NewReader(rpc), NewTradeClient(server.URL, 100), sender, denyGuard{}, nil, TraderConfig{}, nil)

	_, err := trader.Buy(context.Background(), mint, 500_000_000)
	assert.True(t, domain.IsPolicy(err))
	assert.Empty(t, *requests)
	assert.Zero(t, rpc.SentCount())
}

func TestTrader_CompleteCurve(t *testing.T) {
	c := freshCurve()
	c.Complete = true
	rpc, kp, mint, server, _ := setup(t, c)

	sender := swap.NewSender(rpc, kp, solana.ConfirmOptions{})
	trader := NewTrader("acct-1", NewReader(rpc), NewTradeClient(server.URL, 100), sender, nil, nil, TraderConfig{}, nil)

	_, err := trader.Buy(context.Background(), mint, 1_000)
	assert.Equal(t, domain.KindInvalidState, domain.KindOf(err))
	assert.ErrorIs(t, err, ErrCurveComplete)
}

func TestReader_Snapshot(t *testing.T) {
	c := freshCurve()
	c.RealTokenReserves = InitialRealTokenReserves / 4
	rpc, _, mint, _, _ := setup(t, c)

	snap, err := NewReader(rpc).Snapshot(context.Background(), mint)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, snap.Progress, 1e-9)
	assert.InDelta(t, c.Price(), snap.Price, 1e-18)

	_, err = NewReader(rpc).Fetch(context.Background(), "11111111111111111111111111111112")
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}
