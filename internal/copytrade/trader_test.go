package copytrade

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/solana"
	solstub "solana-trade-engine/internal/solana/stub"
	swapstub "solana-trade-engine/internal/swap/stub"
	"solana-trade-engine/internal/wallet"
)

type harness struct {
	trader  *Trader
	ws      *solstub.WSClient
	rpc     *solstub.RPCClient
	swapper *swapstub.Swapper
	clock   *clock.Mock
	owner   string

	mu   sync.Mutex
	recs []domain.TradeRecord
}

func newHarness(t *testing.T, guard domain.TradeGuard) *harness {
	t.Helper()
	h := &harness{
		ws:      solstub.NewWSClient(),
		rpc:     solstub.NewRPCClient(),
		swapper: swapstub.NewSwapper(1),
		clock:   clock.NewMock(),
		owner:   newAddress(t),
	}
	record := func(_ context.Context, rec domain.TradeRecord) {
		h.mu.Lock()
		h.recs = append(h.recs, rec)
		h.mu.Unlock()
	}
	h.trader = NewTrader("acct-1", h.owner, h.ws, h.rpc, h.swapper, guard, record, h.clock, nil)
	require.NoError(t, h.trader.Start(context.Background()))
	t.Cleanup(h.trader.Stop)
	return h
}

func (h *harness) records() []domain.TradeRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.TradeRecord(nil), h.recs...)
}

func (h *harness) emit(address string, tx *solana.Transaction) {
	h.rpc.AddTransaction(tx)
	h.ws.Emit(address, solana.LogNotification{Signature: tx.Signature})
}

func (h *harness) waitHistory(t *testing.T, n int) []HistoryEntry {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(h.trader.History(0)) >= n
	}, 2*time.Second, 5*time.Millisecond)
	return h.trader.History(0)
}

func newAddress(t *testing.T) string {
	t.Helper()
	kp, err := wallet.NewKeypair()
	require.NoError(t, err)
	return kp.PublicKey()
}

func buyTx(sig, address string, solSpent uint64, tokens uint64) *solana.Transaction {
	return swapTx(sig, address, 10_000_000_000, 10_000_000_000-solSpent, nil,
		[]solana.TokenBalance{bal(mintA, address, tokens)})
}

func sellTx(sig, address string, solGained uint64, tokens uint64) *solana.Transaction {
	return swapTx(sig, address, 1_000_000_000, 1_000_000_000+solGained,
		[]solana.TokenBalance{bal(mintA, address, tokens)},
		[]solana.TokenBalance{bal(mintA, address, 0)})
}

func TestAddTarget_Validation(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.trader.AddTarget(context.Background(), TargetRequest{Address: "not-an-address"})
	assert.Equal(t, domain.KindInvalid, domain.KindOf(err))

	addr := newAddress(t)
	tg, err := h.trader.AddTarget(context.Background(), TargetRequest{Address: addr})
	require.NoError(t, err)
	assert.Equal(t, DefaultMultiplier, tg.Multiplier)
	assert.Equal(t, DefaultMaxPositionSol, tg.MaxPositionSol)
	assert.True(t, tg.CopyBuys)
	assert.True(t, tg.CopySells)
	assert.Equal(t, 1, h.ws.Subscriptions())

	_, err = h.trader.AddTarget(context.Background(), TargetRequest{Address: addr})
	assert.Equal(t, domain.KindInvalidState, domain.KindOf(err))
}

func TestCopy_BuyMirroredAndCapped(t *testing.T) {
	h := newHarness(t, nil)
	addr := newAddress(t)
	tg, err := h.trader.AddTarget(context.Background(), TargetRequest{
		Address:        addr,
		Multiplier:     2,
		MaxPositionSol: 0.5,
	})
	require.NoError(t, err)

	// observed 0.4 SOL x2 = 0.8, capped at 0.5
	h.emit(addr, buyTx("sig-buy", addr, 400_000_000, 1_000_000))

	hist := h.waitHistory(t, 1)
	assert.Equal(t, EntrySuccess, hist[0].Status)
	assert.Equal(t, domain.ActionBuy, hist[0].Action)
	assert.InDelta(t, 0.4, hist[0].ObservedSol, 1e-12)
	assert.InDelta(t, 0.5, hist[0].MirroredSol, 1e-12)
	assert.Equal(t, "sig-1", hist[0].Signature)

	require.Len(t, h.swapper.Quotes, 1)
	q := h.swapper.Quotes[0]
	assert.Equal(t, solana.WrappedSOLMint, q.InputMint)
	assert.Equal(t, mintA, q.OutputMint)
	assert.Equal(t, uint64(500_000_000), q.Amount)

	recs := h.records()
	require.Len(t, recs, 1)
	assert.Equal(t, domain.SourceCopy, recs[0].Source)
	assert.Equal(t, tg.ID, recs[0].RefID)
	assert.True(t, recs[0].Succeeded())

	targets := h.trader.Targets()
	require.Len(t, targets, 1)
	assert.Equal(t, 1, targets[0].TotalCopied)
}

func TestCopy_BuyBelowCapUsesMultiplier(t *testing.T) {
	h := newHarness(t, nil)
	addr := newAddress(t)
	_, err := h.trader.AddTarget(context.Background(), TargetRequest{Address: addr, Multiplier: 0.5, MaxPositionSol: 1})
	require.NoError(t, err)

	h.emit(addr, buyTx("sig-buy", addr, 300_000_000, 10))

	hist := h.waitHistory(t, 1)
	assert.InDelta(t, 0.15, hist[0].MirroredSol, 1e-12)
	assert.Equal(t, uint64(150_000_000), h.swapper.Quotes[0].Amount)
}

func TestCopy_SellCappedAtOwnBalance(t *testing.T) {
	h := newHarness(t, nil)
	addr := newAddress(t)
	_, err := h.trader.AddTarget(context.Background(), TargetRequest{Address: addr})
	require.NoError(t, err)
	h.rpc.SetTokenBalance(h.owner, mintA, solana.TokenAmount{Amount: 300, Decimals: 6})

	h.emit(addr, sellTx("sig-sell", addr, 200_000_000, 1000))

	hist := h.waitHistory(t, 1)
	assert.Equal(t, EntrySuccess, hist[0].Status)
	assert.Equal(t, domain.ActionSell, hist[0].Action)

	q := h.swapper.Quotes[0]
	assert.Equal(t, mintA, q.InputMint)
	assert.Equal(t, solana.WrappedSOLMint, q.OutputMint)
	assert.Equal(t, uint64(300), q.Amount)
}

func TestCopy_SellWithoutBalanceSkipped(t *testing.T) {
	h := newHarness(t, nil)
	addr := newAddress(t)
	_, err := h.trader.AddTarget(context.Background(), TargetRequest{Address: addr})
	require.NoError(t, err)

	h.emit(addr, sellTx("sig-sell", addr, 200_000_000, 1000))

	hist := h.waitHistory(t, 1)
	assert.Equal(t, EntrySkipped, hist[0].Status)
	assert.Zero(t, h.swapper.QuoteCount())
}

func TestCopy_FiltersInOrder(t *testing.T) {
	h := newHarness(t, nil)
	addr := newAddress(t)
	no := false
	_, err := h.trader.AddTarget(context.Background(), TargetRequest{
		Address:     addr,
		CopySells:   &no,
		BlockMints:  []string{mintB},
		MinTradeSol: 0.05,
	})
	require.NoError(t, err)
	h.rpc.SetTokenBalance(h.owner, mintA, solana.TokenAmount{Amount: 1000})

	h.emit(addr, sellTx("s1", addr, 200_000_000, 1000)) // sells disabled
	h.emit(addr, swapTx("s2", addr, 1_000_000_000, 900_000_000, nil,
		[]solana.TokenBalance{bal(mintB, addr, 5)})) // blocked
	h.emit(addr, buyTx("s3", addr, 10_000_000, 5)) // below floor
	h.emit(addr, buyTx("s4", addr, 100_000_000, 5)) // copied

	hist := h.waitHistory(t, 1)
	require.Len(t, hist, 1)
	assert.Equal(t, "s4", hist[0].SourceSignature)
	assert.Equal(t, 1, h.swapper.ExecutedCount())
}

func TestCopy_AllowList(t *testing.T) {
	h := newHarness(t, nil)
	addr := newAddress(t)
	_, err := h.trader.AddTarget(context.Background(), TargetRequest{Address: addr, AllowMints: []string{mintB}})
	require.NoError(t, err)

	h.emit(addr, buyTx("s1", addr, 100_000_000, 5)) // mintA not allowed
	h.emit(addr, swapTx("s2", addr, 1_000_000_000, 900_000_000, nil,
		[]solana.TokenBalance{bal(mintB, addr, 5)}))

	hist := h.waitHistory(t, 1)
	require.Len(t, hist, 1)
	assert.Equal(t, mintB, hist[0].Mint)
}

func TestCopy_DuplicateSignatureIgnored(t *testing.T) {
	h := newHarness(t, nil)
	addr := newAddress(t)
	_, err := h.trader.AddTarget(context.Background(), TargetRequest{Address: addr})
	require.NoError(t, err)

	h.emit(addr, buyTx("dup", addr, 100_000_000, 5))
	h.ws.Emit(addr, solana.LogNotification{Signature: "dup"})
	h.emit(addr, buyTx("next", addr, 100_000_000, 5))

	hist := h.waitHistory(t, 2)
	assert.Len(t, hist, 2)
	assert.Equal(t, 2, h.swapper.ExecutedCount())
}

func TestCopy_FailedNotificationAndFetchError(t *testing.T) {
	h := newHarness(t, nil)
	addr := newAddress(t)
	_, err := h.trader.AddTarget(context.Background(), TargetRequest{Address: addr})
	require.NoError(t, err)

	h.ws.Emit(addr, solana.LogNotification{Signature: "errored", Err: "custom program error"})
	h.ws.Emit(addr, solana.LogNotification{Signature: "unknown"})

	hist := h.waitHistory(t, 1)
	require.Len(t, hist, 1)
	assert.Equal(t, "unknown", hist[0].SourceSignature)
	assert.Equal(t, EntryFailed, hist[0].Status)
	assert.NotEmpty(t, hist[0].Error)

	// subscription keeps running
	h.emit(addr, buyTx("ok", addr, 100_000_000, 5))
	hist = h.waitHistory(t, 2)
	assert.Equal(t, EntrySuccess, hist[0].Status)
}

func TestCopy_StatsAndExecutionFailure(t *testing.T) {
	h := newHarness(t, nil)
	addr := newAddress(t)
	_, err := h.trader.AddTarget(context.Background(), TargetRequest{Address: addr})
	require.NoError(t, err)

	h.swapper.FailNext = 1
	h.emit(addr, buyTx("a", addr, 100_000_000, 5))
	h.emit(addr, buyTx("b", addr, 100_000_000, 5))
	h.waitHistory(t, 2)

	s := h.trader.Stats()
	assert.Equal(t, 2, s.TotalCopied)
	assert.Equal(t, 1, s.Successful)
	assert.Equal(t, 1, s.Failed)
	assert.InDelta(t, 50.0, s.SuccessRate, 1e-9)

	recs := h.records()
	require.Len(t, recs, 2)
	assert.Equal(t, domain.TradeStatusFailed, recs[0].Status)
	assert.Equal(t, domain.TradeStatusSuccess, recs[1].Status)
}

type denyGuard struct{}

func (denyGuard) CheckTrade(domain.Action, float64, string) error {
	return domain.Policy("safety.validate", "daily trade limit 50 reached")
}

func TestCopy_SafetyRejection(t *testing.T) {
	h := newHarness(t, denyGuard{})
	addr := newAddress(t)
	_, err := h.trader.AddTarget(context.Background(), TargetRequest{Address: addr})
	require.NoError(t, err)

	h.emit(addr, buyTx("a", addr, 100_000_000, 5))

	hist := h.waitHistory(t, 1)
	assert.Equal(t, EntryRejected, hist[0].Status)
	assert.Contains(t, hist[0].Error, "daily trade limit")
	assert.Zero(t, h.swapper.QuoteCount())
	assert.Equal(t, 1, h.trader.Stats().Rejected)
}

func TestCopy_DelayUsesClock(t *testing.T) {
	h := newHarness(t, nil)
	addr := newAddress(t)
	_, err := h.trader.AddTarget(context.Background(), TargetRequest{Address: addr, Delay: 30 * time.Second})
	require.NoError(t, err)

	h.emit(addr, buyTx("a", addr, 100_000_000, 5))
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, h.swapper.QuoteCount())

	require.Eventually(t, func() bool {
		h.clock.Add(30 * time.Second)
		return len(h.trader.History(0)) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPauseResumeRemoveStop(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	a, err := h.trader.AddTarget(ctx, TargetRequest{Address: newAddress(t)})
	require.NoError(t, err)
	b, err := h.trader.AddTarget(ctx, TargetRequest{Address: newAddress(t)})
	require.NoError(t, err)
	assert.Equal(t, 2, h.ws.Subscriptions())

	require.NoError(t, h.trader.PauseTarget(ctx, a.ID))
	assert.Equal(t, 1, h.ws.Subscriptions())

	require.NoError(t, h.trader.ResumeTarget(ctx, a.ID))
	assert.Equal(t, 2, h.ws.Subscriptions())

	require.NoError(t, h.trader.RemoveTarget(ctx, b.ID))
	assert.Equal(t, 1, h.ws.Subscriptions())
	assert.Len(t, h.trader.Targets(), 1)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(h.trader.RemoveTarget(ctx, b.ID)))

	h.trader.Stop()
	assert.False(t, h.trader.Running())
	assert.Zero(t, h.ws.Subscriptions())

	// restart subscribes active targets again
	require.NoError(t, h.trader.Start(ctx))
	assert.Equal(t, 1, h.ws.Subscriptions())
}

func TestStart_OutlivesCallerContext(t *testing.T) {
	ws := solstub.NewWSClient()
	rpc := solstub.NewRPCClient()
	sw := swapstub.NewSwapper(1)
	tr := NewTrader("acct-1", newAddress(t), ws, rpc, sw, nil, nil, clock.NewMock(), nil)
	t.Cleanup(tr.Stop)

	first := newAddress(t)
	_, err := tr.AddTarget(context.Background(), TargetRequest{Address: first})
	require.NoError(t, err)

	reqCtx, cancel := context.WithCancel(context.Background())
	require.NoError(t, tr.Start(reqCtx))
	cancel()

	rpc.AddTransaction(buyTx("sig-after-cancel", first, 100_000_000, 1_000))
	ws.Emit(first, solana.LogNotification{Signature: "sig-after-cancel"})
	require.Eventually(t, func() bool { return len(tr.History(0)) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, EntrySuccess, tr.History(0)[0].Status)

	// targets added from a later, already finished request are served too
	second := newAddress(t)
	addCtx, addCancel := context.WithCancel(context.Background())
	_, err = tr.AddTarget(addCtx, TargetRequest{Address: second})
	require.NoError(t, err)
	addCancel()

	rpc.AddTransaction(buyTx("sig-second", second, 100_000_000, 1_000))
	ws.Emit(second, solana.LogNotification{Signature: "sig-second"})
	require.Eventually(t, func() bool { return len(tr.History(0)) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, tr.Running())
	assert.Equal(t, 2, ws.Subscriptions())
	assert.Equal(t, 2, sw.ExecutedCount())
}

func TestStart_SubscribeError(t *testing.T) {
	h := newHarness(t, nil)
	h.trader.Stop()

	_, err := h.trader.AddTarget(context.Background(), TargetRequest{Address: newAddress(t)})
	require.NoError(t, err)

	h.ws.SubscribeErr = errors.New("connection refused")
	err = h.trader.Start(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsUpstream(err))
	assert.True(t, h.trader.Running())
}
