package copytrade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/observability"
	"solana-trade-engine/internal/solana"
	"solana-trade-engine/internal/swap"
)

const (
	historyLimit = 500
	seenLimit    = 4096
	queueSize    = 256
)

// EntryStatus is the outcome of one copied event.
type EntryStatus string

// History entry statuses
const (
	EntrySuccess  EntryStatus = "success"
	EntryFailed   EntryStatus = "failed"
	EntryRejected EntryStatus = "rejected"
	EntrySkipped  EntryStatus = "skipped"
)

// HistoryEntry records one event that passed the filters.
type HistoryEntry struct {
	ID              string
	TargetID        string
	TargetAddress   string
	SourceSignature string
	Action          domain.Action
	Mint            string
	ObservedSol     float64
	MirroredSol     float64
	Signature       string
	Status          EntryStatus
	Error           string
	Timestamp       time.Time
}

// Stats aggregates copy outcomes since the trader was created.
type Stats struct {
	TotalCopied int
	Successful  int
	Failed      int
	Rejected    int
	SuccessRate float64 // percent of TotalCopied
}

type target struct {
	Target
	sub <-chan solana.LogNotification
}

type event struct {
	targetID string
	n        solana.LogNotification
}

// Trader watches targets over log subscriptions and mirrors their swaps.
// Every subscription forwards into one queue drained by a single consumer,
// so events are handled in arrival order.
type Trader struct {
	accountID string
	owner     string
	ws        solana.WSClient
	rpc       solana.RPCClient
	swapper   swap.Swapper
	guard     domain.TradeGuard
	record    domain.TradeRecorder
	clock     clock.Clock
	logger    *slog.Logger

	mu      sync.Mutex
	targets map[string]*target
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	queue   chan event
	wg      sync.WaitGroup

	history   []HistoryEntry
	seen      map[string]struct{}
	seenOrder []string
	stats     Stats
}

// NewTrader creates a copy trader for the wallet owner.
func NewTrader(accountID, owner string, ws solana.WSClient, rpc solana.RPCClient, swapper swap.Swapper,
	guard domain.TradeGuard, record domain.TradeRecorder, clk clock.Clock, logger *slog.Logger) *Trader {
	if guard == nil {
		guard = domain.AllowAll{}
	}
	if record == nil {
		record = func(context.Context, domain.TradeRecord) {}
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Trader{
		accountID: accountID,
		owner:     owner,
		ws:        ws,
		rpc:       rpc,
		swapper:   swapper,
		guard:     guard,
		record:    record,
		clock:     clk,
		logger:    logger.With("component", "copytrade", "account", accountID),
		targets:   make(map[string]*target),
		seen:      make(map[string]struct{}),
	}
}

// AddTarget adds a watched wallet; it is subscribed immediately when the
// trader is running.
func (t *Trader) AddTarget(ctx context.Context, req TargetRequest) (*Target, error) {
	tg, err := req.target()
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, existing := range t.targets {
		if existing.Address == tg.Address {
			return nil, domain.InvalidState("copytrade.add_target", "address %s already followed", tg.Address)
		}
	}
	tg.ID = uuid.NewString()
	tg.CreatedAt = t.clock.Now()
	entry := &target{Target: tg}
	t.targets[tg.ID] = entry

	if t.running {
		if err := t.subscribeLocked(ctx, entry); err != nil {
			delete(t.targets, tg.ID)
			return nil, err
		}
	}
	t.logger.Info("copy target added", "target_id", tg.ID, "address", tg.Address, "multiplier", tg.Multiplier)
	out := entry.Target
	return &out, nil
}

// RemoveTarget unsubscribes and forgets a target.
func (t *Trader) RemoveTarget(ctx context.Context, id string) error {
	t.mu.Lock()
	entry, ok := t.targets[id]
	if !ok {
		t.mu.Unlock()
		return domain.NotFound("copytrade.remove_target", "copy target", id)
	}
	delete(t.targets, id)
	sub := entry.sub
	entry.sub = nil
	t.mu.Unlock()

	t.unsubscribe(ctx, sub)
	t.logger.Info("copy target removed", "target_id", id, "address", entry.Address)
	return nil
}

// PauseTarget stops copying a target without forgetting it.
func (t *Trader) PauseTarget(ctx context.Context, id string) error {
	t.mu.Lock()
	entry, ok := t.targets[id]
	if !ok {
		t.mu.Unlock()
		return domain.NotFound("copytrade.pause_target", "copy target", id)
	}
	entry.Paused = true
	sub := entry.sub
	entry.sub = nil
	t.mu.Unlock()

	t.unsubscribe(ctx, sub)
	return nil
}

// ResumeTarget re-enables a paused target.
func (t *Trader) ResumeTarget(ctx context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.targets[id]
	if !ok {
		return domain.NotFound("copytrade.resume_target", "copy target", id)
	}
	entry.Paused = false
	if t.running && entry.sub == nil {
		return t.subscribeLocked(ctx, entry)
	}
	return nil
}

// Targets returns all targets, oldest first.
func (t *Trader) Targets() []Target {
	t.mu.Lock()
	out := make([]Target, 0, len(t.targets))
	for _, e := range t.targets {
		out = append(out, e.Target)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Start subscribes every active target and starts the consumer. It returns
// immediately; ctx bounds only the subscribe calls. Subscription failures are returned joined; targets that
// subscribed keep running.
func (t *Trader) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return nil
	}
	t.running = true
	// the consumer and forwarders live until Stop, not until the caller returns
	t.ctx, t.cancel = context.WithCancel(context.WithoutCancel(ctx))
	t.queue = make(chan event, queueSize)

	t.wg.Add(1)
	go t.consume(t.ctx, t.queue)

	var errs []error
	for _, entry := range t.targets {
		if entry.Paused {
			continue
		}
		if err := t.subscribeLocked(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	t.logger.Info("copy trader started", "targets", len(t.targets))
	return errors.Join(errs...)
}

// Stop unsubscribes all targets and waits for the consumer to exit.
func (t *Trader) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	var subs []<-chan solana.LogNotification
	for _, entry := range t.targets {
		if entry.sub != nil {
			subs = append(subs, entry.sub)
			entry.sub = nil
		}
	}
	cancel := t.cancel
	t.mu.Unlock()

	cancel()
	for _, sub := range subs {
		t.unsubscribe(context.Background(), sub)
	}
	t.wg.Wait()
	t.logger.Info("copy trader stopped")
}

// Running reports whether the trader is started.
func (t *Trader) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// History returns up to limit entries, newest first. limit <= 0 returns all.
func (t *Trader) History(limit int) []HistoryEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]HistoryEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, t.history[i])
	}
	return out
}

// Stats returns aggregate outcomes.
func (t *Trader) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stats
	if s.TotalCopied > 0 {
		s.SuccessRate = float64(s.Successful) / float64(s.TotalCopied) * 100
	}
	return s
}

func (t *Trader) subscribeLocked(ctx context.Context, entry *target) error {
	ch, err := t.ws.SubscribeLogs(ctx, solana.LogsFilter{Mentions: []string{entry.Address}})
	if err != nil {
		t.logger.Warn("subscribe failed", "target_id", entry.ID, "address", entry.Address, "error", err)
		return domain.Upstream("copytrade.subscribe", fmt.Errorf("%s: %w", entry.Address, err))
	}
	entry.sub = ch
	t.wg.Add(1)
	go t.forward(t.ctx, entry.ID, ch, t.queue)
	return nil
}

func (t *Trader) unsubscribe(ctx context.Context, sub <-chan solana.LogNotification) {
	if sub == nil {
		return
	}
	if err := t.ws.UnsubscribeLogs(ctx, sub); err != nil {
		t.logger.Warn("unsubscribe failed", "error", err)
	}
}

func (t *Trader) forward(ctx context.Context, targetID string, ch <-chan solana.LogNotification, queue chan<- event) {
	defer t.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			select {
			case queue <- event{targetID: targetID, n: n}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (t *Trader) consume(ctx context.Context, queue <-chan event) {
	defer t.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-queue:
			t.handle(ctx, ev)
		}
	}
}

// handle processes one notification. Errors end up in history, never in
// the caller.
func (t *Trader) handle(ctx context.Context, ev event) {
	sig := ev.n.Signature
	if ev.n.Err != nil || sig == "" {
		observability.RecordCopyEvent("failed_tx")
		return
	}

	t.mu.Lock()
	if !t.markSeenLocked(sig) {
		t.mu.Unlock()
		observability.RecordCopyEvent("duplicate")
		return
	}
	entry, ok := t.targets[ev.targetID]
	if !ok || entry.Paused {
		t.mu.Unlock()
		return
	}
	tg := entry.Target
	t.mu.Unlock()

	h := HistoryEntry{
		ID:              uuid.NewString(),
		TargetID:        tg.ID,
		TargetAddress:   tg.Address,
		SourceSignature: sig,
	}

	tx, err := t.rpc.GetTransaction(ctx, sig)
	if err == nil && tx == nil {
		err = errors.New("transaction not available")
	}
	if err != nil {
		t.finish(ctx, h, EntryFailed, domain.Upstream("copytrade.fetch", err))
		return
	}

	det := Detect(tx, tg.Address)
	if det == nil {
		observability.RecordCopyEvent("not_a_trade")
		t.logger.Debug("no trade detected", "target_id", tg.ID, "signature", sig)
		return
	}
	h.Action = det.Action
	h.Mint = det.Mint
	h.ObservedSol = det.SolAmount

	if reason := tg.filter(det); reason != "" {
		observability.RecordCopyEvent("filtered")
		t.logger.Debug("trade filtered", "target_id", tg.ID, "signature", sig, "reason", reason)
		return
	}

	if tg.Delay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-t.clock.After(tg.Delay):
		}
	}

	h.MirroredSol = tg.mirrored(det.SolAmount)
	if err := t.guard.CheckTrade(det.Action, h.MirroredSol, det.Mint); err != nil {
		t.finish(ctx, h, EntryRejected, err)
		return
	}

	req := swap.QuoteRequest{SlippageBps: tg.SlippageBps}
	if det.Action == domain.ActionBuy {
		req.InputMint = solana.WrappedSOLMint
		req.OutputMint = det.Mint
		req.Amount = uint64(h.MirroredSol * float64(solana.LamportsPerSOL))
	} else {
		amount, err := t.sellAmount(ctx, det, h.MirroredSol)
		if err != nil {
			t.finish(ctx, h, EntryFailed, err)
			return
		}
		if amount == 0 {
			t.finish(ctx, h, EntrySkipped, errors.New("no balance to sell"))
			return
		}
		req.InputMint = det.Mint
		req.OutputMint = solana.WrappedSOLMint
		req.Amount = amount
	}

	rec := domain.TradeRecord{
		AccountID:  t.accountID,
		Source:     domain.SourceCopy,
		RefID:      tg.ID,
		Action:     det.Action,
		InputMint:  req.InputMint,
		OutputMint: req.OutputMint,
		AmountIn:   req.Amount,
		SolAmount:  h.MirroredSol,
	}

	quote, err := t.swapper.Quote(ctx, req)
	if err != nil {
		t.finish(ctx, h, EntryFailed, err)
		return
	}
	res, err := t.swapper.Execute(ctx, quote)
	rec.Timestamp = t.clock.Now()
	if err != nil {
		rec.Status = domain.TradeStatusFailed
		rec.Error = err.Error()
		rec.Signature = swap.SignatureOf(err)
		t.record(ctx, rec)
		t.finish(ctx, h, EntryFailed, err)
		return
	}

	res.Fill(&rec)
	t.record(ctx, rec)

	h.Signature = res.Signature
	t.finish(ctx, h, EntrySuccess, nil)
}

// sellAmount scales the target's sold quantity by mirrored/observed and caps
// it at the account's own balance.
func (t *Trader) sellAmount(ctx context.Context, det *Detection, mirroredSol float64) (uint64, error) {
	bal, err := t.rpc.GetTokenBalance(ctx, t.owner, det.Mint)
	if err != nil {
		return 0, domain.Upstream("copytrade.balance", err)
	}
	if bal == nil || bal.Amount == 0 {
		return 0, nil
	}
	amount := det.TokenAmount()
	if det.SolAmount > 0 {
		amount = uint64(float64(amount) * mirroredSol / det.SolAmount)
	}
	if amount > bal.Amount {
		amount = bal.Amount
	}
	return amount, nil
}

func (t *Trader) finish(ctx context.Context, h HistoryEntry, status EntryStatus, err error) {
	h.Status = status
	h.Timestamp = t.clock.Now()
	if err != nil {
		h.Error = err.Error()
	}

	t.mu.Lock()
	t.history = append(t.history, h)
	if len(t.history) > historyLimit {
		t.history = t.history[len(t.history)-historyLimit:]
	}
	switch status {
	case EntrySuccess:
		t.stats.TotalCopied++
		t.stats.Successful++
		if entry, ok := t.targets[h.TargetID]; ok {
			entry.TotalCopied++
		}
	case EntryFailed:
		t.stats.TotalCopied++
		t.stats.Failed++
	case EntryRejected:
		t.stats.Rejected++
	}
	t.mu.Unlock()

	observability.RecordCopyEvent(string(status))
	if status == EntrySuccess {
		t.logger.Info("trade copied",
			"target_id", h.TargetID,
			"source_signature", h.SourceSignature,
			"action", h.Action,
			"mint", h.Mint,
			"mirrored_sol", h.MirroredSol,
			"signature", h.Signature,
		)
		return
	}
	if ctx.Err() == nil {
		t.logger.Warn("copy not executed",
			"target_id", h.TargetID,
			"source_signature", h.SourceSignature,
			"status", status,
			"error", h.Error,
		)
	}
}

func (t *Trader) markSeenLocked(sig string) bool {
	if _, ok := t.seen[sig]; ok {
		return false
	}
	t.seen[sig] = struct{}{}
	t.seenOrder = append(t.seenOrder, sig)
	if len(t.seenOrder) > seenLimit {
		delete(t.seen, t.seenOrder[0])
		t.seenOrder = t.seenOrder[1:]
	}
	return true
}
