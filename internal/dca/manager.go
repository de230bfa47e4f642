package dca

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/observability"
	"solana-trade-engine/internal/solana"
	"solana-trade-engine/internal/swap"
)

type order struct {
	Order
	cancel context.CancelFunc
	gen    int
}

// Manager owns one account's DCA orders. Each active order runs on its own
// ticker so one order's failures never affect another's cadence.
type Manager struct {
	accountID string
	swapper   swap.Swapper
	guard     domain.TradeGuard
	record    domain.TradeRecorder
	clock     clock.Clock
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	orders map[string]*order
}

// NewManager creates a manager. guard and record may be nil.
func NewManager(accountID string, swapper swap.Swapper, guard domain.TradeGuard, record domain.TradeRecorder,
	clk clock.Clock, logger *slog.Logger) *Manager {
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
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		accountID: accountID,
		swapper:   swapper,
		guard:     guard,
		record:    record,
		clock:     clk,
		logger:    logger.With("component", "dca", "account", accountID),
		ctx:       ctx,
		cancel:    cancel,
		orders:    make(map[string]*order),
	}
}

// Create registers an order and starts its loop. The first cycle runs
// immediately in the background.
func (m *Manager) Create(_ context.Context, req Request) (*Order, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	if m.ctx.Err() != nil {
		return nil, domain.InvalidState("dca.create", "manager closed")
	}

	now := m.clock.Now()
	o := &order{Order: Order{
		ID:        uuid.NewString(),
		Request:   req,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}}

	m.mu.Lock()
	m.orders[o.ID] = o
	m.startLocked(o)
	snap := o.snapshot(historyLimit)
	m.mu.Unlock()

	m.logger.Info("dca order created",
		"order_id", o.ID,
		"output_mint", req.OutputMint,
		"total_lamports", req.TotalAmountLamports,
		"per_cycle_lamports", req.AmountPerCycleLamports,
		"interval", req.Interval,
		"max_cycles", req.MaxCycles,
	)
	return snap, nil
}

// Pause stops an active order's loop.
func (m *Manager) Pause(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, err := m.getLocked("dca.pause", id)
	if err != nil {
		return err
	}
	if o.Status != StatusActive {
		return domain.InvalidState("dca.pause", "order %s is %s", id, o.Status)
	}
	m.stopLocked(o, StatusPaused)
	m.logger.Info("dca order paused", "order_id", id)
	return nil
}

// Resume restarts a paused order and clears its failure counter.
func (m *Manager) Resume(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, err := m.getLocked("dca.resume", id)
	if err != nil {
		return err
	}
	if o.Status != StatusPaused {
		return domain.InvalidState("dca.resume", "order %s is %s", id, o.Status)
	}
	if m.ctx.Err() != nil {
		return domain.InvalidState("dca.resume", "manager closed")
	}
	o.Status = StatusActive
	o.ConsecutiveFailures = 0
	o.UpdatedAt = m.clock.Now()
	m.startLocked(o)
	m.logger.Info("dca order resumed", "order_id", id)
	return nil
}

// Cancel permanently stops an order.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, err := m.getLocked("dca.cancel", id)
	if err != nil {
		return err
	}
	if o.Status == StatusCompleted || o.Status == StatusCancelled {
		return domain.InvalidState("dca.cancel", "order %s is %s", id, o.Status)
	}
	m.stopLocked(o, StatusCancelled)
	m.logger.Info("dca order cancelled", "order_id", id, "invested_lamports", o.InvestedLamports)
	return nil
}

// Info returns an order with its most recent history entries.
func (m *Manager) Info(id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, err := m.getLocked("dca.info", id)
	if err != nil {
		return nil, err
	}
	return o.snapshot(infoHistoryLimit), nil
}

// List returns all orders, oldest first.
func (m *Manager) List() []*Order {
	m.mu.Lock()
	out := make([]*Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o.snapshot(infoHistoryLimit))
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Close stops every loop and waits for in-flight cycles to return.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) getLocked(op, id string) (*order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, domain.NotFound(op, "dca order", id)
	}
	return o, nil
}

func (m *Manager) startLocked(o *order) {
	ctx, cancel := context.WithCancel(m.ctx)
	o.cancel = cancel
	o.gen++
	m.wg.Add(1)
	go m.run(ctx, o, o.gen)
}

func (m *Manager) stopLocked(o *order, status Status) {
	o.Status = status
	o.UpdatedAt = m.clock.Now()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}

func (m *Manager) run(ctx context.Context, o *order, gen int) {
	defer m.wg.Done()

	ticker := m.clock.Ticker(o.Interval)
	defer ticker.Stop()

	for m.runCycle(ctx, o, gen) {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runCycle executes one cycle and reports whether the loop should continue.
func (m *Manager) runCycle(ctx context.Context, o *order, gen int) bool {
	if ctx.Err() != nil {
		return false
	}

	m.mu.Lock()
	if o.gen != gen || o.Status != StatusActive {
		m.mu.Unlock()
		return false
	}
	if o.InvestedLamports >= o.TotalAmountLamports || o.CyclesCompleted >= o.MaxCycles {
		m.completeLocked(o)
		m.mu.Unlock()
		return false
	}
	remaining := o.RemainingLamports()
	if remaining == 0 || o.CyclesCompleted+o.CyclesInFlight >= o.MaxCycles {
		// a cycle from before a pause still holds the rest of the budget
		m.mu.Unlock()
		return true
	}
	amount := min(o.AmountPerCycleLamports, remaining)
	o.PendingLamports += amount
	o.CyclesInFlight++
	req := o.Request
	cycle := o.CyclesCompleted + o.CyclesInFlight
	m.mu.Unlock()

	solAmount := float64(amount) / float64(solana.LamportsPerSOL)
	if err := m.guard.CheckTrade(domain.ActionBuy, solAmount, req.OutputMint); err != nil {
		return m.skip(o, gen, CycleResult{Cycle: cycle, AmountIn: amount, Reason: err.Error()})
	}

	quote, err := m.swapper.Quote(ctx, swap.QuoteRequest{
		InputMint:   req.InputMint,
		OutputMint:  req.OutputMint,
		Amount:      amount,
		SlippageBps: req.SlippageBps,
	})
	if err != nil {
		return m.fail(ctx, o, gen, CycleResult{Cycle: cycle, AmountIn: amount}, err)
	}

	price := quote.ImpliedPrice(solDecimals, req.outputDecimals())
	if req.MaxPrice > 0 && price > req.MaxPrice {
		return m.skip(o, gen, CycleResult{
			Cycle:    cycle,
			AmountIn: amount,
			Price:    price,
			Reason:   "price above max",
		})
	}

	rec := domain.TradeRecord{
		AccountID:  m.accountID,
		Source:     domain.SourceDCA,
		RefID:      o.ID,
		Action:     domain.ActionBuy,
		InputMint:  req.InputMint,
		OutputMint: req.OutputMint,
		AmountIn:   amount,
		SolAmount:  solAmount,
	}

	res, err := m.swapper.Execute(ctx, quote)
	rec.Timestamp = m.clock.Now()
	if err != nil {
		rec.Status = domain.TradeStatusFailed
		rec.Error = err.Error()
		rec.Signature = swap.SignatureOf(err)
		m.record(ctx, rec)
		return m.fail(ctx, o, gen, CycleResult{Cycle: cycle, AmountIn: amount, Price: price}, err)
	}
	res.Fill(&rec)
	m.record(ctx, rec)

	m.mu.Lock()
	defer m.mu.Unlock()
	o.releaseLocked(amount)
	o.InvestedLamports += amount
	o.TokensReceived += res.OutAmount
	o.CyclesCompleted++
	o.ConsecutiveFailures = 0
	o.appendLocked(CycleResult{
		Cycle:     cycle,
		Outcome:   OutcomeSuccess,
		AmountIn:  amount,
		AmountOut: res.OutAmount,
		Price:     price,
		Signature: res.Signature,
		Timestamp: rec.Timestamp,
	})
	observability.RecordDCACycle(string(OutcomeSuccess))
	m.logger.Info("dca cycle executed",
		"order_id", o.ID,
		"cycle", cycle,
		"amount_in", amount,
		"amount_out", res.OutAmount,
		"signature", res.Signature,
	)

	if o.gen != gen || o.Status != StatusActive {
		return false
	}
	if o.InvestedLamports >= o.TotalAmountLamports || o.CyclesCompleted >= o.MaxCycles {
		m.completeLocked(o)
		return false
	}
	return true
}

func (m *Manager) skip(o *order, gen int, r CycleResult) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.releaseLocked(r.AmountIn)
	r.Outcome = OutcomeSkipped
	r.Timestamp = m.clock.Now()
	o.appendLocked(r)
	observability.RecordDCACycle(string(OutcomeSkipped))
	m.logger.Info("dca cycle skipped", "order_id", o.ID, "cycle", r.Cycle, "reason", r.Reason)
	return o.gen == gen && o.Status == StatusActive
}

func (m *Manager) fail(ctx context.Context, o *order, gen int, r CycleResult, err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.releaseLocked(r.AmountIn)

	// cancelled mid-cycle: not a failure of the order
	if ctx.Err() != nil {
		return false
	}

	r.Outcome = OutcomeFailed
	r.Reason = err.Error()
	r.Timestamp = m.clock.Now()
	o.appendLocked(r)
	o.ConsecutiveFailures++
	observability.RecordDCACycle(string(OutcomeFailed))
	m.logger.Warn("dca cycle failed",
		"order_id", o.ID,
		"cycle", r.Cycle,
		"consecutive_failures", o.ConsecutiveFailures,
		"error", err,
	)

	if o.gen != gen || o.Status != StatusActive {
		return false
	}
	if o.ConsecutiveFailures >= MaxConsecutiveFailures {
		m.stopLocked(o, StatusPaused)
		observability.RecordDCACycle("paused")
		m.logger.Warn("dca order paused after consecutive failures", "order_id", o.ID, "failures", o.ConsecutiveFailures)
		return false
	}
	return true
}

func (m *Manager) completeLocked(o *order) {
	m.stopLocked(o, StatusCompleted)
	m.logger.Info("dca order completed",
		"order_id", o.ID,
		"cycles", o.CyclesCompleted,
		"invested_lamports", o.InvestedLamports,
		"tokens_received", o.TokensReceived,
	)
}

// releaseLocked drops the reservation taken for one cycle.
func (o *order) releaseLocked(amount uint64) {
	o.PendingLamports -= amount
	o.CyclesInFlight--
}

func (o *order) appendLocked(r CycleResult) {
	o.History = append(o.History, r)
	if len(o.History) > historyLimit {
		o.History = o.History[len(o.History)-historyLimit:]
	}
	o.UpdatedAt = r.Timestamp
}

func (o *order) snapshot(historyN int) *Order {
	cp := o.Order
	h := o.History
	if len(h) > historyN {
		h = h[len(h)-historyN:]
	}
	cp.History = append([]CycleResult(nil), h...)
	return &cp
}
