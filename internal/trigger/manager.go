package trigger

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/observability"
	"solana-trade-engine/internal/price"
	"solana-trade-engine/internal/storage"
)

// DefaultPollInterval is used when the manager is created with zero.
const DefaultPollInterval = 10 * time.Second

// Manager owns one account's triggers and the poll loop that evaluates them.
// The loop runs only while at least one trigger is active.
type Manager struct {
	accountID string
	feed      price.Feed
	exec      Executor
	sink      storage.PriceObservationStore
	vsToken   string
	interval  time.Duration
	clock     clock.Clock
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	triggers   map[string]*Trigger
	running    bool
	loopCancel context.CancelFunc
}

// Option configures a Manager.
type Option func(*Manager)

// WithObservationSink stores every polled price. vsToken labels the quote
// asset of the feed.
func WithObservationSink(sink storage.PriceObservationStore, vsToken string) Option {
	return func(m *Manager) {
		m.sink = sink
		m.vsToken = vsToken
	}
}

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(clk clock.Clock) Option {
	return func(m *Manager) { m.clock = clk }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a trigger manager.
func NewManager(accountID string, feed price.Feed, exec Executor, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		accountID: accountID,
		feed:      feed,
		exec:      exec,
		interval:  DefaultPollInterval,
		clock:     clock.New(),
		logger:    slog.Default(),
		ctx:       ctx,
		cancel:    cancel,
		triggers:  make(map[string]*Trigger),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "trigger", "account", accountID)
	return m
}

// Create registers a trigger and starts the poll loop if it is not running.
func (m *Manager) Create(_ context.Context, req Request) (*Trigger, error) {
	now := m.clock.Now()
	if err := req.validate(now); err != nil {
		return nil, err
	}
	if m.ctx.Err() != nil {
		return nil, domain.InvalidState("trigger.create", "manager closed")
	}

	t := &Trigger{
		ID:        uuid.NewString(),
		Mint:      req.Mint,
		Condition: req.Condition,
		Order:     req.Order,
		ExpiresAt: req.ExpiresAt,
		OneShot:   req.OneShot,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.triggers[t.ID] = t
	m.ensureLoopLocked()
	out := t.clone()
	m.mu.Unlock()

	m.logger.Info("trigger created",
		"trigger_id", t.ID,
		"mint", t.Mint,
		"condition", t.Condition.Kind(),
		"target", t.Condition.Target(),
		"one_shot", t.OneShot,
	)
	return out, nil
}

// Cancel marks an active or in-flight trigger cancelled. The record is kept.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.triggers[id]
	if !ok {
		return domain.NotFound("trigger.cancel", "trigger", id)
	}
	if t.Status != StatusActive && t.Status != StatusFired {
		return domain.InvalidState("trigger.cancel", "trigger %s is %s", id, t.Status)
	}
	t.Status = StatusCancelled
	t.UpdatedAt = m.clock.Now()
	m.logger.Info("trigger cancelled", "trigger_id", id)
	return nil
}

// StopAll marks every live trigger stopped and halts the poll loop.
func (m *Manager) StopAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	now := m.clock.Now()
	for _, t := range m.triggers {
		if t.Status == StatusActive || t.Status == StatusFired {
			t.Status = StatusStopped
			t.UpdatedAt = now
			n++
		}
	}
	m.stopLoopLocked()
	m.logger.Info("all triggers stopped", "count", n)
	return n
}

// Get returns a copy of one trigger.
func (m *Manager) Get(id string) (*Trigger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.triggers[id]
	if !ok {
		return nil, domain.NotFound("trigger.get", "trigger", id)
	}
	return t.clone(), nil
}

// List returns copies of all triggers, oldest first.
func (m *Manager) List() []*Trigger {
	m.mu.Lock()
	out := make([]*Trigger, 0, len(m.triggers))
	for _, t := range m.triggers {
		out = append(out, t.clone())
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Running reports whether the poll loop is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Close stops the loop and waits for an in-flight poll to return.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) ensureLoopLocked() {
	if m.running {
		return
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.running = true
	m.loopCancel = cancel
	m.wg.Add(1)
	go m.loop(ctx)
}

func (m *Manager) stopLoopLocked() {
	if !m.running {
		return
	}
	m.running = false
	m.loopCancel()
	m.loopCancel = nil
}

func (m *Manager) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := m.clock.Ticker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.poll(ctx) {
				return
			}
		}
	}
}

// poll runs one evaluation round and reports whether the loop should
// continue.
func (m *Manager) poll(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		return false
	}
	now := m.clock.Now()
	var ids []string
	seen := make(map[string]struct{})
	var mints []string
	for _, t := range m.triggers {
		if t.Status != StatusActive {
			continue
		}
		if t.ExpiresAt != nil && !now.Before(*t.ExpiresAt) {
			t.Status = StatusExpired
			t.UpdatedAt = now
			m.logger.Info("trigger expired", "trigger_id", t.ID)
			continue
		}
		ids = append(ids, t.ID)
		if _, ok := seen[t.Mint]; !ok {
			seen[t.Mint] = struct{}{}
			mints = append(mints, t.Mint)
		}
	}
	if len(ids) == 0 {
		m.stopIfIdleLocked()
		m.mu.Unlock()
		return false
	}
	m.mu.Unlock()

	sort.Strings(ids)
	sort.Strings(mints)
	observability.RecordTriggerPoll(m.accountID, len(ids))

	prices, err := m.feed.Prices(ctx, mints)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("price poll failed", "mints", len(mints), "error", err)
		}
		return ctx.Err() == nil
	}
	m.store(ctx, prices, now)

	for _, id := range ids {
		if ctx.Err() != nil {
			return false
		}
		m.evaluate(ctx, id, prices)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	for _, t := range m.triggers {
		if t.Status == StatusActive {
			return true
		}
	}
	m.stopIfIdleLocked()
	return false
}

func (m *Manager) evaluate(ctx context.Context, id string, prices map[string]float64) {
	m.mu.Lock()
	t, ok := m.triggers[id]
	if !ok || t.Status != StatusActive {
		m.mu.Unlock()
		return
	}
	cur, ok := prices[t.Mint]
	if !ok {
		m.mu.Unlock()
		return
	}
	fire := Evaluate(t.Condition, t.PrevPrice, cur)
	t.PrevPrice = &cur
	if !fire {
		m.mu.Unlock()
		return
	}
	t.Status = StatusFired
	t.UpdatedAt = m.clock.Now()
	snap := t.clone()
	m.mu.Unlock()

	m.logger.Info("trigger fired",
		"trigger_id", id,
		"mint", snap.Mint,
		"condition", snap.Condition.Kind(),
		"target", snap.Condition.Target(),
		"price", cur,
	)
	sig, err := m.exec(ctx, snap, cur)

	res := &Result{Success: err == nil, Signature: sig, Price: cur, At: m.clock.Now()}
	status := "success"
	if err != nil {
		res.Error = err.Error()
		status = "failed"
		m.logger.Warn("trigger execution failed", "trigger_id", id, "error", err)
	}
	observability.RecordTriggerFire(snap.Condition.Kind(), status)

	m.mu.Lock()
	defer m.mu.Unlock()
	t.LastResult = res
	t.FireCount++
	t.UpdatedAt = res.At
	if t.Status != StatusFired {
		return
	}
	if t.OneShot {
		t.Status = StatusCompleted
	} else {
		t.Status = StatusActive
	}
}

func (m *Manager) stopIfIdleLocked() {
	m.running = false
	if m.loopCancel != nil {
		m.loopCancel()
		m.loopCancel = nil
	}
}

func (m *Manager) store(ctx context.Context, prices map[string]float64, at time.Time) {
	if m.sink == nil || len(prices) == 0 {
		return
	}
	obs := make([]*domain.PriceObservation, 0, len(prices))
	for mint, p := range prices {
		obs = append(obs, &domain.PriceObservation{
			Mint:        mint,
			VsToken:     m.vsToken,
			Price:       p,
			Source:      "trigger",
			TimestampMs: at.UnixMilli(),
		})
	}
	sort.Slice(obs, func(i, j int) bool { return obs[i].Mint < obs[j].Mint })
	if err := m.sink.InsertBulk(ctx, obs); err != nil {
		m.logger.Warn("store price observations failed", "count", len(obs), "error", err)
	}
}
