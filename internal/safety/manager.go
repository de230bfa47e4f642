// Package safety implements the per-account circuit breaker, loss limits
// and kill switch consulted before every trade.
package safety

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/observability"
)

const (
	maxAlerts   = 100
	maxTradeLog = 500
)

// Config holds the account's risk limits.
type Config struct {
	MaxSingleOrderSol   float64       `yaml:"max_single_order_sol"`
	MaxDailyTrades      int           `yaml:"max_daily_trades"`
	DailyLossLimitSol   float64       `yaml:"daily_loss_limit_sol"`
	MaxTotalExposureSol float64       `yaml:"max_total_exposure_sol"`
	MaxDrawdownPct      float64       `yaml:"max_drawdown_pct"`
	CooldownDuration    time.Duration `yaml:"cooldown_duration"`
}

// DefaultConfig returns conservative limits.
func DefaultConfig() Config {
	return Config{
		MaxSingleOrderSol:   1,
		MaxDailyTrades:      50,
		DailyLossLimitSol:   2,
		MaxTotalExposureSol: 10,
		MaxDrawdownPct:      25,
		CooldownDuration:    30 * time.Minute,
	}
}

// Rejection rules, used as metric labels.
const (
	RuleKillSwitch = "kill_switch"
	RuleCooldown   = "cooldown"
	RuleMaxOrder   = "max_order"
	RuleDailyCount = "daily_trades"
	RuleDailyLoss  = "daily_loss"
	RuleExposure   = "exposure"
)

// Decision is the outcome of ValidateTrade.
type Decision struct {
	Allowed bool
	Rule    string
	Reason  string
}

// AlertLevel grades an alert.
type AlertLevel string

// Alert levels
const (
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// Alert is a safety state transition worth surfacing to the user.
type Alert struct {
	ID        string
	AccountID string
	Level     AlertLevel
	Message   string
	Timestamp time.Time
}

// TradeLogEntry is one recorded trade outcome.
type TradeLogEntry struct {
	PnL       float64
	Amount    float64
	Timestamp time.Time
}

// State is a point-in-time snapshot.
type State struct {
	AccountID       string
	IsKilled        bool
	KillReason      string
	IsCooldown      bool
	CooldownUntil   time.Time
	DailyPnL        float64
	DailyTradeCount int
	PeakValue       float64
	CurrentValue    float64
	DrawdownPct     float64
	AlertCount      int
	TradeLogCount   int
	CanTrade        bool
	Config          Config
}

// PositionSource supplies current positions for exposure checks.
type PositionSource interface {
	Positions() []domain.Position
}

// Manager holds one account's safety state. All methods are safe for
// concurrent use by the strategies of that account.
type Manager struct {
	accountID string
	cfg       Config
	clock     clock.Clock
	logger    *slog.Logger

	mu            sync.Mutex
	killed        bool
	killReason    string
	cooldown      bool
	cooldownUntil time.Time
	dailyPnL      float64
	dailyTrades   int
	peak          float64
	current       float64
	alerts        []Alert
	trades        []TradeLogEntry
	pending       []Alert
	cooldownTimer *clock.Timer
	midnightTimer *clock.Timer
	hooks         []func(Alert)
	closed        bool
}

// NewManager creates a manager and arms the UTC-midnight reset timer.
func NewManager(accountID string, cfg Config, clk clock.Clock, logger *slog.Logger) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		accountID: accountID,
		cfg:       cfg,
		clock:     clk,
		logger:    logger.With("component", "safety", "account", accountID),
	}
	m.mu.Lock()
	m.armMidnight()
	m.mu.Unlock()
	return m
}

// OnAlert registers a hook invoked for every new alert, outside the lock.
func (m *Manager) OnAlert(fn func(Alert)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// ValidateTrade applies the rules in order: kill switch, cooldown, order
// size, daily trade count, daily loss (tripping the breaker), and for buys
// total exposure.
func (m *Manager) ValidateTrade(action domain.Action, solAmount float64, mint string, positions []domain.Position) Decision {
	m.mu.Lock()
	d := m.validateLocked(action, solAmount, positions)
	fired := m.drainLocked()
	m.mu.Unlock()
	m.emit(fired)

	if !d.Allowed {
		observability.RecordSafetyRejection(d.Rule)
		m.logger.Info("trade rejected",
			"action", action,
			"sol_amount", solAmount,
			"mint", mint,
			"rule", d.Rule,
			"reason", d.Reason,
		)
	}
	return d
}

func (m *Manager) validateLocked(action domain.Action, solAmount float64, positions []domain.Position) Decision {
	now := m.clock.Now()

	if m.killed {
		return reject(RuleKillSwitch, "kill switch active: %s", m.killReason)
	}
	if m.cooldown && now.Before(m.cooldownUntil) {
		return reject(RuleCooldown, "circuit breaker cooldown until %s", m.cooldownUntil.UTC().Format(time.RFC3339))
	}
	if solAmount > m.cfg.MaxSingleOrderSol {
		return reject(RuleMaxOrder, "order %.4f SOL exceeds max single order %.4f SOL", solAmount, m.cfg.MaxSingleOrderSol)
	}
	if m.dailyTrades >= m.cfg.MaxDailyTrades {
		return reject(RuleDailyCount, "daily trade limit %d reached", m.cfg.MaxDailyTrades)
	}
	if m.dailyPnL <= -m.cfg.DailyLossLimitSol {
		m.tripLocked(RuleDailyLoss, fmt.Sprintf("daily loss limit %.4f SOL reached (pnl %.4f)", m.cfg.DailyLossLimitSol, m.dailyPnL))
		return reject(RuleDailyLoss, "daily loss limit %.4f SOL reached", m.cfg.DailyLossLimitSol)
	}
	if action == domain.ActionBuy {
		exposure := solAmount
		for _, p := range positions {
			exposure += p.ValueSol
		}
		if exposure > m.cfg.MaxTotalExposureSol {
			return reject(RuleExposure, "total exposure %.4f SOL would exceed %.4f SOL", exposure, m.cfg.MaxTotalExposureSol)
		}
	}
	return Decision{Allowed: true}
}

func reject(rule, format string, args ...interface{}) Decision {
	return Decision{Rule: rule, Reason: fmt.Sprintf(format, args...)}
}

// Check is ValidateTrade returning a policy error on rejection.
func (m *Manager) Check(action domain.Action, solAmount float64, mint string, positions []domain.Position) error {
	d := m.ValidateTrade(action, solAmount, mint, positions)
	if !d.Allowed {
		return domain.Policy("safety.validate", d.Reason)
	}
	return nil
}

// Guard adapts the manager to domain.TradeGuard using src for positions.
func (m *Manager) Guard(src PositionSource) domain.TradeGuard {
	return &guard{m: m, src: src}
}

type guard struct {
	m   *Manager
	src PositionSource
}

func (g *guard) CheckTrade(action domain.Action, solAmount float64, mint string) error {
	var positions []domain.Position
	if g.src != nil {
		positions = g.src.Positions()
	}
	return g.m.Check(action, solAmount, mint, positions)
}

// RecordTrade adds a realized outcome to the daily counters and trips the
// breaker once the daily loss limit is breached.
func (m *Manager) RecordTrade(pnl, amount float64) {
	m.mu.Lock()
	m.dailyPnL += pnl
	m.dailyTrades++
	m.trades = append(m.trades, TradeLogEntry{PnL: pnl, Amount: amount, Timestamp: m.clock.Now()})
	if len(m.trades) > maxTradeLog {
		m.trades = m.trades[len(m.trades)-maxTradeLog:]
	}
	if m.dailyPnL <= -m.cfg.DailyLossLimitSol && !m.coolingLocked() {
		m.tripLocked(RuleDailyLoss, fmt.Sprintf("daily loss limit %.4f SOL reached (pnl %.4f)", m.cfg.DailyLossLimitSol, m.dailyPnL))
	}
	dailyPnL := m.dailyPnL
	fired := m.drainLocked()
	m.mu.Unlock()

	observability.SetDailyPnL(m.accountID, dailyPnL)
	m.emit(fired)
}

// UpdatePortfolioValue tracks the peak and trips the breaker when the
// drawdown from peak exceeds the limit.
func (m *Manager) UpdatePortfolioValue(value float64) {
	m.mu.Lock()
	m.current = value
	if value > m.peak {
		m.peak = value
	}
	if dd := m.drawdownLocked(); dd > m.cfg.MaxDrawdownPct && !m.coolingLocked() {
		m.tripLocked("drawdown", fmt.Sprintf("drawdown %.2f%% from peak %.4f SOL exceeds %.2f%%", dd, m.peak, m.cfg.MaxDrawdownPct))
	}
	fired := m.drainLocked()
	m.mu.Unlock()
	m.emit(fired)
}

// KillSwitch halts all trading until ResumeTrading.
func (m *Manager) KillSwitch(reason string) {
	m.mu.Lock()
	m.killed = true
	m.killReason = reason
	m.alertLocked(AlertCritical, "kill switch activated: "+reason)
	fired := m.drainLocked()
	m.mu.Unlock()

	observability.SetKillSwitch(m.accountID, true)
	m.logger.Warn("kill switch activated", "reason", reason)
	m.emit(fired)
}

// ResumeTrading clears the kill switch and any cooldown.
func (m *Manager) ResumeTrading() {
	m.mu.Lock()
	wasKilled, wasCooling := m.killed, m.coolingLocked()
	m.killed = false
	m.killReason = ""
	m.cooldown = false
	m.cooldownUntil = time.Time{}
	if m.cooldownTimer != nil {
		m.cooldownTimer.Stop()
		m.cooldownTimer = nil
	}
	m.alertLocked(AlertInfo, "trading resumed manually")
	fired := m.drainLocked()
	m.mu.Unlock()

	observability.SetKillSwitch(m.accountID, false)
	m.logger.Info("trading resumed", "was_killed", wasKilled, "was_cooldown", wasCooling)
	m.emit(fired)
}

// CanTrade reports whether neither the kill switch nor a cooldown is active.
func (m *Manager) CanTrade() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.killed && !m.coolingLocked()
}

// State returns a snapshot.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		AccountID:       m.accountID,
		IsKilled:        m.killed,
		KillReason:      m.killReason,
		IsCooldown:      m.coolingLocked(),
		CooldownUntil:   m.cooldownUntil,
		DailyPnL:        m.dailyPnL,
		DailyTradeCount: m.dailyTrades,
		PeakValue:       m.peak,
		CurrentValue:    m.current,
		DrawdownPct:     m.drawdownLocked(),
		AlertCount:      len(m.alerts),
		TradeLogCount:   len(m.trades),
		CanTrade:        !m.killed && !m.coolingLocked(),
		Config:          m.cfg,
	}
}

// Alerts returns up to limit most recent alerts, newest first. limit <= 0 returns all.
func (m *Manager) Alerts(limit int) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.alerts)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Alert, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.alerts[i])
	}
	return out
}

// TradeLog returns a copy of the recorded trade outcomes, oldest first.
func (m *Manager) TradeLog() []TradeLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TradeLogEntry(nil), m.trades...)
}

// Close stops both timers.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.cooldownTimer != nil {
		m.cooldownTimer.Stop()
		m.cooldownTimer = nil
	}
	if m.midnightTimer != nil {
		m.midnightTimer.Stop()
		m.midnightTimer = nil
	}
}

func (m *Manager) coolingLocked() bool {
	return m.cooldown && m.clock.Now().Before(m.cooldownUntil)
}

func (m *Manager) drawdownLocked() float64 {
	if m.peak <= 0 {
		return 0
	}
	return (m.peak - m.current) / m.peak * 100
}

func (m *Manager) tripLocked(cause, message string) {
	if m.closed {
		return
	}
	m.cooldown = true
	m.cooldownUntil = m.clock.Now().Add(m.cfg.CooldownDuration)
	if m.cooldownTimer != nil {
		m.cooldownTimer.Stop()
	}
	m.cooldownTimer = m.clock.AfterFunc(m.cfg.CooldownDuration, m.endCooldown)
	m.alertLocked(AlertCritical, "circuit breaker tripped: "+message)

	observability.RecordBreakerTrip(cause)
	m.logger.Warn("circuit breaker tripped", "cause", cause, "message", message, "until", m.cooldownUntil)
}

func (m *Manager) endCooldown() {
	m.mu.Lock()
	if m.closed || !m.cooldown || m.clock.Now().Before(m.cooldownUntil) {
		m.mu.Unlock()
		return
	}
	m.cooldown = false
	m.cooldownTimer = nil
	m.alertLocked(AlertInfo, "cooldown expired, trading re-enabled")
	fired := m.drainLocked()
	m.mu.Unlock()

	m.logger.Info("cooldown expired")
	m.emit(fired)
}

func (m *Manager) armMidnight() {
	if m.closed {
		return
	}
	now := m.clock.Now().UTC()
	next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	m.midnightTimer = m.clock.AfterFunc(next.Sub(now), m.resetDaily)
}

func (m *Manager) resetDaily() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	prevPnL, prevTrades := m.dailyPnL, m.dailyTrades
	m.dailyPnL = 0
	m.dailyTrades = 0
	m.alertLocked(AlertInfo, fmt.Sprintf("daily counters reset (pnl %.4f SOL, %d trades)", prevPnL, prevTrades))
	m.armMidnight()
	fired := m.drainLocked()
	m.mu.Unlock()

	observability.SetDailyPnL(m.accountID, 0)
	m.logger.Info("daily counters reset", "previous_pnl", prevPnL, "previous_trades", prevTrades)
	m.emit(fired)
}

func (m *Manager) alertLocked(level AlertLevel, message string) {
	a := Alert{
		ID:        uuid.NewString(),
		AccountID: m.accountID,
		Level:     level,
		Message:   message,
		Timestamp: m.clock.Now(),
	}
	m.alerts = append(m.alerts, a)
	if len(m.alerts) > maxAlerts {
		m.alerts = m.alerts[len(m.alerts)-maxAlerts:]
	}
	m.pending = append(m.pending, a)
}

func (m *Manager) drainLocked() []Alert {
	if len(m.pending) == 0 || len(m.hooks) == 0 {
		m.pending = nil
		return nil
	}
	fired := m.pending
	m.pending = nil
	return fired
}

func (m *Manager) emit(alerts []Alert) {
	if len(alerts) == 0 {
		return
	}
	m.mu.Lock()
	hooks := append([]func(Alert){}, m.hooks...)
	m.mu.Unlock()
	for _, a := range alerts {
		for _, h := range hooks {
			h(a)
		}
	}
}
