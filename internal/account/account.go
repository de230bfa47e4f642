// Package account assembles the per-account trading context: signing key,
// safety manager, position book and the three strategy managers, all sharing
// one trade-recording path.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"solana-trade-engine/internal/bondingcurve"
	"solana-trade-engine/internal/copytrade"
	"solana-trade-engine/internal/dca"
	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/idhash"
	"solana-trade-engine/internal/notify"
	"solana-trade-engine/internal/observability"
	"solana-trade-engine/internal/portfolio"
	"solana-trade-engine/internal/price"
	"solana-trade-engine/internal/safety"
	"solana-trade-engine/internal/solana"
	"solana-trade-engine/internal/storage"
	"solana-trade-engine/internal/storage/memory"
	"solana-trade-engine/internal/swap"
	"solana-trade-engine/internal/trigger"
	"solana-trade-engine/internal/wallet"
)

// Deps are the shared collaborators an account is built from. One set is
// typically shared by every account of the process.
type Deps struct {
	RPC solana.RPCClient
	WS  solana.WSClient

	// Aggregator builds swap transactions. Ignored when Swapper is set.
	Aggregator swap.Aggregator
	// Swapper overrides the executor built from Aggregator.
	Swapper swap.Swapper

	// Prices must quote in SOL; it feeds portfolio valuation.
	Prices price.Feed
	// TriggerPrices feeds trigger evaluation. Defaults to Prices.
	TriggerPrices price.Feed

	// CurveBuilder enables the bonding-curve path when set.
	CurveBuilder *bondingcurve.TradeClient

	Trades       storage.TradeRecordStore // nil keeps records in memory
	TradesLabel  string                   // database label for query metrics
	Observations storage.PriceObservationStore
	Notifier     *notify.Notifier

	Clock  clock.Clock
	Logger *slog.Logger
}

// Settings are the per-account tunables.
type Settings struct {
	Safety         safety.Config
	Confirm        solana.ConfirmOptions
	Curve          bondingcurve.TraderConfig
	TriggerPoll    time.Duration
	TriggerVsToken string // denomination label stored with observations
	ValueInterval  time.Duration
}

// DefaultSettings returns the settings used when none are configured.
func DefaultSettings() Settings {
	return Settings{
		Safety:        safety.DefaultConfig(),
		Confirm:       solana.DefaultConfirmOptions(),
		TriggerPoll:   trigger.DefaultPollInterval,
		ValueInterval: time.Minute,
	}
}

// Account is the explicit per-account context. The caller owns any registry
// of accounts; Close releases everything the account started.
type Account struct {
	id     string
	wallet string

	Safety   *safety.Manager
	Book     *portfolio.Book
	DCA      *dca.Manager
	Copy     *copytrade.Trader
	Triggers *trigger.Manager
	// Curve is nil when Deps.CurveBuilder is not set.
	Curve *bondingcurve.Trader

	swapper     swap.Swapper
	guard       domain.TradeGuard
	valuer      *portfolio.Valuer
	trades      storage.TradeRecordStore
	tradesLabel string
	notifier    *notify.Notifier
	clock       clock.Clock
	logger      *slog.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Open decrypts the account's key with keys and builds the account.
func Open(ctx context.Context, keys *wallet.KeyStore, id, encryptedKey string, deps Deps, settings Settings) (*Account, error) {
	if keys == nil {
		return nil, errors.New("key store is required")
	}
	kp, err := keys.DecryptKey(id, encryptedKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt key for account %s: %w", id, err)
	}
	return New(ctx, id, kp, deps, settings)
}

// New builds the account around kp and starts its valuation loop.
func New(ctx context.Context, id string, kp *wallet.Keypair, deps Deps, settings Settings) (*Account, error) {
	if id == "" {
		return nil, domain.Invalid("account.new", "account id is required")
	}
	if kp == nil {
		return nil, domain.Invalid("account.new", "keypair is required")
	}
	if deps.RPC == nil || deps.WS == nil || deps.Prices == nil {
		return nil, domain.Invalid("account.new", "rpc, ws and price feed are required")
	}
	if deps.Swapper == nil && deps.Aggregator == nil {
		return nil, domain.Invalid("account.new", "aggregator or swapper is required")
	}

	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	trades := deps.Trades
	label := deps.TradesLabel
	if trades == nil {
		trades = memory.NewTradeRecordStore()
		label = "memory"
	}
	triggerPrices := deps.TriggerPrices
	if triggerPrices == nil {
		triggerPrices = deps.Prices
	}
	defaults := DefaultSettings()
	if settings.Confirm.PollInterval <= 0 || settings.Confirm.Timeout <= 0 {
		settings.Confirm = defaults.Confirm
	}
	if settings.TriggerPoll <= 0 {
		settings.TriggerPoll = defaults.TriggerPoll
	}
	if settings.ValueInterval <= 0 {
		settings.ValueInterval = defaults.ValueInterval
	}

	a := &Account{
		id:          id,
		wallet:      kp.PublicKey(),
		trades:      trades,
		tradesLabel: label,
		notifier:    deps.Notifier,
		clock:       clk,
		logger:      logger.With("component", "account", "account", id),
	}

	sender := swap.NewSender(deps.RPC, kp, settings.Confirm)
	a.swapper = deps.Swapper
	if a.swapper == nil {
		a.swapper = swap.NewExecutor(deps.Aggregator, sender, logger)
	}

	a.Book = portfolio.NewBook()
	a.Safety = safety.NewManager(id, settings.Safety, clk, logger)
	a.Safety.OnAlert(a.onAlert)
	a.guard = a.Safety.Guard(a.Book)

	a.DCA = dca.NewManager(id, a.swapper, a.guard, a.record, clk, logger)
	a.Copy = copytrade.NewTrader(id, a.wallet, deps.WS, deps.RPC, a.swapper, a.guard, a.record, clk, logger)

	opts := []trigger.Option{
		trigger.WithPollInterval(settings.TriggerPoll),
		trigger.WithClock(clk),
		trigger.WithLogger(logger),
	}
	if deps.Observations != nil {
		opts = append(opts, trigger.WithObservationSink(deps.Observations, settings.TriggerVsToken))
	}
	a.Triggers = trigger.NewManager(id, triggerPrices,
		trigger.SwapExecutor(id, a.swapper, a.guard, a.record, clk), opts...)

	if deps.CurveBuilder != nil {
		a.Curve = bondingcurve.NewTrader(id, bondingcurve.NewReader(deps.RPC), deps.CurveBuilder, sender,
			a.guard, a.record, settings.Curve, logger)
	}

	a.valuer = portfolio.NewValuer(deps.RPC, deps.Prices, a.wallet, a.Book, clk, logger)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.valuer.Run(runCtx, settings.ValueInterval, a.Safety.UpdatePortfolioValue)
	}()

	a.logger.Info("account ready", "wallet", a.wallet, "curve", a.Curve != nil)
	return a, nil
}

// ID returns the account ID.
func (a *Account) ID() string { return a.id }

// Wallet returns the account's signing address.
func (a *Account) Wallet() string { return a.wallet }

// Trades returns the account's most recent trade records, newest first.
func (a *Account) Trades(ctx context.Context, limit int) ([]*domain.TradeRecord, error) {
	return a.trades.GetByAccount(ctx, a.id, limit)
}

// TradesFor returns the records produced by one order, target or trigger.
func (a *Account) TradesFor(ctx context.Context, refID string) ([]*domain.TradeRecord, error) {
	return a.trades.GetByRef(ctx, a.id, refID)
}

// Close stops every strategy loop, subscription and timer of the account.
// It is safe to call more than once.
func (a *Account) Close() {
	a.closeOnce.Do(func() {
		a.cancel()
		a.Copy.Stop()
		a.Triggers.Close()
		a.DCA.Close()
		a.wg.Wait()
		a.Safety.Close()
		a.logger.Info("account closed")
	})
}

// record is the trade-recording callback handed to every strategy.
func (a *Account) record(ctx context.Context, rec domain.TradeRecord) {
	a.commit(ctx, rec)
}

// commit assigns the record's ID, persists it, updates the book and the
// safety counters, and publishes the event. It never fails the caller and
// returns the completed record.
func (a *Account) commit(ctx context.Context, rec domain.TradeRecord) domain.TradeRecord {
	if rec.AccountID == "" {
		rec.AccountID = a.id
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = a.clock.Now()
	}
	if rec.ID == "" {
		attempt := rec.Signature
		if attempt == "" {
			attempt = rec.Error
		}
		rec.ID = idhash.ComputeTradeID(rec.AccountID, string(rec.Source), rec.RefID, attempt, rec.Timestamp.UnixMilli())
	}

	start := time.Now()
	err := a.trades.Insert(context.WithoutCancel(ctx), &rec)
	observability.RecordDBQuery(a.tradesLabel, "insert_trade", time.Since(start).Seconds(), err)
	switch {
	case errors.Is(err, storage.ErrDuplicateKey):
		a.logger.Debug("trade already recorded", "trade_id", rec.ID)
		return rec
	case err != nil:
		a.logger.Error("persist trade failed", "trade_id", rec.ID, "error", err)
	}

	if rec.Succeeded() {
		pnl := a.Book.Apply(rec)
		a.Safety.RecordTrade(pnl, rec.SolAmount)
	}
	observability.RecordTrade(string(rec.Source), string(rec.Action), string(rec.Status), rec.SolAmount)
	a.notifier.Trade(ctx, rec)

	a.logger.Info("trade recorded",
		"trade_id", rec.ID,
		"source", rec.Source,
		"ref", rec.RefID,
		"action", rec.Action,
		"sol", rec.SolAmount,
		"status", rec.Status,
		"signature", rec.Signature,
	)
	return rec
}

func (a *Account) onAlert(alert safety.Alert) {
	level := slog.LevelInfo
	switch alert.Level {
	case safety.AlertWarning:
		level = slog.LevelWarn
	case safety.AlertCritical:
		level = slog.LevelError
	}
	a.logger.Log(context.Background(), level, "safety alert", "alert_id", alert.ID, "message", alert.Message)
	a.notifier.Alert(alert)
}
