// Package main runs the trade engine for one configured account:
// DCA orders, copy trading and price triggers behind the shared safety layer.
// Strategy management is driven by the route layer through the account API;
// this binary owns process lifecycle, storage, publishing and metrics.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"solana-trade-engine/internal/account"
	"solana-trade-engine/internal/bondingcurve"
	"solana-trade-engine/internal/config"
	"solana-trade-engine/internal/logger"
	"solana-trade-engine/internal/notify"
	"solana-trade-engine/internal/observability"
	"solana-trade-engine/internal/price"
	"solana-trade-engine/internal/solana"
	"solana-trade-engine/internal/storage"
	chstore "solana-trade-engine/internal/storage/clickhouse"
	"solana-trade-engine/internal/storage/memory"
	"solana-trade-engine/internal/storage/migrations"
	pgstore "solana-trade-engine/internal/storage/postgres"
	"solana-trade-engine/internal/storage/sqlite"
	"solana-trade-engine/internal/swap"
	"solana-trade-engine/internal/wallet"
)

func main() {
	configPath := flag.String("config", envOr("ENGINE_CONFIG", "engine.yaml"), "Path to YAML config (optional)")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for /metrics and /health (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}

	log, closer, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("engine stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func run(cfg *config.Config, log *slog.Logger) error {
	if cfg.Account.EncryptedKey == "" {
		return errors.New("account.encrypted_key (or ACCOUNT_ENCRYPTED_KEY) is required")
	}
	if cfg.Solana.WSEndpoint == "" {
		return errors.New("solana.ws_endpoint (or SOLANA_WS_ENDPOINT) is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go handleSignals(cancel, done, log)

	rpc := solana.NewHTTPClient(cfg.Solana.RPCEndpoint,
		solana.WithTimeout(cfg.Solana.Timeout),
		solana.WithMaxRetries(cfg.Solana.MaxRetries),
		solana.WithCommitment(cfg.Solana.Commitment),
		solana.WithObserver(observability.RecordRPCCall),
	)

	wsCfg := solana.DefaultWSConfig()
	wsCfg.Commitment = cfg.Solana.Commitment
	wsCfg.Logger = log
	ws, err := solana.NewWSClient(ctx, cfg.Solana.WSEndpoint, &wsCfg)
	if err != nil {
		return fmt.Errorf("connect websocket: %w", err)
	}
	defer ws.Close()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	notifier, err := openNotifier(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer notifier.Close()

	keys, err := wallet.NewKeyStore(cfg.Account.WalletSecret)
	if err != nil {
		return fmt.Errorf("init key store: %w", err)
	}

	deps := account.Deps{
		RPC:           rpc,
		WS:            ws,
		Aggregator:    swap.NewJupiterClient(jupiterOptions(cfg.Jupiter)...),
		Prices:        price.NewClient(priceOptions(cfg.Jupiter, solana.WrappedSOLMint)...),
		TriggerPrices: price.NewClient(priceOptions(cfg.Jupiter, "")...),
		CurveBuilder:  bondingcurve.NewTradeClient(cfg.Pump.TradeURL, cfg.Pump.RateLimit),
		Trades:        st.trades,
		TradesLabel:   st.label,
		Observations:  st.observations,
		Notifier:      notifier,
		Logger:        log,
	}
	settings := account.Settings{
		Safety: cfg.Safety,
		Confirm: solana.ConfirmOptions{
			PollInterval: cfg.Solana.ConfirmPoll,
			Timeout:      cfg.Solana.ConfirmTimeout,
		},
		Curve: bondingcurve.TraderConfig{
			FeeBps:         cfg.Pump.FeeBps,
			SlippageBps:    cfg.Pump.SlippageBps,
			PriorityFeeSol: cfg.Pump.PriorityFeeSol,
		},
		TriggerPoll:    cfg.Trigger.PollInterval,
		TriggerVsToken: "USD",
		ValueInterval:  cfg.Portfolio.ValueInterval,
	}

	acct, err := account.Open(ctx, keys, cfg.Account.ID, cfg.Account.EncryptedKey, deps, settings)
	if err != nil {
		return err
	}
	defer acct.Close()

	stopUptime := make(chan struct{})
	defer close(stopUptime)
	go observability.TrackUptime(15*time.Second, stopUptime)

	srv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           newMux(rpc, st, acct),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("http server listening", "addr", cfg.Metrics.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "error", err)
		}
	}()

	log.Info("engine running", "account", acct.ID(), "wallet", acct.Wallet(), "trades", st.label)
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	return ctx.Err()
}

// handleSignals cancels on the first SIGINT/SIGTERM and forces exit on a
// second signal or when shutdown takes longer than 30s.
func handleSignals(cancel context.CancelFunc, done <-chan struct{}, log *slog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	case <-done:
		return
	}

	select {
	case sig := <-sigCh:
		log.Warn("received second signal, forcing exit", "signal", sig.String())
		os.Exit(1)
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timed out after 30s, forcing exit")
		os.Exit(1)
	case <-done:
	}
}

type stores struct {
	trades       storage.TradeRecordStore
	label        string
	observations storage.PriceObservationStore
	pg           *pgstore.Pool
	lite         *sqlite.DB
	ch           *chstore.Conn
}

func openStores(ctx context.Context, cfg *config.Config, log *slog.Logger) (*stores, error) {
	st := &stores{}

	switch {
	case cfg.Storage.PostgresDSN != "":
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN, pgstore.WithMaxConns(cfg.Storage.PostgresMaxConns))
		if err != nil {
			return nil, err
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		st.pg = pool
		st.trades = pgstore.NewTradeRecordStore(pool)
		st.label = "postgres"
	case cfg.Storage.SQLitePath != "":
		db, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		st.lite = db
		st.trades = sqlite.NewTradeRecordStore(db)
		st.label = "sqlite"
	default:
		log.Warn("no trade store configured, records are kept in memory only")
		st.trades = memory.NewTradeRecordStore()
		st.label = "memory"
	}

	if cfg.Trigger.RecordPrices {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			st.close()
			return nil, err
		}
		st.ch = conn
		st.observations = chstore.NewPriceObservationStore(conn)
	}
	return st, nil
}

func (s *stores) healthy(ctx context.Context) error {
	var errs []error
	if s.pg != nil {
		errs = append(errs, s.pg.Healthy(ctx))
	}
	if s.lite != nil {
		errs = append(errs, s.lite.PingContext(ctx))
	}
	if s.ch != nil {
		errs = append(errs, s.ch.Ping(ctx))
	}
	return errors.Join(errs...)
}

func (s *stores) close() {
	if s.pg != nil {
		s.pg.Close()
	}
	if s.lite != nil {
		_ = s.lite.Close()
	}
	if s.ch != nil {
		_ = s.ch.Close()
	}
}

func openNotifier(ctx context.Context, cfg *config.Config, log *slog.Logger) (*notify.Notifier, error) {
	var pub notify.Publisher
	switch cfg.Publish.Driver {
	case config.PublishRedis:
		p, err := notify.NewRedisPublisher(ctx, cfg.Publish.Redis)
		if err != nil {
			return nil, err
		}
		pub = p
	case config.PublishAMQP:
		p, err := notify.NewAMQPPublisher(cfg.Publish.AMQP)
		if err != nil {
			return nil, err
		}
		pub = p
	}
	return notify.NewNotifier(pub, log), nil
}

func jupiterOptions(c config.JupiterConfig) []swap.JupiterOption {
	var opts []swap.JupiterOption
	if c.QuoteURL != "" || c.SwapURL != "" {
		opts = append(opts, swap.WithEndpoints(c.QuoteURL, c.SwapURL))
	}
	if c.APIKey != "" {
		opts = append(opts, swap.WithAPIKey(c.APIKey))
	}
	if c.RateLimit > 0 {
		opts = append(opts, swap.WithRateLimit(c.RateLimit, max(c.Burst, 1)))
	}
	if c.PriorityFeeLamports > 0 {
		opts = append(opts, swap.WithPriorityFee(c.PriorityFeeLamports))
	}
	return opts
}

func priceOptions(c config.JupiterConfig, vsToken string) []price.Option {
	var opts []price.Option
	if c.PriceURL != "" {
		opts = append(opts, price.WithURL(c.PriceURL))
	}
	if c.APIKey != "" {
		opts = append(opts, price.WithAPIKey(c.APIKey))
	}
	if c.RateLimit > 0 {
		opts = append(opts, price.WithRateLimit(c.RateLimit, max(c.Burst, 1)))
	}
	if vsToken != "" {
		opts = append(opts, price.WithVsToken(vsToken))
	}
	return opts
}

func newMux(rpc solana.RPCClient, st *stores, acct *account.Account) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := map[string]any{"status": "ok"}
		code := http.StatusOK
		if slot, err := rpc.GetSlot(ctx); err != nil {
			status["rpc"] = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			status["slot"] = slot
		}
		if err := st.healthy(ctx); err != nil {
			status["storage"] = err.Error()
			code = http.StatusServiceUnavailable
		}
		if code != http.StatusOK {
			status["status"] = "degraded"
		}
		writeJSON(w, code, status)
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"account":  acct.ID(),
			"wallet":   acct.Wallet(),
			"safety":   acct.Safety.State(),
			"holdings": acct.Book.Holdings(),
			"dca":      acct.DCA.List(),
			"copy":     acct.Copy.Stats(),
			"triggers": acct.Triggers.List(),
		})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
