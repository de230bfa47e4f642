// Package main prints an account's trade records as a table.
//
// Reads from postgres when storage.postgres_dsn is configured, otherwise from
// the sqlite file at storage.sqlite_path.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"solana-trade-engine/internal/config"
	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/metrics"
	"solana-trade-engine/internal/storage"
	pgstore "solana-trade-engine/internal/storage/postgres"
	"solana-trade-engine/internal/storage/sqlite"
)

func main() {
	configPath := flag.String("config", envOr("ENGINE_CONFIG", "engine.yaml"), "Path to YAML config (optional)")
	accountID := flag.String("account", "", "Account ID (default: account.id from config)")
	refID := flag.String("ref", "", "Only show trades of this DCA order, copy target or trigger")
	limit := flag.Int("limit", 50, "Maximum rows when -ref is not set (0 = all)")
	summary := flag.Bool("summary", false, "Print per-source aggregates instead of individual trades")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *accountID == "" {
		*accountID = cfg.Account.ID
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	runFn := run
	if *summary {
		runFn = func(ctx context.Context, cfg config.StorageConfig, accountID, _ string, _ int, out io.Writer) error {
			return runSummary(ctx, cfg, accountID, out)
		}
	}
	if err := runFn(ctx, cfg.Storage, *accountID, *refID, *limit, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.StorageConfig, accountID, refID string, limit int, out io.Writer) error {
	store, closeFn, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	var recs []*domain.TradeRecord
	if refID != "" {
		recs, err = store.GetByRef(ctx, accountID, refID)
	} else {
		recs, err = store.GetByAccount(ctx, accountID, limit)
	}
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	return render(out, recs)
}

func runSummary(ctx context.Context, cfg config.StorageConfig, accountID string, out io.Writer) error {
	store, closeFn, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	sums, err := metrics.SummarizeAccount(ctx, store, accountID)
	if errors.Is(err, metrics.ErrNoTrades) {
		_, err = fmt.Fprintln(out, "no trades")
		return err
	}
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(out)
	table.Header("Source", "Trades", "Success", "Buys", "Sells", "Tokens", "SOL In", "SOL Out", "Net SOL", "Median Size", "Max Outflow", "Fail Streak")
	for _, s := range sums {
		if err := table.Append(
			s.Source,
			strconv.Itoa(s.TotalTrades),
			fmt.Sprintf("%.1f%%", s.SuccessRate*100),
			strconv.Itoa(s.Buys),
			strconv.Itoa(s.Sells),
			strconv.Itoa(s.Tokens),
			sol(s.SolBought),
			sol(s.SolSold),
			sol(s.NetSol),
			sol(s.SizeMedian),
			sol(s.MaxOutflow),
			strconv.Itoa(s.MaxConsecutiveFailures),
		); err != nil {
			return err
		}
	}
	return table.Render()
}

func sol(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }

func openStore(ctx context.Context, cfg config.StorageConfig) (storage.TradeRecordStore, func(), error) {
	switch {
	case cfg.PostgresDSN != "":
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return pgstore.NewTradeRecordStore(pool), pool.Close, nil
	case cfg.SQLitePath != "":
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return sqlite.NewTradeRecordStore(db), func() { _ = db.Close() }, nil
	default:
		return nil, nil, errors.New("no persistent store configured (set POSTGRES_DSN or SQLITE_PATH)")
	}
}

func render(out io.Writer, recs []*domain.TradeRecord) error {
	if len(recs) == 0 {
		_, err := fmt.Fprintln(out, "no trades")
		return err
	}

	table := tablewriter.NewWriter(out)
	table.Header("Time", "Source", "Ref", "Action", "Mint", "SOL", "Amount In", "Amount Out", "Status", "Signature")
	var solIn, solOut float64
	for _, r := range recs {
		if r.Succeeded() {
			if r.Action == domain.ActionBuy {
				solIn += r.SolAmount
			} else {
				solOut += r.SolAmount
			}
		}
		status := string(r.Status)
		if r.Error != "" {
			status += ": " + truncate(r.Error, 40)
		}
		if err := table.Append(
			r.Timestamp.UTC().Format(time.RFC3339),
			string(r.Source),
			truncate(r.RefID, 12),
			string(r.Action),
			truncate(r.Mint(), 12),
			sol(r.SolAmount),
			strconv.FormatUint(r.AmountIn, 10),
			strconv.FormatUint(r.AmountOut, 10),
			status,
			truncate(r.Signature, 16),
		); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "%d trades, %.4f SOL spent, %.4f SOL received\n", len(recs), solIn, solOut)
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
