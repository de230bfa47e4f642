package swap

import (
	"context"
	"log/slog"
	"time"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/observability"
)

// Swapper is the aggregated swap path consumed by the trading strategies.
type Swapper interface {
	Quote(ctx context.Context, req QuoteRequest) (*Quote, error)
	Execute(ctx context.Context, quote *Quote) (*Result, error)
}

// Aggregator prices routes and builds unsigned swap transactions.
type Aggregator interface {
	Quote(ctx context.Context, req QuoteRequest) (*Quote, error)
	SwapTransaction(ctx context.Context, quote *Quote, userPublicKey string) ([]byte, error)
}

// Result describes a landed swap.
type Result struct {
	Signature      string
	InAmount       uint64
	OutAmount      uint64
	PriceImpactPct float64
	// Estimated is set when the landed transaction could not be read and
	// the amounts are the quoted ones.
	Estimated bool
}

// Executor implements Swapper on top of an Aggregator and a Sender.
type Executor struct {
	agg    Aggregator
	sender *Sender
	logger *slog.Logger
}

var _ Swapper = (*Executor)(nil)

// NewExecutor creates a swap executor.
func NewExecutor(agg Aggregator, sender *Sender, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		agg:    agg,
		sender: sender,
		logger: logger.With("component", "swap"),
	}
}

// Quote validates req and prices it.
func (e *Executor) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if req.InputMint == "" || req.OutputMint == "" {
		return nil, domain.Invalid("swap.quote", "input and output mint are required")
	}
	if req.InputMint == req.OutputMint {
		return nil, domain.Invalid("swap.quote", "input and output mint must differ")
	}
	if req.Amount == 0 {
		return nil, domain.Invalid("swap.quote", "amount must be positive")
	}
	if req.SlippageBps < 0 || req.SlippageBps > 10000 {
		return nil, domain.Invalid("swap.quote", "slippage %d bps out of range", req.SlippageBps)
	}

	quote, err := e.agg.Quote(ctx, req)
	if err != nil {
		return nil, domain.Upstream("swap.quote", err)
	}
	return quote, nil
}

// Execute builds, signs, submits and confirms the swap for quote. Amounts
// are read back from the confirmed transaction. A failure after submission
// carries the signature in a *SubmittedError.
func (e *Executor) Execute(ctx context.Context, quote *Quote) (*Result, error) {
	start := time.Now()

	unsigned, err := e.agg.SwapTransaction(ctx, quote, e.sender.PublicKey())
	if err != nil {
		observability.RecordSwap("aggregator", "build", time.Since(start), err)
		return nil, domain.Upstream("swap.execute", err)
	}

	sig, err := e.sender.Send(ctx, unsigned)
	if err != nil {
		observability.RecordSwap("aggregator", "submit", time.Since(start), err)
		e.logger.Warn("swap failed",
			"input_mint", quote.InputMint,
			"output_mint", quote.OutputMint,
			"signature", sig,
			"error", err,
		)
		if sig != "" {
			err = &SubmittedError{Signature: sig, Err: err}
		}
		return nil, domain.Upstream("swap.execute", err)
	}
	observability.RecordSwap("aggregator", "", time.Since(start), nil)

	res := &Result{
		Signature:      sig,
		InAmount:       quote.InAmount,
		OutAmount:      quote.OutAmount,
		PriceImpactPct: quote.PriceImpactPct,
		Estimated:      true,
	}
	tx, err := e.sender.rpc.GetTransaction(ctx, sig)
	if err == nil {
		if in, out, ok := realizedAmounts(tx, e.sender.PublicKey(), quote); ok {
			res.InAmount, res.OutAmount, res.Estimated = in, out, false
		}
	}
	if res.Estimated {
		e.logger.Warn("realized amounts unavailable, using quote", "signature", sig, "error", err)
	}

	e.logger.Info("swap confirmed",
		"signature", sig,
		"input_mint", quote.InputMint,
		"output_mint", quote.OutputMint,
		"in_amount", res.InAmount,
		"out_amount", res.OutAmount,
		"quoted_out", quote.OutAmount,
	)
	return res, nil
}
