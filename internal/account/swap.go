package account

import (
	"context"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/solana"
	"solana-trade-engine/internal/swap"
)

const defaultManualSlippageBps = 100

// SwapRequest is a one-off trade between SOL and Mint. Amount is lamports
// for buys and raw token units for sells.
type SwapRequest struct {
	Action      domain.Action
	Mint        string
	Amount      uint64
	SlippageBps int
}

func (r SwapRequest) quoteRequest() (swap.QuoteRequest, error) {
	if !r.Action.Valid() {
		return swap.QuoteRequest{}, domain.Invalid("account.swap", "action must be buy or sell")
	}
	if r.Mint == "" || r.Mint == solana.WrappedSOLMint {
		return swap.QuoteRequest{}, domain.Invalid("account.swap", "a non-SOL mint is required")
	}
	if r.Amount == 0 {
		return swap.QuoteRequest{}, domain.Invalid("account.swap", "amount must be positive")
	}
	slippage := r.SlippageBps
	if slippage == 0 {
		slippage = defaultManualSlippageBps
	}
	q := swap.QuoteRequest{
		InputMint:   solana.WrappedSOLMint,
		OutputMint:  r.Mint,
		Amount:      r.Amount,
		SlippageBps: slippage,
	}
	if r.Action == domain.ActionSell {
		q.InputMint, q.OutputMint = r.Mint, solana.WrappedSOLMint
	}
	return q, nil
}

// Quote prices req on the aggregated path without trading.
func (a *Account) Quote(ctx context.Context, req SwapRequest) (*swap.Quote, error) {
	q, err := req.quoteRequest()
	if err != nil {
		return nil, err
	}
	return a.swapper.Quote(ctx, q)
}

// Swap quotes and executes req after the safety check, and records the
// attempt as a manual trade.
func (a *Account) Swap(ctx context.Context, req SwapRequest) (*domain.TradeRecord, error) {
	q, err := req.quoteRequest()
	if err != nil {
		return nil, err
	}
	quote, err := a.swapper.Quote(ctx, q)
	if err != nil {
		return nil, err
	}

	lamports := quote.InAmount
	if req.Action == domain.ActionSell {
		lamports = quote.OutAmount
	}
	solAmount := float64(lamports) / float64(solana.LamportsPerSOL)
	if err := a.guard.CheckTrade(req.Action, solAmount, req.Mint); err != nil {
		return nil, err
	}

	rec := domain.TradeRecord{
		AccountID:  a.id,
		Source:     domain.SourceManual,
		Action:     req.Action,
		InputMint:  q.InputMint,
		OutputMint: q.OutputMint,
		AmountIn:   q.Amount,
		SolAmount:  solAmount,
	}
	res, err := a.swapper.Execute(ctx, quote)
	rec.Timestamp = a.clock.Now()
	if err != nil {
		rec.Status = domain.TradeStatusFailed
		rec.Error = err.Error()
		rec.Signature = swap.SignatureOf(err)
		rec = a.commit(ctx, rec)
		return &rec, err
	}
	res.Fill(&rec)
	rec = a.commit(ctx, rec)
	return &rec, nil
}
