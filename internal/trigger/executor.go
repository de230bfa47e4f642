package trigger

import (
	"context"

	"github.com/benbjohnson/clock"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/solana"
	"solana-trade-engine/internal/swap"
)

const defaultSlippageBps = 100

// Executor runs a fired trigger's order and returns the transaction signature.
type Executor func(ctx context.Context, t *Trigger, price float64) (string, error)

// SwapExecutor returns an Executor that quotes the order, checks the SOL side
// against guard, executes it and reports the attempt to record.
func SwapExecutor(accountID string, swapper swap.Swapper, guard domain.TradeGuard, record domain.TradeRecorder, clk clock.Clock) Executor {
	if guard == nil {
		guard = domain.AllowAll{}
	}
	if record == nil {
		record = func(context.Context, domain.TradeRecord) {}
	}
	if clk == nil {
		clk = clock.New()
	}
	return func(ctx context.Context, t *Trigger, _ float64) (string, error) {
		o := t.Order
		slippage := o.SlippageBps
		if slippage == 0 {
			slippage = defaultSlippageBps
		}
		quote, err := swapper.Quote(ctx, swap.QuoteRequest{
			InputMint:   o.InputMint,
			OutputMint:  o.OutputMint,
			Amount:      o.Amount,
			SlippageBps: slippage,
		})
		if err != nil {
			return "", err
		}

		lamports := quote.InAmount
		if o.Action == domain.ActionSell {
			lamports = quote.OutAmount
		}
		solAmount := float64(lamports) / float64(solana.LamportsPerSOL)
		if err := guard.CheckTrade(o.Action, solAmount, t.Mint); err != nil {
			return "", err
		}

		rec := domain.TradeRecord{
			AccountID:  accountID,
			Source:     domain.SourceTrigger,
			RefID:      t.ID,
			Action:     o.Action,
			InputMint:  o.InputMint,
			OutputMint: o.OutputMint,
			AmountIn:   o.Amount,
			SolAmount:  solAmount,
		}
		res, err := swapper.Execute(ctx, quote)
		rec.Timestamp = clk.Now()
		if err != nil {
			rec.Status = domain.TradeStatusFailed
			rec.Error = err.Error()
			rec.Signature = swap.SignatureOf(err)
			record(ctx, rec)
			return "", err
		}
		res.Fill(&rec)
		record(ctx, rec)
		return res.Signature, nil
	}
}
