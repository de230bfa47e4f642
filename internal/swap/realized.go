package swap

import (
	"errors"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/solana"
)

// SubmittedError is returned when a transaction was sent but its outcome is
// unknown or failed. The signature may still land and must be kept.
type SubmittedError struct {
	Signature string
	Err       error
}

func (e *SubmittedError) Error() string {
	return e.Err.Error() + " (signature " + e.Signature + ")"
}

func (e *SubmittedError) Unwrap() error { return e.Err }

// SignatureOf returns the signature carried by err, if any.
func SignatureOf(err error) string {
	var se *SubmittedError
	if errors.As(err, &se) {
		return se.Signature
	}
	return ""
}

// Fill marks rec successful and copies the landed signature and amounts
// into it. SolAmount is taken from whichever leg is wrapped SOL.
func (r *Result) Fill(rec *domain.TradeRecord) {
	rec.Status = domain.TradeStatusSuccess
	rec.Signature = r.Signature
	rec.AmountIn = r.InAmount
	rec.AmountOut = r.OutAmount
	switch solana.WrappedSOLMint {
	case rec.InputMint:
		rec.SolAmount = float64(r.InAmount) / float64(solana.LamportsPerSOL)
	case rec.OutputMint:
		rec.SolAmount = float64(r.OutAmount) / float64(solana.LamportsPerSOL)
	}
}

// realizedAmounts reads what owner paid and received in a landed swap. ok is
// false when the balances do not show both legs moving the expected way.
func realizedAmounts(tx *solana.Transaction, owner string, quote *Quote) (in, out uint64, ok bool) {
	if tx == nil || tx.Meta == nil || tx.Failed() {
		return 0, 0, false
	}
	deltas := ownerDeltas(tx, owner)
	inDelta, outDelta := deltas[quote.InputMint], deltas[quote.OutputMint]
	if inDelta >= 0 || outDelta <= 0 {
		return 0, 0, false
	}
	in = uint64(-inDelta)
	// exact-in routes never spend more than quoted; the excess is rent for
	// accounts the transaction created
	if quote.InputMint == solana.WrappedSOLMint && in > quote.InAmount {
		in = quote.InAmount
	}
	return in, uint64(outDelta), true
}

// ownerDeltas returns owner's net change per mint. Native lamports, with the
// fee added back when owner paid it, count toward the wrapped SOL mint.
func ownerDeltas(tx *solana.Transaction, owner string) map[string]int64 {
	d := make(map[string]int64)
	for _, b := range tx.Meta.PreTokenBalances {
		if b.Owner == owner {
			d[b.Mint] -= int64(b.Amount)
		}
	}
	for _, b := range tx.Meta.PostTokenBalances {
		if b.Owner == owner {
			d[b.Mint] += int64(b.Amount)
		}
	}
	pre, post := tx.Meta.PreBalances, tx.Meta.PostBalances
	for i, k := range tx.AccountKeys() {
		if k != owner {
			continue
		}
		if i < len(pre) && i < len(post) {
			native := int64(post[i]) - int64(pre[i])
			if i == 0 {
				native += int64(tx.Meta.Fee)
			}
			d[solana.WrappedSOLMint] += native
		}
		break
	}
	return d
}
