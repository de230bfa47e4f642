package copytrade

import (
	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/solana"
)

// Detection is a trade inferred from a wallet's balance changes.
type Detection struct {
	Action      domain.Action
	Mint        string
	TokenDelta  int64   // raw units, signed
	Decimals    int
	NativeDelta int64   // lamports, signed; includes the fee when the wallet paid it
	SolAmount   float64 // |NativeDelta| in SOL
}

// TokenAmount returns |TokenDelta|.
func (d *Detection) TokenAmount() uint64 {
	if d.TokenDelta < 0 {
		return uint64(-d.TokenDelta)
	}
	return uint64(d.TokenDelta)
}

// Detect classifies tx from the point of view of address. The token with the
// largest absolute balance change is the traded asset; the trade is a buy
// when that token increased while SOL decreased, a sell for the inverse.
// Anything else (including multi-hop routes where the signs disagree)
// returns nil.
func Detect(tx *solana.Transaction, address string) *Detection {
	if tx == nil || tx.Meta == nil || tx.Failed() {
		return nil
	}

	idx := -1
	for i, k := range tx.AccountKeys() {
		if k == address {
			idx = i
			break
		}
	}
	if idx < 0 || idx >= len(tx.Meta.PreBalances) || idx >= len(tx.Meta.PostBalances) {
		return nil
	}
	native := int64(tx.Meta.PostBalances[idx]) - int64(tx.Meta.PreBalances[idx])

	type change struct {
		delta    int64
		decimals int
	}
	changes := make(map[string]*change)
	var order []string
	add := func(b solana.TokenBalance, sign int64) {
		if b.Owner != address || b.Mint == solana.WrappedSOLMint {
			return
		}
		c, ok := changes[b.Mint]
		if !ok {
			c = &change{decimals: b.Decimals}
			changes[b.Mint] = c
			order = append(order, b.Mint)
		}
		c.delta += sign * int64(b.Amount)
	}
	for _, b := range tx.Meta.PreTokenBalances {
		add(b, -1)
	}
	for _, b := range tx.Meta.PostTokenBalances {
		add(b, 1)
	}

	var primary string
	var best *change
	for _, mint := range order {
		c := changes[mint]
		if c.delta == 0 {
			continue
		}
		if best == nil || abs(c.delta) > abs(best.delta) {
			primary, best = mint, c
		}
	}
	if best == nil {
		return nil
	}

	var action domain.Action
	switch {
	case best.delta > 0 && native < 0:
		action = domain.ActionBuy
	case best.delta < 0 && native > 0:
		action = domain.ActionSell
	default:
		return nil
	}

	return &Detection{
		Action:      action,
		Mint:        primary,
		TokenDelta:  best.delta,
		Decimals:    best.decimals,
		NativeDelta: native,
		SolAmount:   float64(abs(native)) / float64(solana.LamportsPerSOL),
	}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
