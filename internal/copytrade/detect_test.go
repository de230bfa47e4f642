package copytrade

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/solana"
)

const (
	watched = "Watched111111111111111111111111111111111111"
	other   = "Other11111111111111111111111111111111111111"
	mintA   = "MintA111111111111111111111111111111111111111"
	mintB   = "MintB111111111111111111111111111111111111111"
)

func swapTx(sig string, address string, preLamports, postLamports uint64, pre, post []solana.TokenBalance) *solana.Transaction {
	return &solana.Transaction{
		Signature: sig,
		Message:   &solana.TransactionMessage{AccountKeys: []string{address, other}},
		Meta: &solana.TransactionMeta{
			Fee:               5000,
			PreBalances:       []uint64{preLamports, 1},
			PostBalances:      []uint64{postLamports, 1},
			PreTokenBalances:  pre,
			PostTokenBalances: post,
		},
	}
}

func bal(mint, owner string, amount uint64) solana.TokenBalance {
	return solana.TokenBalance{Mint: mint, Owner: owner, Amount: amount, Decimals: 6}
}

func TestDetect_Buy(t *testing.T) {
	tx := swapTx("s", watched, 10_000_000_000, 9_000_000_000,
		nil,
		[]solana.TokenBalance{bal(mintA, watched, 1_000_000)},
	)

	d := Detect(tx, watched)
	require.NotNil(t, d)
	assert.Equal(t, domain.ActionBuy, d.Action)
	assert.Equal(t, mintA, d.Mint)
	assert.Equal(t, int64(1_000_000), d.TokenDelta)
	assert.Equal(t, uint64(1_000_000), d.TokenAmount())
	assert.Equal(t, int64(-1_000_000_000), d.NativeDelta)
	assert.InDelta(t, 1.0, d.SolAmount, 1e-12)
	assert.Equal(t, 6, d.Decimals)
}

func TestDetect_Sell(t *testing.T) {
	tx := swapTx("s", watched, 1_000_000_000, 1_250_000_000,
		[]solana.TokenBalance{bal(mintA, watched, 800)},
		[]solana.TokenBalance{bal(mintA, watched, 300)},
	)

	d := Detect(tx, watched)
	require.NotNil(t, d)
	assert.Equal(t, domain.ActionSell, d.Action)
	assert.Equal(t, int64(-500), d.TokenDelta)
	assert.Equal(t, uint64(500), d.TokenAmount())
	assert.InDelta(t, 0.25, d.SolAmount, 1e-12)
}

func TestDetect_LargestMagnitudeWins(t *testing.T) {
	tx := swapTx("s", watched, 1_000_000_000, 1_500_000_000,
		[]solana.TokenBalance{bal(mintA, watched, 100), bal(mintB, watched, 5000)},
		[]solana.TokenBalance{bal(mintA, watched, 600), bal(mintB, watched, 3000)},
	)

	d := Detect(tx, watched)
	require.NotNil(t, d)
	assert.Equal(t, mintB, d.Mint)
	assert.Equal(t, domain.ActionSell, d.Action)
}

func TestDetect_NotATrade(t *testing.T) {
	tests := []struct {
		name string
		tx   *solana.Transaction
		addr string
	}{
		{
			name: "token and sol both increase",
			tx: swapTx("s", watched, 1_000, 2_000, nil,
				[]solana.TokenBalance{bal(mintA, watched, 10)}),
			addr: watched,
		},
		{
			name: "token and sol both decrease",
			tx: swapTx("s", watched, 2_000, 1_000,
				[]solana.TokenBalance{bal(mintA, watched, 10)}, nil),
			addr: watched,
		},
		{
			name: "sol transfer only",
			tx:   swapTx("s", watched, 2_000, 1_000, nil, nil),
			addr: watched,
		},
		{
			name: "token owned by someone else",
			tx: swapTx("s", watched, 2_000, 1_000, nil,
				[]solana.TokenBalance{bal(mintA, other, 10)}),
			addr: watched,
		},
		{
			name: "address not in transaction",
			tx: swapTx("s", watched, 2_000, 1_000, nil,
				[]solana.TokenBalance{bal(mintA, watched, 10)}),
			addr: "Missing1111111111111111111111111111111111111",
		},
		{
			name: "wrapped sol is not the traded asset",
			tx: swapTx("s", watched, 2_000, 1_000, nil,
				[]solana.TokenBalance{bal(solana.WrappedSOLMint, watched, 10)}),
			addr: watched,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, Detect(tt.tx, tt.addr))
		})
	}
}

func TestDetect_FailedOrMissingMeta(t *testing.T) {
	tx := swapTx("s", watched, 2_000, 1_000, nil, []solana.TokenBalance{bal(mintA, watched, 10)})
	tx.Meta.Err = map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}
	assert.Nil(t, Detect(tx, watched))

	assert.Nil(t, Detect(&solana.Transaction{Signature: "s"}, watched))
	assert.Nil(t, Detect(nil, watched))
}

func TestDetect_AddressFromLookupTable(t *testing.T) {
	tx := &solana.Transaction{
		Signature: "s",
		Message:   &solana.TransactionMessage{AccountKeys: []string{other}},
		Meta: &solana.TransactionMeta{
			PreBalances:       []uint64{1, 5_000_000_000},
			PostBalances:      []uint64{1, 4_500_000_000},
			LoadedWritable:    []string{watched},
			PostTokenBalances: []solana.TokenBalance{bal(mintA, watched, 42)},
		},
	}

	d := Detect(tx, watched)
	require.NotNil(t, d)
	assert.Equal(t, domain.ActionBuy, d.Action)
	assert.InDelta(t, 0.5, d.SolAmount, 1e-12)
}
