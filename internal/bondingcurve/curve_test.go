package bondingcurve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freshCurve() *Curve {
	return &Curve{
		VirtualTokenReserves: 1_073_000_000_000_000,
		VirtualSolReserves:   30_000_000_000,
		RealTokenReserves:    InitialRealTokenReserves,
		RealSolReserves:      0,
		TokenTotalSupply:     1_000_000_000_000_000,
	}
}

func TestDecode(t *testing.T) {
	c := freshCurve()
	c.Complete = true
	data := c.Encode([8]byte{0x17, 0xb7, 0xf8, 0x37, 0x60, 0xd8, 0xac, 0x60})

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, c, got)

	_, err = Decode(data[:40])
	assert.ErrorIs(t, err, ErrAccountTooShort)
}

func TestCurve_Price(t *testing.T) {
	c := freshCurve()
	assert.InDelta(t, 30.0/1_073_000_000, c.Price(), 1e-15)

	assert.Zero(t, (&Curve{}).Price())
}

func TestCurve_BuyQuote(t *testing.T) {
	c := freshCurve()

	q, err := c.BuyQuote(1_000_000_000, DefaultFeeBps)
	require.NoError(t, err)

	assert.Equal(t, uint64(10_000_000), q.Fee)
	assert.Equal(t, uint64(34_277_831_558_567), q.AmountOut)
	assert.Equal(t, uint64(30_990_000_000), q.After.VirtualSolReserves)
	assert.Equal(t, c.VirtualTokenReserves-q.AmountOut, q.After.VirtualTokenReserves)
	assert.Greater(t, q.PriceAfter, q.PriceBefore)
	assert.Greater(t, q.PriceImpactPct, 0.0)

	// Original curve is not mutated
	assert.Equal(t, uint64(30_000_000_000), c.VirtualSolReserves)
}

func TestCurve_BuyThenSellLosesFees(t *testing.T) {
	c := freshCurve()
	solIn := uint64(1_000_000_000)

	buy, err := c.BuyQuote(solIn, DefaultFeeBps)
	require.NoError(t, err)

	sell, err := buy.After.SellQuote(buy.AmountOut, DefaultFeeBps)
	require.NoError(t, err)
	assert.Less(t, sell.AmountOut, solIn)
	assert.Equal(t, uint64(980_100_000), sell.AmountOut)
	assert.Greater(t, sell.PriceImpactPct, 0.0)

	// Without fees the round trip still cannot return more than was put in
	buy0, err := c.BuyQuote(solIn, 0)
	require.NoError(t, err)
	sell0, err := buy0.After.SellQuote(buy0.AmountOut, 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, sell0.AmountOut, solIn)
}

func TestCurve_QuoteErrors(t *testing.T) {
	c := freshCurve()

	_, err := c.BuyQuote(0, DefaultFeeBps)
	assert.ErrorIs(t, err, ErrZeroAmount)

	_, err = c.BuyQuote(1, 10_000)
	assert.ErrorIs(t, err, ErrInvalidFee)

	_, err = c.SellQuote(1_000_000, DefaultFeeBps)
	assert.ErrorIs(t, err, ErrInsufficientLiquidity, "fresh curve holds no real SOL")

	done := freshCurve()
	done.Complete = true
	_, err = done.BuyQuote(1_000, DefaultFeeBps)
	assert.ErrorIs(t, err, ErrCurveComplete)
}

func TestCurve_BuyCappedAtRealReserves(t *testing.T) {
	c := freshCurve()
	c.RealTokenReserves = 1_000

	q, err := c.BuyQuote(10_000_000_000, DefaultFeeBps)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), q.AmountOut)
	assert.Zero(t, q.After.RealTokenReserves)
}

func TestCurve_BondingProgress(t *testing.T) {
	tests := []struct {
		name     string
		real     uint64
		complete bool
		want     float64
	}{
		{"fresh", InitialRealTokenReserves, false, 0},
		{"half", InitialRealTokenReserves / 2, false, 0.5},
		{"sold out", 0, false, 1},
		{"above initial clamps", InitialRealTokenReserves * 2, false, 0},
		{"complete", InitialRealTokenReserves, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := freshCurve()
			c.RealTokenReserves = tt.real
			c.Complete = tt.complete
			assert.InDelta(t, tt.want, c.BondingProgress(), 1e-9)
		})
	}
}
