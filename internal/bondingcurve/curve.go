// Package bondingcurve prices and trades tokens that are still on a
// pump.fun style constant-product bonding curve.
package bondingcurve

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
)

// Program and curve constants.
const (
	ProgramID = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

	// InitialRealTokenReserves is the sellable supply of a fresh curve.
	InitialRealTokenReserves uint64 = 793_100_000_000_000

	// TokenDecimals is the decimals of every curve-launched mint.
	TokenDecimals = 6

	// DefaultFeeBps is the protocol trading fee.
	DefaultFeeBps = 100

	accountDataLen = 8 + 5*8 + 1
	lamportsPerSOL = 1e9
	tokenUnit      = 1e6
)

// Curve errors
var (
	ErrAccountTooShort       = errors.New("bonding curve account data too short")
	ErrCurveComplete         = errors.New("bonding curve complete, token migrated")
	ErrZeroAmount            = errors.New("amount must be positive")
	ErrInsufficientLiquidity = errors.New("insufficient curve liquidity")
	ErrInvalidFee            = errors.New("fee bps out of range")
)

// Curve is the decoded bonding-curve account.
type Curve struct {
	VirtualTokenReserves uint64
	VirtualSolReserves   uint64
	RealTokenReserves    uint64
	RealSolReserves      uint64
	TokenTotalSupply     uint64
	Complete             bool
}

// Decode parses raw account data: an 8-byte discriminator, five
// little-endian u64 reserves and a completion flag.
func Decode(data []byte) (*Curve, error) {
	if len(data) < accountDataLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrAccountTooShort, len(data))
	}
	off := 8
	next := func() uint64 {
		v := binary.LittleEndian.Uint64(data[off : off+8])
		off += 8
		return v
	}
	c := &Curve{
		VirtualTokenReserves: next(),
		VirtualSolReserves:   next(),
		RealTokenReserves:    next(),
		RealSolReserves:      next(),
		TokenTotalSupply:     next(),
	}
	c.Complete = data[off] != 0
	return c, nil
}

// Encode serializes c with the given discriminator.
func (c *Curve) Encode(discriminator [8]byte) []byte {
	out := make([]byte, accountDataLen)
	copy(out, discriminator[:])
	for i, v := range []uint64{
		c.VirtualTokenReserves,
		c.VirtualSolReserves,
		c.RealTokenReserves,
		c.RealSolReserves,
		c.TokenTotalSupply,
	} {
		binary.LittleEndian.PutUint64(out[8+i*8:], v)
	}
	if c.Complete {
		out[accountDataLen-1] = 1
	}
	return out
}

// Price returns SOL per whole token implied by the virtual reserves.
func (c *Curve) Price() float64 {
	if c.VirtualTokenReserves == 0 {
		return 0
	}
	return (float64(c.VirtualSolReserves) / lamportsPerSOL) / (float64(c.VirtualTokenReserves) / tokenUnit)
}

// BondingProgress is the fraction of the initial sellable supply already
// bought, clamped to [0, 1].
func (c *Curve) BondingProgress() float64 {
	if c.Complete {
		return 1
	}
	p := 1 - float64(c.RealTokenReserves)/float64(InitialRealTokenReserves)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// TradeQuote is the outcome of a simulated curve trade.
type TradeQuote struct {
	AmountIn       uint64 // lamports for buys, raw tokens for sells
	Fee            uint64 // lamports
	AmountOut      uint64 // raw tokens for buys, lamports for sells
	PriceBefore    float64
	PriceAfter     float64
	PriceImpactPct float64
	After          Curve
}

// BuyQuote prices spending solIn lamports. The fee is taken from the input
// before the constant-product swap; output is capped at the real reserves.
func (c *Curve) BuyQuote(solIn uint64, feeBps int) (*TradeQuote, error) {
	if err := c.checkTrade(solIn, feeBps); err != nil {
		return nil, err
	}

	fee := mulDiv(solIn, uint64(feeBps), 10_000)
	net := solIn - fee

	out := mulDiv(c.VirtualTokenReserves, net, c.VirtualSolReserves+net)
	if out > c.RealTokenReserves {
		out = c.RealTokenReserves
	}
	if out == 0 {
		return nil, ErrInsufficientLiquidity
	}

	after := *c
	after.VirtualSolReserves += net
	after.VirtualTokenReserves -= out
	after.RealSolReserves += net
	after.RealTokenReserves -= out

	q := &TradeQuote{
		AmountIn:    solIn,
		Fee:         fee,
		AmountOut:   out,
		PriceBefore: c.Price(),
		PriceAfter:  after.Price(),
		After:       after,
	}
	if q.PriceBefore > 0 {
		q.PriceImpactPct = (q.PriceAfter - q.PriceBefore) / q.PriceBefore * 100
	}
	return q, nil
}

// SellQuote prices selling tokenIn raw units. The fee is taken from the
// SOL output.
func (c *Curve) SellQuote(tokenIn uint64, feeBps int) (*TradeQuote, error) {
	if err := c.checkTrade(tokenIn, feeBps); err != nil {
		return nil, err
	}

	gross := mulDiv(c.VirtualSolReserves, tokenIn, c.VirtualTokenReserves+tokenIn)
	if gross > c.RealSolReserves {
		return nil, ErrInsufficientLiquidity
	}
	fee := mulDiv(gross, uint64(feeBps), 10_000)

	after := *c
	after.VirtualTokenReserves += tokenIn
	after.VirtualSolReserves -= gross
	after.RealTokenReserves += tokenIn
	after.RealSolReserves -= gross

	q := &TradeQuote{
		AmountIn:    tokenIn,
		Fee:         fee,
		AmountOut:   gross - fee,
		PriceBefore: c.Price(),
		PriceAfter:  after.Price(),
		After:       after,
	}
	if q.PriceBefore > 0 {
		q.PriceImpactPct = (q.PriceBefore - q.PriceAfter) / q.PriceBefore * 100
	}
	return q, nil
}

func (c *Curve) checkTrade(amount uint64, feeBps int) error {
	if c.Complete {
		return ErrCurveComplete
	}
	if amount == 0 {
		return ErrZeroAmount
	}
	if feeBps < 0 || feeBps >= 10_000 {
		return fmt.Errorf("%w: %d", ErrInvalidFee, feeBps)
	}
	if c.VirtualSolReserves == 0 || c.VirtualTokenReserves == 0 {
		return ErrInsufficientLiquidity
	}
	return nil
}

// mulDiv computes a*b/c without intermediate overflow.
func mulDiv(a, b, c uint64) uint64 {
	r := new(big.Int).Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b))
	r.Quo(r, new(big.Int).SetUint64(c))
	return r.Uint64()
}
