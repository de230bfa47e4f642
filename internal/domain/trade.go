package domain

import (
	"context"
	"time"
)

// Source identifies which strategy produced a trade.
type Source string

// Trade sources
const (
	SourceDCA          Source = "dca"
	SourceCopy         Source = "copy"
	SourceTrigger      Source = "trigger"
	SourceManual       Source = "manual"
	SourceBondingCurve Source = "bonding_curve"
)

// Action is the trade direction relative to the non-SOL asset.
type Action string

// Trade actions
const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Valid reports whether a is buy or sell.
func (a Action) Valid() bool {
	return a == ActionBuy || a == ActionSell
}

// TradeStatus is the outcome of an executed or attempted swap.
type TradeStatus string

// Trade statuses
const (
	TradeStatusSuccess TradeStatus = "success"
	TradeStatusFailed  TradeStatus = "failed"
)

// TradeRecord is an immutable, append-only log entry describing one swap
// attempt made on behalf of an account.
type TradeRecord struct {
	ID        string // deterministic hash, see idhash.ComputeTradeID
	AccountID string
	Source    Source
	RefID     string // DCA order, copy target or trigger ID

	Action     Action
	InputMint  string
	OutputMint string
	AmountIn   uint64  // raw units of InputMint
	AmountOut  uint64  // raw units of OutputMint
	SolAmount  float64 // SOL side of the trade

	Signature string // empty when the swap never landed
	Status    TradeStatus
	Error     string
	Timestamp time.Time
}

// Mint returns the non-SOL asset of the trade.
func (r *TradeRecord) Mint() string {
	if r.Action == ActionBuy {
		return r.OutputMint
	}
	return r.InputMint
}

// Succeeded reports whether the swap landed.
func (r *TradeRecord) Succeeded() bool {
	return r.Status == TradeStatusSuccess
}

// Position is the SOL-denominated exposure to one mint.
type Position struct {
	Mint     string
	ValueSol float64
}

// TradeGuard is consulted before every trade is submitted. A non-nil error
// is a policy rejection.
type TradeGuard interface {
	CheckTrade(action Action, solAmount float64, mint string) error
}

// TradeRecorder receives every executed or attempted swap.
type TradeRecorder func(ctx context.Context, rec TradeRecord)

// AllowAll is a TradeGuard that never rejects.
type AllowAll struct{}

// CheckTrade implements TradeGuard.
func (AllowAll) CheckTrade(Action, float64, string) error { return nil }
