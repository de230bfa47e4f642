// Package dca runs dollar-cost-averaging orders: fixed-size buys on a fixed
// interval until a budget or cycle count is exhausted.
package dca

import (
	"time"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/solana"
)

// Status is the lifecycle state of an order.
type Status string

// Order statuses
const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// MaxConsecutiveFailures pauses an order once reached.
const MaxConsecutiveFailures = 5

const (
	historyLimit     = 50
	infoHistoryLimit = 10

	defaultSlippageBps    = 100
	defaultOutputDecimals = 6
	solDecimals           = 9
)

// Request describes a new order. Amounts are lamports of InputMint.
type Request struct {
	InputMint              string
	OutputMint             string
	TotalAmountLamports    uint64
	AmountPerCycleLamports uint64
	Interval               time.Duration
	MaxCycles              int     // derived from the budget when zero
	MaxPrice               float64 // SOL per whole output token, zero disables
	OutputDecimals         *int    // nil selects 6
	SlippageBps            int
}

func (r *Request) normalize() error {
	if r.InputMint == "" {
		r.InputMint = solana.WrappedSOLMint
	}
	if r.OutputMint == "" {
		return domain.Invalid("dca.create", "output mint is required")
	}
	if r.InputMint == r.OutputMint {
		return domain.Invalid("dca.create", "input and output mint must differ")
	}
	if r.TotalAmountLamports == 0 {
		return domain.Invalid("dca.create", "total amount must be positive")
	}
	if r.AmountPerCycleLamports == 0 {
		return domain.Invalid("dca.create", "amount per cycle must be positive")
	}
	if r.AmountPerCycleLamports > r.TotalAmountLamports {
		return domain.Invalid("dca.create", "amount per cycle %d exceeds total %d", r.AmountPerCycleLamports, r.TotalAmountLamports)
	}
	if r.Interval <= 0 {
		return domain.Invalid("dca.create", "interval must be positive")
	}
	if r.MaxCycles < 0 || r.MaxPrice < 0 || r.SlippageBps < 0 || (r.OutputDecimals != nil && *r.OutputDecimals < 0) {
		return domain.Invalid("dca.create", "negative limits are not allowed")
	}
	if r.MaxCycles == 0 {
		r.MaxCycles = int((r.TotalAmountLamports + r.AmountPerCycleLamports - 1) / r.AmountPerCycleLamports)
	}
	decimals := defaultOutputDecimals
	if r.OutputDecimals != nil {
		decimals = *r.OutputDecimals
	}
	r.OutputDecimals = &decimals
	if r.SlippageBps == 0 {
		r.SlippageBps = defaultSlippageBps
	}
	return nil
}

func (r *Request) outputDecimals() int {
	if r.OutputDecimals == nil {
		return defaultOutputDecimals
	}
	return *r.OutputDecimals
}

// Outcome classifies one cycle.
type Outcome string

// Cycle outcomes
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// CycleResult is one history entry.
type CycleResult struct {
	Cycle     int
	Outcome   Outcome
	AmountIn  uint64
	AmountOut uint64
	Price     float64
	Signature string
	Reason    string
	Timestamp time.Time
}

// Order is a read-only projection of an order.
type Order struct {
	ID string
	Request

	InvestedLamports    uint64
	TokensReceived      uint64
	CyclesCompleted     int
	// PendingLamports is reserved by cycles whose swap is still in flight.
	PendingLamports     uint64
	CyclesInFlight      int
	ConsecutiveFailures int
	Status              Status
	CreatedAt           time.Time
	UpdatedAt           time.Time

	History []CycleResult
}

// RemainingLamports returns the budget neither spent nor reserved.
func (o *Order) RemainingLamports() uint64 {
	return o.TotalAmountLamports - o.InvestedLamports - o.PendingLamports
}

// AveragePrice returns SOL paid per whole output token so far.
func (o *Order) AveragePrice() float64 {
	if o.TokensReceived == 0 {
		return 0
	}
	sol := float64(o.InvestedLamports) / float64(solana.LamportsPerSOL)
	tokens := float64(o.TokensReceived)
	for i := 0; i < o.outputDecimals(); i++ {
		tokens /= 10
	}
	return sol / tokens
}
