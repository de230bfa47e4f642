// Package trigger runs price-conditional orders against a shared poll loop.
package trigger

import (
	"time"

	"solana-trade-engine/internal/domain"
)

// Status is the lifecycle state of a trigger.
type Status string

// Trigger statuses
const (
	StatusActive    Status = "active"
	StatusFired     Status = "fired"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
	StatusStopped   Status = "stopped"
)

// Order is the swap attached to a trigger. Amount is raw units of InputMint.
type Order struct {
	Action      domain.Action
	InputMint   string
	OutputMint  string
	Amount      uint64
	SlippageBps int
}

// Result is the outcome of the last execution.
type Result struct {
	Success   bool
	Signature string
	Error     string
	Price     float64
	At        time.Time
}

// Trigger is a registered conditional order.
type Trigger struct {
	ID         string
	Mint       string
	Condition  Condition
	Order      Order
	ExpiresAt  *time.Time
	OneShot    bool
	PrevPrice  *float64
	Status     Status
	LastResult *Result
	FireCount  int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Request describes a new trigger.
type Request struct {
	Mint      string
	Condition Condition
	Order     Order
	ExpiresAt *time.Time
	OneShot   bool
}

func (r *Request) validate(now time.Time) error {
	const op = "trigger.create"
	if r.Mint == "" {
		return domain.Invalid(op, "mint is required")
	}
	if r.Condition == nil {
		return domain.Invalid(op, "condition is required")
	}
	if r.Condition.Target() <= 0 {
		return domain.Invalid(op, "target price must be positive")
	}
	if !r.Order.Action.Valid() {
		return domain.Invalid(op, "order action %q is invalid", r.Order.Action)
	}
	if r.Order.InputMint == "" || r.Order.OutputMint == "" || r.Order.InputMint == r.Order.OutputMint {
		return domain.Invalid(op, "order needs distinct input and output mints")
	}
	if r.Order.Amount == 0 {
		return domain.Invalid(op, "order amount must be positive")
	}
	if r.Order.SlippageBps < 0 {
		return domain.Invalid(op, "slippage must not be negative")
	}
	if r.ExpiresAt != nil && !r.ExpiresAt.After(now) {
		return domain.Invalid(op, "expiry is in the past")
	}
	return nil
}

func (t *Trigger) clone() *Trigger {
	cp := *t
	if t.ExpiresAt != nil {
		e := *t.ExpiresAt
		cp.ExpiresAt = &e
	}
	if t.PrevPrice != nil {
		p := *t.PrevPrice
		cp.PrevPrice = &p
	}
	if t.LastResult != nil {
		r := *t.LastResult
		cp.LastResult = &r
	}
	return &cp
}
