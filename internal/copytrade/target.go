// Package copytrade mirrors the swaps of watched wallets.
package copytrade

import (
	"time"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/wallet"
)

// Defaults applied by AddTarget.
const (
	DefaultMultiplier     = 1.0
	DefaultMaxPositionSol = 0.5
	DefaultMinTradeSol    = 0.01
	DefaultSlippageBps    = 300
)

// Target is a watched wallet and its copy settings.
type Target struct {
	ID             string
	Address        string
	Name           string
	Multiplier     float64
	MaxPositionSol float64
	MinTradeSol    float64
	CopyBuys       bool
	CopySells      bool
	SlippageBps    int
	Delay          time.Duration
	AllowMints     []string // empty allows every mint
	BlockMints     []string
	Paused         bool
	TotalCopied    int
	CreatedAt      time.Time
}

// TargetRequest configures a new target. Nil toggles default to true.
type TargetRequest struct {
	Address        string
	Name           string
	Multiplier     float64
	MaxPositionSol float64
	MinTradeSol    float64
	CopyBuys       *bool
	CopySells      *bool
	SlippageBps    int
	Delay          time.Duration
	AllowMints     []string
	BlockMints     []string
}

func (r TargetRequest) target() (Target, error) {
	if err := wallet.ValidateAddress(r.Address); err != nil {
		return Target{}, domain.Invalid("copytrade.add_target", "address %q: %v", r.Address, err)
	}
	if r.Multiplier < 0 || r.MaxPositionSol < 0 || r.MinTradeSol < 0 || r.SlippageBps < 0 || r.Delay < 0 {
		return Target{}, domain.Invalid("copytrade.add_target", "negative settings are not allowed")
	}
	t := Target{
		Address:        r.Address,
		Name:           r.Name,
		Multiplier:     r.Multiplier,
		MaxPositionSol: r.MaxPositionSol,
		MinTradeSol:    r.MinTradeSol,
		CopyBuys:       r.CopyBuys == nil || *r.CopyBuys,
		CopySells:      r.CopySells == nil || *r.CopySells,
		SlippageBps:    r.SlippageBps,
		Delay:          r.Delay,
		AllowMints:     append([]string(nil), r.AllowMints...),
		BlockMints:     append([]string(nil), r.BlockMints...),
	}
	if t.Multiplier == 0 {
		t.Multiplier = DefaultMultiplier
	}
	if t.MaxPositionSol == 0 {
		t.MaxPositionSol = DefaultMaxPositionSol
	}
	if t.MinTradeSol == 0 {
		t.MinTradeSol = DefaultMinTradeSol
	}
	if t.SlippageBps == 0 {
		t.SlippageBps = DefaultSlippageBps
	}
	if t.Name == "" {
		t.Name = shortAddress(t.Address)
	}
	return t, nil
}

// filter returns a non-empty reason when d must not be copied. Checks run
// in order: direction, block list, allow list, size floor.
func (t *Target) filter(d *Detection) string {
	switch {
	case d.Action == domain.ActionBuy && !t.CopyBuys:
		return "buys disabled"
	case d.Action == domain.ActionSell && !t.CopySells:
		return "sells disabled"
	case contains(t.BlockMints, d.Mint):
		return "mint blocked"
	case len(t.AllowMints) > 0 && !contains(t.AllowMints, d.Mint):
		return "mint not allowed"
	case d.SolAmount < t.MinTradeSol:
		return "below minimum size"
	}
	return ""
}

// mirrored returns the SOL size to copy.
func (t *Target) mirrored(observedSol float64) float64 {
	size := observedSol * t.Multiplier
	if size > t.MaxPositionSol {
		return t.MaxPositionSol
	}
	return size
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func shortAddress(a string) string {
	if len(a) <= 8 {
		return a
	}
	return a[:4] + ".." + a[len(a)-4:]
}
