// Package stub provides an in-memory swap.Swapper for strategy tests.
package stub

import (
	"context"
	"fmt"
	"sync"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/swap"
)

// Swapper quotes at a fixed rate and records executions.
type Swapper struct {
	mu sync.Mutex

	// Rate is output raw units per input raw unit.
	Rate float64
	// QuoteErr and ExecuteErr, when set, are returned (wrapped as upstream failures).
	QuoteErr   error
	ExecuteErr error
	// FailNext makes the next n executions fail with ExecuteErr or a default error.
	FailNext int

	Quotes   []swap.QuoteRequest
	Executed []*swap.Quote
	seq      int
}

var _ swap.Swapper = (*Swapper)(nil)

// NewSwapper creates a stub that returns rate output units per input unit.
func NewSwapper(rate float64) *Swapper {
	return &Swapper{Rate: rate}
}

// Quote returns a quote at Rate.
func (s *Swapper) Quote(_ context.Context, req swap.QuoteRequest) (*swap.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Quotes = append(s.Quotes, req)
	if s.QuoteErr != nil {
		return nil, domain.Upstream("swap.quote", s.QuoteErr)
	}
	return &swap.Quote{
		InputMint:   req.InputMint,
		OutputMint:  req.OutputMint,
		InAmount:    req.Amount,
		OutAmount:   uint64(float64(req.Amount) * s.Rate),
		SlippageBps: req.SlippageBps,
	}, nil
}

// Execute returns a synthetic signature unless a failure is configured.
func (s *Swapper) Execute(_ context.Context, q *swap.Quote) (*swap.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailNext > 0 || s.ExecuteErr != nil {
		if s.FailNext > 0 {
			s.FailNext--
		}
		err := s.ExecuteErr
		if err == nil {
			err = fmt.Errorf("transaction expired")
		}
		return nil, domain.Upstream("swap.execute", err)
	}
	s.Executed = append(s.Executed, q)
	s.seq++
	return &swap.Result{
		Signature: fmt.Sprintf("sig-%d", s.seq),
		InAmount:  q.InAmount,
		OutAmount: q.OutAmount,
	}, nil
}

// ExecutedCount returns the number of successful executions.
func (s *Swapper) ExecutedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Executed)
}

// QuoteCount returns the number of quote requests.
func (s *Swapper) QuoteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Quotes)
}
