package solana

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrConfirmTimeout is returned when a signature does not land before the deadline.
var ErrConfirmTimeout = errors.New("transaction confirmation timeout")

// SignatureStatusGetter is the subset of RPCClient needed for confirmation.
type SignatureStatusGetter interface {
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)
}

// ConfirmOptions controls ConfirmTransaction polling.
type ConfirmOptions struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

// DefaultConfirmOptions returns the polling parameters used for swaps.
func DefaultConfirmOptions() ConfirmOptions {
	return ConfirmOptions{
		PollInterval: 500 * time.Millisecond,
		Timeout:      60 * time.Second,
	}
}

// TransactionError is returned when a transaction landed but failed on chain.
type TransactionError struct {
	Signature string
	Err       interface{}
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %s failed: %v", e.Signature, e.Err)
}

// ConfirmTransaction polls signature status until it reaches confirmed
// commitment, fails on chain, or the timeout elapses.
func ConfirmTransaction(ctx context.Context, rpc SignatureStatusGetter, signature string, opts ConfirmOptions) error {
	if opts.PollInterval <= 0 || opts.Timeout <= 0 {
		opts = DefaultConfirmOptions()
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	for {
		statuses, err := rpc.GetSignatureStatuses(ctx, []string{signature})
		if err == nil && len(statuses) == 1 && statuses[0] != nil {
			st := statuses[0]
			if st.Err != nil {
				return &TransactionError{Signature: signature, Err: st.Err}
			}
			if st.Landed() {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s", ErrConfirmTimeout, signature)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
