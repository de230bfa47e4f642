package solana

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type statusFunc func(ctx context.Context, sigs []string) ([]*SignatureStatus, error)

func (f statusFunc) GetSignatureStatuses(ctx context.Context, sigs []string) ([]*SignatureStatus, error) {
	return f(ctx, sigs)
}

var fastConfirm = ConfirmOptions{PollInterval: time.Millisecond, Timeout: 200 * time.Millisecond}

func TestConfirmTransaction_LandsAfterPolling(t *testing.T) {
	var calls atomic.Int32
	rpc := statusFunc(func(_ context.Context, sigs []string) ([]*SignatureStatus, error) {
		n := calls.Add(1)
		switch {
		case n == 1:
			return []*SignatureStatus{nil}, nil
		case n == 2:
			return []*SignatureStatus{{ConfirmationStatus: "processed"}}, nil
		default:
			return []*SignatureStatus{{ConfirmationStatus: "confirmed"}}, nil
		}
	})

	if err := ConfirmTransaction(context.Background(), rpc, "sig", fastConfirm); err != nil {
		t.Fatalf("ConfirmTransaction: %v", err)
	}
	if calls.Load() < 3 {
		t.Errorf("expected at least 3 polls, got %d", calls.Load())
	}
}

func TestConfirmTransaction_OnChainFailure(t *testing.T) {
	rpc := statusFunc(func(_ context.Context, sigs []string) ([]*SignatureStatus, error) {
		return []*SignatureStatus{{ConfirmationStatus: "confirmed", Err: map[string]interface{}{"InstructionError": []interface{}{2, "Custom"}}}}, nil
	})

	err := ConfirmTransaction(context.Background(), rpc, "sig", fastConfirm)
	var txErr *TransactionError
	if !errors.As(err, &txErr) {
		t.Fatalf("expected TransactionError, got %v", err)
	}
	if txErr.Signature != "sig" {
		t.Errorf("expected signature sig, got %s", txErr.Signature)
	}
}

func TestConfirmTransaction_Timeout(t *testing.T) {
	rpc := statusFunc(func(_ context.Context, sigs []string) ([]*SignatureStatus, error) {
		return []*SignatureStatus{nil}, nil
	})

	opts := ConfirmOptions{PollInterval: time.Millisecond, Timeout: 20 * time.Millisecond}
	err := ConfirmTransaction(context.Background(), rpc, "sig", opts)
	if !errors.Is(err, ErrConfirmTimeout) {
		t.Fatalf("expected ErrConfirmTimeout, got %v", err)
	}
}
