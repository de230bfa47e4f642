package swap

import (
	"context"
	"fmt"

	"solana-trade-engine/internal/solana"
	"solana-trade-engine/internal/wallet"
)

// Sender signs externally built transactions with the account keypair,
// submits them and waits for confirmation.
type Sender struct {
	rpc     solana.RPCClient
	kp      *wallet.Keypair
	confirm solana.ConfirmOptions
}

// NewSender creates a sender for kp.
func NewSender(rpc solana.RPCClient, kp *wallet.Keypair, confirm solana.ConfirmOptions) *Sender {
	return &Sender{rpc: rpc, kp: kp, confirm: confirm}
}

// PublicKey returns the signing address.
func (s *Sender) PublicKey() string {
	return s.kp.PublicKey()
}

// Send signs unsigned, submits it and waits until it is confirmed. The
// signature is returned whenever submission succeeded, even if confirmation
// then fails, so callers can record it.
func (s *Sender) Send(ctx context.Context, unsigned []byte) (string, error) {
	signed, err := wallet.SignTransaction(unsigned, s.kp)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}

	sig, err := s.rpc.SendTransaction(ctx, signed)
	if err != nil {
		return "", fmt.Errorf("send: %w", err)
	}

	if err := solana.ConfirmTransaction(ctx, s.rpc, sig, s.confirm); err != nil {
		return sig, fmt.Errorf("confirm: %w", err)
	}
	return sig, nil
}
