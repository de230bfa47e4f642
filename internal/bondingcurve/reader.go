package bondingcurve

import (
	"context"
	"encoding/base64"
	"fmt"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/solana"
	"solana-trade-engine/internal/wallet"
)

// DeriveAddress returns the bonding-curve account address for mint.
func DeriveAddress(mint string) (string, error) {
	mintKey, err := wallet.DecodeAddress(mint)
	if err != nil {
		return "", err
	}
	addr, _, err := wallet.FindProgramAddress([][]byte{[]byte("bonding-curve"), mintKey}, ProgramID)
	if err != nil {
		return "", err
	}
	return addr, nil
}

// Reader loads curve state from chain.
type Reader struct {
	rpc solana.RPCClient
}

// NewReader creates a curve reader.
func NewReader(rpc solana.RPCClient) *Reader {
	return &Reader{rpc: rpc}
}

// Fetch reads and decodes the curve for mint.
func (r *Reader) Fetch(ctx context.Context, mint string) (*Curve, error) {
	addr, err := DeriveAddress(mint)
	if err != nil {
		return nil, domain.Invalid("bondingcurve.fetch", "mint %q: %v", mint, err)
	}

	info, err := r.rpc.GetAccountInfo(ctx, addr)
	if err != nil {
		return nil, domain.Upstream("bondingcurve.fetch", err)
	}
	if info == nil {
		return nil, domain.NotFound("bondingcurve.fetch", "bonding curve for mint", mint)
	}
	if info.Owner != "" && info.Owner != ProgramID {
		return nil, domain.Invalid("bondingcurve.fetch", "account %s owned by %s", addr, info.Owner)
	}

	data, err := base64.StdEncoding.DecodeString(info.Data)
	if err != nil {
		return nil, domain.Upstream("bondingcurve.fetch", fmt.Errorf("decode account data: %w", err))
	}
	curve, err := Decode(data)
	if err != nil {
		return nil, domain.Upstream("bondingcurve.fetch", err)
	}
	return curve, nil
}

// Snapshot is a read-only view of a curve for display.
type Snapshot struct {
	Mint     string
	Address  string
	Price    float64
	Progress float64
	Curve    Curve
}

// Snapshot fetches the curve and derives display values.
func (r *Reader) Snapshot(ctx context.Context, mint string) (*Snapshot, error) {
	curve, err := r.Fetch(ctx, mint)
	if err != nil {
		return nil, err
	}
	addr, _ := DeriveAddress(mint)
	return &Snapshot{
		Mint:     mint,
		Address:  addr,
		Price:    curve.Price(),
		Progress: curve.BondingProgress(),
		Curve:    *curve,
	}, nil
}
