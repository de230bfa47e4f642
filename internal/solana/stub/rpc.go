package stub

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"solana-trade-engine/internal/solana"
)

// ErrNotFound is returned when a transaction is not found.
var ErrNotFound = errors.New("not found")

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	mu sync.Mutex

	Transactions  map[string]*solana.Transaction
	Accounts      map[string]*solana.AccountInfo
	Balances      map[string]uint64
	TokenBalances map[string]*solana.TokenAmount // owner + "/" + mint
	Statuses      map[string]*solana.SignatureStatus
	Slot          int64

	// Sent records every submitted transaction.
	Sent [][]byte
	// SendErr, when set, is returned by SendTransaction.
	SendErr error
	// NextSignature is returned by SendTransaction. When empty a counter-based
	// signature is generated and marked confirmed.
	NextSignature string
}

var _ solana.RPCClient = (*RPCClient)(nil)

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions:  make(map[string]*solana.Transaction),
		Accounts:      make(map[string]*solana.AccountInfo),
		Balances:      make(map[string]uint64),
		TokenBalances: make(map[string]*solana.TokenAmount),
		Statuses:      make(map[string]*solana.SignatureStatus),
	}
}

// GetTransaction retrieves a transaction by signature from the stub store.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tx, ok := c.Transactions[signature]
	if !ok {
		return nil, ErrNotFound
	}
	return tx, nil
}

// GetAccountInfo returns the stored account or nil.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Accounts[pubkey], nil
}

// GetBalance returns the stored lamport balance.
func (c *RPCClient) GetBalance(_ context.Context, pubkey string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Balances[pubkey], nil
}

// GetTokenBalance returns the stored token balance or zero.
func (c *RPCClient) GetTokenBalance(_ context.Context, owner, mint string) (*solana.TokenAmount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if amt, ok := c.TokenBalances[owner+"/"+mint]; ok {
		cp := *amt
		return &cp, nil
	}
	return &solana.TokenAmount{}, nil
}

// SendTransaction records rawTx and returns a signature.
func (c *RPCClient) SendTransaction(_ context.Context, rawTx []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return "", c.SendErr
	}
	c.Sent = append(c.Sent, rawTx)
	sig := c.NextSignature
	if sig == "" {
		sig = "stubsig" + strconv.Itoa(len(c.Sent))
		c.Statuses[sig] = &solana.SignatureStatus{ConfirmationStatus: "confirmed"}
	}
	return sig, nil
}

// GetSignatureStatuses returns stored statuses.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		out[i] = c.Statuses[sig]
	}
	return out, nil
}

// GetSlot returns the configured slot.
func (c *RPCClient) GetSlot(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Slot, nil
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

// SetBalance sets pubkey's lamport balance.
func (c *RPCClient) SetBalance(pubkey string, lamports uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Balances[pubkey] = lamports
}

// SetTokenBalance sets owner's balance of mint.
func (c *RPCClient) SetTokenBalance(owner, mint string, amt solana.TokenAmount) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TokenBalances[owner+"/"+mint] = &amt
}

// SentCount returns the number of submitted transactions.
func (c *RPCClient) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Sent)
}
