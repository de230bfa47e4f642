package solana

import "context"

// RPCClient defines the Solana RPC HTTP interface used by the trade engine.
type RPCClient interface {
	// GetTransaction retrieves a parsed transaction by signature.
	// Returns nil if the transaction is not (yet) available.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetAccountInfo retrieves account info by public key.
	// Returns nil if the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetBalance returns the native balance of an address in lamports.
	GetBalance(ctx context.Context, pubkey string) (uint64, error)

	// GetTokenBalance returns the summed balance of all token accounts
	// owned by owner for the given mint.
	GetTokenBalance(ctx context.Context, owner, mint string) (*TokenAmount, error)

	// SendTransaction submits a signed, serialized transaction and returns its signature.
	SendTransaction(ctx context.Context, rawTx []byte) (string, error)

	// GetSignatureStatuses returns the status of each signature.
	// Entries are nil for signatures the cluster does not know about.
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)

	// GetSlot retrieves the current slot.
	GetSlot(ctx context.Context) (int64, error)
}

// Transaction represents a Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err               interface{}
	Fee               uint64
	PreBalances       []uint64
	PostBalances      []uint64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
	LogMessages       []string
	LoadedWritable    []string
	LoadedReadonly    []string
}

// TransactionMessage contains parsed transaction message.
type TransactionMessage struct {
	AccountKeys []string
}

// Failed reports whether the transaction executed with an error.
func (tx *Transaction) Failed() bool {
	return tx.Meta != nil && tx.Meta.Err != nil
}

// AccountKeys returns static account keys followed by addresses loaded from
// lookup tables, in the order balance arrays are indexed.
func (tx *Transaction) AccountKeys() []string {
	var keys []string
	if tx.Message != nil {
		keys = append(keys, tx.Message.AccountKeys...)
	}
	if tx.Meta != nil {
		keys = append(keys, tx.Meta.LoadedWritable...)
		keys = append(keys, tx.Meta.LoadedReadonly...)
	}
	return keys
}
