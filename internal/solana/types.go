package solana

// Lamports per SOL.
const LamportsPerSOL = 1_000_000_000

// Well-known addresses.
const (
	WrappedSOLMint     = "So11111111111111111111111111111111111111112"
	TokenProgramID     = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022ProgramID = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
)

// TokenBalance is a pre- or post-execution token balance entry.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	Amount       uint64 // raw units
	Decimals     int
	UIAmount     float64
}

// TokenAmount is an aggregated token holding.
type TokenAmount struct {
	Amount   uint64 // raw units
	Decimals int
	UIAmount float64
}

// SignatureStatus from getSignatureStatuses.
type SignatureStatus struct {
	Slot               int64
	Confirmations      *int64
	Err                interface{}
	ConfirmationStatus string // processed, confirmed, finalized
}

// Landed reports whether the signature reached at least confirmed commitment.
func (s *SignatureStatus) Landed() bool {
	return s.ConfirmationStatus == "confirmed" || s.ConfirmationStatus == "finalized"
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"` // base64 encoded
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}
