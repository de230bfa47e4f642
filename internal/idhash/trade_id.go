package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeTradeID computes a deterministic trade record ID using SHA256.
// Formula: SHA256(account_id|source|ref_id|attempt_key|timestamp_ms)
// attempt_key is the transaction signature when one exists, otherwise the
// failure reason. Returns hex-encoded hash (64 characters).
func ComputeTradeID(
	accountID string,
	source string,
	refID string,
	attemptKey string,
	timestampMs int64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%d",
		accountID,
		source,
		refID,
		attemptKey,
		timestampMs,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
