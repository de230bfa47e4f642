package wallet

import (
	"bytes"
	"errors"
	"fmt"
)

const (
	signatureLen       = 64
	pubkeyLen          = 32
	versionedPrefixBit = 0x80
)

// ErrSignerNotRequired is returned when the keypair is not one of the
// transaction's required signers.
var ErrSignerNotRequired = errors.New("keypair is not a required signer")

// SignTransaction places kp's signature into a serialized transaction
// (legacy or v0) and returns the re-serialized bytes. Other signature slots
// are left untouched.
//
// Wire layout: compact-u16 signature count, signatures (64 bytes each),
// message. The message optionally starts with a version prefix byte, then a
// three-byte header whose first byte is the number of required signatures,
// then a compact-u16 count of static account keys.
func SignTransaction(raw []byte, kp *Keypair) ([]byte, error) {
	numSigs, n, err := decodeShortVec(raw)
	if err != nil {
		return nil, fmt.Errorf("signature count: %w", err)
	}
	sigStart := n
	msgStart := sigStart + numSigs*signatureLen
	if msgStart > len(raw) {
		return nil, fmt.Errorf("transaction truncated in signatures")
	}
	message := raw[msgStart:]

	off := 0
	if len(message) > 0 && message[0]&versionedPrefixBit != 0 {
		version := message[0] &^ versionedPrefixBit
		if version != 0 {
			return nil, fmt.Errorf("unsupported message version %d", version)
		}
		off = 1
	}
	if len(message) < off+3 {
		return nil, fmt.Errorf("message header truncated")
	}
	numRequired := int(message[off])
	off += 3

	numKeys, n, err := decodeShortVec(message[off:])
	if err != nil {
		return nil, fmt.Errorf("account key count: %w", err)
	}
	off += n
	if len(message) < off+numKeys*pubkeyLen {
		return nil, fmt.Errorf("account keys truncated")
	}
	if numRequired > numKeys || numRequired > numSigs {
		return nil, fmt.Errorf("header requires %d signers, have %d keys and %d slots", numRequired, numKeys, numSigs)
	}

	pub := kp.PublicKeyBytes()
	index := -1
	for i := 0; i < numRequired; i++ {
		key := message[off+i*pubkeyLen : off+(i+1)*pubkeyLen]
		if bytes.Equal(key, pub) {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, ErrSignerNotRequired
	}

	out := append([]byte(nil), raw...)
	sig := kp.Sign(message)
	copy(out[sigStart+index*signatureLen:], sig)
	return out, nil
}

// decodeShortVec decodes a compact-u16 length prefix.
func decodeShortVec(b []byte) (value int, size int, err error) {
	for size < 3 {
		if size >= len(b) {
			return 0, 0, errors.New("compact-u16 truncated")
		}
		elem := int(b[size])
		value |= (elem & 0x7f) << (7 * size)
		size++
		if elem&0x80 == 0 {
			return value, size, nil
		}
	}
	return 0, 0, errors.New("compact-u16 overflow")
}
