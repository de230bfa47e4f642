package wallet

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// ErrInvalidAddress is returned for strings that are not a 32-byte base58 key.
var ErrInvalidAddress = errors.New("invalid address")

// ErrNoViableBump is returned when no bump seed yields an off-curve address.
var ErrNoViableBump = errors.New("unable to find a viable program address bump seed")

const maxSeedLen = 32

// DecodeAddress decodes a base58 address into its 32 raw bytes.
func DecodeAddress(addr string) ([]byte, error) {
	raw, err := base58.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("%w: decoded length %d", ErrInvalidAddress, len(raw))
	}
	return raw, nil
}

// ValidateAddress checks that addr is a well-formed 32-byte base58 key.
// Program-derived addresses are valid too, so curve membership is not required.
func ValidateAddress(addr string) error {
	_, err := DecodeAddress(addr)
	return err
}

// IsOnCurve reports whether addr is a point on the ed25519 curve, i.e. a
// key that can sign.
func IsOnCurve(addr string) bool {
	raw, err := DecodeAddress(addr)
	if err != nil {
		return false
	}
	return isOnCurve(raw)
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// CreateProgramAddress hashes seeds with programID and rejects on-curve results.
func CreateProgramAddress(seeds [][]byte, programID string) (string, error) {
	program, err := DecodeAddress(programID)
	if err != nil {
		return "", err
	}

	data := make([]byte, 0, 128)
	for _, seed := range seeds {
		if len(seed) > maxSeedLen {
			return "", fmt.Errorf("seed length %d exceeds %d", len(seed), maxSeedLen)
		}
		data = append(data, seed...)
	}
	data = append(data, program...)
	data = append(data, []byte("ProgramDerivedAddress")...)

	hash := sha256.Sum256(data)
	if isOnCurve(hash[:]) {
		return "", errors.New("address is on curve")
	}
	return base58.Encode(hash[:]), nil
}

// FindProgramAddress searches bump seeds from 255 down and returns the first
// off-curve address with its bump.
func FindProgramAddress(seeds [][]byte, programID string) (string, uint8, error) {
	if _, err := DecodeAddress(programID); err != nil {
		return "", 0, err
	}
	for _, seed := range seeds {
		if len(seed) > maxSeedLen {
			return "", 0, fmt.Errorf("seed length %d exceeds %d", len(seed), maxSeedLen)
		}
	}

	for bump := 255; bump >= 0; bump-- {
		withBump := make([][]byte, 0, len(seeds)+1)
		withBump = append(withBump, seeds...)
		withBump = append(withBump, []byte{byte(bump)})

		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
	}
	return "", 0, ErrNoViableBump
}
