package wallet

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// ErrInvalidSecretKey is returned for secrets that are not a 64-byte
// ed25519 keypair or a 32-byte seed.
var ErrInvalidSecretKey = errors.New("invalid secret key")

// Keypair is an account signing key. Its private half never leaves the process.
type Keypair struct {
	priv ed25519.PrivateKey
	pub  string
}

// NewKeypair generates a random keypair.
func NewKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return newKeypair(priv), nil
}

// KeypairFromBytes accepts a 64-byte secret key (seed || public key, the
// Solana CLI format) or a 32-byte seed.
func KeypairFromBytes(secret []byte) (*Keypair, error) {
	switch len(secret) {
	case ed25519.PrivateKeySize:
		priv := ed25519.PrivateKey(append([]byte(nil), secret...))
		derived := ed25519.NewKeyFromSeed(priv.Seed())
		if !derived.Equal(priv) {
			return nil, fmt.Errorf("%w: public key does not match seed", ErrInvalidSecretKey)
		}
		return newKeypair(priv), nil
	case ed25519.SeedSize:
		return newKeypair(ed25519.NewKeyFromSeed(secret)), nil
	default:
		return nil, fmt.Errorf("%w: length %d", ErrInvalidSecretKey, len(secret))
	}
}

// KeypairFromBase58 decodes a base58 secret key as exported by wallets.
func KeypairFromBase58(s string) (*Keypair, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecretKey, err)
	}
	return KeypairFromBytes(raw)
}

func newKeypair(priv ed25519.PrivateKey) *Keypair {
	return &Keypair{
		priv: priv,
		pub:  base58.Encode(priv.Public().(ed25519.PublicKey)),
	}
}

// PublicKey returns the base58 address.
func (k *Keypair) PublicKey() string {
	return k.pub
}

// PublicKeyBytes returns the raw 32-byte public key.
func (k *Keypair) PublicKeyBytes() []byte {
	return []byte(k.priv.Public().(ed25519.PublicKey))
}

// Sign signs message.
func (k *Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(k.priv, message)
}

// SecretBytes returns a copy of the 64-byte secret key.
func (k *Keypair) SecretBytes() []byte {
	return append([]byte(nil), k.priv...)
}

// String never prints key material.
func (k *Keypair) String() string {
	return "Keypair(" + k.pub + ")"
}
