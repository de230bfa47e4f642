package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Key store errors
var (
	ErrEmptySecret       = errors.New("key store secret is empty")
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrDecryptionFailed  = errors.New("decryption failed: authentication error")
)

const keyInfo = "solana-trade-engine/wallet-key/v1"

// KeyStore decrypts per-account signing keys. Each account gets its own
// AES-256-GCM key derived with HKDF-SHA256 from the shared secret and the
// account ID, so a ciphertext cannot be replayed under another account.
type KeyStore struct {
	secret []byte
}

// NewKeyStore creates a key store from the shared secret.
func NewKeyStore(secret string) (*KeyStore, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &KeyStore{secret: []byte(secret)}, nil
}

func (s *KeyStore) aead(accountID string) (cipher.AEAD, error) {
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, s.secret, []byte(accountID), []byte(keyInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncryptKey seals kp's secret for accountID and returns base64 ciphertext
// (nonce || sealed).
func (s *KeyStore) EncryptKey(accountID string, kp *Keypair) (string, error) {
	gcm, err := s.aead(accountID)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, kp.SecretBytes(), []byte(accountID))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptKey opens a ciphertext produced by EncryptKey for the same account.
func (s *KeyStore) DecryptKey(accountID, ciphertextB64 string) (*Keypair, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	gcm, err := s.aead(accountID)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize()+gcm.Overhead() {
		return nil, ErrInvalidCiphertext
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, sealed, []byte(accountID))
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return KeypairFromBytes(plain)
}
