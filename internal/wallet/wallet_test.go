package wallet

import (
	"bytes"
	"crypto/ed25519"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pumpProgram = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

func encodeShortVec(n int) []byte {
	var out []byte
	for {
		elem := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			return append(out, elem)
		}
		out = append(out, elem|0x80)
	}
}

func TestKeypair_Roundtrip(t *testing.T) {
	kp, err := NewKeypair()
	require.NoError(t, err)

	restored, err := KeypairFromBase58(base58.Encode(kp.SecretBytes()))
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey(), restored.PublicKey())

	fromSeed, err := KeypairFromBytes(kp.SecretBytes()[:32])
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey(), fromSeed.PublicKey())

	assert.NotContains(t, kp.String(), base58.Encode(kp.SecretBytes()))
}

func TestKeypairFromBytes_Invalid(t *testing.T) {
	_, err := KeypairFromBytes(make([]byte, 10))
	assert.ErrorIs(t, err, ErrInvalidSecretKey)

	kp, err := NewKeypair()
	require.NoError(t, err)
	tampered := kp.SecretBytes()
	tampered[40] ^= 0xff
	_, err = KeypairFromBytes(tampered)
	assert.ErrorIs(t, err, ErrInvalidSecretKey)

	_, err = KeypairFromBase58("0OIl")
	assert.ErrorIs(t, err, ErrInvalidSecretKey)
}

func TestValidateAddress(t *testing.T) {
	kp, err := NewKeypair()
	require.NoError(t, err)

	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{"wallet", kp.PublicKey(), false},
		{"system program", "11111111111111111111111111111111", false},
		{"pump program", pumpProgram, false},
		{"empty", "", true},
		{"bad alphabet", "0000000000000000000000000000000O", true},
		{"too short", "abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.addr)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAddress)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.True(t, IsOnCurve(kp.PublicKey()))
}

func TestFindProgramAddress(t *testing.T) {
	mint, err := NewKeypair()
	require.NoError(t, err)

	seeds := [][]byte{[]byte("bonding-curve"), mint.PublicKeyBytes()}
	addr, bump, err := FindProgramAddress(seeds, pumpProgram)
	require.NoError(t, err)

	assert.NoError(t, ValidateAddress(addr))
	assert.False(t, IsOnCurve(addr), "PDA must be off curve")

	again, againBump, err := FindProgramAddress(seeds, pumpProgram)
	require.NoError(t, err)
	assert.Equal(t, addr, again)
	assert.Equal(t, bump, againBump)

	direct, err := CreateProgramAddress(append(seeds, []byte{bump}), pumpProgram)
	require.NoError(t, err)
	assert.Equal(t, addr, direct)

	_, _, err = FindProgramAddress([][]byte{make([]byte, 33)}, pumpProgram)
	assert.Error(t, err)
}

// buildTransaction serializes an unsigned transaction whose static keys
// start with the given signers.
func buildTransaction(versioned bool, signers ...*Keypair) []byte {
	var msg bytes.Buffer
	if versioned {
		msg.WriteByte(0x80)
	}
	msg.Write([]byte{byte(len(signers)), 0, 1})
	msg.Write(encodeShortVec(len(signers) + 1))
	for _, s := range signers {
		msg.Write(s.PublicKeyBytes())
	}
	msg.Write(make([]byte, 32)) // program
	msg.Write(bytes.Repeat([]byte{7}, 32))
	msg.Write(encodeShortVec(0))
	if versioned {
		msg.Write(encodeShortVec(0))
	}

	var tx bytes.Buffer
	tx.Write(encodeShortVec(len(signers)))
	tx.Write(make([]byte, len(signers)*signatureLen))
	tx.Write(msg.Bytes())
	return tx.Bytes()
}

func TestSignTransaction(t *testing.T) {
	payer, err := NewKeypair()
	require.NoError(t, err)
	cosigner, err := NewKeypair()
	require.NoError(t, err)

	for _, versioned := range []bool{false, true} {
		raw := buildTransaction(versioned, cosigner, payer)

		signed, err := SignTransaction(raw, payer)
		require.NoError(t, err)
		require.Len(t, signed, len(raw))

		msgStart := 1 + 2*signatureLen
		message := signed[msgStart:]
		assert.Equal(t, raw[msgStart:], message, "message must not change")

		assert.Equal(t, make([]byte, signatureLen), signed[1:1+signatureLen], "cosigner slot untouched")
		sig := signed[1+signatureLen : 1+2*signatureLen]
		assert.True(t, ed25519.Verify(payer.PublicKeyBytes(), message, sig))
	}
}

func TestSignTransaction_Errors(t *testing.T) {
	payer, err := NewKeypair()
	require.NoError(t, err)
	stranger, err := NewKeypair()
	require.NoError(t, err)

	_, err = SignTransaction(buildTransaction(true, payer), stranger)
	assert.ErrorIs(t, err, ErrSignerNotRequired)

	_, err = SignTransaction([]byte{1, 0, 0}, payer)
	assert.Error(t, err)

	_, err = SignTransaction(nil, payer)
	assert.Error(t, err)
}

func TestKeyStore_Roundtrip(t *testing.T) {
	store, err := NewKeyStore("server-secret")
	require.NoError(t, err)

	kp, err := NewKeypair()
	require.NoError(t, err)

	ct, err := store.EncryptKey("acct-1", kp)
	require.NoError(t, err)

	got, err := store.DecryptKey("acct-1", ct)
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey(), got.PublicKey())

	_, err = store.DecryptKey("acct-2", ct)
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	other, err := NewKeyStore("other-secret")
	require.NoError(t, err)
	_, err = other.DecryptKey("acct-1", ct)
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = store.DecryptKey("acct-1", "not base64!")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = NewKeyStore("")
	assert.ErrorIs(t, err, ErrEmptySecret)
}
