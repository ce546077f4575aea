package elgamal

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	AeKeySize = chacha20poly1305.KeySize
	// AeCiphertextSize is nonce || sealed(uint64) || tag.
	AeCiphertextSize = chacha20poly1305.NonceSize + 8 + chacha20poly1305.Overhead
)

var ErrDecryption = errors.New("decryption failed")

// AeKey is the symmetric key protecting the owner-readable balance.
type AeKey struct {
	key [AeKeySize]byte
}

// AeCiphertext is an authenticated encryption of a balance.
type AeCiphertext [AeCiphertextSize]byte

// AeKeyFromBytes copies a 32-byte key.
func AeKeyFromBytes(b []byte) (*AeKey, error) {
	if len(b) != AeKeySize {
		return nil, errors.Wrapf(ErrInvalidKey, "ae key must be %d bytes", AeKeySize)
	}
	k := &AeKey{}
	copy(k.key[:], b)
	return k, nil
}

// NewAeKey returns a random key.
func NewAeKey() (*AeKey, error) {
	k := &AeKey{}
	if _, err := rand.Read(k.key[:]); err != nil {
		return nil, errors.Wrap(err, "ae key")
	}
	return k, nil
}

// Encrypt seals amount under a fresh nonce.
func (k *AeKey) Encrypt(amount uint64) (AeCiphertext, error) {
	var out AeCiphertext
	aead, err := chacha20poly1305.New(k.key[:])
	if err != nil {
		return out, errors.Wrap(err, "ae cipher")
	}
	nonce := out[:chacha20poly1305.NonceSize]
	if _, err := rand.Read(nonce); err != nil {
		return out, errors.Wrap(err, "ae nonce")
	}
	var plain [8]byte
	binary.BigEndian.PutUint64(plain[:], amount)
	aead.Seal(out[chacha20poly1305.NonceSize:chacha20poly1305.NonceSize], nonce, plain[:], nil)
	return out, nil
}

// Decrypt opens ct. A tampered ciphertext or a wrong key yields ErrDecryption.
func (k *AeKey) Decrypt(ct AeCiphertext) (uint64, error) {
	aead, err := chacha20poly1305.New(k.key[:])
	if err != nil {
		return 0, errors.Wrap(err, "ae cipher")
	}
	nonce := ct[:chacha20poly1305.NonceSize]
	plain, err := aead.Open(nil, nonce, ct[chacha20poly1305.NonceSize:], nil)
	if err != nil {
		return 0, ErrDecryption
	}
	return binary.BigEndian.Uint64(plain), nil
}
