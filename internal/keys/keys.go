// Package keys derives per-account encryption material from an owner's signer.
//
// Nothing is stored: the ElGamal secret and the AE key are recomputed from a
// signature over a fixed, account-bound message every time they are needed.
package keys

import (
	"io"

	"github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"

	"ctoken/internal/address"
	"ctoken/internal/elgamal"
	"ctoken/internal/signer"
)

var ErrKeyDerivation = errors.New("key derivation failed")

const (
	elgamalSeedMessage = "ElGamalSecretKey"
	aeSeedMessage      = "AeKey"
)

var (
	elgamalInfo = []byte("ctoken elgamal secret v1")
	aeInfo      = []byte("ctoken ae key v1")
)

// Derive returns the ElGamal keypair and AE key bound to (s, account).
// A refusing or misbehaving signer yields ErrKeyDerivation; callers must not
// retry silently since a retry re-prompts the signer.
func Derive(s signer.Signer, account address.Address) (*elgamal.Keypair, *elgamal.AeKey, error) {
	kp, err := DeriveElGamal(s, account)
	if err != nil {
		return nil, nil, err
	}
	ae, err := DeriveAe(s, account)
	if err != nil {
		return nil, nil, err
	}
	return kp, ae, nil
}

// DeriveElGamal derives only the encryption keypair.
func DeriveElGamal(s signer.Signer, account address.Address) (*elgamal.Keypair, error) {
	seed, err := signSeed(s, elgamalSeedMessage, account)
	if err != nil {
		return nil, err
	}
	// 64 bytes of output keeps the reduction mod r close to uniform
	okm, err := expand(seed, account, elgamalInfo, 64)
	if err != nil {
		return nil, err
	}
	var secret fr.Element
	secret.SetBytes(okm)
	if secret.IsZero() {
		return nil, errors.Wrap(ErrKeyDerivation, "zero scalar")
	}
	kp, err := elgamal.KeypairFromSecret(secret)
	if err != nil {
		return nil, errors.Wrap(ErrKeyDerivation, err.Error())
	}
	return kp, nil
}

// DeriveAe derives only the balance authentication key.
func DeriveAe(s signer.Signer, account address.Address) (*elgamal.AeKey, error) {
	seed, err := signSeed(s, aeSeedMessage, account)
	if err != nil {
		return nil, err
	}
	okm, err := expand(seed, account, aeInfo, elgamal.AeKeySize)
	if err != nil {
		return nil, err
	}
	key, err := elgamal.AeKeyFromBytes(okm)
	if err != nil {
		return nil, errors.Wrap(ErrKeyDerivation, err.Error())
	}
	return key, nil
}

func signSeed(s signer.Signer, label string, account address.Address) ([]byte, error) {
	if s == nil {
		return nil, errors.Wrap(ErrKeyDerivation, "nil signer")
	}
	msg := append([]byte(label), account.Bytes()...)
	sig, err := s.Sign(msg)
	if err != nil {
		return nil, errors.Wrapf(ErrKeyDerivation, "sign %s seed: %v", label, err)
	}
	if len(sig) == 0 {
		return nil, errors.Wrapf(ErrKeyDerivation, "empty %s signature", label)
	}
	return sig, nil
}

func expand(seed []byte, account address.Address, info []byte, n int) ([]byte, error) {
	r := hkdf.New(sha3.New256, seed, account.Bytes(), info)
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, errors.Wrap(ErrKeyDerivation, err.Error())
	}
	return out, nil
}
