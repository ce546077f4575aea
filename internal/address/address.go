// Package address defines ledger account addresses.
//
// Addresses are 32 bytes, rendered as base58. Key-derived and associated
// addresses are Poseidon hashes, so they stay cheap to recompute on both the
// client and the ledger.
package address

import (
	"bytes"
	"slices"

	"github.com/iden3/go-iden3-crypto/poseidon"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

// Size is the byte length of an address.
const Size = 32

var ErrInvalidAddress = errors.New("invalid address")

// Address identifies an account on the ledger.
type Address [Size]byte

// Zero is the unset address.
var Zero Address

// FromPublicKey derives the address owned by a signing public key.
func FromPublicKey(publicKey []byte) (Address, error) {
	return hashToAddress(publicKey)
}

// FromSeed derives a well-known address (program ids and similar) from a label.
func FromSeed(seed string) Address {
	a, err := hashToAddress([]byte(seed))
	if err != nil {
		panic(errors.Wrap(err, "from seed"))
	}
	return a
}

// Associated computes the deterministic token account address of owner for
// mint under the given token program.
func Associated(owner, mint, program Address) Address {
	a, err := hashToAddress(slices.Concat(owner[:], mint[:], program[:]))
	if err != nil {
		// poseidon only fails on empty input
		panic(errors.Wrap(err, "associated"))
	}
	return a
}

func hashToAddress(data []byte) (Address, error) {
	h, err := poseidon.HashBytes(data)
	if err != nil {
		return Zero, errors.Wrap(err, "hash to address")
	}
	var a Address
	h.FillBytes(a[:])
	return a, nil
}

// Parse decodes a base58 address.
func Parse(s string) (Address, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return Zero, errors.Wrap(ErrInvalidAddress, err.Error())
	}
	return FromBytes(raw)
}

// FromBytes copies a 32 byte slice into an Address.
func FromBytes(b []byte) (Address, error) {
	if len(b) != Size {
		return Zero, errors.Wrapf(ErrInvalidAddress, "length %d", len(b))
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

func (a Address) String() string {
	return base58.Encode(a[:])
}

func (a Address) Bytes() []byte {
	return slices.Clone(a[:])
}

func (a Address) IsZero() bool {
	return a == Zero
}

func (a Address) Compare(b Address) int {
	return bytes.Compare(a[:], b[:])
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
