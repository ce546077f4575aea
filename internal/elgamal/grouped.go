package elgamal

import (
	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
)

// Grouped ciphertext handle positions.
const (
	SourceHandle      = 0
	DestinationHandle = 1
)

// GroupedCiphertext encrypts one amount under two public keys with a shared
// commitment: C = vG + rH, D_i = rP_i.
type GroupedCiphertext struct {
	Commitment bls12377.G1Affine
	Handles    [2]bls12377.G1Affine
}

// EncryptGrouped encrypts amount for the source and destination keys.
func EncryptGrouped(source, destination PublicKey, amount uint64) (GroupedCiphertext, Opening, error) {
	r, err := NewOpening()
	if err != nil {
		return GroupedCiphertext{}, Opening{}, err
	}
	return EncryptGroupedWithOpening(source, destination, amount, r), r, nil
}

// EncryptGroupedWithOpening encrypts amount using the given randomness.
func EncryptGroupedWithOpening(source, destination PublicKey, amount uint64, r Opening) GroupedCiphertext {
	return GroupedCiphertext{
		Commitment: Commit(amount, r).Point,
		Handles: [2]bls12377.G1Affine{
			source.DecryptHandle(r),
			destination.DecryptHandle(r),
		},
	}
}

// Ciphertext projects the grouped ciphertext onto the key at index i.
func (g GroupedCiphertext) Ciphertext(i int) Ciphertext {
	return Ciphertext{Commitment: g.Commitment, Handle: g.Handles[i]}
}

func (g GroupedCiphertext) Equal(o GroupedCiphertext) bool {
	return g.Commitment.Equal(&o.Commitment) &&
		g.Handles[0].Equal(&o.Handles[0]) &&
		g.Handles[1].Equal(&o.Handles[1])
}
