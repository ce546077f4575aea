// curve.go - BLS12-377 group helpers shared by the encryption and commitment schemes.
//
// G is the standard G1 generator and carries amounts; H is hashed to the curve so
// nobody knows log_G(H). Both are fixed for the lifetime of the ledger.

package elgamal

import (
	"math/big"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	"github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	"github.com/pkg/errors"
)

// PointSize is the compressed size of a G1 point.
const PointSize = bls12377.SizeOfG1AffineCompressed

// ScalarSize is the byte size of a scalar.
const ScalarSize = fr.Bytes

var (
	G bls12377.G1Affine
	H bls12377.G1Affine
)

var pedersenDST = []byte("CTOKEN-V01-CS01-with-BLS12377G1_XMD:SHA-256_SSWU_RO_")

func init() {
	_, _, g1, _ := bls12377.Generators()
	G = g1

	h, err := bls12377.HashToG1([]byte("ctoken pedersen base H"), pedersenDST)
	if err != nil {
		panic(errors.Wrap(err, "derive pedersen base"))
	}
	H = h
}

// RandomScalar returns a uniformly random non-zero scalar.
func RandomScalar() (fr.Element, error) {
	var s fr.Element
	for s.IsZero() {
		if _, err := s.SetRandom(); err != nil {
			return s, errors.Wrap(err, "random scalar")
		}
	}
	return s, nil
}

func mul(p *bls12377.G1Affine, s *fr.Element) bls12377.G1Affine {
	var out bls12377.G1Affine
	out.ScalarMultiplication(p, s.BigInt(new(big.Int)))
	return out
}

func mulUint(p *bls12377.G1Affine, v uint64) bls12377.G1Affine {
	var out bls12377.G1Affine
	out.ScalarMultiplication(p, new(big.Int).SetUint64(v))
	return out
}

func add(a, b bls12377.G1Affine) bls12377.G1Affine {
	var out bls12377.G1Affine
	out.Add(&a, &b)
	return out
}

func sub(a, b bls12377.G1Affine) bls12377.G1Affine {
	var out bls12377.G1Affine
	out.Sub(&a, &b)
	return out
}

// MulPoint multiplies p by s.
func MulPoint(p bls12377.G1Affine, s fr.Element) bls12377.G1Affine {
	return mul(&p, &s)
}

// AddPoints adds the given points.
func AddPoints(points ...bls12377.G1Affine) bls12377.G1Affine {
	var acc bls12377.G1Affine
	for _, p := range points {
		acc = add(acc, p)
	}
	return acc
}

// SubPoints returns a - b.
func SubPoints(a, b bls12377.G1Affine) bls12377.G1Affine {
	return sub(a, b)
}

// MarshalPoint returns the compressed encoding of p.
func MarshalPoint(p bls12377.G1Affine) []byte {
	b := p.Bytes()
	return b[:]
}

// UnmarshalPoint decodes a compressed point and checks subgroup membership.
func UnmarshalPoint(data []byte) (bls12377.G1Affine, error) {
	var p bls12377.G1Affine
	if len(data) != PointSize {
		return p, errors.Errorf("point: expected %d bytes, got %d", PointSize, len(data))
	}
	if _, err := p.SetBytes(data); err != nil {
		return p, errors.Wrap(err, "point")
	}
	return p, nil
}

// ScalarFromUint returns v as a scalar.
func ScalarFromUint(v uint64) fr.Element {
	var s fr.Element
	s.SetUint64(v)
	return s
}
