package proof

import (
	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	"github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	"github.com/pkg/errors"

	"ctoken/internal/elgamal"
)

// Point is a compressed G1 point inside a proof.
type Point [elgamal.PointSize]byte

// Scalar is a canonical big-endian scalar inside a proof.
type Scalar [elgamal.ScalarSize]byte

func pointOf(p bls12377.G1Affine) Point {
	return Point(p.Bytes())
}

func (p Point) decode() (bls12377.G1Affine, error) {
	pt, err := elgamal.UnmarshalPoint(p[:])
	if err != nil {
		return pt, errors.Wrap(ErrInvalidProof, err.Error())
	}
	return pt, nil
}

func scalarOf(s fr.Element) Scalar {
	return Scalar(s.Bytes())
}

func (s Scalar) decode() (fr.Element, error) {
	var e fr.Element
	if err := e.SetBytesCanonical(s[:]); err != nil {
		return e, errors.Wrap(ErrInvalidProof, "non-canonical scalar")
	}
	return e, nil
}

func decodePoints(ps ...Point) ([]bls12377.G1Affine, error) {
	out := make([]bls12377.G1Affine, len(ps))
	for i, p := range ps {
		pt, err := p.decode()
		if err != nil {
			return nil, err
		}
		out[i] = pt
	}
	return out, nil
}

func decodeScalars(ss ...Scalar) ([]fr.Element, error) {
	out := make([]fr.Element, len(ss))
	for i, s := range ss {
		e, err := s.decode()
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

// lin computes a·P + b·Q.
func lin(a fr.Element, p bls12377.G1Affine, b fr.Element, q bls12377.G1Affine) bls12377.G1Affine {
	return elgamal.AddPoints(elgamal.MulPoint(p, a), elgamal.MulPoint(q, b))
}

// response computes c·w + y.
func response(c, w, y fr.Element) fr.Element {
	var z fr.Element
	z.Mul(&c, &w).Add(&z, &y)
	return z
}

func randomScalars(n int) ([]fr.Element, error) {
	out := make([]fr.Element, n)
	for i := range out {
		s, err := elgamal.RandomScalar()
		if err != nil {
			return nil, errors.Wrap(ErrProofGeneration, err.Error())
		}
		out[i] = s
	}
	return out, nil
}

// DecodeScalar parses a canonical scalar.
func DecodeScalar(s Scalar) (fr.Element, error) {
	return s.decode()
}
