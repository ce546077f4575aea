package elgamal

import (
	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	"github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
)

// Opening is the blinding scalar r of a Pedersen commitment.
type Opening struct {
	scalar fr.Element
}

// Commitment is C = vG + rH.
type Commitment struct {
	Point bls12377.G1Affine
}

// NewOpening draws fresh commitment randomness.
func NewOpening() (Opening, error) {
	s, err := RandomScalar()
	if err != nil {
		return Opening{}, err
	}
	return Opening{scalar: s}, nil
}

// OpeningFromScalar wraps an existing scalar.
func OpeningFromScalar(s fr.Element) Opening {
	return Opening{scalar: s}
}

func (o Opening) Scalar() fr.Element {
	return o.scalar
}

// Add returns o + x.
func (o Opening) Add(x Opening) Opening {
	var s fr.Element
	s.Add(&o.scalar, &x.scalar)
	return Opening{scalar: s}
}

// Sub returns o - x.
func (o Opening) Sub(x Opening) Opening {
	var s fr.Element
	s.Sub(&o.scalar, &x.scalar)
	return Opening{scalar: s}
}

// Commit computes vG + rH.
func Commit(value uint64, r Opening) Commitment {
	vg := mulUint(&G, value)
	rh := mul(&H, &r.scalar)
	return Commitment{Point: add(vg, rh)}
}

// Verify reports whether c opens to (value, r).
func (c Commitment) Verify(value uint64, r Opening) bool {
	expected := Commit(value, r)
	return c.Point.Equal(&expected.Point)
}

func (c Commitment) Equal(o Commitment) bool {
	return c.Point.Equal(&o.Point)
}
