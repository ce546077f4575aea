// sigma.go - Fiat-Shamir sigma protocols over the twisted ElGamal keys.
//
//	pubkey validity:   knowledge of s with sP = H
//	equality:          (C_e, D_e) under P and C_r = xG + rH hold the same x
//	grouped validity:  C = xG + rH, D_i = rP_i for both handles

package proof

import (
	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	"github.com/pkg/errors"

	"ctoken/internal/elgamal"
)

// PubkeyValidityProof shows the prover knows the secret behind Pubkey.
type PubkeyValidityProof struct {
	Pubkey elgamal.PublicKey
	Y      Point
	Z      Scalar
}

// EqualityProof binds an ElGamal ciphertext to a Pedersen commitment of the
// same value. The commitment is what the range proof then bounds.
type EqualityProof struct {
	Pubkey     elgamal.PublicKey
	Ciphertext elgamal.Ciphertext
	Commitment elgamal.Commitment
	Y0         Point
	Y1         Point
	Y2         Point
	Zs         Scalar
	Zx         Scalar
	Zr         Scalar
}

// ValidityProof shows the lo and hi grouped ciphertexts of a transfer are
// well formed under the source and destination keys.
type ValidityProof struct {
	Pubkeys [2]elgamal.PublicKey
	Lo      elgamal.GroupedCiphertext
	Hi      elgamal.GroupedCiphertext
	Parts   [2]ValidityPart
}

// ValidityPart is the sigma transcript for one grouped ciphertext.
type ValidityPart struct {
	Y0 Point
	Y1 Point
	Y2 Point
	Zx Scalar
	Zr Scalar
}

// ProvePubkeyValidity builds the proof for kp.
func ProvePubkeyValidity(kp *elgamal.Keypair) (*PubkeyValidityProof, error) {
	ys, err := randomScalars(1)
	if err != nil {
		return nil, err
	}
	s := kp.Secret.Scalar()
	Y := elgamal.MulPoint(kp.Public.Point, ys[0])

	t := newTranscript("pubkey-validity")
	t.appendPoint("P", kp.Public.Point)
	t.appendPoint("Y", Y)
	c := t.challenge("c")

	return &PubkeyValidityProof{
		Pubkey: kp.Public,
		Y:      pointOf(Y),
		Z:      scalarOf(response(c, s, ys[0])),
	}, nil
}

// Verify checks zP = cH + Y.
func (p *PubkeyValidityProof) Verify() error {
	if p.Pubkey.Point.IsInfinity() {
		return errors.Wrap(ErrInvalidProof, "pubkey at infinity")
	}
	Y, err := p.Y.decode()
	if err != nil {
		return err
	}
	z, err := p.Z.decode()
	if err != nil {
		return err
	}
	t := newTranscript("pubkey-validity")
	t.appendPoint("P", p.Pubkey.Point)
	t.appendPoint("Y", Y)
	c := t.challenge("c")

	lhs := elgamal.MulPoint(p.Pubkey.Point, z)
	rhs := elgamal.AddPoints(elgamal.MulPoint(elgamal.H, c), Y)
	if !lhs.Equal(&rhs) {
		return errors.Wrap(ErrInvalidProof, "pubkey validity")
	}
	return nil
}

func equalityTranscript(p *EqualityProof) *transcript {
	t := newTranscript("ciphertext-commitment-equality")
	t.appendPoint("P", p.Pubkey.Point)
	t.appendPoint("C_e", p.Ciphertext.Commitment)
	t.appendPoint("D_e", p.Ciphertext.Handle)
	t.appendPoint("C_r", p.Commitment.Point)
	return t
}

// ProveEquality proves that ct, encrypted under kp, and Commit(value, r)
// hold the same value.
func ProveEquality(kp *elgamal.Keypair, ct elgamal.Ciphertext, value uint64, r elgamal.Opening) (*EqualityProof, error) {
	ys, err := randomScalars(3)
	if err != nil {
		return nil, err
	}
	yS, yX, yR := ys[0], ys[1], ys[2]
	s := kp.Secret.Scalar()
	x := elgamal.ScalarFromUint(value)
	rs := r.Scalar()

	p := &EqualityProof{
		Pubkey:     kp.Public,
		Ciphertext: ct,
		Commitment: elgamal.Commit(value, r),
	}
	Y0 := elgamal.MulPoint(kp.Public.Point, yS)
	Y1 := lin(yX, elgamal.G, yS, ct.Handle)
	Y2 := lin(yX, elgamal.G, yR, elgamal.H)

	t := equalityTranscript(p)
	t.appendPoint("Y0", Y0)
	t.appendPoint("Y1", Y1)
	t.appendPoint("Y2", Y2)
	c := t.challenge("c")

	p.Y0, p.Y1, p.Y2 = pointOf(Y0), pointOf(Y1), pointOf(Y2)
	p.Zs = scalarOf(response(c, s, yS))
	p.Zx = scalarOf(response(c, x, yX))
	p.Zr = scalarOf(response(c, rs, yR))
	return p, nil
}

// Verify checks the three equality relations.
func (p *EqualityProof) Verify() error {
	if p.Pubkey.Point.IsInfinity() {
		return errors.Wrap(ErrInvalidProof, "pubkey at infinity")
	}
	Ys, err := decodePoints(p.Y0, p.Y1, p.Y2)
	if err != nil {
		return err
	}
	zs, err := decodeScalars(p.Zs, p.Zx, p.Zr)
	if err != nil {
		return err
	}
	zS, zX, zR := zs[0], zs[1], zs[2]

	t := equalityTranscript(p)
	t.appendPoint("Y0", Ys[0])
	t.appendPoint("Y1", Ys[1])
	t.appendPoint("Y2", Ys[2])
	c := t.challenge("c")

	// zs P = c H + Y0
	lhs := elgamal.MulPoint(p.Pubkey.Point, zS)
	rhs := elgamal.AddPoints(elgamal.MulPoint(elgamal.H, c), Ys[0])
	if !lhs.Equal(&rhs) {
		return errors.Wrap(ErrInvalidProof, "equality: key relation")
	}
	// zx G + zs D_e = c C_e + Y1
	lhs = lin(zX, elgamal.G, zS, p.Ciphertext.Handle)
	rhs = elgamal.AddPoints(elgamal.MulPoint(p.Ciphertext.Commitment, c), Ys[1])
	if !lhs.Equal(&rhs) {
		return errors.Wrap(ErrInvalidProof, "equality: ciphertext relation")
	}
	// zx G + zr H = c C_r + Y2
	lhs = lin(zX, elgamal.G, zR, elgamal.H)
	rhs = elgamal.AddPoints(elgamal.MulPoint(p.Commitment.Point, c), Ys[2])
	if !lhs.Equal(&rhs) {
		return errors.Wrap(ErrInvalidProof, "equality: commitment relation")
	}
	return nil
}

func validityTranscript(p *ValidityProof) *transcript {
	t := newTranscript("grouped-ciphertext-validity")
	t.appendPoint("P_src", p.Pubkeys[0].Point)
	t.appendPoint("P_dst", p.Pubkeys[1].Point)
	for _, g := range []elgamal.GroupedCiphertext{p.Lo, p.Hi} {
		t.appendPoint("C", g.Commitment)
		t.appendPoint("D_src", g.Handles[0])
		t.appendPoint("D_dst", g.Handles[1])
	}
	return t
}

// ProveValidity proves lo and hi are grouped encryptions of loValue and
// hiValue under the source and destination keys.
func ProveValidity(source, destination elgamal.PublicKey, lo, hi elgamal.GroupedCiphertext,
	loValue, hiValue uint64, loOpening, hiOpening elgamal.Opening) (*ValidityProof, error) {
	ys, err := randomScalars(4)
	if err != nil {
		return nil, err
	}
	p := &ValidityProof{
		Pubkeys: [2]elgamal.PublicKey{source, destination},
		Lo:      lo,
		Hi:      hi,
	}
	values := [2]uint64{loValue, hiValue}
	openings := [2]elgamal.Opening{loOpening, hiOpening}

	t := validityTranscript(p)
	var commits [2][3]Point
	for i := 0; i < 2; i++ {
		yX, yR := ys[2*i], ys[2*i+1]
		Y0 := lin(yX, elgamal.G, yR, elgamal.H)
		Y1 := elgamal.MulPoint(source.Point, yR)
		Y2 := elgamal.MulPoint(destination.Point, yR)
		t.appendPoint("Y0", Y0)
		t.appendPoint("Y1", Y1)
		t.appendPoint("Y2", Y2)
		commits[i] = [3]Point{pointOf(Y0), pointOf(Y1), pointOf(Y2)}
	}
	c := t.challenge("c")

	for i := 0; i < 2; i++ {
		yX, yR := ys[2*i], ys[2*i+1]
		p.Parts[i] = ValidityPart{
			Y0: commits[i][0],
			Y1: commits[i][1],
			Y2: commits[i][2],
			Zx: scalarOf(response(c, elgamal.ScalarFromUint(values[i]), yX)),
			Zr: scalarOf(response(c, openings[i].Scalar(), yR)),
		}
	}
	return p, nil
}

// Verify checks both grouped ciphertexts against the shared challenge.
func (p *ValidityProof) Verify() error {
	for _, pk := range p.Pubkeys {
		if pk.Point.IsInfinity() {
			return errors.Wrap(ErrInvalidProof, "pubkey at infinity")
		}
	}
	t := validityTranscript(p)
	var all [2][]bls12377.G1Affine
	for i := 0; i < 2; i++ {
		pts, err := decodePoints(p.Parts[i].Y0, p.Parts[i].Y1, p.Parts[i].Y2)
		if err != nil {
			return err
		}
		for j, label := range []string{"Y0", "Y1", "Y2"} {
			t.appendPoint(label, pts[j])
		}
		all[i] = pts
	}
	c := t.challenge("c")

	for i, g := range []elgamal.GroupedCiphertext{p.Lo, p.Hi} {
		zs, err := decodeScalars(p.Parts[i].Zx, p.Parts[i].Zr)
		if err != nil {
			return err
		}
		zX, zR := zs[0], zs[1]
		Y := all[i]

		lhs := lin(zX, elgamal.G, zR, elgamal.H)
		rhs := elgamal.AddPoints(elgamal.MulPoint(g.Commitment, c), Y[0])
		if !lhs.Equal(&rhs) {
			return errors.Wrap(ErrInvalidProof, "validity: commitment relation")
		}
		for h := 0; h < 2; h++ {
			lhs = elgamal.MulPoint(p.Pubkeys[h].Point, zR)
			rhs = elgamal.AddPoints(elgamal.MulPoint(g.Handles[h], c), Y[h+1])
			if !lhs.Equal(&rhs) {
				return errors.Wrap(ErrInvalidProof, "validity: handle relation")
			}
		}
	}
	return nil
}
