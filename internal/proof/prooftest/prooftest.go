// Package prooftest provides a range backend for tests that reveals the
// committed values instead of proving them. It checks the same statement as
// the Groth16 circuit without the setup cost, and must never be wired into a
// running ledger.
package prooftest

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"ctoken/internal/elgamal"
	"ctoken/internal/proof"
)

type opened struct {
	Value   uint64
	Opening proof.Scalar
}

// OpenRange implements proof.RangeProver and proof.RangeVerifier.
type OpenRange struct{}

var (
	_ proof.RangeProver   = OpenRange{}
	_ proof.RangeVerifier = OpenRange{}
)

func (OpenRange) ProveRange(layout proof.RangeLayout, openings []proof.RangeOpening) (*proof.RangeProof, error) {
	bits, err := layout.Bits()
	if err != nil {
		return nil, errors.Wrap(proof.ErrProofGeneration, err.Error())
	}
	if len(bits) != len(openings) {
		return nil, errors.Wrap(proof.ErrProofGeneration, "opening count")
	}
	rp := &proof.RangeProof{Layout: layout}
	revealed := make([]opened, len(openings))
	for i, o := range openings {
		if bits[i] < 64 && o.Value>>uint(bits[i]) != 0 {
			return nil, errors.Wrapf(proof.ErrProofGeneration, "value %d exceeds %d bits", o.Value, bits[i])
		}
		rp.Commitments = append(rp.Commitments, elgamal.Commit(o.Value, o.Opening))
		s := o.Opening.Scalar()
		revealed[i] = opened{Value: o.Value, Opening: proof.Scalar(s.Bytes())}
	}
	data, err := cbor.Marshal(revealed)
	if err != nil {
		return nil, errors.Wrap(proof.ErrProofGeneration, err.Error())
	}
	rp.Proof = data
	return rp, nil
}

func (OpenRange) VerifyRange(rp *proof.RangeProof) error {
	bits, err := rp.Layout.Bits()
	if err != nil {
		return errors.Wrap(proof.ErrInvalidProof, err.Error())
	}
	var revealed []opened
	if err := cbor.Unmarshal(rp.Proof, &revealed); err != nil {
		return errors.Wrap(proof.ErrInvalidProof, err.Error())
	}
	if len(revealed) != len(bits) || len(rp.Commitments) != len(bits) {
		return errors.Wrap(proof.ErrInvalidProof, "range shape")
	}
	for i, o := range revealed {
		if bits[i] < 64 && o.Value>>uint(bits[i]) != 0 {
			return errors.Wrap(proof.ErrInvalidProof, "value out of range")
		}
		r, err := proof.DecodeScalar(o.Opening)
		if err != nil {
			return err
		}
		if !rp.Commitments[i].Verify(o.Value, elgamal.OpeningFromScalar(r)) {
			return errors.Wrap(proof.ErrInvalidProof, "commitment does not open")
		}
	}
	return nil
}
