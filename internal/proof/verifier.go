package proof

import (
	"github.com/pkg/errors"
)

// Verifier checks proof context payloads on the ledger side.
type Verifier struct {
	Range RangeVerifier
}

func NewVerifier(rv RangeVerifier) *Verifier {
	return &Verifier{Range: rv}
}

// Verify decodes payload as kind and checks it.
func (v *Verifier) Verify(kind Kind, payload []byte) error {
	switch kind {
	case KindEquality:
		p, err := DecodeEquality(payload)
		if err != nil {
			return err
		}
		return p.Verify()
	case KindCiphertextValidity:
		p, err := DecodeValidity(payload)
		if err != nil {
			return err
		}
		return p.Verify()
	case KindRange:
		p, err := DecodeRange(payload)
		if err != nil {
			return err
		}
		return v.Range.VerifyRange(p)
	default:
		return errors.Wrapf(ErrInvalidProof, "unknown kind %d", kind)
	}
}
