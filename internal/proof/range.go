package proof

import (
	"github.com/pkg/errors"

	"ctoken/internal/elgamal"
)

// RangeLayout names a fixed list of bit lengths proven together.
type RangeLayout string

const (
	// WithdrawRange bounds the remaining available balance.
	WithdrawRange RangeLayout = "withdraw"
	// TransferRange bounds the remaining balance and the lo/hi amount parts.
	TransferRange RangeLayout = "transfer"
)

// Amount split used by transfers and deposits.
const (
	LoBits = 16
	HiBits = 32
	// MaxAmount is the exclusive bound of a single credit.
	MaxAmount = uint64(1) << (LoBits + HiBits)
	// BalanceBits bounds every available balance.
	BalanceBits = 64
)

var rangeLayouts = map[RangeLayout][]int{
	WithdrawRange: {BalanceBits},
	TransferRange: {BalanceBits, LoBits, HiBits},
}

// Bits returns the bit lengths of layout l.
func (l RangeLayout) Bits() ([]int, error) {
	bits, ok := rangeLayouts[l]
	if !ok {
		return nil, errors.Errorf("unknown range layout %q", l)
	}
	return bits, nil
}

// RangeOpening is the secret side of one committed value.
type RangeOpening struct {
	Value   uint64
	Opening elgamal.Opening
}

// RangeProof is the payload of a range context. Proof is opaque to everyone
// but the RangeVerifier that matches the prover.
type RangeProof struct {
	Layout      RangeLayout
	Commitments []elgamal.Commitment
	Proof       []byte
}

// RangeProver proves commitments to openings lie in the layout's ranges.
type RangeProver interface {
	ProveRange(layout RangeLayout, openings []RangeOpening) (*RangeProof, error)
}

// RangeVerifier checks a RangeProof.
type RangeVerifier interface {
	VerifyRange(p *RangeProof) error
}

// SplitAmount returns the 16-bit lo and 32-bit hi parts of amount.
func SplitAmount(amount uint64) (lo, hi uint64, err error) {
	if amount >= MaxAmount {
		return 0, 0, errors.Errorf("amount %d exceeds %d bits", amount, LoBits+HiBits)
	}
	return amount & (1<<LoBits - 1), amount >> LoBits, nil
}

// checkOpenings validates openings against the layout before proving.
func checkOpenings(layout RangeLayout, openings []RangeOpening) ([]int, error) {
	bits, err := layout.Bits()
	if err != nil {
		return nil, err
	}
	if len(openings) != len(bits) {
		return nil, errors.Errorf("range layout %s needs %d openings, got %d", layout, len(bits), len(openings))
	}
	for i, o := range openings {
		if bits[i] < 64 && o.Value>>uint(bits[i]) != 0 {
			return nil, errors.Errorf("value %d does not fit in %d bits", o.Value, bits[i])
		}
	}
	return bits, nil
}

// checkShape validates the public side of a range proof.
func checkShape(p *RangeProof) ([]int, error) {
	bits, err := p.Layout.Bits()
	if err != nil {
		return nil, errors.Wrap(ErrInvalidProof, err.Error())
	}
	if len(p.Commitments) != len(bits) {
		return nil, errors.Wrap(ErrInvalidProof, "range commitment count")
	}
	return bits, nil
}
