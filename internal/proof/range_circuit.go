package proof

import (
	"math/big"

	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/algebra/native/sw_bls12377"
)

// rangeShift is added to every committed value inside the circuit so the
// scalar fed to ScalarMul is never zero. Public commitments carry the same
// shift: C' = C + 2^128 G.
var rangeShift = new(big.Int).Lsh(big.NewInt(1), 128)

// RangeCircuit proves that each public commitment C_i' - 2^128 G opens to a
// value of at most BitLengths[i] bits.
type RangeCircuit struct {
	Commitments []sw_bls12377.G1Affine `gnark:",public"`
	G           sw_bls12377.G1Affine   `gnark:",public"`
	H           sw_bls12377.G1Affine   `gnark:",public"`

	Values   []frontend.Variable
	Openings []frontend.Variable

	BitLengths []int `gnark:"-"`
}

// newRangeCircuit allocates a circuit shaped for bits.
func newRangeCircuit(bits []int) *RangeCircuit {
	return &RangeCircuit{
		Commitments: make([]sw_bls12377.G1Affine, len(bits)),
		Values:      make([]frontend.Variable, len(bits)),
		Openings:    make([]frontend.Variable, len(bits)),
		BitLengths:  append([]int(nil), bits...),
	}
}

func (c *RangeCircuit) Define(api frontend.API) error {
	for i := range c.Commitments {
		api.ToBinary(c.Values[i], c.BitLengths[i])

		shifted := api.Add(c.Values[i], rangeShift)
		acc := new(sw_bls12377.G1Affine)
		acc.ScalarMul(api, c.G, shifted)
		blind := new(sw_bls12377.G1Affine)
		blind.ScalarMul(api, c.H, c.Openings[i])
		acc.AddAssign(api, *blind)

		api.AssertIsEqual(c.Commitments[i].X, acc.X)
		api.AssertIsEqual(c.Commitments[i].Y, acc.Y)
	}
	return nil
}
