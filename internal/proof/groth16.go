package proof

import (
	"bytes"
	"math/big"
	"path/filepath"
	"sync"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/consensys/gnark/std/algebra/native/sw_bls12377"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"ctoken/internal/elgamal"
)

type rangeKeys struct {
	ccs constraint.ConstraintSystem
	pk  groth16.ProvingKey
	vk  groth16.VerifyingKey
}

// Groth16Range proves and verifies range statements with Groth16 over
// BW6-761, whose scalar field is the BLS12-377 base field.
type Groth16Range struct {
	dir    string
	logger *zap.Logger

	mu   sync.Mutex
	keys map[RangeLayout]*rangeKeys
}

var (
	_ RangeProver   = (*Groth16Range)(nil)
	_ RangeVerifier = (*Groth16Range)(nil)
)

// NewGroth16Range returns a range backend caching its keys under dir.
func NewGroth16Range(dir string, logger *zap.Logger) *Groth16Range {
	return &Groth16Range{
		dir:    dir,
		logger: logger.Named("groth16"),
		keys:   make(map[RangeLayout]*rangeKeys),
	}
}

// Warm compiles every layout and loads or generates its keys.
func (g *Groth16Range) Warm() error {
	for _, l := range []RangeLayout{WithdrawRange, TransferRange} {
		if _, err := g.load(l); err != nil {
			return err
		}
	}
	return nil
}

// Fingerprints loads every layout and returns its verifying key fingerprint.
func (g *Groth16Range) Fingerprints() (map[RangeLayout]string, error) {
	out := make(map[RangeLayout]string, 2)
	for _, l := range []RangeLayout{WithdrawRange, TransferRange} {
		k, err := g.load(l)
		if err != nil {
			return nil, err
		}
		fp, err := KeyFingerprint(k.vk)
		if err != nil {
			return nil, err
		}
		out[l] = fp
	}
	return out, nil
}

func (g *Groth16Range) load(layout RangeLayout) (*rangeKeys, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if k, ok := g.keys[layout]; ok {
		return k, nil
	}
	bits, err := layout.Bits()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	ccs, err := frontend.Compile(ecc.BW6_761.ScalarField(), r1cs.NewBuilder, newRangeCircuit(bits))
	if err != nil {
		return nil, errors.Wrap(err, "compile range circuit")
	}
	pkPath := filepath.Join(g.dir, "range_"+string(layout)+".pk")
	vkPath := filepath.Join(g.dir, "range_"+string(layout)+".vk")
	pk, vk, generated, err := SetupOrLoadKeys(ccs, pkPath, vkPath)
	if err != nil {
		return nil, err
	}
	g.logger.Info("range keys ready",
		zap.String("layout", string(layout)),
		zap.Int("constraints", ccs.GetNbConstraints()),
		zap.Bool("generated", generated),
		zap.Duration("took", time.Since(start)),
	)
	k := &rangeKeys{ccs: ccs, pk: pk, vk: vk}
	g.keys[layout] = k
	return k, nil
}

func (g *Groth16Range) ProveRange(layout RangeLayout, openings []RangeOpening) (*RangeProof, error) {
	bits, err := checkOpenings(layout, openings)
	if err != nil {
		return nil, errors.Wrap(ErrProofGeneration, err.Error())
	}
	k, err := g.load(layout)
	if err != nil {
		return nil, errors.Wrap(ErrProofGeneration, err.Error())
	}

	assignment := newRangeCircuit(bits)
	assignment.G = toGnarkPoint(elgamal.G)
	assignment.H = toGnarkPoint(elgamal.H)
	commitments := make([]elgamal.Commitment, len(openings))
	for i, o := range openings {
		commitments[i] = elgamal.Commit(o.Value, o.Opening)
		assignment.Commitments[i] = toGnarkPoint(shiftCommitment(commitments[i]))
		assignment.Values[i] = new(big.Int).SetUint64(o.Value)
		r := o.Opening.Scalar()
		assignment.Openings[i] = r.BigInt(new(big.Int))
	}

	w, err := frontend.NewWitness(assignment, ecc.BW6_761.ScalarField())
	if err != nil {
		return nil, errors.Wrap(ErrProofGeneration, "witness: "+err.Error())
	}
	p, err := groth16.Prove(k.ccs, k.pk, w)
	if err != nil {
		return nil, errors.Wrap(ErrProofGeneration, err.Error())
	}
	var buf bytes.Buffer
	if _, err := p.WriteTo(&buf); err != nil {
		return nil, errors.Wrap(ErrProofGeneration, "marshal proof: "+err.Error())
	}
	return &RangeProof{Layout: layout, Commitments: commitments, Proof: buf.Bytes()}, nil
}

func (g *Groth16Range) VerifyRange(rp *RangeProof) error {
	bits, err := checkShape(rp)
	if err != nil {
		return err
	}
	k, err := g.load(rp.Layout)
	if err != nil {
		return errors.Wrap(err, "range keys")
	}

	assignment := newRangeCircuit(bits)
	assignment.G = toGnarkPoint(elgamal.G)
	assignment.H = toGnarkPoint(elgamal.H)
	for i, c := range rp.Commitments {
		assignment.Commitments[i] = toGnarkPoint(shiftCommitment(c))
	}
	w, err := frontend.NewWitness(assignment, ecc.BW6_761.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return errors.Wrap(ErrInvalidProof, "public witness: "+err.Error())
	}
	p := groth16.NewProof(ecc.BW6_761)
	if _, err := p.ReadFrom(bytes.NewReader(rp.Proof)); err != nil {
		return errors.Wrap(ErrInvalidProof, "unmarshal proof: "+err.Error())
	}
	if err := groth16.Verify(p, k.vk, w); err != nil {
		return errors.Wrap(ErrInvalidProof, "range: "+err.Error())
	}
	return nil
}

func shiftCommitment(c elgamal.Commitment) bls12377.G1Affine {
	var shift bls12377.G1Affine
	shift.ScalarMultiplication(&elgamal.G, rangeShift)
	return elgamal.AddPoints(c.Point, shift)
}

// toGnarkPoint converts a native BLS12-377 point to its circuit form.
func toGnarkPoint(p bls12377.G1Affine) sw_bls12377.G1Affine {
	return sw_bls12377.G1Affine{
		X: p.X.BigInt(new(big.Int)),
		Y: p.Y.BigInt(new(big.Int)),
	}
}
