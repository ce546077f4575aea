package elgamal

import (
	"sync"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	"github.com/pkg/errors"
)

const (
	babySteps  = 1 << 16
	giantSteps = 1 << 16
)

// DiscreteLogBound is the exclusive upper bound of amounts Decrypt can recover.
const DiscreteLogBound = uint64(babySteps) * uint64(giantSteps)

var ErrDiscreteLog = errors.New("discrete log out of range")

var (
	dlogOnce  sync.Once
	dlogTable map[[PointSize]byte]uint32
	dlogGiant bls12377.G1Affine
)

func buildDiscreteLogTable() {
	jac := make([]bls12377.G1Jac, babySteps)
	var gJac bls12377.G1Jac
	gJac.FromAffine(&G)
	// jac[0] stays the point at infinity
	for j := 1; j < babySteps; j++ {
		jac[j].Set(&jac[j-1])
		jac[j].AddAssign(&gJac)
	}
	points := bls12377.BatchJacobianToAffineG1(jac)

	dlogTable = make(map[[PointSize]byte]uint32, babySteps)
	for j := range points {
		dlogTable[points[j].Bytes()] = uint32(j)
	}
	step := mulUint(&G, babySteps)
	dlogGiant.Neg(&step)
}

// DiscreteLog returns m such that p = mG for m < DiscreteLogBound, using
// baby-step giant-step over a lazily built table.
func DiscreteLog(p bls12377.G1Affine) (uint64, error) {
	dlogOnce.Do(buildDiscreteLogTable)

	gamma := p
	for i := uint64(0); i < giantSteps; i++ {
		if j, ok := dlogTable[gamma.Bytes()]; ok {
			return i*babySteps + uint64(j), nil
		}
		gamma.Add(&gamma, &dlogGiant)
	}
	return 0, ErrDiscreteLog
}
