// elgamal.go - Twisted ElGamal over BLS12-377 G1.
//
// A keypair is (s, P = s^-1 H). An amount m is encrypted with randomness r as
// the Pedersen commitment C = mG + rH together with the decrypt handle D = rP.
// Decryption recovers mG = C - sD and solves a bounded discrete log.
// Ciphertexts are additively homomorphic, which is what lets the ledger credit
// and debit balances it cannot read.

package elgamal

import (
	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	"github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	"github.com/pkg/errors"
)

var ErrInvalidKey = errors.New("invalid elgamal key")

// PublicKey is P = s^-1 H.
type PublicKey struct {
	Point bls12377.G1Affine
}

// SecretKey is the non-zero scalar s.
type SecretKey struct {
	scalar fr.Element
}

// Keypair bundles a secret key and its public key.
type Keypair struct {
	Secret SecretKey
	Public PublicKey
}

// Ciphertext is (C, D).
type Ciphertext struct {
	Commitment bls12377.G1Affine
	Handle     bls12377.G1Affine
}

// NewKeypair generates a random keypair.
func NewKeypair() (*Keypair, error) {
	s, err := RandomScalar()
	if err != nil {
		return nil, err
	}
	return KeypairFromSecret(s)
}

// KeypairFromSecret builds the keypair for scalar s.
func KeypairFromSecret(s fr.Element) (*Keypair, error) {
	if s.IsZero() {
		return nil, errors.Wrap(ErrInvalidKey, "zero secret")
	}
	var inv fr.Element
	inv.Inverse(&s)
	return &Keypair{
		Secret: SecretKey{scalar: s},
		Public: PublicKey{Point: mul(&H, &inv)},
	}, nil
}

// Scalar exposes the secret scalar to the proof generator.
func (s SecretKey) Scalar() fr.Element {
	return s.scalar
}

func (p PublicKey) Equal(o PublicKey) bool {
	return p.Point.Equal(&o.Point)
}

// Encrypt encrypts amount under pub with fresh randomness and returns the
// opening alongside the ciphertext.
func Encrypt(pub PublicKey, amount uint64) (Ciphertext, Opening, error) {
	r, err := NewOpening()
	if err != nil {
		return Ciphertext{}, Opening{}, err
	}
	return EncryptWithOpening(pub, amount, r), r, nil
}

// EncryptWithOpening encrypts amount using the given randomness.
func EncryptWithOpening(pub PublicKey, amount uint64, r Opening) Ciphertext {
	return Ciphertext{
		Commitment: Commit(amount, r).Point,
		Handle:     pub.DecryptHandle(r),
	}
}

// DecryptHandle returns rP.
func (p PublicKey) DecryptHandle(r Opening) bls12377.G1Affine {
	return mul(&p.Point, &r.scalar)
}

// DecryptPoint returns mG for ct.
func (s SecretKey) DecryptPoint(ct Ciphertext) bls12377.G1Affine {
	sd := mul(&ct.Handle, &s.scalar)
	return sub(ct.Commitment, sd)
}

// Decrypt recovers the amount of ct, provided it is below DiscreteLogBound.
func (s SecretKey) Decrypt(ct Ciphertext) (uint64, error) {
	return DiscreteLog(s.DecryptPoint(ct))
}

// ZeroCiphertext encrypts zero with zero randomness. It is the initial value of
// every balance on the ledger.
func ZeroCiphertext() Ciphertext {
	return Ciphertext{}
}

// Add returns ct + o.
func (ct Ciphertext) Add(o Ciphertext) Ciphertext {
	return Ciphertext{
		Commitment: add(ct.Commitment, o.Commitment),
		Handle:     add(ct.Handle, o.Handle),
	}
}

// Sub returns ct - o.
func (ct Ciphertext) Sub(o Ciphertext) Ciphertext {
	return Ciphertext{
		Commitment: sub(ct.Commitment, o.Commitment),
		Handle:     sub(ct.Handle, o.Handle),
	}
}

// AddAmount adds a public amount without touching the handle.
func (ct Ciphertext) AddAmount(amount uint64) Ciphertext {
	return Ciphertext{
		Commitment: add(ct.Commitment, mulUint(&G, amount)),
		Handle:     ct.Handle,
	}
}

// SubAmount subtracts a public amount without touching the handle.
func (ct Ciphertext) SubAmount(amount uint64) Ciphertext {
	return Ciphertext{
		Commitment: sub(ct.Commitment, mulUint(&G, amount)),
		Handle:     ct.Handle,
	}
}

// Scale multiplies both components by k.
func (ct Ciphertext) Scale(k uint64) Ciphertext {
	return Ciphertext{
		Commitment: mulUint(&ct.Commitment, k),
		Handle:     mulUint(&ct.Handle, k),
	}
}

func (ct Ciphertext) Equal(o Ciphertext) bool {
	return ct.Commitment.Equal(&o.Commitment) && ct.Handle.Equal(&o.Handle)
}

// CombineLoHi returns lo + 2^bits * hi.
func CombineLoHi(lo, hi Ciphertext, bits uint) Ciphertext {
	return lo.Add(hi.Scale(1 << bits))
}
