package signer

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudflare/circl/sign/ed448"
	"github.com/pkg/errors"

	"ctoken/internal/address"
)

var ErrSignatureRejected = errors.New("signer refused to sign")

// Signer authorizes ledger operations. Implementations must produce
// deterministic signatures: encryption keys are derived from them.
type Signer interface {
	Address() address.Address
	PublicKey() []byte
	Sign(message []byte) ([]byte, error)
}

// Ed448 is an in-memory Ed448 signing key.
type Ed448 struct {
	private ed448.PrivateKey
	public  ed448.PublicKey
	addr    address.Address
}

var _ Signer = (*Ed448)(nil)

// NewEd448 generates a fresh signing key.
func NewEd448() (*Ed448, error) {
	pub, priv, err := ed448.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "new ed448")
	}
	return fromKeys(priv, pub)
}

// Ed448FromSeed rebuilds a signing key from its 57 byte seed.
func Ed448FromSeed(seed []byte) (*Ed448, error) {
	if len(seed) != ed448.SeedSize {
		return nil, errors.Errorf("ed448 seed: expected %d bytes, got %d", ed448.SeedSize, len(seed))
	}
	priv := ed448.NewKeyFromSeed(seed)
	return fromKeys(priv, priv.Public().(ed448.PublicKey))
}

func fromKeys(priv ed448.PrivateKey, pub ed448.PublicKey) (*Ed448, error) {
	addr, err := address.FromPublicKey(pub)
	if err != nil {
		return nil, errors.Wrap(err, "ed448 address")
	}
	return &Ed448{private: priv, public: pub, addr: addr}, nil
}

func (e *Ed448) Address() address.Address { return e.addr }

func (e *Ed448) PublicKey() []byte { return []byte(e.public) }

func (e *Ed448) Seed() []byte { return e.private.Seed() }

// Sign implements Signer. Ed448 signatures are deterministic.
func (e *Ed448) Sign(message []byte) ([]byte, error) {
	return ed448.Sign(e.private, message, ""), nil
}

// Verify checks an Ed448 signature against a raw public key.
func Verify(publicKey, message, signature []byte) bool {
	if len(publicKey) != ed448.PublicKeySize || len(signature) != ed448.SignatureSize {
		return false
	}
	return ed448.Verify(ed448.PublicKey(publicKey), message, signature, "")
}

// LoadEd448 reads a hex encoded seed written by SaveEd448.
func LoadEd448(path string) (*Ed448, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "load ed448")
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, errors.Wrap(err, "load ed448")
	}
	return Ed448FromSeed(seed)
}

// SaveEd448 writes the seed of e to path with owner-only permissions.
func SaveEd448(path string, e *Ed448) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(err, "save ed448")
	}
	return errors.Wrap(
		os.WriteFile(path, []byte(hex.EncodeToString(e.Seed())+"\n"), 0o600),
		"save ed448",
	)
}
