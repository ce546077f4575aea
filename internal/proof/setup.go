// setup.go - Groth16 key persistence for the range circuits.
//
// Keys are generated once per circuit layout and cached on disk. Every party
// that proves or verifies range contexts must load the same key files.

package proof

import (
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"
)

// ErrKeyMismatch is returned when two parties hold different range keys.
var ErrKeyMismatch = errors.New("range circuit keys differ")

// SaveProvingKey writes a Groth16 proving key to path.
func SaveProvingKey(path string, pk groth16.ProvingKey) error {
	return writeKey(path, "proving key", pk)
}

// SaveVerifyingKey writes a Groth16 verifying key to path.
func SaveVerifyingKey(path string, vk groth16.VerifyingKey) error {
	return writeKey(path, "verifying key", vk)
}

// writeKey also fails when closing the file fails.
func writeKey(path, what string, key io.WriterTo) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create "+what)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "close "+what)
		}
	}()
	if _, err := key.WriteTo(f); err != nil {
		return errors.Wrap(err, "write "+what)
	}
	return nil
}

// LoadProvingKey reads a BW6-761 proving key.
func LoadProvingKey(path string) (groth16.ProvingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pk := groth16.NewProvingKey(ecc.BW6_761)
	if _, err := pk.ReadFrom(f); err != nil {
		return nil, errors.Wrap(err, "read proving key")
	}
	return pk, nil
}

// LoadVerifyingKey reads a BW6-761 verifying key.
func LoadVerifyingKey(path string) (groth16.VerifyingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	vk := groth16.NewVerifyingKey(ecc.BW6_761)
	if _, err := vk.ReadFrom(f); err != nil {
		return nil, errors.Wrap(err, "read verifying key")
	}
	return vk, nil
}

// SetupOrLoadKeys loads the key pair from disk, or runs the Groth16 setup for
// ccs and saves the result when either file is missing or unreadable.
func SetupOrLoadKeys(ccs constraint.ConstraintSystem, pkPath, vkPath string) (groth16.ProvingKey, groth16.VerifyingKey, bool, error) {
	pk, pkErr := LoadProvingKey(pkPath)
	vk, vkErr := LoadVerifyingKey(vkPath)
	if pkErr == nil && vkErr == nil {
		return pk, vk, false, nil
	}
	if err := os.MkdirAll(filepath.Dir(pkPath), 0o755); err != nil {
		return nil, nil, false, errors.Wrap(err, "key dir")
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, nil, false, errors.Wrap(err, "groth16 setup")
	}
	if err := SaveProvingKey(pkPath, pk); err != nil {
		return nil, nil, false, err
	}
	if err := SaveVerifyingKey(vkPath, vk); err != nil {
		return nil, nil, false, err
	}
	return pk, vk, true, nil
}

// KeyFingerprint is the hex sha3-256 digest of a serialized verifying key.
func KeyFingerprint(vk io.WriterTo) (string, error) {
	h := sha3.New256()
	if _, err := vk.WriteTo(h); err != nil {
		return "", errors.Wrap(err, "hash verifying key")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// MatchFingerprints fails with ErrKeyMismatch naming every layout whose
// local fingerprint is absent from remote or differs from it.
func MatchFingerprints(local, remote map[RangeLayout]string) error {
	var bad []string
	for layout, fp := range local {
		if remote[layout] != fp {
			bad = append(bad, string(layout))
		}
	}
	if len(bad) == 0 {
		return nil
	}
	sort.Strings(bad)
	return errors.Wrapf(ErrKeyMismatch, "layouts %v: prover and ledger must share circuitDir", bad)
}
