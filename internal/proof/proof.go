// Package proof produces and verifies the zero-knowledge statements a
// confidential account needs: a public key validity proof embedded in the
// configure instruction, and the equality, ciphertext validity and range
// proofs staged in proof contexts ahead of a withdraw or transfer.
package proof

import (
	"sort"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

var (
	ErrProofGeneration = errors.New("proof generation failed")
	ErrInvalidProof    = errors.New("invalid proof")
)

// Kind identifies the statement held by a proof context.
type Kind uint8

const (
	KindEquality Kind = iota + 1
	KindCiphertextValidity
	KindRange
)

func (k Kind) String() string {
	switch k {
	case KindEquality:
		return "equality"
	case KindCiphertextValidity:
		return "ciphertext-validity"
	case KindRange:
		return "range"
	default:
		return "unknown"
	}
}

// Valid reports whether k names a context kind.
func (k Kind) Valid() bool {
	return k >= KindEquality && k <= KindRange
}

// ParseKind is the inverse of String.
func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{KindEquality, KindCiphertextValidity, KindRange} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, errors.Errorf("unknown proof kind %q", s)
}

// Bundle holds the encoded proof payloads of one operation attempt, keyed by
// kind. A bundle is built from the state observed at generation time and
// must not outlive that state.
type Bundle map[Kind][]byte

// Kinds returns the kinds in the bundle in ascending order.
func (b Bundle) Kinds() []Kind {
	kinds := make([]Kind, 0, len(b))
	for k := range b {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if decMode, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic(err)
	}
}

func encode(v any) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encode proof")
	}
	return data, nil
}

func decode(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return errors.Wrap(ErrInvalidProof, err.Error())
	}
	return nil
}

// DecodeEquality decodes an equality context payload.
func DecodeEquality(data []byte) (*EqualityProof, error) {
	var p EqualityProof
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodeValidity decodes a ciphertext validity context payload.
func DecodeValidity(data []byte) (*ValidityProof, error) {
	var p ValidityProof
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodeRange decodes a range context payload.
func DecodeRange(data []byte) (*RangeProof, error) {
	var p RangeProof
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Encode returns the payload encoding of a proof.
func Encode(p any) ([]byte, error) {
	return encode(p)
}
