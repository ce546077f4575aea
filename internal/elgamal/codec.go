// codec.go - binary and text encodings for keys and ciphertexts.
//
// Binary encodings are used by the cbor instruction and account codecs; the
// text encodings (base64 of the binary form) serve the JSON API and the CLI.

package elgamal

import (
	"encoding/base64"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	"github.com/pkg/errors"
)

const (
	PublicKeySize         = PointSize
	CiphertextSize        = 2 * PointSize
	GroupedCiphertextSize = 3 * PointSize
)

func (p PublicKey) MarshalBinary() ([]byte, error) {
	return MarshalPoint(p.Point), nil
}

func (p *PublicKey) UnmarshalBinary(data []byte) error {
	pt, err := UnmarshalPoint(data)
	if err != nil {
		return errors.Wrap(err, "public key")
	}
	if pt.IsInfinity() {
		return errors.Wrap(ErrInvalidKey, "public key at infinity")
	}
	p.Point = pt
	return nil
}

func (p PublicKey) MarshalText() ([]byte, error) {
	return encodeText(MarshalPoint(p.Point)), nil
}

func (p *PublicKey) UnmarshalText(text []byte) error {
	raw, err := decodeText(text)
	if err != nil {
		return errors.Wrap(err, "public key")
	}
	return p.UnmarshalBinary(raw)
}

func (p PublicKey) String() string {
	return base64.StdEncoding.EncodeToString(MarshalPoint(p.Point))
}

// ParsePublicKey decodes the base64 form produced by String.
func ParsePublicKey(s string) (PublicKey, error) {
	var p PublicKey
	err := p.UnmarshalText([]byte(s))
	return p, err
}

func (ct Ciphertext) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, CiphertextSize)
	out = append(out, MarshalPoint(ct.Commitment)...)
	out = append(out, MarshalPoint(ct.Handle)...)
	return out, nil
}

func (ct *Ciphertext) UnmarshalBinary(data []byte) error {
	if len(data) != CiphertextSize {
		return errors.Errorf("ciphertext: expected %d bytes, got %d", CiphertextSize, len(data))
	}
	pts, err := unmarshalPoints(data, 2)
	if err != nil {
		return errors.Wrap(err, "ciphertext")
	}
	ct.Commitment, ct.Handle = pts[0], pts[1]
	return nil
}

func (ct Ciphertext) MarshalText() ([]byte, error) {
	raw, _ := ct.MarshalBinary()
	return encodeText(raw), nil
}

func (ct *Ciphertext) UnmarshalText(text []byte) error {
	raw, err := decodeText(text)
	if err != nil {
		return errors.Wrap(err, "ciphertext")
	}
	return ct.UnmarshalBinary(raw)
}

func (g GroupedCiphertext) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, GroupedCiphertextSize)
	out = append(out, MarshalPoint(g.Commitment)...)
	out = append(out, MarshalPoint(g.Handles[0])...)
	out = append(out, MarshalPoint(g.Handles[1])...)
	return out, nil
}

func (g *GroupedCiphertext) UnmarshalBinary(data []byte) error {
	if len(data) != GroupedCiphertextSize {
		return errors.Errorf("grouped ciphertext: expected %d bytes, got %d", GroupedCiphertextSize, len(data))
	}
	pts, err := unmarshalPoints(data, 3)
	if err != nil {
		return errors.Wrap(err, "grouped ciphertext")
	}
	g.Commitment, g.Handles[0], g.Handles[1] = pts[0], pts[1], pts[2]
	return nil
}

func (c Commitment) MarshalBinary() ([]byte, error) {
	return MarshalPoint(c.Point), nil
}

func (c *Commitment) UnmarshalBinary(data []byte) error {
	pt, err := UnmarshalPoint(data)
	if err != nil {
		return errors.Wrap(err, "commitment")
	}
	c.Point = pt
	return nil
}

func (a AeCiphertext) MarshalText() ([]byte, error) {
	return encodeText(a[:]), nil
}

func (a *AeCiphertext) UnmarshalText(text []byte) error {
	raw, err := decodeText(text)
	if err != nil {
		return errors.Wrap(err, "ae ciphertext")
	}
	if len(raw) != AeCiphertextSize {
		return errors.Errorf("ae ciphertext: expected %d bytes, got %d", AeCiphertextSize, len(raw))
	}
	copy(a[:], raw)
	return nil
}

func unmarshalPoints(data []byte, n int) ([]bls12377.G1Affine, error) {
	pts := make([]bls12377.G1Affine, n)
	for i := 0; i < n; i++ {
		pt, err := UnmarshalPoint(data[i*PointSize : (i+1)*PointSize])
		if err != nil {
			return nil, err
		}
		pts[i] = pt
	}
	return pts, nil
}

func encodeText(raw []byte) []byte {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out
}

func decodeText(text []byte) ([]byte, error) {
	out := make([]byte, base64.StdEncoding.DecodedLen(len(text)))
	n, err := base64.StdEncoding.Decode(out, text)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}
