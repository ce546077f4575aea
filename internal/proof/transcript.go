package proof

import (
	"bytes"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	"github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	"golang.org/x/crypto/sha3"

	"ctoken/internal/elgamal"
)

// transcript is a Fiat-Shamir transcript. Challenges are 512-bit SHA3 digests
// reduced into the scalar field.
type transcript struct {
	buf bytes.Buffer
}

func newTranscript(domain string) *transcript {
	t := &transcript{}
	t.appendMessage("dom-sep", []byte(domain))
	return t
}

func (t *transcript) appendMessage(label string, msg []byte) {
	t.buf.WriteString(label)
	t.buf.WriteByte(byte(len(msg) >> 8))
	t.buf.WriteByte(byte(len(msg)))
	t.buf.Write(msg)
}

func (t *transcript) appendPoint(label string, p bls12377.G1Affine) {
	t.appendMessage(label, elgamal.MarshalPoint(p))
}

func (t *transcript) challenge(label string) fr.Element {
	t.buf.WriteString(label)
	digest := sha3.Sum512(t.buf.Bytes())
	t.buf.Write(digest[:])
	var c fr.Element
	c.SetBytes(digest[:])
	return c
}
