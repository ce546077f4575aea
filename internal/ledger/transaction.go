package ledger

import (
	"context"

	"github.com/fxamacker/cbor/v2"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"

	"ctoken/internal/address"
	"ctoken/internal/signer"
	"ctoken/internal/token"
)

// Message is the signed part of a transaction.
type Message struct {
	FeePayer     address.Address
	Anchor       Anchor
	Instructions []token.Instruction
}

// Signature binds a signer's public key to its signature over the message.
type Signature struct {
	PublicKey []byte
	Signature []byte
}

// Transaction is a signed message. Its instructions apply atomically.
type Transaction struct {
	Message    Message
	Signatures []Signature
}

var encMode cbor.EncMode

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
}

// Bytes is the canonical encoding signed by every signer.
func (m *Message) Bytes() ([]byte, error) {
	data, err := encMode.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "encode message")
	}
	return data, nil
}

// NewTransaction signs instructions with the fee payer and the extra signers.
// Duplicate signers sign once.
func NewTransaction(anchor Anchor, feePayer signer.Signer, ixs []token.Instruction, signers ...signer.Signer) (*Transaction, error) {
	tx := &Transaction{Message: Message{
		FeePayer:     feePayer.Address(),
		Anchor:       anchor,
		Instructions: ixs,
	}}
	msg, err := tx.Message.Bytes()
	if err != nil {
		return nil, err
	}
	seen := make(map[address.Address]bool)
	for _, s := range append([]signer.Signer{feePayer}, signers...) {
		if s == nil || seen[s.Address()] {
			continue
		}
		seen[s.Address()] = true
		sig, err := s.Sign(msg)
		if err != nil {
			return nil, errors.Wrapf(err, "sign transaction as %s", s.Address())
		}
		tx.Signatures = append(tx.Signatures, Signature{PublicKey: s.PublicKey(), Signature: sig})
	}
	return tx, nil
}

// ID is the base58 SHA3-256 digest of the message.
func (tx *Transaction) ID() (string, error) {
	msg, err := tx.Message.Bytes()
	if err != nil {
		return "", err
	}
	sum := sha3.Sum256(msg)
	return base58.Encode(sum[:]), nil
}

// VerifySignatures checks every signature and returns the set of signing
// addresses.
func (tx *Transaction) VerifySignatures() (map[address.Address]bool, error) {
	msg, err := tx.Message.Bytes()
	if err != nil {
		return nil, Reject(CodeInvalidInstruction, -1, "%v", err)
	}
	signed := make(map[address.Address]bool, len(tx.Signatures))
	for _, s := range tx.Signatures {
		if !signer.Verify(s.PublicKey, msg, s.Signature) {
			return nil, Reject(CodeInvalidSignature, -1, "bad signature")
		}
		addr, err := address.FromPublicKey(s.PublicKey)
		if err != nil {
			return nil, Reject(CodeInvalidSignature, -1, "%v", err)
		}
		signed[addr] = true
	}
	if !signed[tx.Message.FeePayer] {
		return nil, Reject(CodeMissingSignature, -1, "fee payer %s did not sign", tx.Message.FeePayer)
	}
	return signed, nil
}

// Encode serializes tx for the wire.
func (tx *Transaction) Encode() ([]byte, error) {
	data, err := encMode.Marshal(tx)
	if err != nil {
		return nil, errors.Wrap(err, "encode transaction")
	}
	return data, nil
}

// DecodeTransaction parses the output of Encode.
func DecodeTransaction(data []byte) (*Transaction, error) {
	var tx Transaction
	if err := cbor.Unmarshal(data, &tx); err != nil {
		return nil, errors.Wrap(err, "decode transaction")
	}
	return &tx, nil
}

// Send builds a transaction on the latest anchor and submits it.
func Send(ctx context.Context, c Client, feePayer signer.Signer, ixs []token.Instruction, signers ...signer.Signer) (*Receipt, error) {
	anchor, err := c.LatestAnchor(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "latest anchor")
	}
	tx, err := NewTransaction(anchor, feePayer, ixs, signers...)
	if err != nil {
		return nil, err
	}
	return c.SubmitAndConfirm(ctx, tx)
}
