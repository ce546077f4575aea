package token

import (
	"github.com/pkg/errors"

	"ctoken/internal/address"
	"ctoken/internal/elgamal"
	"ctoken/internal/proof"
)

var ErrWrongState = errors.New("unexpected account state")

// StateKind tags the payload of a program-owned account.
type StateKind uint8

const (
	StateMint StateKind = iota + 1
	StateAccount
	StateContext
)

// State is the data of every account owned by ProgramID.
type State struct {
	Kind    StateKind
	Mint    *Mint         `cbor:",omitempty"`
	Account *Account      `cbor:",omitempty"`
	Context *ContextState `cbor:",omitempty"`
}

type Mint struct {
	Authority   address.Address
	Decimals    uint8
	Supply      uint64
	AutoApprove bool
}

// Account is a token holding. Confidential stays nil until configured.
type Account struct {
	Mint              address.Address
	Owner             address.Address
	Amount            uint64
	ExtensionReserved bool
	Confidential      *ConfidentialExtension `cbor:",omitempty"`
}

// ConfidentialExtension holds the encrypted balances of an account.
type ConfidentialExtension struct {
	Approved             bool
	Pubkey               elgamal.PublicKey
	PendingLo            elgamal.Ciphertext
	PendingHi            elgamal.Ciphertext
	Available            elgamal.Ciphertext
	DecryptableAvailable elgamal.AeCiphertext
	PendingCounter       uint64
	MaxPendingCounter    uint64
}

// ContextState is a verified proof awaiting its consuming instruction.
type ContextState struct {
	Kind      proof.Kind
	Authority address.Address
	Payload   []byte
	Consumed  bool
}

// Space reserved for each state, used for rent.
const (
	MintSpace                  = 82
	AccountSpace               = 165
	ConfidentialExtensionSpace = 1 + elgamal.PublicKeySize + 3*elgamal.CiphertextSize + elgamal.AeCiphertextSize + 16
	ContextHeaderSpace         = 1 + address.Size + 1
)

// Encode serializes s.
func (s *State) Encode() ([]byte, error) {
	data, err := encMode.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "encode state")
	}
	return data, nil
}

// DecodeState parses account data owned by the program.
func DecodeState(data []byte) (*State, error) {
	var s State
	if err := decMode.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "decode state")
	}
	return &s, nil
}

// DecodeAccount parses data as a token account.
func DecodeAccount(data []byte) (*Account, error) {
	s, err := DecodeState(data)
	if err != nil {
		return nil, err
	}
	if s.Kind != StateAccount || s.Account == nil {
		return nil, errors.Wrap(ErrWrongState, "not a token account")
	}
	return s.Account, nil
}

// DecodeMint parses data as a mint.
func DecodeMint(data []byte) (*Mint, error) {
	s, err := DecodeState(data)
	if err != nil {
		return nil, err
	}
	if s.Kind != StateMint || s.Mint == nil {
		return nil, errors.Wrap(ErrWrongState, "not a mint")
	}
	return s.Mint, nil
}

// DecodeContext parses data as a proof context.
func DecodeContext(data []byte) (*ContextState, error) {
	s, err := DecodeState(data)
	if err != nil {
		return nil, err
	}
	if s.Kind != StateContext || s.Context == nil {
		return nil, errors.Wrap(ErrWrongState, "not a proof context")
	}
	return s.Context, nil
}

// AssociatedAddress is the token account of owner for mint.
func AssociatedAddress(owner, mint address.Address) address.Address {
	return address.Associated(owner, mint, ProgramID)
}
