// Package token defines the confidential token program: its instruction
// encoders, the account state it stores on the ledger, and amount scaling.
// Encoders are pure functions; execution lives in the ledger implementation.
package token

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"ctoken/internal/address"
)

// ProgramID is the address of the confidential token program.
var ProgramID = address.FromSeed("ctoken/token-program/v1")

var ErrInvalidInstruction = errors.New("invalid instruction")

// Op selects the program handler for an instruction.
type Op uint8

const (
	OpInitializeMint Op = iota + 1
	OpMintTo
	OpCreateAssociatedAccount
	OpReallocate
	OpConfigureAccount
	OpApproveAccount
	OpDeposit
	OpApplyPendingBalance
	OpWithdraw
	OpTransfer
	OpCreateContext
	OpCloseContext
)

var opNames = map[Op]string{
	OpInitializeMint:          "initialize-mint",
	OpMintTo:                  "mint-to",
	OpCreateAssociatedAccount: "create-associated-account",
	OpReallocate:              "reallocate",
	OpConfigureAccount:        "configure-account",
	OpApproveAccount:          "approve-account",
	OpDeposit:                 "deposit",
	OpApplyPendingBalance:     "apply-pending-balance",
	OpWithdraw:                "withdraw",
	OpTransfer:                "transfer",
	OpCreateContext:           "create-context",
	OpCloseContext:            "close-context",
}

func (o Op) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// AccountMeta is an account referenced by an instruction.
type AccountMeta struct {
	Address  address.Address
	Signer   bool
	Writable bool
}

// Instruction is one program call inside a transaction.
type Instruction struct {
	Program  address.Address
	Op       Op
	Accounts []AccountMeta
	Data     []byte
}

func writable(a address.Address) AccountMeta { return AccountMeta{Address: a, Writable: true} }

func readonly(a address.Address) AccountMeta { return AccountMeta{Address: a} }

func signerMeta(a address.Address, w bool) AccountMeta {
	return AccountMeta{Address: a, Signer: true, Writable: w}
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

// Marshal encodes v with the deterministic cbor mode used on the ledger.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes ledger cbor into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

func newInstruction(op Op, accounts []AccountMeta, data any) Instruction {
	ix := Instruction{Program: ProgramID, Op: op, Accounts: accounts}
	if data != nil {
		raw, err := encMode.Marshal(data)
		if err != nil {
			// instruction payloads are fixed structs
			panic(errors.Wrapf(err, "encode %s", op))
		}
		ix.Data = raw
	}
	return ix
}

// DecodeData decodes the payload of ix into T.
func DecodeData[T any](ix Instruction) (*T, error) {
	var v T
	if err := decMode.Unmarshal(ix.Data, &v); err != nil {
		return nil, errors.Wrapf(ErrInvalidInstruction, "%s data: %v", ix.Op, err)
	}
	return &v, nil
}

// Account returns the i-th account of ix.
func (ix Instruction) Account(i int) (AccountMeta, error) {
	if i >= len(ix.Accounts) {
		return AccountMeta{}, errors.Wrapf(ErrInvalidInstruction, "%s: missing account %d", ix.Op, i)
	}
	return ix.Accounts[i], nil
}
