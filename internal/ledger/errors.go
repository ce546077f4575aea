package ledger

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code classifies a rejected transaction.
type Code string

const (
	CodeInvalidSignature    Code = "invalid_signature"
	CodeMissingSignature    Code = "missing_signature"
	CodeAnchorExpired       Code = "anchor_expired"
	CodeAlreadyProcessed    Code = "already_processed"
	CodeInsufficientFunds   Code = "insufficient_funds"
	CodeAccountExists       Code = "account_exists"
	CodeAccountNotFound     Code = "account_not_found"
	CodeInvalidInstruction  Code = "invalid_instruction"
	CodeInvalidAccount      Code = "invalid_account"
	CodeUnauthorized        Code = "unauthorized"
	CodeInvalidProof        Code = "invalid_proof"
	CodeStaleCiphertext     Code = "stale_ciphertext"
	CodePendingCapacity     Code = "pending_capacity_exceeded"
	CodeStalePendingCounter Code = "stale_pending_counter"
	CodeInsufficientBalance Code = "insufficient_balance"
	CodeContextConsumed     Code = "context_consumed"
	CodeNotApproved         Code = "account_not_approved"
	CodeMintMismatch        Code = "mint_mismatch"
	CodeArithmeticOverflow  Code = "arithmetic_overflow"
)

// TxError is a transaction the ledger refused. Nothing it contained was
// applied.
type TxError struct {
	Code        Code   `json:"code"`
	Instruction int    `json:"instruction"`
	Message     string `json:"message"`
}

func (e *TxError) Error() string {
	if e.Instruction >= 0 {
		return fmt.Sprintf("transaction rejected: instruction %d: %s: %s", e.Instruction, e.Code, e.Message)
	}
	return fmt.Sprintf("transaction rejected: %s: %s", e.Code, e.Message)
}

func (e *TxError) Is(target error) bool {
	return target == ErrTransactionRejected
}

// Reject builds a TxError for instruction ix (-1 for the whole transaction).
func Reject(code Code, ix int, format string, args ...any) *TxError {
	return &TxError{Code: code, Instruction: ix, Message: fmt.Sprintf(format, args...)}
}

// RejectionCode returns the code of a wrapped TxError, or "".
func RejectionCode(err error) Code {
	var txErr *TxError
	if errors.As(err, &txErr) {
		return txErr.Code
	}
	return ""
}
