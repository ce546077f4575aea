// Package proofctx stages proof contexts on the ledger, submits the
// instruction that consumes them and closes them afterwards.
//
// An attempt moves through
//
//	init -> contexts_creating -> contexts_ready -> consuming -> consumed -> contexts_closing -> done
//
// and may stop in creation_failed, consume_failed, consume_unknown or
// close_failed. Contexts are never closed while the outcome of the consuming
// transaction is unknown, and the consuming transaction is never resubmitted.
package proofctx

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"ctoken/internal/address"
	"ctoken/internal/ledger"
	"ctoken/internal/proof"
	"ctoken/internal/signer"
	"ctoken/internal/token"
)

var (
	ErrContextCreationFailed = errors.New("proof context creation failed")
	ErrConsumeFailed         = errors.New("consuming instruction rejected")
	ErrContextClosureFailed  = errors.New("proof context closure failed")
	ErrOutcomeUnknown        = errors.New("consuming transaction outcome unknown")
)

type State string

const (
	StateInit             State = "init"
	StateContextsCreating State = "contexts_creating"
	StateContextsReady    State = "contexts_ready"
	StateConsuming        State = "consuming"
	StateConsumed         State = "consumed"
	StateContextsClosing  State = "contexts_closing"
	StateDone             State = "done"

	StateCreationFailed State = "creation_failed"
	StateConsumeFailed  State = "consume_failed"
	StateConsumeUnknown State = "consume_unknown"
	StateCloseFailed    State = "close_failed"
)

// Status of a single context.
type Status string

const (
	StatusPending     Status = "pending"
	StatusCreated     Status = "created"
	StatusFailed      Status = "failed"
	StatusClosed      Status = "closed"
	StatusCloseFailed Status = "close_failed"
)

// onLedger reports whether a context in status s may still hold rent.
func (s Status) onLedger() bool {
	return s == StatusPending || s == StatusCreated || s == StatusCloseFailed
}

// ContextRecord tracks one proof context of an attempt.
type ContextRecord struct {
	Kind        proof.Kind
	Address     address.Address
	Payload     []byte
	Funder      address.Address
	Authority   address.Address
	Destination address.Address
	OperationID string
	// CreateTx and Anchor identify the creating transaction once built.
	CreateTx    string
	Anchor      ledger.Anchor
	Status      Status
	Err         error
}

func (r *ContextRecord) String() string {
	return fmt.Sprintf("%s context %s (%s)", r.Kind, r.Address, r.Status)
}

// Operation is one balance-mutating instruction backed by proof contexts.
type Operation struct {
	// ID defaults to a fresh random id.
	ID string
	// Label names the operation in logs and metrics.
	Label  string
	Bundle proof.Bundle
	// Consume builds the consuming instructions from the context addresses.
	Consume func(refs map[proof.Kind]address.Address) []token.Instruction
	// Signers sign the consuming transaction besides the payer.
	Signers []signer.Signer
	Payer   signer.Signer
	// Authority may close the contexts. Defaults to Payer.
	Authority signer.Signer
	// Destination receives reclaimed rent. Defaults to the payer address.
	Destination address.Address
}

func (op *Operation) validate() error {
	switch {
	case len(op.Bundle) == 0:
		return errors.New("operation has no proofs")
	case op.Consume == nil:
		return errors.New("operation has no consuming instruction")
	case op.Payer == nil:
		return errors.New("operation has no payer")
	}
	for kind := range op.Bundle {
		if !kind.Valid() {
			return errors.Errorf("operation has unknown proof kind %d", kind)
		}
	}
	return nil
}

// Result describes a finished attempt.
type Result struct {
	OperationID string
	State       State
	// Receipt of the consuming transaction. Its slot is zero when the
	// confirmation came from a status query.
	Receipt  *ledger.Receipt
	Contexts []*ContextRecord
	Warnings []error
}

// Created returns the contexts that reached the ledger.
func (r *Result) Created() []*ContextRecord {
	var out []*ContextRecord
	for _, c := range r.Contexts {
		if c.Status != StatusFailed && c.Status != StatusPending {
			out = append(out, c)
		}
	}
	return out
}

// CreationError reports that not every context could be created. Nothing was
// consumed, and the contexts in Created have already been closed again: they
// come back with StatusClosed, except those listed in Closure, which stay
// open with StatusCloseFailed until Recover reclaims them.
//
// Failed keeps StatusPending when its creating transaction may still land.
// The attempt then stays in the journal and Recover closes the context once
// the transaction confirms.
type CreationError struct {
	Created []*ContextRecord
	Failed  *ContextRecord
	Closure *ClosureError
}

func (e *CreationError) Error() string {
	msg := fmt.Sprintf("%s: %s: %v", ErrContextCreationFailed, e.Failed.Kind, e.Failed.Err)
	if e.Closure != nil {
		msg += "; " + e.Closure.Error()
	}
	return msg
}

func (e *CreationError) Is(target error) bool { return target == ErrContextCreationFailed }

func (e *CreationError) Unwrap() error { return e.Failed.Err }

// ConsumeError reports a definitive rejection of the consuming transaction.
type ConsumeError struct {
	Err error
}

func (e *ConsumeError) Error() string {
	return fmt.Sprintf("%s: %v", ErrConsumeFailed, e.Err)
}

func (e *ConsumeError) Is(target error) bool { return target == ErrConsumeFailed }

func (e *ConsumeError) Unwrap() error { return e.Err }

// ClosureError lists contexts that could not be closed. Their rent stays
// locked until Recover succeeds.
type ClosureError struct {
	Failed []*ContextRecord
}

func (e *ClosureError) Error() string {
	parts := make([]string, len(e.Failed))
	for i, c := range e.Failed {
		parts[i] = fmt.Sprintf("%s: %v", c, c.Err)
	}
	return fmt.Sprintf("%s: %s", ErrContextClosureFailed, strings.Join(parts, ", "))
}

func (e *ClosureError) Is(target error) bool { return target == ErrContextClosureFailed }
