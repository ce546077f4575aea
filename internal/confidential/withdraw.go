package confidential

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"ctoken/internal/address"
	"ctoken/internal/ledger"
	"ctoken/internal/proof"
	"ctoken/internal/proofctx"
	"ctoken/internal/signer"
	"ctoken/internal/token"
)

// ContextResult is the outcome of an operation backed by proof contexts.
type ContextResult struct {
	OperationID string
	// Receipt of the consuming transaction.
	Receipt  *ledger.Receipt
	Contexts []*proofctx.ContextRecord
	// Warnings holds closure failures. The operation itself succeeded.
	Warnings []error
	// Remaining is the available balance after the operation.
	Remaining uint64
}

type WithdrawResult struct {
	ContextResult
	Amount uint64
}

func contextResult(res *proofctx.Result, remaining uint64) ContextResult {
	return ContextResult{
		OperationID: res.OperationID,
		Receipt:     res.Receipt,
		Contexts:    res.Contexts,
		Warnings:    res.Warnings,
		Remaining:   remaining,
	}
}

// Withdraw moves amount base units from the available confidential balance
// back to the public balance. payer funds the proof contexts and defaults to
// owner.
func (s *Service) Withdraw(ctx context.Context, owner signer.Signer, mint address.Address, amount uint64,
	decimals uint8, payer signer.Signer) (result *WithdrawResult, err error) {
	defer func(start time.Time) { observe("withdraw", start, err) }(time.Now())

	if payer == nil {
		payer = owner
	}
	if err := s.checkMint(ctx, mint, decimals); err != nil {
		return nil, err
	}
	acct, err := s.Account(ctx, owner, mint)
	if err != nil {
		return nil, err
	}
	available, err := acct.available()
	if err != nil {
		return nil, err
	}
	if amount > available {
		return nil, errors.Wrapf(ErrInsufficientBalance, "available %d < %d", available, amount)
	}
	remaining := available - amount

	bundle, err := s.gen.Withdraw(proof.WithdrawRequest{
		Keypair:   acct.Keypair,
		Available: acct.Available,
		Balance:   available,
		Amount:    amount,
	})
	if err != nil {
		return nil, err
	}
	decryptable, err := acct.AeKey.Encrypt(remaining)
	if err != nil {
		return nil, errors.Wrap(err, "encrypt remaining balance")
	}

	res, err := s.ctxs.Run(ctx, &proofctx.Operation{
		Label:  "withdraw",
		Bundle: bundle,
		Consume: func(refs map[proof.Kind]address.Address) []token.Instruction {
			return []token.Instruction{token.Withdraw(acct.Address, mint, refs[proof.KindEquality], refs[proof.KindRange],
				owner.Address(), amount, decimals, decryptable)}
		},
		Signers:     []signer.Signer{owner},
		Payer:       payer,
		Authority:   owner,
		Destination: payer.Address(),
	})
	if err != nil {
		if res != nil {
			return nil, errors.Wrapf(err, "operation %s", res.OperationID)
		}
		return nil, err
	}
	for _, w := range res.Warnings {
		s.logger.Warn("withdraw succeeded with warning", zap.String("operation", res.OperationID), zap.Error(w))
	}
	s.logger.Info("withdrawn", zap.Stringer("account", acct.Address), zap.Uint64("amount", amount),
		zap.String("operation", res.OperationID))
	return &WithdrawResult{ContextResult: contextResult(res, remaining), Amount: amount}, nil
}
