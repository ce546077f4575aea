package confidential

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"ctoken/internal/address"
	"ctoken/internal/elgamal"
	"ctoken/internal/ledger"
	"ctoken/internal/proof"
	"ctoken/internal/proofctx"
	"ctoken/internal/signer"
	"ctoken/internal/token"
)

type TransferResult struct {
	ContextResult
	Amount    uint64
	Recipient address.Address
}

// Transfer moves amount base units from owner's available balance to the
// pending balance of recipient's account. recipient is the owner address of
// the destination; its key is read from the ledger when recipientKey is nil.
func (s *Service) Transfer(ctx context.Context, owner signer.Signer, mint, recipient address.Address,
	recipientKey *elgamal.PublicKey, amount uint64, payer signer.Signer) (result *TransferResult, err error) {
	defer func(start time.Time) { observe("transfer", start, err) }(time.Now())

	if payer == nil {
		payer = owner
	}
	if amount >= proof.MaxAmount {
		return nil, errors.Wrapf(ErrAmountTooLarge, "transfer %d", amount)
	}
	acct, err := s.Account(ctx, owner, mint)
	if err != nil {
		return nil, err
	}
	destination := AccountAddress(recipient, mint)
	if destination == acct.Address {
		return nil, errors.New("transfer to the source account")
	}
	dest, err := s.tokenAccount(ctx, destination)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return nil, tag(ErrNotProvisioned, err)
		}
		return nil, errors.Wrap(err, "fetch recipient account")
	}
	ext := dest.Confidential
	switch {
	case ext == nil:
		return nil, errors.Wrapf(ErrNotProvisioned, "recipient account %s", destination)
	case !ext.Approved:
		return nil, errors.Wrapf(ErrNotApproved, "recipient account %s", destination)
	case ext.PendingCounter >= ext.MaxPendingCounter:
		return nil, errors.Wrapf(ErrPendingCapacityExceeded, "recipient account %s", destination)
	}
	if recipientKey == nil {
		recipientKey = &ext.Pubkey
	}

	available, err := acct.available()
	if err != nil {
		return nil, err
	}
	if amount > available {
		return nil, errors.Wrapf(ErrInsufficientBalance, "available %d < %d", available, amount)
	}
	remaining := available - amount

	bundle, err := s.gen.Transfer(proof.TransferRequest{
		Keypair:   acct.Keypair,
		Recipient: *recipientKey,
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
		Label:  "transfer",
		Bundle: bundle,
		Consume: func(refs map[proof.Kind]address.Address) []token.Instruction {
			return []token.Instruction{token.Transfer(acct.Address, mint, destination,
				refs[proof.KindEquality], refs[proof.KindCiphertextValidity], refs[proof.KindRange],
				owner.Address(), decryptable)}
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
		s.logger.Warn("transfer succeeded with warning", zap.String("operation", res.OperationID), zap.Error(w))
	}
	s.logger.Info("transferred", zap.Stringer("from", acct.Address), zap.Stringer("to", destination),
		zap.Uint64("amount", amount), zap.String("operation", res.OperationID))
	return &TransferResult{ContextResult: contextResult(res, remaining), Amount: amount, Recipient: destination}, nil
}
