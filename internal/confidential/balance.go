package confidential

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"ctoken/internal/address"
	"ctoken/internal/ledger"
	"ctoken/internal/proof"
	"ctoken/internal/signer"
	"ctoken/internal/token"
)

// checkMint verifies decimals against the mint.
func (s *Service) checkMint(ctx context.Context, mint address.Address, decimals uint8) error {
	m, err := s.mint(ctx, mint)
	if err != nil {
		return err
	}
	if m.Decimals != decimals {
		return errors.Wrapf(ErrDecimalsMismatch, "mint has %d, got %d", m.Decimals, decimals)
	}
	return nil
}

// Deposit moves amount base units from the public balance into the pending
// balance.
func (s *Service) Deposit(ctx context.Context, owner signer.Signer, mint address.Address, amount uint64,
	decimals uint8) (receipt *ledger.Receipt, err error) {
	defer func(start time.Time) { observe("deposit", start, err) }(time.Now())

	if amount >= proof.MaxAmount {
		return nil, errors.Wrapf(ErrAmountTooLarge, "deposit %d", amount)
	}
	if err := s.checkMint(ctx, mint, decimals); err != nil {
		return nil, err
	}
	acct, err := s.Account(ctx, owner, mint)
	if err != nil {
		return nil, err
	}
	switch {
	case !acct.Approved:
		return nil, errors.Wrapf(ErrNotApproved, "%s", acct.Address)
	case acct.PendingCounter >= acct.MaxPendingCounter:
		return nil, errors.Wrapf(ErrPendingCapacityExceeded, "%d of %d credits pending, apply first",
			acct.PendingCounter, acct.MaxPendingCounter)
	case acct.Public < amount:
		return nil, errors.Wrapf(ErrInsufficientBalance, "public balance %d < %d", acct.Public, amount)
	}

	ix := token.Deposit(acct.Address, mint, owner.Address(), amount, decimals)
	receipt, err = ledger.Send(ctx, s.client, owner, []token.Instruction{ix}, owner)
	if err != nil {
		return nil, errors.Wrap(err, "deposit")
	}
	s.logger.Info("deposited", zap.Stringer("account", acct.Address), zap.Uint64("amount", amount),
		zap.String("tx", receipt.ID))
	return receipt, nil
}

// ApplyPending folds the pending balance into the available balance.
func (s *Service) ApplyPending(ctx context.Context, owner signer.Signer, mint address.Address) (receipt *ledger.Receipt, err error) {
	defer func(start time.Time) { observe("apply_pending", start, err) }(time.Now())

	acct, err := s.Account(ctx, owner, mint)
	if err != nil {
		return nil, err
	}
	available, err := acct.available()
	if err != nil {
		return nil, err
	}
	pending, err := acct.pending()
	if err != nil {
		return nil, err
	}
	total := available + pending
	if total < available {
		return nil, errors.Errorf("available balance overflows: %d + %d", available, pending)
	}
	decryptable, err := acct.AeKey.Encrypt(total)
	if err != nil {
		return nil, errors.Wrap(err, "encrypt available balance")
	}

	ix := token.ApplyPendingBalance(acct.Address, owner.Address(), acct.PendingCounter, decryptable)
	receipt, err = ledger.Send(ctx, s.client, owner, []token.Instruction{ix}, owner)
	if err != nil {
		return nil, errors.Wrap(err, "apply pending balance")
	}
	s.logger.Info("pending balance applied", zap.Stringer("account", acct.Address),
		zap.Uint64("credits", acct.PendingCounter), zap.String("tx", receipt.ID))
	return receipt, nil
}
