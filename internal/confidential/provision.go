package confidential

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"ctoken/internal/address"
	"ctoken/internal/keys"
	"ctoken/internal/ledger"
	"ctoken/internal/signer"
	"ctoken/internal/token"
)

// DefaultMaxPendingCounter bounds pending credits between two applies.
const DefaultMaxPendingCounter = 65536

// Provision creates and configures owner's confidential account for mint in a
// single transaction. An account that already carries the owner's derived
// key is returned together with ErrAlreadyProvisioned.
func (s *Service) Provision(ctx context.Context, payer signer.Signer, mint address.Address, owner signer.Signer,
	maxPending uint64) (acct *Account, err error) {
	defer func(start time.Time) {
		if errors.Is(err, ErrAlreadyProvisioned) {
			observe("provision", start, nil)
			return
		}
		observe("provision", start, err)
	}(time.Now())

	if maxPending == 0 {
		maxPending = DefaultMaxPendingCounter
	}
	addr := AccountAddress(owner.Address(), mint)
	logger := s.logger.With(zap.Stringer("account", addr), zap.Stringer("mint", mint))

	kp, ae, err := keys.Derive(owner, addr)
	if err != nil {
		return nil, err
	}

	var ixs []token.Instruction
	existing, err := s.tokenAccount(ctx, addr)
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		ixs = append(ixs, token.CreateAssociatedAccount(payer.Address(), addr, owner.Address(), mint))
	case err != nil:
		return nil, tag(ErrProvisioningFailed, err)
	case existing.Confidential != nil:
		if !existing.Confidential.Pubkey.Equal(kp.Public) {
			return nil, tag(ErrProvisioningFailed, errors.Errorf("%s is configured with another key", addr))
		}
		current, aerr := s.Account(ctx, owner, mint)
		if aerr != nil {
			return nil, aerr
		}
		logger.Info("account already provisioned")
		return current, ErrAlreadyProvisioned
	}

	validity, err := s.gen.PubkeyValidity(kp)
	if err != nil {
		return nil, tag(ErrProvisioningFailed, err)
	}
	zero, err := ae.Encrypt(0)
	if err != nil {
		return nil, tag(ErrProvisioningFailed, err)
	}
	if existing == nil || !existing.ExtensionReserved {
		ixs = append(ixs, token.Reallocate(addr, payer.Address(), owner.Address(), token.ExtensionConfidentialTransfer))
	}
	ixs = append(ixs, token.ConfigureAccount(addr, mint, owner.Address(), maxPending, zero, validity))

	receipt, err := ledger.Send(ctx, s.client, payer, ixs, owner)
	if err != nil {
		return nil, tag(ErrProvisioningFailed, err)
	}
	logger.Info("account provisioned", zap.String("tx", receipt.ID), zap.Uint64("max_pending", maxPending))
	return s.Account(ctx, owner, mint)
}
