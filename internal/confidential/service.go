// Package confidential drives confidential token accounts: provisioning,
// deposits, pending-balance consolidation, withdrawals and transfers.
package confidential

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"ctoken/internal/address"
	"ctoken/internal/elgamal"
	"ctoken/internal/keys"
	"ctoken/internal/ledger"
	"ctoken/internal/metrics"
	"ctoken/internal/proof"
	"ctoken/internal/proofctx"
	"ctoken/internal/signer"
	"ctoken/internal/token"
)

var (
	ErrAlreadyProvisioned      = errors.New("account already provisioned")
	ErrProvisioningFailed      = errors.New("account provisioning failed")
	ErrNotProvisioned          = errors.New("account not provisioned")
	ErrPendingCapacityExceeded = errors.New("pending balance credit counter at maximum")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrAmountTooLarge          = errors.New("amount exceeds 48 bits")
	ErrDecimalsMismatch        = errors.New("decimals do not match the mint")
	ErrNotApproved             = errors.New("account not approved for confidential transfers")
)

// sentinelError tags a lower-level error with one of the sentinels above so
// both match errors.Is.
type sentinelError struct {
	sentinel error
	err      error
}

func (e *sentinelError) Error() string { return e.sentinel.Error() + ": " + e.err.Error() }

func (e *sentinelError) Is(target error) bool { return target == e.sentinel }

func (e *sentinelError) Unwrap() error { return e.err }

func tag(sentinel, err error) error {
	return &sentinelError{sentinel: sentinel, err: err}
}

// Account is the client view of a confidential token account.
type Account struct {
	Owner   address.Address
	Mint    address.Address
	Program address.Address
	Address address.Address

	Keypair *elgamal.Keypair
	AeKey   *elgamal.AeKey

	Public               uint64
	Approved             bool
	PendingCounter       uint64
	MaxPendingCounter    uint64
	PendingLo            elgamal.Ciphertext
	PendingHi            elgamal.Ciphertext
	Available            elgamal.Ciphertext
	DecryptableAvailable elgamal.AeCiphertext
}

// Balance is the decrypted state of an account.
type Balance struct {
	Public         uint64
	Available      uint64
	Pending        uint64
	PendingCounter uint64
}

// Service implements the confidential account operations.
type Service struct {
	client ledger.Client
	gen    proof.Generator
	ctxs   *proofctx.Manager
	logger *zap.Logger
}

func NewService(client ledger.Client, gen proof.Generator, ctxs *proofctx.Manager, logger *zap.Logger) *Service {
	return &Service{
		client: client,
		gen:    gen,
		ctxs:   ctxs,
		logger: logger.Named("confidential"),
	}
}

func observe(op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.Operations.WithLabelValues(op, status).Inc()
	metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// AccountAddress returns the associated account of owner for mint.
func AccountAddress(owner, mint address.Address) address.Address {
	return token.AssociatedAddress(owner, mint)
}

// tokenAccount fetches the raw token account at addr.
func (s *Service) tokenAccount(ctx context.Context, addr address.Address) (*token.Account, error) {
	raw, err := s.client.AccountState(ctx, addr)
	if err != nil {
		return nil, err
	}
	if raw.Owner != token.ProgramID {
		return nil, errors.Wrapf(token.ErrWrongState, "%s is not owned by the token program", addr)
	}
	return token.DecodeAccount(raw.Data)
}

func (s *Service) mint(ctx context.Context, mint address.Address) (*token.Mint, error) {
	raw, err := s.client.AccountState(ctx, mint)
	if err != nil {
		return nil, errors.Wrap(err, "fetch mint")
	}
	return token.DecodeMint(raw.Data)
}

// Account fetches the configured account of owner and derives its keys.
func (s *Service) Account(ctx context.Context, owner signer.Signer, mint address.Address) (*Account, error) {
	addr := AccountAddress(owner.Address(), mint)
	acct, err := s.tokenAccount(ctx, addr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, tag(ErrNotProvisioned, err)
	}
	if err != nil {
		return nil, errors.Wrap(err, "fetch account")
	}
	if acct.Confidential == nil {
		return nil, errors.Wrapf(ErrNotProvisioned, "%s has no confidential extension", addr)
	}
	kp, ae, err := keys.Derive(owner, addr)
	if err != nil {
		return nil, err
	}
	ext := acct.Confidential
	if !ext.Pubkey.Equal(kp.Public) {
		return nil, errors.Errorf("%s is configured with a key the owner did not derive", addr)
	}
	return &Account{
		Owner:                owner.Address(),
		Mint:                 mint,
		Program:              token.ProgramID,
		Address:              addr,
		Keypair:              kp,
		AeKey:                ae,
		Public:               acct.Amount,
		Approved:             ext.Approved,
		PendingCounter:       ext.PendingCounter,
		MaxPendingCounter:    ext.MaxPendingCounter,
		PendingLo:            ext.PendingLo,
		PendingHi:            ext.PendingHi,
		Available:            ext.Available,
		DecryptableAvailable: ext.DecryptableAvailable,
	}, nil
}

// pending decrypts the pending lo/hi ciphertexts.
func (a *Account) pending() (uint64, error) {
	lo, err := a.Keypair.Secret.Decrypt(a.PendingLo)
	if err != nil {
		return 0, errors.Wrap(err, "decrypt pending lo")
	}
	hi, err := a.Keypair.Secret.Decrypt(a.PendingHi)
	if err != nil {
		return 0, errors.Wrap(err, "decrypt pending hi")
	}
	return lo + hi<<proof.LoBits, nil
}

// available decrypts the decryptable available balance.
func (a *Account) available() (uint64, error) {
	v, err := a.AeKey.Decrypt(a.DecryptableAvailable)
	return v, errors.Wrap(err, "decrypt available balance")
}

// Balance decrypts the balances of owner's account.
func (s *Service) Balance(ctx context.Context, owner signer.Signer, mint address.Address) (*Balance, error) {
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
	return &Balance{
		Public:         acct.Public,
		Available:      available,
		Pending:        pending,
		PendingCounter: acct.PendingCounter,
	}, nil
}

// CreateMint creates a mint with mintKey as its address.
func (s *Service) CreateMint(ctx context.Context, payer, mintKey signer.Signer, authority address.Address,
	decimals uint8, autoApprove bool) (*ledger.Receipt, error) {
	ix := token.InitializeMint(mintKey.Address(), payer.Address(), authority, decimals, autoApprove)
	receipt, err := ledger.Send(ctx, s.client, payer, []token.Instruction{ix}, mintKey)
	if err != nil {
		return nil, errors.Wrap(err, "create mint")
	}
	s.logger.Info("mint created", zap.Stringer("mint", mintKey.Address()), zap.Uint8("decimals", decimals))
	return receipt, nil
}

// MintTo credits amount base units to the public balance of owner's
// associated account.
func (s *Service) MintTo(ctx context.Context, payer, authority signer.Signer, mint, owner address.Address,
	amount uint64) (*ledger.Receipt, error) {
	ix := token.MintTo(mint, AccountAddress(owner, mint), authority.Address(), amount)
	receipt, err := ledger.Send(ctx, s.client, payer, []token.Instruction{ix}, authority)
	return receipt, errors.Wrap(err, "mint to")
}

// ApproveAccount lets the mint authority enable an account of a mint that
// does not auto-approve.
func (s *Service) ApproveAccount(ctx context.Context, payer, authority signer.Signer, mint, owner address.Address) (*ledger.Receipt, error) {
	ix := token.ApproveAccount(AccountAddress(owner, mint), mint, authority.Address())
	receipt, err := ledger.Send(ctx, s.client, payer, []token.Instruction{ix}, authority)
	return receipt, errors.Wrap(err, "approve account")
}

// Recover closes proof contexts left open by interrupted operations.
func (s *Service) Recover(ctx context.Context, authority signer.Signer) (*proofctx.RecoverReport, error) {
	return s.ctxs.Recover(ctx, authority)
}
