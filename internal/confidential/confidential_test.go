package confidential

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ctoken/internal/address"
	"ctoken/internal/journal"
	"ctoken/internal/ledger"
	"ctoken/internal/localnet"
	"ctoken/internal/proof"
	"ctoken/internal/proof/prooftest"
	"ctoken/internal/proofctx"
	"ctoken/internal/signer"
	"ctoken/internal/token"
)

const decimals = 2

// recordingClient counts submitted instructions and can inject failures.
type recordingClient struct {
	ledger.Client

	mu   sync.Mutex
	ops  map[token.Op]int
	fail func(tx *ledger.Transaction) error
}

func (c *recordingClient) SubmitAndConfirm(ctx context.Context, tx *ledger.Transaction) (*ledger.Receipt, error) {
	c.mu.Lock()
	for _, ix := range tx.Message.Instructions {
		c.ops[ix.Op]++
	}
	fail := c.fail
	c.mu.Unlock()
	if fail != nil {
		if err := fail(tx); err != nil {
			return nil, err
		}
	}
	return c.Client.SubmitAndConfirm(ctx, tx)
}

func (c *recordingClient) count(op token.Op) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ops[op]
}

func (c *recordingClient) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = make(map[token.Op]int)
	c.fail = nil
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	net    *localnet.Ledger
	client *recordingClient
	svc    *Service
	payer  *signer.Ed448
	mint   address.Address
}

func newFixture(t *testing.T, autoApprove bool) *fixture {
	net, err := localnet.Open(localnet.DefaultOptions(), proof.NewVerifier(prooftest.OpenRange{}), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { net.Close() })
	j, err := journal.Open("", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	client := &recordingClient{Client: net, ops: make(map[token.Op]int)}
	f := &fixture{
		t:      t,
		ctx:    context.Background(),
		net:    net,
		client: client,
		svc: NewService(client, proof.NewProver(prooftest.OpenRange{}),
			proofctx.NewManager(client, zap.NewNop(), proofctx.WithJournal(j)), zap.NewNop()),
	}
	f.payer = f.funded()
	mintKey := f.key()
	_, err = f.svc.CreateMint(f.ctx, f.payer, mintKey, f.payer.Address(), decimals, autoApprove)
	require.NoError(t, err)
	f.mint = mintKey.Address()
	return f
}

func (f *fixture) key() *signer.Ed448 {
	s, err := signer.NewEd448()
	require.NoError(f.t, err)
	return s
}

func (f *fixture) funded() *signer.Ed448 {
	s := f.key()
	_, err := f.net.Airdrop(f.ctx, s.Address(), 1_000_000_000_000)
	require.NoError(f.t, err)
	return s
}

// holder provisions a funded owner with public tokens and an available
// confidential balance.
func (f *fixture) holder(public, available uint64) *signer.Ed448 {
	owner := f.funded()
	_, err := f.svc.Provision(f.ctx, f.payer, f.mint, owner, 8)
	require.NoError(f.t, err)
	if public+available > 0 {
		_, err = f.svc.MintTo(f.ctx, f.payer, f.payer, f.mint, owner.Address(), public+available)
		require.NoError(f.t, err)
	}
	if available > 0 {
		_, err = f.svc.Deposit(f.ctx, owner, f.mint, available, decimals)
		require.NoError(f.t, err)
		_, err = f.svc.ApplyPending(f.ctx, owner, f.mint)
		require.NoError(f.t, err)
	}
	return owner
}

func (f *fixture) balance(owner signer.Signer) *Balance {
	b, err := f.svc.Balance(f.ctx, owner, f.mint)
	require.NoError(f.t, err)
	return b
}

func (f *fixture) assertClosed(contexts []*proofctx.ContextRecord) {
	for _, c := range contexts {
		assert.Equal(f.t, proofctx.StatusClosed, c.Status, c.String())
		_, err := f.net.AccountState(f.ctx, c.Address)
		assert.ErrorIs(f.t, err, ledger.ErrAccountNotFound, c.String())
	}
}

func TestProvision(t *testing.T) {
	f := newFixture(t, true)
	owner := f.funded()

	acct, err := f.svc.Provision(f.ctx, f.payer, f.mint, owner, 0)
	require.NoError(t, err)
	assert.Equal(t, AccountAddress(owner.Address(), f.mint), acct.Address)
	assert.Equal(t, uint64(DefaultMaxPendingCounter), acct.MaxPendingCounter)
	assert.True(t, acct.Approved)
	assert.Equal(t, &Balance{}, f.balance(owner))

	again, err := f.svc.Provision(f.ctx, f.payer, f.mint, owner, 0)
	require.ErrorIs(t, err, ErrAlreadyProvisioned)
	assert.True(t, again.Keypair.Public.Equal(acct.Keypair.Public))
}

func TestProvisionExistingPlainAccount(t *testing.T) {
	f := newFixture(t, true)
	owner := f.funded()
	addr := AccountAddress(owner.Address(), f.mint)
	_, err := ledger.Send(f.ctx, f.client, f.payer, []token.Instruction{
		token.CreateAssociatedAccount(f.payer.Address(), addr, owner.Address(), f.mint),
	})
	require.NoError(t, err)

	acct, err := f.svc.Provision(f.ctx, f.payer, f.mint, owner, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), acct.MaxPendingCounter)
}

func TestProvisionRejected(t *testing.T) {
	f := newFixture(t, true)
	owner := f.funded()
	_, err := f.svc.Provision(f.ctx, f.payer, address.FromSeed("no such mint"), owner, 0)
	require.ErrorIs(t, err, ErrProvisioningFailed)
	assert.ErrorIs(t, err, ledger.ErrTransactionRejected)
}

func TestDepositAndApply(t *testing.T) {
	f := newFixture(t, true)
	owner := f.holder(500_000, 0)

	_, err := f.svc.Deposit(f.ctx, owner, f.mint, 70_000, decimals)
	require.NoError(t, err)
	b := f.balance(owner)
	assert.Equal(t, uint64(1), b.PendingCounter)
	assert.Equal(t, uint64(70_000), b.Pending)
	assert.Equal(t, uint64(0), b.Available)
	assert.Equal(t, uint64(430_000), b.Public)

	_, err = f.svc.ApplyPending(f.ctx, owner, f.mint)
	require.NoError(t, err)
	b = f.balance(owner)
	assert.Equal(t, uint64(70_000), b.Available)
	assert.Equal(t, uint64(0), b.Pending)
	assert.Equal(t, uint64(0), b.PendingCounter)

	t.Run("apply with nothing pending", func(t *testing.T) {
		_, err := f.svc.ApplyPending(f.ctx, owner, f.mint)
		require.NoError(t, err)
		assert.Equal(t, uint64(70_000), f.balance(owner).Available)
	})
	t.Run("too large", func(t *testing.T) {
		_, err := f.svc.Deposit(f.ctx, owner, f.mint, proof.MaxAmount, decimals)
		assert.ErrorIs(t, err, ErrAmountTooLarge)
	})
	t.Run("decimals", func(t *testing.T) {
		_, err := f.svc.Deposit(f.ctx, owner, f.mint, 1, decimals+1)
		assert.ErrorIs(t, err, ErrDecimalsMismatch)
	})
	t.Run("public balance", func(t *testing.T) {
		_, err := f.svc.Deposit(f.ctx, owner, f.mint, 430_001, decimals)
		assert.ErrorIs(t, err, ErrInsufficientBalance)
	})
}

func TestPendingCapacity(t *testing.T) {
	f := newFixture(t, true)
	owner := f.funded()
	_, err := f.svc.Provision(f.ctx, f.payer, f.mint, owner, 2)
	require.NoError(t, err)
	_, err = f.svc.MintTo(f.ctx, f.payer, f.payer, f.mint, owner.Address(), 10)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := f.svc.Deposit(f.ctx, owner, f.mint, 1, decimals)
		require.NoError(t, err)
	}
	f.client.reset()
	_, err = f.svc.Deposit(f.ctx, owner, f.mint, 1, decimals)
	require.ErrorIs(t, err, ErrPendingCapacityExceeded)
	assert.Zero(t, f.client.count(token.OpDeposit), "rejected locally")

	_, err = f.svc.ApplyPending(f.ctx, owner, f.mint)
	require.NoError(t, err)
	_, err = f.svc.Deposit(f.ctx, owner, f.mint, 1, decimals)
	assert.NoError(t, err)
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t, true)
	owner := f.holder(0, 100)
	f.client.reset()

	res, err := f.svc.Withdraw(f.ctx, owner, f.mint, 30, decimals, f.payer)
	require.NoError(t, err)
	assert.Equal(t, uint64(70), res.Remaining)
	assert.Empty(t, res.Warnings)
	require.Len(t, res.Contexts, 2)
	f.assertClosed(res.Contexts)

	assert.Equal(t, 2, f.client.count(token.OpCreateContext))
	assert.Equal(t, 1, f.client.count(token.OpWithdraw))
	assert.Equal(t, 2, f.client.count(token.OpCloseContext))

	b := f.balance(owner)
	assert.Equal(t, uint64(70), b.Available)
	assert.Equal(t, uint64(30), b.Public)
}

func TestWithdrawInsufficient(t *testing.T) {
	f := newFixture(t, true)
	owner := f.holder(0, 100)
	f.client.reset()

	_, err := f.svc.Withdraw(f.ctx, owner, f.mint, 101, decimals, nil)
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Zero(t, f.client.count(token.OpCreateContext))
	assert.Equal(t, uint64(100), f.balance(owner).Available)
}

func TestWithdrawPartialCreationFailure(t *testing.T) {
	f := newFixture(t, true)
	owner := f.holder(0, 100)
	f.client.reset()
	f.client.fail = func(tx *ledger.Transaction) error {
		if isRangeCreate(tx) {
			return errors.New("ledger unavailable")
		}
		return nil
	}

	_, err := f.svc.Withdraw(f.ctx, owner, f.mint, 30, decimals, nil)
	require.ErrorIs(t, err, proofctx.ErrContextCreationFailed)
	var cerr *proofctx.CreationError
	require.ErrorAs(t, err, &cerr)
	require.Len(t, cerr.Created, 1)
	assert.Equal(t, proof.KindEquality, cerr.Created[0].Kind)
	f.assertClosed(cerr.Created)

	assert.Zero(t, f.client.count(token.OpWithdraw))
	assert.Equal(t, uint64(100), f.balance(owner).Available)
}

// isRangeCreate matches the transaction creating the range context.
func isRangeCreate(tx *ledger.Transaction) bool {
	ix := tx.Message.Instructions[0]
	if ix.Op != token.OpCreateContext {
		return false
	}
	data, err := token.DecodeData[token.CreateContextData](ix)
	return err == nil && data.Kind == proof.KindRange
}

func TestWithdrawCreationLandsLate(t *testing.T) {
	f := newFixture(t, true)
	owner := f.holder(0, 100)
	f.client.reset()
	var held *ledger.Transaction
	f.client.fail = func(tx *ledger.Transaction) error {
		if held == nil && isRangeCreate(tx) {
			held = tx
			return context.DeadlineExceeded
		}
		return nil
	}

	_, err := f.svc.Withdraw(f.ctx, owner, f.mint, 30, decimals, nil)
	var cerr *proofctx.CreationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, proofctx.StatusPending, cerr.Failed.Status)
	f.assertClosed(cerr.Created)
	require.NotNil(t, held)

	report, err := f.svc.Recover(f.ctx, owner)
	require.NoError(t, err)
	assert.Len(t, report.Unresolved, 1)
	assert.Empty(t, report.Closed)

	_, err = f.net.SubmitAndConfirm(f.ctx, held)
	require.NoError(t, err)
	_, err = f.net.AccountState(f.ctx, cerr.Failed.Address)
	require.NoError(t, err, "range context landed")

	report, err = f.svc.Recover(f.ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []address.Address{cerr.Failed.Address}, report.Closed)
	assert.Empty(t, report.Unresolved)
	_, err = f.net.AccountState(f.ctx, cerr.Failed.Address)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)

	report, err = f.svc.Recover(f.ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, report.Closed)
	assert.Zero(t, f.client.count(token.OpWithdraw))
	assert.Equal(t, uint64(100), f.balance(owner).Available)
}

func TestRecoverDuringWithdraw(t *testing.T) {
	f := newFixture(t, true)
	owner := f.holder(0, 100)
	f.client.reset()
	entered, release := make(chan struct{}), make(chan struct{})
	var once sync.Once
	f.client.fail = func(tx *ledger.Transaction) error {
		if isRangeCreate(tx) {
			once.Do(func() {
				close(entered)
				<-release
			})
		}
		return nil
	}

	type outcome struct {
		res *WithdrawResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := f.svc.Withdraw(f.ctx, owner, f.mint, 30, decimals, nil)
		done <- outcome{res, err}
	}()
	<-entered

	report, err := f.svc.Recover(f.ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, report.Closed)
	assert.Len(t, report.Running, 1)
	assert.Zero(t, f.client.count(token.OpCloseContext))

	close(release)
	out := <-done
	require.NoError(t, out.err)
	f.assertClosed(out.res.Contexts)
	assert.Equal(t, uint64(70), f.balance(owner).Available)
}

func TestTransfer(t *testing.T) {
	f := newFixture(t, true)
	alice := f.holder(0, 200_000)
	bob := f.holder(0, 0)
	f.client.reset()

	const amount = 123_456
	res, err := f.svc.Transfer(f.ctx, alice, f.mint, bob.Address(), nil, amount, f.payer)
	require.NoError(t, err)
	assert.Equal(t, uint64(200_000-amount), res.Remaining)
	require.Len(t, res.Contexts, 3)
	f.assertClosed(res.Contexts)
	assert.Equal(t, 3, f.client.count(token.OpCreateContext))
	assert.Equal(t, 3, f.client.count(token.OpCloseContext))

	assert.Equal(t, uint64(200_000-amount), f.balance(alice).Available)
	b := f.balance(bob)
	assert.Equal(t, uint64(amount), b.Pending)
	assert.Equal(t, uint64(1), b.PendingCounter)

	_, err = f.svc.ApplyPending(f.ctx, bob, f.mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(amount), f.balance(bob).Available)

	t.Run("explicit recipient key", func(t *testing.T) {
		acct, err := f.svc.Account(f.ctx, bob, f.mint)
		require.NoError(t, err)
		_, err = f.svc.Transfer(f.ctx, alice, f.mint, bob.Address(), &acct.Keypair.Public, 1, nil)
		require.NoError(t, err)
	})
	t.Run("wrong recipient key", func(t *testing.T) {
		carol := f.holder(0, 0)
		other, err := f.svc.Account(f.ctx, carol, f.mint)
		require.NoError(t, err)
		_, err = f.svc.Transfer(f.ctx, alice, f.mint, bob.Address(), &other.Keypair.Public, 1, nil)
		require.ErrorIs(t, err, proofctx.ErrConsumeFailed)
		assert.Equal(t, ledger.CodeInvalidProof, ledger.RejectionCode(err))
	})
	t.Run("unprovisioned recipient", func(t *testing.T) {
		_, err := f.svc.Transfer(f.ctx, alice, f.mint, address.FromSeed("nobody"), nil, 1, nil)
		assert.ErrorIs(t, err, ErrNotProvisioned)
	})
	t.Run("insufficient", func(t *testing.T) {
		f.client.reset()
		_, err := f.svc.Transfer(f.ctx, alice, f.mint, bob.Address(), nil, 1_000_000, nil)
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.Zero(t, f.client.count(token.OpCreateContext))
	})
}

func TestApproval(t *testing.T) {
	f := newFixture(t, false)
	owner := f.holder(10, 0)
	acct, err := f.svc.Account(f.ctx, owner, f.mint)
	require.NoError(t, err)
	assert.False(t, acct.Approved)

	_, err = f.svc.Deposit(f.ctx, owner, f.mint, 5, decimals)
	require.ErrorIs(t, err, ErrNotApproved)

	_, err = f.svc.ApproveAccount(f.ctx, f.payer, f.payer, f.mint, owner.Address())
	require.NoError(t, err)
	_, err = f.svc.Deposit(f.ctx, owner, f.mint, 5, decimals)
	assert.NoError(t, err)
}

func TestRecoverNothingToDo(t *testing.T) {
	f := newFixture(t, true)
	owner := f.holder(0, 10)
	_, err := f.svc.Withdraw(f.ctx, owner, f.mint, 5, decimals, nil)
	require.NoError(t, err)
	report, err := f.svc.Recover(f.ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, report.Closed)
	assert.Empty(t, report.Unresolved)
}

func TestProofGenerationFailureCreatesNothing(t *testing.T) {
	f := newFixture(t, true)
	owner := f.holder(0, 100)
	recipient := f.holder(0, 0)
	f.client.reset()

	gen := &prooftest.MockGenerator{}
	broken := errors.Wrap(proof.ErrProofGeneration, "prover out of memory")
	gen.On("Withdraw", mock.AnythingOfType("proof.WithdrawRequest")).Return(nil, broken).Once()
	gen.On("Transfer", mock.MatchedBy(func(req proof.TransferRequest) bool {
		return req.Amount == 5 && req.Balance == 100
	})).Return(nil, broken).Once()
	svc := NewService(f.client, gen, proofctx.NewManager(f.client, zap.NewNop()), zap.NewNop())

	_, err := svc.Withdraw(f.ctx, owner, f.mint, 10, decimals, nil)
	assert.ErrorIs(t, err, proof.ErrProofGeneration)
	_, err = svc.Transfer(f.ctx, owner, f.mint, recipient.Address(), nil, 5, nil)
	assert.ErrorIs(t, err, proof.ErrProofGeneration)

	gen.AssertExpectations(t)
	assert.Zero(t, f.client.count(token.OpCreateContext))
	assert.Equal(t, uint64(100), f.balance(owner).Available)
}
