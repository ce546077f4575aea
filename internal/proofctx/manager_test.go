package proofctx

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"ctoken/internal/address"
	"ctoken/internal/journal"
	"ctoken/internal/ledger"
	"ctoken/internal/ledger/ledgertest"
	"ctoken/internal/proof"
	"ctoken/internal/signer"
	"ctoken/internal/token"
)

var anchor = ledger.Anchor{Slot: 7}

func newSigner(t *testing.T) *signer.Ed448 {
	s, err := signer.NewEd448()
	require.NoError(t, err)
	return s
}

func withdrawOp(t *testing.T) *Operation {
	owner := newSigner(t)
	account := address.FromSeed("account")
	mint := address.FromSeed("mint")
	return &Operation{
		Label: "withdraw",
		Bundle: proof.Bundle{
			proof.KindEquality: []byte("equality"),
			proof.KindRange:    []byte("range"),
		},
		Consume: func(refs map[proof.Kind]address.Address) []token.Instruction {
			return []token.Instruction{token.Withdraw(account, mint, refs[proof.KindEquality], refs[proof.KindRange],
				owner.Address(), 10, 2, [36]byte{})}
		},
		Signers: []signer.Signer{owner},
		Payer:   newSigner(t),
	}
}

func receipt() *ledger.Receipt { return &ledger.Receipt{ID: "tx", Slot: 8} }

func newMock() *ledgertest.MockClient {
	c := &ledgertest.MockClient{}
	c.On("LatestAnchor", mock.Anything).Return(anchor, nil)
	return c
}

func TestRunSuccess(t *testing.T) {
	c := newMock()
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.ContextOf(proof.KindEquality)).Return(receipt(), nil).Once()
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.ContextOf(proof.KindRange)).Return(receipt(), nil).Once()
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.HasOp(token.OpWithdraw)).Return(receipt(), nil).Once()
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.HasOp(token.OpCloseContext)).Return(receipt(), nil).Times(2)

	j, err := journal.Open("", zap.NewNop())
	require.NoError(t, err)
	defer j.Close()

	op := withdrawOp(t)
	res, err := NewManager(c, zap.NewNop(), WithJournal(j)).Run(context.Background(), op)
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, uint64(8), res.Receipt.Slot)
	require.Len(t, res.Contexts, 2)
	seen := map[address.Address]bool{}
	for _, ctxRec := range res.Contexts {
		assert.Equal(t, StatusClosed, ctxRec.Status)
		assert.Equal(t, op.Payer.Address(), ctxRec.Authority)
		assert.Equal(t, res.OperationID, ctxRec.OperationID)
		assert.False(t, seen[ctxRec.Address], "context address reused")
		seen[ctxRec.Address] = true
	}
	c.AssertExpectations(t)

	rec, err := j.Get(res.OperationID)
	require.NoError(t, err)
	assert.True(t, rec.Finished)
	assert.Equal(t, string(StateDone), rec.State)
}

func TestRunPartialCreationFailure(t *testing.T) {
	c := newMock()
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.ContextOf(proof.KindEquality)).Return(receipt(), nil).Once()
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.ContextOf(proof.KindRange)).
		Return(nil, ledger.Reject(ledger.CodeInvalidProof, 0, "bad range")).Once()
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.HasOp(token.OpCloseContext)).Return(receipt(), nil).Once()

	res, err := NewManager(c, zap.NewNop()).Run(context.Background(), withdrawOp(t))
	require.ErrorIs(t, err, ErrContextCreationFailed)
	assert.ErrorIs(t, err, ledger.ErrTransactionRejected)
	var cerr *CreationError
	require.ErrorAs(t, err, &cerr)
	require.Len(t, cerr.Created, 1)
	assert.Equal(t, proof.KindEquality, cerr.Created[0].Kind)
	assert.Equal(t, StatusClosed, cerr.Created[0].Status)
	assert.Equal(t, proof.KindRange, cerr.Failed.Kind)
	assert.Nil(t, cerr.Closure)
	assert.Equal(t, StateCreationFailed, res.State)

	c.AssertNotCalled(t, "SubmitAndConfirm", mock.Anything, ledgertest.HasOp(token.OpWithdraw))
	c.AssertExpectations(t)
}

func TestRunConsumeRejected(t *testing.T) {
	c := newMock()
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.HasOp(token.OpCreateContext)).Return(receipt(), nil).Times(2)
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.HasOp(token.OpWithdraw)).
		Return(nil, ledger.Reject(ledger.CodeStaleCiphertext, 0, "available changed")).Once()
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.HasOp(token.OpCloseContext)).Return(receipt(), nil).Times(2)

	res, err := NewManager(c, zap.NewNop()).Run(context.Background(), withdrawOp(t))
	require.ErrorIs(t, err, ErrConsumeFailed)
	assert.Equal(t, ledger.CodeStaleCiphertext, ledger.RejectionCode(err))
	assert.Equal(t, StateConsumeFailed, res.State)
	for _, ctxRec := range res.Contexts {
		assert.Equal(t, StatusClosed, ctxRec.Status)
	}
	c.AssertExpectations(t)
}

func TestRunConsumeTimeoutConfirmed(t *testing.T) {
	c := newMock()
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.HasOp(token.OpCreateContext)).Return(receipt(), nil).Times(2)
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.HasOp(token.OpWithdraw)).Return(nil, context.DeadlineExceeded).Once()
	c.On("TransactionStatus", mock.Anything, mock.Anything, anchor).Return(ledger.StatusConfirmed, nil).Once()
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.HasOp(token.OpCloseContext)).Return(receipt(), nil).Times(2)

	res, err := NewManager(c, zap.NewNop()).Run(context.Background(), withdrawOp(t))
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	require.NotNil(t, res.Receipt)
	assert.NotEmpty(t, res.Receipt.ID)
	c.AssertExpectations(t)
}

func TestRunConsumeUnknownThenRecover(t *testing.T) {
	c := newMock()
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.HasOp(token.OpCreateContext)).Return(receipt(), nil).Times(2)
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.HasOp(token.OpWithdraw)).
		Return(nil, errors.New("connection reset")).Once()
	c.On("TransactionStatus", mock.Anything, mock.Anything, anchor).Return(ledger.StatusUnknown, nil).Twice()

	j, err := journal.Open("", zap.NewNop())
	require.NoError(t, err)
	defer j.Close()
	m := NewManager(c, zap.NewNop(), WithJournal(j))

	op := withdrawOp(t)
	res, err := m.Run(context.Background(), op)
	require.ErrorIs(t, err, ErrOutcomeUnknown)
	assert.Equal(t, StateConsumeUnknown, res.State)
	for _, ctxRec := range res.Contexts {
		assert.Equal(t, StatusCreated, ctxRec.Status, "contexts must stay open")
	}
	c.AssertNotCalled(t, "SubmitAndConfirm", mock.Anything, ledgertest.HasOp(token.OpCloseContext))

	// still unresolved: nothing is closed
	report, err := m.Recover(context.Background(), op.Payer)
	require.NoError(t, err)
	assert.Equal(t, []string{res.OperationID}, report.Unresolved)
	assert.Empty(t, report.Closed)

	c.On("TransactionStatus", mock.Anything, mock.Anything, anchor).Return(ledger.StatusConfirmed, nil).Once()
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.HasOp(token.OpCloseContext)).Return(receipt(), nil).Times(2)
	report, err = m.Recover(context.Background(), op.Payer)
	require.NoError(t, err)
	assert.Len(t, report.Closed, 2)
	assert.Empty(t, report.Unresolved)

	left, err := j.Unfinished(op.Payer.Address())
	require.NoError(t, err)
	assert.Empty(t, left)
	c.AssertNumberOfCalls(t, "SubmitAndConfirm", 5)
}

func TestRunClosureFailureIsWarning(t *testing.T) {
	c := newMock()
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.HasOp(token.OpCreateContext)).Return(receipt(), nil).Times(2)
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.HasOp(token.OpWithdraw)).Return(receipt(), nil).Once()
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.HasOp(token.OpCloseContext)).
		Return(nil, errors.New("ledger unavailable")).Times(2)

	core, logs := observer.New(zap.WarnLevel)
	res, err := NewManager(c, zap.New(core)).Run(context.Background(), withdrawOp(t))
	require.NoError(t, err)
	assert.Equal(t, StateCloseFailed, res.State)
	assert.NotNil(t, res.Receipt)
	require.Len(t, res.Warnings, 1)
	var closure *ClosureError
	require.ErrorAs(t, res.Warnings[0], &closure)
	assert.Len(t, closure.Failed, 2)
	assert.ErrorIs(t, res.Warnings[0], ErrContextClosureFailed)
	assert.Equal(t, 2, logs.FilterMessage("proof context left open").Len())
}

func TestRunCreationConfirmedAfterTimeout(t *testing.T) {
	c := newMock()
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.ContextOf(proof.KindEquality)).Return(nil, context.DeadlineExceeded).Once()
	c.On("TransactionStatus", mock.Anything, mock.Anything, anchor).Return(ledger.StatusConfirmed, nil).Once()
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.ContextOf(proof.KindRange)).Return(receipt(), nil).Once()
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.HasOp(token.OpWithdraw)).Return(receipt(), nil).Once()
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.HasOp(token.OpCloseContext)).Return(receipt(), nil).Times(2)

	res, err := NewManager(c, zap.NewNop()).Run(context.Background(), withdrawOp(t))
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	for _, ctxRec := range res.Contexts {
		assert.Equal(t, StatusClosed, ctxRec.Status)
		assert.NotEmpty(t, ctxRec.CreateTx)
	}
	c.AssertExpectations(t)
}

func TestRunCreationExpiredAfterTimeout(t *testing.T) {
	c := newMock()
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.ContextOf(proof.KindEquality)).Return(receipt(), nil).Once()
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.ContextOf(proof.KindRange)).Return(nil, context.DeadlineExceeded).Once()
	c.On("TransactionStatus", mock.Anything, mock.Anything, anchor).Return(ledger.StatusExpired, nil).Once()
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.HasOp(token.OpCloseContext)).Return(receipt(), nil).Once()

	j, err := journal.Open("", zap.NewNop())
	require.NoError(t, err)
	defer j.Close()

	op := withdrawOp(t)
	res, err := NewManager(c, zap.NewNop(), WithJournal(j)).Run(context.Background(), op)
	var cerr *CreationError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatusFailed, cerr.Failed.Status)
	require.Len(t, cerr.Created, 1)
	assert.Equal(t, StatusClosed, cerr.Created[0].Status)

	rec, err := j.Get(res.OperationID)
	require.NoError(t, err)
	assert.True(t, rec.Finished)
	c.AssertExpectations(t)
}

func TestRunCreationUnresolvedThenRecover(t *testing.T) {
	c := newMock()
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.ContextOf(proof.KindEquality)).Return(receipt(), nil).Once()
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.ContextOf(proof.KindRange)).Return(nil, context.DeadlineExceeded).Once()
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.HasOp(token.OpCloseContext)).Return(receipt(), nil).Once()
	c.On("TransactionStatus", mock.Anything, mock.Anything, anchor).Return(ledger.StatusUnknown, nil).Twice()

	j, err := journal.Open("", zap.NewNop())
	require.NoError(t, err)
	defer j.Close()
	m := NewManager(c, zap.NewNop(), WithJournal(j))

	op := withdrawOp(t)
	res, err := m.Run(context.Background(), op)
	var cerr *CreationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, StateCreationFailed, res.State)
	assert.Equal(t, StatusPending, cerr.Failed.Status, "creation may still land")
	require.Len(t, cerr.Created, 1)
	assert.Equal(t, StatusClosed, cerr.Created[0].Status)
	c.AssertNumberOfCalls(t, "SubmitAndConfirm", 3)

	rec, err := j.Get(res.OperationID)
	require.NoError(t, err)
	assert.False(t, rec.Finished)
	require.Len(t, rec.Contexts, 2)
	assert.Equal(t, cerr.Failed.CreateTx, rec.Contexts[1].CreateTx)
	assert.Equal(t, anchor, rec.Contexts[1].Anchor)

	report, err := m.Recover(context.Background(), op.Payer)
	require.NoError(t, err)
	assert.Equal(t, []string{res.OperationID}, report.Unresolved)
	assert.Empty(t, report.Closed)
	c.AssertNumberOfCalls(t, "SubmitAndConfirm", 3)

	// the creating transaction lands after the attempt gave up
	c.On("TransactionStatus", mock.Anything, cerr.Failed.CreateTx, anchor).Return(ledger.StatusConfirmed, nil).Once()
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.HasOp(token.OpCloseContext)).Return(receipt(), nil).Once()
	report, err = m.Recover(context.Background(), op.Payer)
	require.NoError(t, err)
	assert.Equal(t, []address.Address{cerr.Failed.Address}, report.Closed)
	assert.Empty(t, report.Unresolved)

	left, err := j.Unfinished(op.Payer.Address())
	require.NoError(t, err)
	assert.Empty(t, left)
	c.AssertNumberOfCalls(t, "SubmitAndConfirm", 4)
}

func TestRecoverSkipsRunningOperation(t *testing.T) {
	entered, release := make(chan struct{}), make(chan struct{})
	c := newMock()
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.ContextOf(proof.KindEquality)).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).Return(receipt(), nil).Once()
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.ContextOf(proof.KindRange)).Return(receipt(), nil).Once()
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.HasOp(token.OpWithdraw)).Return(receipt(), nil).Once()
	c.On("SubmitAndConfirm", mock.Anything, ledgertest.HasOp(token.OpCloseContext)).Return(receipt(), nil).Times(2)
	j, err := journal.Open("", zap.NewNop())
	require.NoError(t, err)
	defer j.Close()
	m := NewManager(c, zap.NewNop(), WithJournal(j))

	op := withdrawOp(t)
	op.ID = "withdraw-1"
	done := make(chan error, 1)
	go func() {
		_, err := m.Run(context.Background(), op)
		done <- err
	}()
	<-entered

	report, err := m.Recover(context.Background(), op.Payer)
	require.NoError(t, err)
	assert.Equal(t, []string{"withdraw-1"}, report.Running)
	assert.Empty(t, report.Closed)

	_, err = m.Run(context.Background(), op)
	assert.ErrorContains(t, err, "already running")
	close(release)
	require.NoError(t, <-done)

	assert.False(t, m.running(op.ID))
	c.AssertExpectations(t)
}

func TestRunValidation(t *testing.T) {
	m := NewManager(newMock(), zap.NewNop())
	op := withdrawOp(t)
	op.Consume = nil
	_, err := m.Run(context.Background(), op)
	assert.Error(t, err)

	op = withdrawOp(t)
	op.Bundle = proof.Bundle{proof.Kind(99): nil}
	_, err = m.Run(context.Background(), op)
	assert.Error(t, err)
}

func TestRecoverNeedsJournal(t *testing.T) {
	_, err := NewManager(newMock(), zap.NewNop()).Recover(context.Background(), newSigner(t))
	assert.Error(t, err)
}
