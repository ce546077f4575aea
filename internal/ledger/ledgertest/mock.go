// Package ledgertest provides a testify mock of ledger.Client.
package ledgertest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"ctoken/internal/address"
	"ctoken/internal/ledger"
	"ctoken/internal/proof"
	"ctoken/internal/token"
)

type MockClient struct {
	mock.Mock
}

var _ ledger.Client = (*MockClient)(nil)

func (m *MockClient) SubmitAndConfirm(ctx context.Context, tx *ledger.Transaction) (*ledger.Receipt, error) {
	args := m.Called(ctx, tx)
	r, _ := args.Get(0).(*ledger.Receipt)
	return r, args.Error(1)
}

func (m *MockClient) LatestAnchor(ctx context.Context) (ledger.Anchor, error) {
	args := m.Called(ctx)
	return args.Get(0).(ledger.Anchor), args.Error(1)
}

func (m *MockClient) AccountState(ctx context.Context, addr address.Address) (*ledger.RawAccount, error) {
	args := m.Called(ctx, addr)
	r, _ := args.Get(0).(*ledger.RawAccount)
	return r, args.Error(1)
}

func (m *MockClient) TransactionStatus(ctx context.Context, id string, anchor ledger.Anchor) (ledger.Status, error) {
	args := m.Called(ctx, id, anchor)
	return args.Get(0).(ledger.Status), args.Error(1)
}

// HasOp matches transactions whose first instruction is op.
func HasOp(op token.Op) any {
	return mock.MatchedBy(func(tx *ledger.Transaction) bool {
		return len(tx.Message.Instructions) > 0 && tx.Message.Instructions[0].Op == op
	})
}

// ContextOf matches create-context transactions for kind.
func ContextOf(kind proof.Kind) any {
	return mock.MatchedBy(func(tx *ledger.Transaction) bool {
		if len(tx.Message.Instructions) == 0 || tx.Message.Instructions[0].Op != token.OpCreateContext {
			return false
		}
		data, err := token.DecodeData[token.CreateContextData](tx.Message.Instructions[0])
		return err == nil && data.Kind == kind
	})
}
