package prooftest

import (
	"github.com/stretchr/testify/mock"

	"ctoken/internal/elgamal"
	"ctoken/internal/proof"
)

// MockGenerator is a testify double of proof.Generator.
type MockGenerator struct {
	mock.Mock
}

var _ proof.Generator = (*MockGenerator)(nil)

func (m *MockGenerator) PubkeyValidity(kp *elgamal.Keypair) (*proof.PubkeyValidityProof, error) {
	args := m.Called(kp)
	p, _ := args.Get(0).(*proof.PubkeyValidityProof)
	return p, args.Error(1)
}

func (m *MockGenerator) Withdraw(req proof.WithdrawRequest) (proof.Bundle, error) {
	args := m.Called(req)
	b, _ := args.Get(0).(proof.Bundle)
	return b, args.Error(1)
}

func (m *MockGenerator) Transfer(req proof.TransferRequest) (proof.Bundle, error) {
	args := m.Called(req)
	b, _ := args.Get(0).(proof.Bundle)
	return b, args.Error(1)
}
