package token

import (
	"ctoken/internal/address"
	"ctoken/internal/elgamal"
	"ctoken/internal/proof"
)

type InitializeMintData struct {
	Decimals    uint8
	AutoApprove bool
}

// InitializeMint accounts: mint (signer), payer (signer), authority.
func InitializeMint(mint, payer, authority address.Address, decimals uint8, autoApprove bool) Instruction {
	return newInstruction(OpInitializeMint, []AccountMeta{
		signerMeta(mint, true),
		signerMeta(payer, true),
		readonly(authority),
	}, InitializeMintData{Decimals: decimals, AutoApprove: autoApprove})
}

type MintToData struct {
	Amount uint64
}

// MintTo accounts: mint, token account, mint authority (signer).
func MintTo(mint, account, authority address.Address, amount uint64) Instruction {
	return newInstruction(OpMintTo, []AccountMeta{
		writable(mint),
		writable(account),
		signerMeta(authority, false),
	}, MintToData{Amount: amount})
}

// CreateAssociatedAccount accounts: payer (signer), account, owner, mint.
func CreateAssociatedAccount(payer, account, owner, mint address.Address) Instruction {
	return newInstruction(OpCreateAssociatedAccount, []AccountMeta{
		signerMeta(payer, true),
		writable(account),
		readonly(owner),
		readonly(mint),
	}, nil)
}

// ExtensionType names an account extension that needs extra space.
type ExtensionType uint8

const ExtensionConfidentialTransfer ExtensionType = 1

type ReallocateData struct {
	Extensions []ExtensionType
}

// Reallocate accounts: account, payer (signer), owner (signer).
func Reallocate(account, payer, owner address.Address, extensions ...ExtensionType) Instruction {
	return newInstruction(OpReallocate, []AccountMeta{
		writable(account),
		signerMeta(payer, true),
		signerMeta(owner, false),
	}, ReallocateData{Extensions: extensions})
}

type ConfigureAccountData struct {
	MaxPendingCounter    uint64
	DecryptableAvailable elgamal.AeCiphertext
	Proof                proof.PubkeyValidityProof
}

// ConfigureAccount accounts: account, mint, owner (signer).
func ConfigureAccount(account, mint, owner address.Address, maxPending uint64,
	decryptableZero elgamal.AeCiphertext, validity *proof.PubkeyValidityProof) Instruction {
	return newInstruction(OpConfigureAccount, []AccountMeta{
		writable(account),
		readonly(mint),
		signerMeta(owner, false),
	}, ConfigureAccountData{
		MaxPendingCounter:    maxPending,
		DecryptableAvailable: decryptableZero,
		Proof:                *validity,
	})
}

// ApproveAccount accounts: account, mint, mint authority (signer).
func ApproveAccount(account, mint, authority address.Address) Instruction {
	return newInstruction(OpApproveAccount, []AccountMeta{
		writable(account),
		readonly(mint),
		signerMeta(authority, false),
	}, nil)
}

type DepositData struct {
	Amount   uint64
	Decimals uint8
}

// Deposit accounts: account, mint, owner (signer).
func Deposit(account, mint, owner address.Address, amount uint64, decimals uint8) Instruction {
	return newInstruction(OpDeposit, []AccountMeta{
		writable(account),
		readonly(mint),
		signerMeta(owner, false),
	}, DepositData{Amount: amount, Decimals: decimals})
}

type ApplyPendingBalanceData struct {
	ExpectedPendingCounter uint64
	NewDecryptable         elgamal.AeCiphertext
}

// ApplyPendingBalance accounts: account, owner (signer).
func ApplyPendingBalance(account, owner address.Address, expectedCounter uint64, newDecryptable elgamal.AeCiphertext) Instruction {
	return newInstruction(OpApplyPendingBalance, []AccountMeta{
		writable(account),
		signerMeta(owner, false),
	}, ApplyPendingBalanceData{ExpectedPendingCounter: expectedCounter, NewDecryptable: newDecryptable})
}

type WithdrawData struct {
	Amount         uint64
	Decimals       uint8
	NewDecryptable elgamal.AeCiphertext
}

// Withdraw accounts: account, mint, equality context, range context, owner (signer).
func Withdraw(account, mint, equality, rangeCtx, owner address.Address, amount uint64, decimals uint8,
	newDecryptable elgamal.AeCiphertext) Instruction {
	return newInstruction(OpWithdraw, []AccountMeta{
		writable(account),
		readonly(mint),
		writable(equality),
		writable(rangeCtx),
		signerMeta(owner, false),
	}, WithdrawData{Amount: amount, Decimals: decimals, NewDecryptable: newDecryptable})
}

type TransferData struct {
	NewDecryptable elgamal.AeCiphertext
}

// Transfer accounts: source, mint, destination, equality context, validity
// context, range context, owner (signer).
func Transfer(source, mint, destination, equality, validity, rangeCtx, owner address.Address,
	newDecryptable elgamal.AeCiphertext) Instruction {
	return newInstruction(OpTransfer, []AccountMeta{
		writable(source),
		readonly(mint),
		writable(destination),
		writable(equality),
		writable(validity),
		writable(rangeCtx),
		signerMeta(owner, false),
	}, TransferData{NewDecryptable: newDecryptable})
}

type CreateContextData struct {
	Kind    proof.Kind
	Payload []byte
}

// CreateContext accounts: context (signer), payer (signer), closure authority.
// The ledger verifies the payload before the context is written.
func CreateContext(context, payer, authority address.Address, kind proof.Kind, payload []byte) Instruction {
	return newInstruction(OpCreateContext, []AccountMeta{
		signerMeta(context, true),
		signerMeta(payer, true),
		readonly(authority),
	}, CreateContextData{Kind: kind, Payload: payload})
}

// CloseContext accounts: context, lamport destination, authority (signer).
func CloseContext(context, destination, authority address.Address) Instruction {
	return newInstruction(OpCloseContext, []AccountMeta{
		writable(context),
		writable(destination),
		signerMeta(authority, false),
	}, nil)
}
