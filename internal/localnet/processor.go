package localnet

import (
	"github.com/pkg/errors"

	"ctoken/internal/address"
	"ctoken/internal/elgamal"
	"ctoken/internal/ledger"
	"ctoken/internal/proof"
	"ctoken/internal/token"
)

// exec runs one instruction against the transaction overlay.
type exec struct {
	l      *Ledger
	ov     *overlay
	signed map[address.Address]bool
	ix     token.Instruction
	idx    int
}

func (e *exec) fail(code ledger.Code, format string, args ...any) error {
	return ledger.Reject(code, e.idx, "%s: "+format, append([]any{e.ix.Op}, args...)...)
}

func (e *exec) run() error {
	if e.ix.Program != token.ProgramID {
		return e.fail(ledger.CodeInvalidInstruction, "unknown program %s", e.ix.Program)
	}
	for _, m := range e.ix.Accounts {
		if m.Signer && !e.signed[m.Address] {
			return e.fail(ledger.CodeMissingSignature, "%s did not sign", m.Address)
		}
	}
	switch e.ix.Op {
	case token.OpInitializeMint:
		return e.initializeMint()
	case token.OpMintTo:
		return e.mintTo()
	case token.OpCreateAssociatedAccount:
		return e.createAssociatedAccount()
	case token.OpReallocate:
		return e.reallocate()
	case token.OpConfigureAccount:
		return e.configureAccount()
	case token.OpApproveAccount:
		return e.approveAccount()
	case token.OpDeposit:
		return e.deposit()
	case token.OpApplyPendingBalance:
		return e.applyPendingBalance()
	case token.OpWithdraw:
		return e.withdraw()
	case token.OpTransfer:
		return e.transfer()
	case token.OpCreateContext:
		return e.createContext()
	case token.OpCloseContext:
		return e.closeContext()
	default:
		return e.fail(ledger.CodeInvalidInstruction, "unknown op")
	}
}

func (e *exec) addr(i int) (address.Address, error) {
	m, err := e.ix.Account(i)
	if err != nil {
		return address.Zero, e.fail(ledger.CodeInvalidInstruction, "%v", err)
	}
	return m.Address, nil
}

func (e *exec) signerAt(i int) (address.Address, error) {
	a, err := e.addr(i)
	if err != nil {
		return a, err
	}
	if !e.signed[a] {
		return a, e.fail(ledger.CodeMissingSignature, "%s did not sign", a)
	}
	return a, nil
}

// addrs resolves the first n account positions.
func (e *exec) addrs(n int) ([]address.Address, error) {
	out := make([]address.Address, n)
	for i := range out {
		a, err := e.addr(i)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

func decodeData[T any](e *exec) (*T, error) {
	d, err := token.DecodeData[T](e.ix)
	if err != nil {
		return nil, e.fail(ledger.CodeInvalidInstruction, "%v", err)
	}
	return d, nil
}

func (e *exec) loadState(a address.Address) (*accountRecord, *token.State, error) {
	rec, err := e.ov.get(a)
	if errors.Is(err, errNotFound) {
		return nil, nil, e.fail(ledger.CodeAccountNotFound, "%s", a)
	}
	if err != nil {
		return nil, nil, err
	}
	if rec.Owner != token.ProgramID {
		return nil, nil, e.fail(ledger.CodeInvalidAccount, "%s is not owned by the token program", a)
	}
	st, err := token.DecodeState(rec.Data)
	if err != nil {
		return nil, nil, e.fail(ledger.CodeInvalidAccount, "%s: %v", a, err)
	}
	return rec, st, nil
}

func (e *exec) mint(a address.Address) (*accountRecord, *token.State, error) {
	rec, st, err := e.loadState(a)
	if err != nil {
		return nil, nil, err
	}
	if st.Kind != token.StateMint || st.Mint == nil {
		return nil, nil, e.fail(ledger.CodeInvalidAccount, "%s is not a mint", a)
	}
	return rec, st, nil
}

func (e *exec) tokenAccount(a, mint address.Address) (*accountRecord, *token.State, error) {
	rec, st, err := e.loadState(a)
	if err != nil {
		return nil, nil, err
	}
	if st.Kind != token.StateAccount || st.Account == nil {
		return nil, nil, e.fail(ledger.CodeInvalidAccount, "%s is not a token account", a)
	}
	if st.Account.Mint != mint {
		return nil, nil, e.fail(ledger.CodeMintMismatch, "%s belongs to mint %s", a, st.Account.Mint)
	}
	return rec, st, nil
}

// configured loads an approved confidential account of mint.
func (e *exec) configured(a, mint address.Address) (*accountRecord, *token.State, error) {
	rec, st, err := e.tokenAccount(a, mint)
	if err != nil {
		return nil, nil, err
	}
	ext := st.Account.Confidential
	if ext == nil {
		return nil, nil, e.fail(ledger.CodeInvalidAccount, "%s has no confidential extension", a)
	}
	if !ext.Approved {
		return nil, nil, e.fail(ledger.CodeNotApproved, "%s", a)
	}
	return rec, st, nil
}

// owned is configured plus an owner check.
func (e *exec) owned(a, mint, owner address.Address) (*accountRecord, *token.State, error) {
	rec, st, err := e.configured(a, mint)
	if err != nil {
		return nil, nil, err
	}
	if st.Account.Owner != owner {
		return nil, nil, e.fail(ledger.CodeUnauthorized, "%s is not owned by %s", a, owner)
	}
	return rec, st, nil
}

func (e *exec) save(a address.Address, rec *accountRecord, st *token.State) error {
	data, err := st.Encode()
	if err != nil {
		return err
	}
	rec.Data = data
	e.ov.put(a, rec)
	return nil
}

func (e *exec) charge(payer address.Address, lamports uint64) error {
	rec, err := e.ov.get(payer)
	if errors.Is(err, errNotFound) {
		return e.fail(ledger.CodeInsufficientFunds, "payer %s has no lamports", payer)
	}
	if err != nil {
		return err
	}
	if rec.Lamports < lamports {
		return e.fail(ledger.CodeInsufficientFunds, "payer %s has %d lamports, needs %d", payer, rec.Lamports, lamports)
	}
	rec.Lamports -= lamports
	e.ov.put(payer, rec)
	return nil
}

func (e *exec) credit(to address.Address, lamports uint64) error {
	rec, err := e.ov.get(to)
	switch {
	case errors.Is(err, errNotFound):
		rec = &accountRecord{}
	case err != nil:
		return err
	}
	if rec.Lamports+lamports < rec.Lamports {
		return e.fail(ledger.CodeArithmeticOverflow, "lamports of %s", to)
	}
	rec.Lamports += lamports
	e.ov.put(to, rec)
	return nil
}

// create allocates a program account funded with rent by payer.
func (e *exec) create(a, payer address.Address, space int, st *token.State) error {
	exists, err := e.ov.exists(a)
	if err != nil {
		return err
	}
	if exists {
		return e.fail(ledger.CodeAccountExists, "%s", a)
	}
	rent := e.l.rent(space)
	if err := e.charge(payer, rent); err != nil {
		return err
	}
	return e.save(a, &accountRecord{Lamports: rent, Owner: token.ProgramID}, st)
}

// consume marks a context of kind as used and returns it.
func (e *exec) consume(a address.Address, kind proof.Kind) (*token.ContextState, error) {
	rec, st, err := e.loadState(a)
	if err != nil {
		return nil, err
	}
	if st.Kind != token.StateContext || st.Context == nil {
		return nil, e.fail(ledger.CodeInvalidAccount, "%s is not a proof context", a)
	}
	if st.Context.Kind != kind {
		return nil, e.fail(ledger.CodeInvalidAccount, "%s holds a %s proof, want %s", a, st.Context.Kind, kind)
	}
	if st.Context.Consumed {
		return nil, e.fail(ledger.CodeContextConsumed, "%s", a)
	}
	st.Context.Consumed = true
	if err := e.save(a, rec, st); err != nil {
		return nil, err
	}
	return st.Context, nil
}

func (e *exec) initializeMint() error {
	mint, err := e.signerAt(0)
	if err != nil {
		return err
	}
	payer, err := e.signerAt(1)
	if err != nil {
		return err
	}
	authority, err := e.addr(2)
	if err != nil {
		return err
	}
	data, err := decodeData[token.InitializeMintData](e)
	if err != nil {
		return err
	}
	return e.create(mint, payer, token.MintSpace, &token.State{Kind: token.StateMint, Mint: &token.Mint{
		Authority:   authority,
		Decimals:    data.Decimals,
		AutoApprove: data.AutoApprove,
	}})
}

func (e *exec) mintTo() error {
	a, err := e.addrs(2)
	if err != nil {
		return err
	}
	mint, account := a[0], a[1]
	authority, err := e.signerAt(2)
	if err != nil {
		return err
	}
	data, err := decodeData[token.MintToData](e)
	if err != nil {
		return err
	}
	mrec, mst, err := e.mint(mint)
	if err != nil {
		return err
	}
	if mst.Mint.Authority != authority {
		return e.fail(ledger.CodeUnauthorized, "%s is not the mint authority", authority)
	}
	arec, ast, err := e.tokenAccount(account, mint)
	if err != nil {
		return err
	}
	if mst.Mint.Supply+data.Amount < mst.Mint.Supply || ast.Account.Amount+data.Amount < ast.Account.Amount {
		return e.fail(ledger.CodeArithmeticOverflow, "supply")
	}
	mst.Mint.Supply += data.Amount
	ast.Account.Amount += data.Amount
	if err := e.save(mint, mrec, mst); err != nil {
		return err
	}
	return e.save(account, arec, ast)
}

func (e *exec) createAssociatedAccount() error {
	payer, err := e.signerAt(0)
	if err != nil {
		return err
	}
	a, err := e.addrs(4)
	if err != nil {
		return err
	}
	account, owner, mint := a[1], a[2], a[3]
	if _, _, err := e.mint(mint); err != nil {
		return err
	}
	if account != token.AssociatedAddress(owner, mint) {
		return e.fail(ledger.CodeInvalidAccount, "%s is not the associated account of %s", account, owner)
	}
	return e.create(account, payer, token.AccountSpace, &token.State{Kind: token.StateAccount, Account: &token.Account{
		Mint:  mint,
		Owner: owner,
	}})
}

func (e *exec) reallocate() error {
	account, err := e.addr(0)
	if err != nil {
		return err
	}
	payer, err := e.signerAt(1)
	if err != nil {
		return err
	}
	owner, err := e.signerAt(2)
	if err != nil {
		return err
	}
	data, err := decodeData[token.ReallocateData](e)
	if err != nil {
		return err
	}
	var extra uint64
	for _, ext := range data.Extensions {
		if ext != token.ExtensionConfidentialTransfer {
			return e.fail(ledger.CodeInvalidInstruction, "unknown extension %d", ext)
		}
	}

	_, peek, err := e.loadState(account)
	if err != nil {
		return err
	}
	if peek.Kind != token.StateAccount || peek.Account == nil {
		return e.fail(ledger.CodeInvalidAccount, "%s is not a token account", account)
	}
	if peek.Account.Owner != owner {
		return e.fail(ledger.CodeUnauthorized, "%s is not owned by %s", account, owner)
	}
	if len(data.Extensions) > 0 && !peek.Account.ExtensionReserved {
		extra = e.l.opts.RentPerByte * token.ConfidentialExtensionSpace
	}
	if extra == 0 {
		return nil
	}
	if err := e.charge(payer, extra); err != nil {
		return err
	}
	rec, st, err := e.loadState(account)
	if err != nil {
		return err
	}
	rec.Lamports += extra
	st.Account.ExtensionReserved = true
	return e.save(account, rec, st)
}

func (e *exec) configureAccount() error {
	a, err := e.addrs(2)
	if err != nil {
		return err
	}
	account, mint := a[0], a[1]
	owner, err := e.signerAt(2)
	if err != nil {
		return err
	}
	data, err := decodeData[token.ConfigureAccountData](e)
	if err != nil {
		return err
	}
	_, mst, err := e.mint(mint)
	if err != nil {
		return err
	}
	rec, st, err := e.tokenAccount(account, mint)
	if err != nil {
		return err
	}
	switch {
	case st.Account.Owner != owner:
		return e.fail(ledger.CodeUnauthorized, "%s is not owned by %s", account, owner)
	case !st.Account.ExtensionReserved:
		return e.fail(ledger.CodeInvalidAccount, "%s has no space for the extension", account)
	case st.Account.Confidential != nil:
		return e.fail(ledger.CodeInvalidAccount, "%s is already configured", account)
	case data.MaxPendingCounter == 0:
		return e.fail(ledger.CodeInvalidInstruction, "maximum pending counter must be positive")
	}
	if err := data.Proof.Verify(); err != nil {
		return e.fail(ledger.CodeInvalidProof, "%v", err)
	}
	st.Account.Confidential = &token.ConfidentialExtension{
		Approved:             mst.Mint.AutoApprove,
		Pubkey:               data.Proof.Pubkey,
		PendingLo:            elgamal.ZeroCiphertext(),
		PendingHi:            elgamal.ZeroCiphertext(),
		Available:            elgamal.ZeroCiphertext(),
		DecryptableAvailable: data.DecryptableAvailable,
		MaxPendingCounter:    data.MaxPendingCounter,
	}
	return e.save(account, rec, st)
}

func (e *exec) approveAccount() error {
	a, err := e.addrs(2)
	if err != nil {
		return err
	}
	account, mint := a[0], a[1]
	authority, err := e.signerAt(2)
	if err != nil {
		return err
	}
	_, mst, err := e.mint(mint)
	if err != nil {
		return err
	}
	if mst.Mint.Authority != authority {
		return e.fail(ledger.CodeUnauthorized, "%s is not the mint authority", authority)
	}
	rec, st, err := e.tokenAccount(account, mint)
	if err != nil {
		return err
	}
	if st.Account.Confidential == nil {
		return e.fail(ledger.CodeInvalidAccount, "%s has no confidential extension", account)
	}
	st.Account.Confidential.Approved = true
	return e.save(account, rec, st)
}

func (e *exec) deposit() error {
	a, err := e.addrs(2)
	if err != nil {
		return err
	}
	account, mint := a[0], a[1]
	owner, err := e.signerAt(2)
	if err != nil {
		return err
	}
	data, err := decodeData[token.DepositData](e)
	if err != nil {
		return err
	}
	_, mst, err := e.mint(mint)
	if err != nil {
		return err
	}
	if data.Decimals != mst.Mint.Decimals {
		return e.fail(ledger.CodeInvalidInstruction, "decimals %d, mint has %d", data.Decimals, mst.Mint.Decimals)
	}
	rec, st, err := e.owned(account, mint, owner)
	if err != nil {
		return err
	}
	lo, hi, err := proof.SplitAmount(data.Amount)
	if err != nil {
		return e.fail(ledger.CodeInvalidInstruction, "%v", err)
	}
	ext := st.Account.Confidential
	switch {
	case st.Account.Amount < data.Amount:
		return e.fail(ledger.CodeInsufficientBalance, "public balance %d < %d", st.Account.Amount, data.Amount)
	case ext.PendingCounter >= ext.MaxPendingCounter:
		return e.fail(ledger.CodePendingCapacity, "pending counter at maximum %d", ext.MaxPendingCounter)
	}
	st.Account.Amount -= data.Amount
	ext.PendingLo = ext.PendingLo.AddAmount(lo)
	ext.PendingHi = ext.PendingHi.AddAmount(hi)
	ext.PendingCounter++
	return e.save(account, rec, st)
}

func (e *exec) applyPendingBalance() error {
	account, err := e.addr(0)
	if err != nil {
		return err
	}
	owner, err := e.signerAt(1)
	if err != nil {
		return err
	}
	data, err := decodeData[token.ApplyPendingBalanceData](e)
	if err != nil {
		return err
	}
	_, peek, err := e.loadState(account)
	if err != nil {
		return err
	}
	if peek.Kind != token.StateAccount || peek.Account == nil {
		return e.fail(ledger.CodeInvalidAccount, "%s is not a token account", account)
	}
	rec, st, err := e.owned(account, peek.Account.Mint, owner)
	if err != nil {
		return err
	}
	ext := st.Account.Confidential
	if data.ExpectedPendingCounter != ext.PendingCounter {
		return e.fail(ledger.CodeStalePendingCounter, "expected %d, account has %d", data.ExpectedPendingCounter, ext.PendingCounter)
	}
	ext.Available = ext.Available.Add(elgamal.CombineLoHi(ext.PendingLo, ext.PendingHi, proof.LoBits))
	ext.PendingLo = elgamal.ZeroCiphertext()
	ext.PendingHi = elgamal.ZeroCiphertext()
	ext.PendingCounter = 0
	ext.DecryptableAvailable = data.NewDecryptable
	return e.save(account, rec, st)
}

func (e *exec) withdraw() error {
	a, err := e.addrs(4)
	if err != nil {
		return err
	}
	account, mint, eqAddr, rangeAddr := a[0], a[1], a[2], a[3]
	owner, err := e.signerAt(4)
	if err != nil {
		return err
	}
	data, err := decodeData[token.WithdrawData](e)
	if err != nil {
		return err
	}
	_, mst, err := e.mint(mint)
	if err != nil {
		return err
	}
	if data.Decimals != mst.Mint.Decimals {
		return e.fail(ledger.CodeInvalidInstruction, "decimals %d, mint has %d", data.Decimals, mst.Mint.Decimals)
	}
	rec, st, err := e.owned(account, mint, owner)
	if err != nil {
		return err
	}
	eq, rng, err := e.consumeEqualityAndRange(eqAddr, rangeAddr)
	if err != nil {
		return err
	}

	ext := st.Account.Confidential
	if !eq.Pubkey.Equal(ext.Pubkey) {
		return e.fail(ledger.CodeInvalidProof, "equality proof is for another key")
	}
	newAvailable := ext.Available.SubAmount(data.Amount)
	if !eq.Ciphertext.Equal(newAvailable) {
		return e.fail(ledger.CodeStaleCiphertext, "equality proof does not match the available balance")
	}
	if rng.Layout != proof.WithdrawRange || len(rng.Commitments) != 1 || !rng.Commitments[0].Equal(eq.Commitment) {
		return e.fail(ledger.CodeInvalidProof, "range proof does not bound the remaining balance")
	}
	if st.Account.Amount+data.Amount < st.Account.Amount {
		return e.fail(ledger.CodeArithmeticOverflow, "public balance")
	}
	st.Account.Amount += data.Amount
	ext.Available = newAvailable
	ext.DecryptableAvailable = data.NewDecryptable
	return e.save(account, rec, st)
}

func (e *exec) transfer() error {
	a, err := e.addrs(6)
	if err != nil {
		return err
	}
	source, mint, destination, eqAddr, validityAddr, rangeAddr := a[0], a[1], a[2], a[3], a[4], a[5]
	owner, err := e.signerAt(6)
	if err != nil {
		return err
	}
	data, err := decodeData[token.TransferData](e)
	if err != nil {
		return err
	}
	if source == destination {
		return e.fail(ledger.CodeInvalidInstruction, "source and destination are the same account")
	}
	if _, _, err := e.mint(mint); err != nil {
		return err
	}
	srec, sst, err := e.owned(source, mint, owner)
	if err != nil {
		return err
	}
	drec, dst, err := e.configured(destination, mint)
	if err != nil {
		return err
	}
	eq, rng, err := e.consumeEqualityAndRange(eqAddr, rangeAddr)
	if err != nil {
		return err
	}
	vctx, err := e.consume(validityAddr, proof.KindCiphertextValidity)
	if err != nil {
		return err
	}
	validity, err := proof.DecodeValidity(vctx.Payload)
	if err != nil {
		return e.fail(ledger.CodeInvalidProof, "%v", err)
	}

	sext, dext := sst.Account.Confidential, dst.Account.Confidential
	if !validity.Pubkeys[0].Equal(sext.Pubkey) || !validity.Pubkeys[1].Equal(dext.Pubkey) {
		return e.fail(ledger.CodeInvalidProof, "validity proof is for other keys")
	}
	if !eq.Pubkey.Equal(sext.Pubkey) {
		return e.fail(ledger.CodeInvalidProof, "equality proof is for another key")
	}
	debit := elgamal.CombineLoHi(
		validity.Lo.Ciphertext(elgamal.SourceHandle),
		validity.Hi.Ciphertext(elgamal.SourceHandle),
		proof.LoBits,
	)
	newAvailable := sext.Available.Sub(debit)
	if !eq.Ciphertext.Equal(newAvailable) {
		return e.fail(ledger.CodeStaleCiphertext, "equality proof does not match the available balance")
	}
	if rng.Layout != proof.TransferRange || len(rng.Commitments) != 3 ||
		!rng.Commitments[0].Equal(eq.Commitment) ||
		!rng.Commitments[1].Equal(elgamal.Commitment{Point: validity.Lo.Commitment}) ||
		!rng.Commitments[2].Equal(elgamal.Commitment{Point: validity.Hi.Commitment}) {
		return e.fail(ledger.CodeInvalidProof, "range proof does not bound the transfer")
	}
	if dext.PendingCounter >= dext.MaxPendingCounter {
		return e.fail(ledger.CodePendingCapacity, "destination pending counter at maximum %d", dext.MaxPendingCounter)
	}

	dext.PendingLo = dext.PendingLo.Add(validity.Lo.Ciphertext(elgamal.DestinationHandle))
	dext.PendingHi = dext.PendingHi.Add(validity.Hi.Ciphertext(elgamal.DestinationHandle))
	dext.PendingCounter++
	sext.Available = newAvailable
	sext.DecryptableAvailable = data.NewDecryptable
	if err := e.save(source, srec, sst); err != nil {
		return err
	}
	return e.save(destination, drec, dst)
}

func (e *exec) consumeEqualityAndRange(eqAddr, rangeAddr address.Address) (*proof.EqualityProof, *proof.RangeProof, error) {
	eqCtx, err := e.consume(eqAddr, proof.KindEquality)
	if err != nil {
		return nil, nil, err
	}
	rngCtx, err := e.consume(rangeAddr, proof.KindRange)
	if err != nil {
		return nil, nil, err
	}
	eq, err := proof.DecodeEquality(eqCtx.Payload)
	if err != nil {
		return nil, nil, e.fail(ledger.CodeInvalidProof, "%v", err)
	}
	rng, err := proof.DecodeRange(rngCtx.Payload)
	if err != nil {
		return nil, nil, e.fail(ledger.CodeInvalidProof, "%v", err)
	}
	return eq, rng, nil
}

func (e *exec) createContext() error {
	ctxAddr, err := e.signerAt(0)
	if err != nil {
		return err
	}
	payer, err := e.signerAt(1)
	if err != nil {
		return err
	}
	authority, err := e.addr(2)
	if err != nil {
		return err
	}
	data, err := decodeData[token.CreateContextData](e)
	if err != nil {
		return err
	}
	if !data.Kind.Valid() {
		return e.fail(ledger.CodeInvalidInstruction, "unknown proof kind %d", data.Kind)
	}
	if err := e.l.verifier.Verify(data.Kind, data.Payload); err != nil {
		return e.fail(ledger.CodeInvalidProof, "%s: %v", data.Kind, err)
	}
	return e.create(ctxAddr, payer, token.ContextHeaderSpace+len(data.Payload), &token.State{
		Kind: token.StateContext,
		Context: &token.ContextState{
			Kind:      data.Kind,
			Authority: authority,
			Payload:   data.Payload,
		},
	})
}

// closeContext deletes a context, consumed or not, and refunds its rent.
func (e *exec) closeContext() error {
	a, err := e.addrs(2)
	if err != nil {
		return err
	}
	ctxAddr, destination := a[0], a[1]
	authority, err := e.signerAt(2)
	if err != nil {
		return err
	}
	if ctxAddr == destination {
		return e.fail(ledger.CodeInvalidInstruction, "destination is the context itself")
	}
	rec, st, err := e.loadState(ctxAddr)
	if err != nil {
		return err
	}
	if st.Kind != token.StateContext || st.Context == nil {
		return e.fail(ledger.CodeInvalidAccount, "%s is not a proof context", ctxAddr)
	}
	if st.Context.Authority != authority {
		return e.fail(ledger.CodeUnauthorized, "%s may not close %s", authority, ctxAddr)
	}
	if err := e.credit(destination, rec.Lamports); err != nil {
		return err
	}
	e.ov.del(ctxAddr)
	return nil
}
