package proofctx

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"ctoken/internal/address"
	"ctoken/internal/journal"
	"ctoken/internal/ledger"
	"ctoken/internal/metrics"
	"ctoken/internal/proof"
	"ctoken/internal/signer"
	"ctoken/internal/token"
)

const (
	defaultSettleTimeout      = 30 * time.Second
	defaultRecoverConcurrency = 4
)

// Manager runs proof-context operations against a ledger.
type Manager struct {
	client  ledger.Client
	journal *journal.Journal
	logger  *zap.Logger

	newKey             func() (signer.Signer, error)
	settleTimeout      time.Duration
	recoverConcurrency int

	// active holds the ids of attempts Run is executing.
	mu     sync.Mutex
	active map[string]struct{}
}

type Option func(*Manager)

// WithJournal persists every transition so Recover can finish attempts.
func WithJournal(j *journal.Journal) Option {
	return func(m *Manager) { m.journal = j }
}

// WithKeySource overrides how fresh context identities are generated.
func WithKeySource(fn func() (signer.Signer, error)) Option {
	return func(m *Manager) { m.newKey = fn }
}

// WithSettleTimeout bounds closures and status queries that run after the
// caller's context is done.
func WithSettleTimeout(d time.Duration) Option {
	return func(m *Manager) { m.settleTimeout = d }
}

func WithRecoverConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.recoverConcurrency = n
		}
	}
}

func NewManager(client ledger.Client, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		client: client,
		logger: logger.Named("proofctx"),
		newKey: func() (signer.Signer, error) {
			return signer.NewEd448()
		},
		settleTimeout:      defaultSettleTimeout,
		recoverConcurrency: defaultRecoverConcurrency,
		active:             make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// attempt is the mutable state of one Run.
type attempt struct {
	m         *Manager
	op        *Operation
	res       *Result
	authority signer.Signer
	dest      address.Address
	consumeTx string
	anchor    ledger.Anchor
	logger    *zap.Logger
}

// Run executes op once. See the package documentation for the state machine.
func (m *Manager) Run(ctx context.Context, op *Operation) (*Result, error) {
	if err := op.validate(); err != nil {
		return nil, err
	}
	id := op.ID
	if id == "" {
		id = journal.NewOperationID()
	}
	if !m.begin(id) {
		return nil, errors.Errorf("operation %s is already running", id)
	}
	defer m.end(id)
	a := &attempt{
		m:         m,
		op:        op,
		res:       &Result{OperationID: id, State: StateInit},
		authority: op.Authority,
		dest:      op.Destination,
		logger:    m.logger.With(zap.String("operation", id), zap.String("label", op.Label)),
	}
	if a.authority == nil {
		a.authority = op.Payer
	}
	if a.dest.IsZero() {
		a.dest = op.Payer.Address()
	}

	if err := a.createAll(ctx); err != nil {
		return a.res, err
	}
	if err := a.consume(ctx); err != nil {
		return a.res, err
	}
	a.transition(StateContextsClosing)
	if cerr := a.closeAll(ctx); cerr != nil {
		a.res.Warnings = append(a.res.Warnings, cerr)
		a.transition(StateCloseFailed)
		return a.res, nil
	}
	a.transition(StateDone)
	return a.res, nil
}

func (m *Manager) begin(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[id]; ok {
		return false
	}
	m.active[id] = struct{}{}
	return true
}

func (m *Manager) end(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, id)
}

// running reports whether Run is executing the operation id. Recover leaves
// such attempts alone, their contexts are still in use.
func (m *Manager) running(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[id]
	return ok
}

func (a *attempt) transition(s State) {
	a.res.State = s
	a.logger.Debug("transition", zap.String("state", string(s)))
	a.persist()
}

func (a *attempt) setStatus(c *ContextRecord, s Status) {
	c.Status = s
	metrics.ContextTransitions.WithLabelValues(c.Kind.String(), string(s)).Inc()
	a.persist()
}

// persist writes the attempt to the journal. The ledger stays the source of
// truth, so a journal failure is logged and the attempt continues.
func (a *attempt) persist() {
	if a.m.journal == nil {
		return
	}
	rec := &journal.Record{
		OperationID: a.res.OperationID,
		Label:       a.op.Label,
		State:       string(a.res.State),
		Authority:   a.authority.Address(),
		Destination: a.dest,
		ConsumeTx:   a.consumeTx,
		Anchor:      a.anchor,
		Finished:    finished(a.res.State, a.res.Contexts),
	}
	for _, c := range a.res.Contexts {
		rec.Contexts = append(rec.Contexts, journal.Context{
			Kind:     c.Kind,
			Address:  c.Address,
			Status:   string(c.Status),
			CreateTx: c.CreateTx,
			Anchor:   c.Anchor,
		})
	}
	if err := a.m.journal.Put(rec); err != nil {
		a.logger.Warn("journal write failed", zap.Error(err))
	}
}

// finished reports whether nothing is left to resolve or close.
func finished(s State, contexts []*ContextRecord) bool {
	switch s {
	case StateDone:
		return true
	case StateCreationFailed, StateConsumeFailed, StateCloseFailed:
		for _, c := range contexts {
			if c.Status.onLedger() {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (a *attempt) createAll(ctx context.Context) error {
	a.transition(StateContextsCreating)
	for _, kind := range a.op.Bundle.Kinds() {
		c, err := a.create(ctx, kind)
		if err == nil {
			continue
		}
		a.logger.Warn("proof context creation failed", zap.Stringer("kind", kind), zap.Error(err))
		a.transition(StateCreationFailed)
		cerr := &CreationError{Created: a.res.Created(), Failed: c}
		if closure := a.closeAll(ctx); closure != nil {
			cerr.Closure = closure
			a.res.Warnings = append(a.res.Warnings, closure)
			a.persist()
		}
		return cerr
	}
	a.transition(StateContextsReady)
	return nil
}

func (a *attempt) create(ctx context.Context, kind proof.Kind) (*ContextRecord, error) {
	c := &ContextRecord{
		Kind:        kind,
		Payload:     a.op.Bundle[kind],
		Funder:      a.op.Payer.Address(),
		Authority:   a.authority.Address(),
		Destination: a.dest,
		OperationID: a.res.OperationID,
	}
	a.res.Contexts = append(a.res.Contexts, c)
	key, err := a.m.newKey()
	if err != nil {
		return c, a.createFailed(c, errors.Wrap(err, "context key"))
	}
	c.Address = key.Address()

	ix := token.CreateContext(c.Address, c.Funder, c.Authority, kind, c.Payload)
	anchor, err := a.m.client.LatestAnchor(ctx)
	if err != nil {
		return c, a.createFailed(c, errors.Wrap(err, "latest anchor"))
	}
	tx, err := ledger.NewTransaction(anchor, a.op.Payer, []token.Instruction{ix}, key)
	if err != nil {
		return c, a.createFailed(c, err)
	}
	id, err := tx.ID()
	if err != nil {
		return c, a.createFailed(c, err)
	}
	c.CreateTx, c.Anchor = id, anchor
	a.setStatus(c, StatusPending)

	if _, err := a.m.client.SubmitAndConfirm(ctx, tx); err != nil {
		err = errors.Wrapf(err, "create %s context", kind)
		if errors.Is(err, ledger.ErrTransactionRejected) {
			return c, a.createFailed(c, err)
		}
		status, qerr := a.m.status(ctx, id, anchor)
		switch {
		case qerr == nil && status == ledger.StatusConfirmed:
			a.logger.Info("context creation confirmed after submit error",
				zap.Stringer("kind", kind), zap.String("tx", id), zap.Error(err))
		case qerr == nil && status.Final():
			return c, a.createFailed(c, errors.Wrapf(err, "creating transaction %s", status))
		default:
			// the transaction may still land: stay pending for Recover
			if qerr != nil {
				err = errors.Wrapf(err, "status query: %v", qerr)
			}
			c.Err = err
			a.logger.Warn("context creation unresolved", zap.Stringer("kind", kind),
				zap.Stringer("address", c.Address), zap.String("tx", id), zap.Error(err))
			return c, err
		}
	}
	a.setStatus(c, StatusCreated)
	a.logger.Debug("proof context created", zap.Stringer("kind", kind), zap.Stringer("address", c.Address))
	return c, nil
}

func (a *attempt) createFailed(c *ContextRecord, err error) error {
	c.Err = err
	a.setStatus(c, StatusFailed)
	return err
}

func (a *attempt) consume(ctx context.Context) error {
	refs := make(map[proof.Kind]address.Address, len(a.res.Contexts))
	for _, c := range a.res.Contexts {
		refs[c.Kind] = c.Address
	}
	ixs := a.op.Consume(refs)

	anchor, err := a.m.client.LatestAnchor(ctx)
	if err != nil {
		return a.abortBeforeConsume(ctx, errors.Wrap(err, "latest anchor"))
	}
	tx, err := ledger.NewTransaction(anchor, a.op.Payer, ixs, a.op.Signers...)
	if err != nil {
		return a.abortBeforeConsume(ctx, err)
	}
	id, err := tx.ID()
	if err != nil {
		return a.abortBeforeConsume(ctx, err)
	}
	a.consumeTx, a.anchor = id, anchor
	a.transition(StateConsuming)

	receipt, err := a.m.client.SubmitAndConfirm(ctx, tx)
	if err == nil {
		a.res.Receipt = receipt
		a.transition(StateConsumed)
		return nil
	}
	if errors.Is(err, ledger.ErrTransactionRejected) {
		return a.rejected(ctx, err)
	}

	status, qerr := a.m.status(ctx, id, anchor)
	switch {
	case qerr == nil && status == ledger.StatusConfirmed:
		a.logger.Info("consuming transaction confirmed after submit error", zap.String("tx", id), zap.Error(err))
		a.res.Receipt = &ledger.Receipt{ID: id}
		a.transition(StateConsumed)
		return nil
	case qerr == nil && status.Final():
		return a.rejected(ctx, errors.Wrapf(err, "consuming transaction %s", status))
	}
	if qerr != nil {
		err = errors.Wrapf(err, "status query: %v", qerr)
	}
	a.transition(StateConsumeUnknown)
	a.logger.Warn("consuming transaction unresolved, contexts left open",
		zap.String("tx", id), zap.Int("contexts", len(a.res.Created())), zap.Error(err))
	return errors.Wrapf(ErrOutcomeUnknown, "transaction %s: %v", id, err)
}

// abortBeforeConsume handles failures before anything was submitted.
func (a *attempt) abortBeforeConsume(ctx context.Context, err error) error {
	a.transition(StateConsumeFailed)
	if closure := a.closeAll(ctx); closure != nil {
		a.res.Warnings = append(a.res.Warnings, closure)
		a.persist()
	}
	return errors.Wrap(err, "build consuming transaction")
}

func (a *attempt) rejected(ctx context.Context, err error) error {
	a.transition(StateConsumeFailed)
	a.logger.Info("consuming transaction rejected", zap.String("code", string(ledger.RejectionCode(err))), zap.Error(err))
	if closure := a.closeAll(ctx); closure != nil {
		a.res.Warnings = append(a.res.Warnings, closure)
		a.persist()
	}
	return &ConsumeError{Err: err}
}

// closeAll closes every context that may be on the ledger. It runs on a
// context detached from the caller so a cancelled caller still reclaims rent.
// Pending contexts are left to Recover: closing one whose creation has not
// landed yet would succeed as a no-op and hide the later landing.
func (a *attempt) closeAll(ctx context.Context) *ClosureError {
	sctx, cancel := a.m.settle(ctx)
	defer cancel()
	var failed []*ContextRecord
	for _, c := range a.res.Contexts {
		if c.Status == StatusPending || !c.Status.onLedger() {
			continue
		}
		if err := a.m.closeContext(sctx, a.op.Payer, a.authority, c.Address, a.dest); err != nil {
			c.Err = err
			a.setStatus(c, StatusCloseFailed)
			metrics.LeakedContexts.Inc()
			a.logger.Warn("proof context left open", zap.Stringer("kind", c.Kind),
				zap.Stringer("address", c.Address), zap.Error(err))
			failed = append(failed, c)
			continue
		}
		a.setStatus(c, StatusClosed)
	}
	if len(failed) > 0 {
		return &ClosureError{Failed: failed}
	}
	return nil
}

func (m *Manager) closeContext(ctx context.Context, payer, authority signer.Signer, addr, dest address.Address) error {
	ix := token.CloseContext(addr, dest, authority.Address())
	_, err := ledger.Send(ctx, m.client, payer, []token.Instruction{ix}, authority)
	if ledger.RejectionCode(err) == ledger.CodeAccountNotFound {
		return nil
	}
	return errors.Wrapf(err, "close context %s", addr)
}

func (m *Manager) status(ctx context.Context, id string, anchor ledger.Anchor) (ledger.Status, error) {
	sctx, cancel := m.settle(ctx)
	defer cancel()
	return m.client.TransactionStatus(sctx, id, anchor)
}

func (m *Manager) settle(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), m.settleTimeout)
}
