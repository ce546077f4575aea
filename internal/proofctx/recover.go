package proofctx

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ctoken/internal/address"
	"ctoken/internal/journal"
	"ctoken/internal/ledger"
	"ctoken/internal/metrics"
	"ctoken/internal/signer"
)

// RecoverReport summarizes a Recover sweep.
type RecoverReport struct {
	// Closed lists context addresses whose rent was reclaimed.
	Closed []address.Address
	// Unresolved lists operations whose consuming transaction or a context
	// creating transaction is still undecided. Their contexts stay open.
	Unresolved []string
	// Running lists operations skipped because this manager is still
	// executing them.
	Running []string
	// Failed lists contexts that could not be closed this time.
	Failed []address.Address
}

// Recover finishes the journaled attempts of authority: it settles unknown
// consuming transactions and closes every context still on the ledger.
// authority also pays for the closing transactions.
func (m *Manager) Recover(ctx context.Context, authority signer.Signer) (*RecoverReport, error) {
	if m.journal == nil {
		return nil, errors.New("recover: no journal configured")
	}
	records, err := m.journal.Unfinished(authority.Address())
	if err != nil {
		return nil, errors.Wrap(err, "recover")
	}
	m.logger.Info("recovering proof contexts", zap.Int("operations", len(records)))

	report := &RecoverReport{}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.recoverConcurrency)
	for _, rec := range records {
		if m.running(rec.OperationID) {
			m.logger.Debug("skipping running operation", zap.String("operation", rec.OperationID))
			report.Running = append(report.Running, rec.OperationID)
			continue
		}
		g.Go(func() error {
			closed, failed, unresolved, err := m.recoverOne(gctx, authority, rec)
			mu.Lock()
			defer mu.Unlock()
			report.Closed = append(report.Closed, closed...)
			report.Failed = append(report.Failed, failed...)
			if unresolved {
				report.Unresolved = append(report.Unresolved, rec.OperationID)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return report, errors.Wrap(err, "recover")
	}
	return report, nil
}

func (m *Manager) recoverOne(ctx context.Context, authority signer.Signer, rec *journal.Record) (closed, failed []address.Address, unresolved bool, err error) {
	logger := m.logger.With(zap.String("operation", rec.OperationID), zap.String("state", rec.State))

	state := State(rec.State)
	if rec.ConsumeTx != "" && (state == StateConsuming || state == StateConsumeUnknown) {
		status, err := m.client.TransactionStatus(ctx, rec.ConsumeTx, rec.Anchor)
		if err != nil {
			return nil, nil, false, errors.Wrapf(err, "status of %s", rec.ConsumeTx)
		}
		if !status.Final() {
			logger.Info("consuming transaction still unresolved", zap.String("tx", rec.ConsumeTx))
			return nil, nil, true, nil
		}
		state = StateConsumed
		if status != ledger.StatusConfirmed {
			state = StateConsumeFailed
		}
		logger.Info("consuming transaction settled", zap.String("tx", rec.ConsumeTx), zap.Stringer("status", status))
	}

	var pending bool
	for i := range rec.Contexts {
		c := &rec.Contexts[i]
		if !Status(c.Status).onLedger() {
			continue
		}
		if Status(c.Status) == StatusPending && c.CreateTx != "" {
			status, err := m.client.TransactionStatus(ctx, c.CreateTx, c.Anchor)
			if err != nil || !status.Final() {
				logger.Info("context creation still unresolved", zap.Stringer("address", c.Address),
					zap.String("tx", c.CreateTx), zap.Error(err))
				pending = true
				continue
			}
			if status != ledger.StatusConfirmed {
				c.Status = string(StatusFailed)
				metrics.ContextTransitions.WithLabelValues(c.Kind.String(), string(StatusFailed)).Inc()
				continue
			}
			logger.Info("context creation landed late", zap.Stringer("address", c.Address), zap.String("tx", c.CreateTx))
		}
		if err := m.closeContext(ctx, authority, authority, c.Address, destinationOf(rec, authority)); err != nil {
			logger.Warn("proof context still open", zap.Stringer("address", c.Address), zap.Error(err))
			c.Status = string(StatusCloseFailed)
			failed = append(failed, c.Address)
			continue
		}
		if Status(c.Status) == StatusCloseFailed {
			metrics.LeakedContexts.Dec()
		}
		c.Status = string(StatusClosed)
		metrics.ContextTransitions.WithLabelValues(c.Kind.String(), string(StatusClosed)).Inc()
		closed = append(closed, c.Address)
	}

	switch {
	case pending:
		// only creation can be pending, so nothing was consumed yet
	case len(failed) > 0:
		rec.State = string(StateCloseFailed)
	case state == StateConsumed || state == StateContextsClosing || state == StateCloseFailed || state == StateDone:
		rec.State = string(StateDone)
		rec.Finished = true
	default:
		// nothing was consumed and every context is gone
		rec.State = string(state)
		rec.Finished = true
	}
	if err := m.journal.Put(rec); err != nil {
		return closed, failed, pending, err
	}
	return closed, failed, pending, nil
}

func destinationOf(rec *journal.Record, authority signer.Signer) address.Address {
	if rec.Destination.IsZero() {
		return authority.Address()
	}
	return rec.Destination
}
