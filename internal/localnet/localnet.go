// Package localnet is a single-node ledger running the confidential token
// program in process. State lives in pebble; each transaction executes
// against an overlay and commits as one batch, so a rejected transaction
// leaves no trace besides its failed status.
package localnet

import (
	"context"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"

	"ctoken/internal/address"
	"ctoken/internal/ledger"
	"ctoken/internal/metrics"
	"ctoken/internal/proof"
)

// Options configures a Ledger.
type Options struct {
	// Path of the pebble directory. Empty keeps everything in memory.
	Path string
	// AnchorTTL is how many slots an anchor stays valid.
	AnchorTTL uint64
	// Rent charged for an account of n bytes is RentBase + n*RentPerByte.
	RentBase    uint64
	RentPerByte uint64
}

func DefaultOptions() Options {
	return Options{AnchorTTL: 150, RentBase: 890_880, RentPerByte: 6_960}
}

// Ledger implements ledger.Client.
type Ledger struct {
	opts     Options
	verifier *proof.Verifier
	logger   *zap.Logger

	mu     sync.Mutex
	store  *store
	latest ledger.Anchor
}

var _ ledger.Client = (*Ledger)(nil)

// Open opens or initializes a ledger.
func Open(opts Options, verifier *proof.Verifier, logger *zap.Logger) (*Ledger, error) {
	if verifier == nil {
		return nil, errors.New("localnet needs a proof verifier")
	}
	pebbleOpts := &pebble.Options{}
	path := opts.Path
	if path == "" {
		pebbleOpts.FS = vfs.NewMem()
		path = "localnet"
	}
	db, err := pebble.Open(path, pebbleOpts)
	if err != nil {
		return nil, errors.Wrap(err, "open localnet store")
	}
	l := &Ledger{
		opts:     opts,
		verifier: verifier,
		logger:   logger.Named("localnet"),
		store:    &store{db: db},
	}

	latest, err := l.store.latestAnchor()
	switch {
	case err == nil:
		l.latest = latest
	case errors.Is(err, errNotFound):
		if err := l.genesis(); err != nil {
			db.Close()
			return nil, err
		}
	default:
		db.Close()
		return nil, err
	}
	l.logger.Info("localnet ready", zap.Uint64("slot", l.latest.Slot), zap.String("anchor", l.latest.String()))
	return l, nil
}

func (l *Ledger) genesis() error {
	genesis := ledger.Anchor{Hash: sha3.Sum256([]byte("ctoken localnet genesis"))}
	b := l.store.db.NewBatch()
	defer b.Close()
	if err := b.Set(anchorKey(genesis.Hash), encodeSlot(0), nil); err != nil {
		return errors.Wrap(err, "genesis")
	}
	if err := setCBOR(b, metaKey(META_LATEST_ANCHOR), genesis); err != nil {
		return errors.Wrap(err, "genesis")
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return errors.Wrap(err, "genesis")
	}
	l.latest = genesis
	return nil
}

func (l *Ledger) Close() error {
	return l.store.db.Close()
}

func (l *Ledger) LatestAnchor(ctx context.Context) (ledger.Anchor, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Anchor{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.latest, nil
}

func (l *Ledger) AccountState(ctx context.Context, addr address.Address) (*ledger.RawAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, err := l.store.account(addr)
	if errors.Is(err, errNotFound) {
		return nil, errors.Wrapf(ledger.ErrAccountNotFound, "%s", addr)
	}
	if err != nil {
		return nil, err
	}
	return &ledger.RawAccount{Address: addr, Lamports: rec.Lamports, Owner: rec.Owner, Data: rec.Data}, nil
}

func (l *Ledger) TransactionStatus(ctx context.Context, id string, anchor ledger.Anchor) (ledger.Status, error) {
	if err := ctx.Err(); err != nil {
		return ledger.StatusUnknown, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.store.transaction(id)
	if err == nil {
		return rec.Status, nil
	}
	if !errors.Is(err, errNotFound) {
		return ledger.StatusUnknown, err
	}
	if !l.anchorLive(anchor) {
		return ledger.StatusExpired, nil
	}
	return ledger.StatusUnknown, nil
}

func (l *Ledger) anchorLive(a ledger.Anchor) bool {
	slot, err := l.store.anchorSlot(a.Hash)
	if err != nil || slot != a.Slot {
		return false
	}
	return l.latest.Slot-slot <= l.opts.AnchorTTL
}

// SubmitAndConfirm executes tx. Execution is synchronous, so a nil error
// means the transaction is committed.
func (l *Ledger) SubmitAndConfirm(ctx context.Context, tx *ledger.Transaction) (*ledger.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id, err := tx.ID()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if rec, err := l.store.transaction(id); err == nil {
		if rec.Status == ledger.StatusConfirmed {
			return nil, ledger.Reject(ledger.CodeAlreadyProcessed, -1, "transaction %s already committed", id)
		}
	}
	if !l.anchorLive(tx.Message.Anchor) {
		return nil, l.reject(ledger.Reject(ledger.CodeAnchorExpired, -1, "anchor %s is not live", tx.Message.Anchor))
	}
	signed, err := tx.VerifySignatures()
	if err != nil {
		return nil, l.reject(err)
	}

	ov := newOverlay(l.store)
	for i, ix := range tx.Message.Instructions {
		e := &exec{l: l, ov: ov, signed: signed, ix: ix, idx: i}
		if err := e.run(); err != nil {
			l.recordFailure(id, err)
			return nil, l.reject(err)
		}
	}
	receipt, err := l.commit(id, ov)
	if err != nil {
		return nil, err
	}
	metrics.LedgerTransactions.WithLabelValues(ledger.StatusConfirmed.String()).Inc()
	l.logger.Debug("committed", zap.String("tx", id), zap.Uint64("slot", receipt.Slot),
		zap.Int("instructions", len(tx.Message.Instructions)))
	return receipt, nil
}

func (l *Ledger) reject(err error) error {
	metrics.LedgerTransactions.WithLabelValues(ledger.StatusFailed.String()).Inc()
	l.logger.Debug("rejected", zap.Error(err))
	return err
}

func (l *Ledger) recordFailure(id string, err error) {
	var txErr *ledger.TxError
	if !errors.As(err, &txErr) {
		txErr = ledger.Reject(ledger.CodeInvalidInstruction, -1, "%v", err)
	}
	b := l.store.db.NewBatch()
	defer b.Close()
	if err := setCBOR(b, transactionKey(id), txRecord{Status: ledger.StatusFailed, Slot: l.latest.Slot, Error: txErr}); err != nil {
		l.logger.Warn("record failed transaction", zap.String("tx", id), zap.Error(err))
		return
	}
	if err := b.Commit(pebble.Sync); err != nil {
		l.logger.Warn("record failed transaction", zap.String("tx", id), zap.Error(err))
	}
}

// commit writes the overlay, the transaction record and the next anchor in
// one batch.
func (l *Ledger) commit(id string, ov *overlay) (*ledger.Receipt, error) {
	next := l.nextAnchor([]byte(id))

	b := l.store.db.NewBatch()
	defer b.Close()
	for _, addr := range ov.order {
		rec := ov.accounts[addr]
		if rec == nil {
			if err := b.Delete(accountKey(addr), nil); err != nil {
				return nil, errors.Wrap(err, "commit")
			}
			continue
		}
		if err := setCBOR(b, accountKey(addr), rec); err != nil {
			return nil, errors.Wrap(err, "commit")
		}
	}
	if err := setCBOR(b, transactionKey(id), txRecord{Status: ledger.StatusConfirmed, Slot: next.Slot}); err != nil {
		return nil, errors.Wrap(err, "commit")
	}
	if err := l.advance(b, next); err != nil {
		return nil, err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return nil, errors.Wrap(err, "commit")
	}
	l.latest = next
	return &ledger.Receipt{ID: id, Slot: next.Slot}, nil
}

func (l *Ledger) nextAnchor(seed []byte) ledger.Anchor {
	h := sha3.New256()
	h.Write(l.latest.Hash[:])
	h.Write(seed)
	var next ledger.Anchor
	copy(next.Hash[:], h.Sum(nil))
	next.Slot = l.latest.Slot + 1
	return next
}

func (l *Ledger) advance(b *pebble.Batch, next ledger.Anchor) error {
	if err := b.Set(anchorKey(next.Hash), encodeSlot(next.Slot), nil); err != nil {
		return errors.Wrap(err, "advance anchor")
	}
	return setCBOR(b, metaKey(META_LATEST_ANCHOR), next)
}

// Airdrop credits lamports to addr outside of any transaction.
func (l *Ledger) Airdrop(ctx context.Context, addr address.Address, lamports uint64) (*ledger.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	ov := newOverlay(l.store)
	rec, err := ov.get(addr)
	switch {
	case errors.Is(err, errNotFound):
		rec = &accountRecord{}
	case err != nil:
		return nil, err
	}
	if rec.Lamports+lamports < rec.Lamports {
		return nil, ledger.Reject(ledger.CodeArithmeticOverflow, -1, "airdrop overflows %s", addr)
	}
	rec.Lamports += lamports
	ov.put(addr, rec)

	id := "airdrop-" + addr.String() + "-" + l.latest.String()
	receipt, err := l.commit(id, ov)
	if err != nil {
		return nil, err
	}
	l.logger.Info("airdrop", zap.String("to", addr.String()), zap.Uint64("lamports", lamports))
	return receipt, nil
}

func (l *Ledger) rent(space int) uint64 {
	return l.opts.RentBase + l.opts.RentPerByte*uint64(space)
}
