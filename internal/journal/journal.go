// Package journal persists proof-context operation attempts so contexts left
// on the ledger by a crash or an unresolved consumption can be closed later.
package journal

import (
	"slices"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"ctoken/internal/address"
	"ctoken/internal/ledger"
	"ctoken/internal/proof"
)

// key prefixes
const (
	OPERATION = 0x01
)

var ErrNotFound = errors.New("journal record not found")

// Context is one proof context of an attempt.
type Context struct {
	Kind     proof.Kind
	Address  address.Address
	Status   string
	// CreateTx and Anchor identify the creating transaction.
	CreateTx string `cbor:",omitempty"`
	Anchor   ledger.Anchor
}

// Record is the persisted view of one attempt.
type Record struct {
	OperationID string
	Label       string
	State       string
	Authority   address.Address
	Destination address.Address
	Contexts    []Context
	// ConsumeTx and Anchor identify the consuming transaction once built.
	ConsumeTx string        `cbor:",omitempty"`
	Anchor    ledger.Anchor
	Finished  bool
	UpdatedAt int64
}

func (r *Record) Updated() time.Time {
	return time.Unix(0, r.UpdatedAt)
}

// Journal is a pebble-backed record store keyed by operation id.
type Journal struct {
	db     *pebble.DB
	logger *zap.Logger
}

// Open opens the journal at path. An empty path keeps it in memory.
func Open(path string, logger *zap.Logger) (*Journal, error) {
	opts := &pebble.Options{}
	if path == "" {
		opts.FS = vfs.NewMem()
		path = "journal"
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, errors.Wrap(err, "open journal")
	}
	return &Journal{db: db, logger: logger.Named("journal")}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// NewOperationID returns a fresh random operation id.
func NewOperationID() string {
	return uuid.NewString()
}

func operationKey(id string) []byte {
	return append([]byte{OPERATION}, []byte(id)...)
}

// Put writes r, replacing any earlier version.
func (j *Journal) Put(r *Record) error {
	if r.OperationID == "" {
		return errors.New("put journal record: empty operation id")
	}
	r.UpdatedAt = time.Now().UnixNano()
	data, err := cbor.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "put journal record")
	}
	return errors.Wrap(j.db.Set(operationKey(r.OperationID), data, pebble.Sync), "put journal record")
}

func (j *Journal) Get(id string) (*Record, error) {
	data, closer, err := j.db.Get(operationKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get journal record")
	}
	defer closer.Close()
	var r Record
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(err, "get journal record")
	}
	return &r, nil
}

func (j *Journal) Delete(id string) error {
	return errors.Wrap(j.db.Delete(operationKey(id), pebble.Sync), "delete journal record")
}

// Unfinished lists attempts of authority that still have work left.
func (j *Journal) Unfinished(authority address.Address) ([]*Record, error) {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{OPERATION},
		UpperBound: []byte{OPERATION + 1},
	})
	if err != nil {
		return nil, errors.Wrap(err, "unfinished")
	}
	defer iter.Close()

	var out []*Record
	for iter.First(); iter.Valid(); iter.Next() {
		var r Record
		if err := cbor.Unmarshal(slices.Clone(iter.Value()), &r); err != nil {
			j.logger.Warn("skipping corrupt journal record", zap.ByteString("key", iter.Key()), zap.Error(err))
			continue
		}
		if r.Finished || r.Authority != authority {
			continue
		}
		out = append(out, &r)
	}
	return out, errors.Wrap(iter.Error(), "unfinished")
}

// Prune deletes finished records last updated before cutoff.
func (j *Journal) Prune(cutoff time.Time) (int, error) {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{OPERATION},
		UpperBound: []byte{OPERATION + 1},
	})
	if err != nil {
		return 0, errors.Wrap(err, "prune")
	}
	defer iter.Close()

	b := j.db.NewBatch()
	defer b.Close()
	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		var r Record
		if err := cbor.Unmarshal(slices.Clone(iter.Value()), &r); err != nil {
			continue
		}
		if r.Finished && r.Updated().Before(cutoff) {
			if err := b.Delete(slices.Clone(iter.Key()), nil); err != nil {
				return 0, errors.Wrap(err, "prune")
			}
			n++
		}
	}
	if err := iter.Error(); err != nil {
		return 0, errors.Wrap(err, "prune")
	}
	return n, errors.Wrap(b.Commit(pebble.Sync), "prune")
}
