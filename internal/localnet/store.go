package localnet

import (
	"encoding/binary"
	"slices"

	"github.com/cockroachdb/pebble"
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"ctoken/internal/address"
	"ctoken/internal/ledger"
)

// key prefixes
const (
	ACCOUNT     = 0x01
	TRANSACTION = 0x02
	ANCHOR      = 0x03
	META        = 0x04

	META_LATEST_ANCHOR = 0x00
)

var errNotFound = errors.New("not found")

type accountRecord struct {
	Lamports uint64
	Owner    address.Address
	Data     []byte
}

func (r *accountRecord) clone() *accountRecord {
	return &accountRecord{Lamports: r.Lamports, Owner: r.Owner, Data: slices.Clone(r.Data)}
}

type txRecord struct {
	Status ledger.Status
	Slot   uint64
	Error  *ledger.TxError `cbor:",omitempty"`
}

func accountKey(a address.Address) []byte {
	return append([]byte{ACCOUNT}, a[:]...)
}

func transactionKey(id string) []byte {
	return append([]byte{TRANSACTION}, []byte(id)...)
}

func anchorKey(hash [32]byte) []byte {
	return append([]byte{ANCHOR}, hash[:]...)
}

func metaKey(k byte) []byte {
	return []byte{META, k}
}

func encodeSlot(slot uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, slot)
	return b
}

// store wraps the pebble database holding ledger state.
type store struct {
	db *pebble.DB
}

func (s *store) get(key []byte, v any) error {
	data, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return errNotFound
		}
		return errors.Wrap(err, "get")
	}
	copied := slices.Clone(data)
	closer.Close()
	if v == nil {
		return nil
	}
	if err := cbor.Unmarshal(copied, v); err != nil {
		return errors.Wrap(err, "decode")
	}
	return nil
}

func (s *store) account(a address.Address) (*accountRecord, error) {
	var rec accountRecord
	if err := s.get(accountKey(a), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *store) transaction(id string) (*txRecord, error) {
	var rec txRecord
	if err := s.get(transactionKey(id), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *store) anchorSlot(hash [32]byte) (uint64, error) {
	data, closer, err := s.db.Get(anchorKey(hash))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, errNotFound
		}
		return 0, errors.Wrap(err, "anchor slot")
	}
	defer closer.Close()
	if len(data) != 8 {
		return 0, errors.New("corrupt anchor record")
	}
	return binary.BigEndian.Uint64(data), nil
}

func (s *store) latestAnchor() (ledger.Anchor, error) {
	var a ledger.Anchor
	err := s.get(metaKey(META_LATEST_ANCHOR), &a)
	return a, err
}

func setCBOR(b *pebble.Batch, key []byte, v any) error {
	data, err := cbor.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encode")
	}
	return b.Set(key, data, nil)
}
