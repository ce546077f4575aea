// Package ledger is the contract between the orchestration layer and a
// ledger: transactions, receipts, account reads and status queries.
package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"ctoken/internal/address"
)

var (
	ErrTransactionRejected = errors.New("transaction rejected")
	ErrAccountNotFound     = errors.New("account not found")
)

// Anchor is a recent ledger checkpoint a transaction commits to. A ledger
// refuses transactions whose anchor is older than its expiry window.
type Anchor struct {
	Hash [32]byte
	Slot uint64
}

func (a Anchor) String() string {
	return fmt.Sprintf("%s@%d", base58.Encode(a.Hash[:]), a.Slot)
}

// ParseAnchor reads the form produced by Anchor.String.
func ParseAnchor(s string) (Anchor, error) {
	hash, slot, ok := strings.Cut(s, "@")
	if !ok {
		return Anchor{}, errors.Errorf("anchor %q: missing slot", s)
	}
	raw, err := base58.Decode(hash)
	if err != nil || len(raw) != 32 {
		return Anchor{}, errors.Errorf("anchor %q: bad hash", s)
	}
	var a Anchor
	copy(a.Hash[:], raw)
	if a.Slot, err = strconv.ParseUint(slot, 10, 64); err != nil {
		return Anchor{}, errors.Wrapf(err, "anchor %q", s)
	}
	return a, nil
}

func (a Anchor) IsZero() bool {
	return a == Anchor{}
}

// Receipt confirms a committed transaction.
type Receipt struct {
	ID   string `json:"id"`
	Slot uint64 `json:"slot"`
}

// RawAccount is undecoded account data.
type RawAccount struct {
	Address  address.Address `json:"address"`
	Lamports uint64          `json:"lamports"`
	Owner    address.Address `json:"owner"`
	Data     []byte          `json:"data"`
}

// Status is the outcome of a transaction as known to the ledger.
type Status int

const (
	// StatusUnknown means the ledger has not seen the transaction and it may
	// still land.
	StatusUnknown Status = iota
	StatusConfirmed
	StatusFailed
	// StatusExpired means the transaction was never committed and its anchor
	// has expired, so it never can be.
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, error) {
	for _, st := range []Status{StatusUnknown, StatusConfirmed, StatusFailed, StatusExpired} {
		if st.String() == s {
			return st, nil
		}
	}
	return StatusUnknown, errors.Errorf("unknown transaction status %q", s)
}

// Final reports whether s cannot change any more.
func (s Status) Final() bool {
	return s != StatusUnknown
}

// Client is a ledger endpoint.
type Client interface {
	// SubmitAndConfirm submits tx and waits until it is committed or rejected.
	// A rejection is reported as a *TxError.
	SubmitAndConfirm(ctx context.Context, tx *Transaction) (*Receipt, error)
	LatestAnchor(ctx context.Context) (Anchor, error)
	// AccountState returns ErrAccountNotFound for unknown addresses.
	AccountState(ctx context.Context, addr address.Address) (*RawAccount, error)
	// TransactionStatus resolves the fate of a submitted transaction.
	TransactionStatus(ctx context.Context, id string, anchor Anchor) (Status, error)
}
