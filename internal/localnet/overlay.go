package localnet

import (
	"github.com/pkg/errors"

	"ctoken/internal/address"
)

// overlay buffers account writes of one transaction. A nil entry marks a
// deleted account.
type overlay struct {
	base     *store
	accounts map[address.Address]*accountRecord
	order    []address.Address
}

func newOverlay(base *store) *overlay {
	return &overlay{base: base, accounts: make(map[address.Address]*accountRecord)}
}

// get returns a private copy of the account.
func (o *overlay) get(a address.Address) (*accountRecord, error) {
	if rec, ok := o.accounts[a]; ok {
		if rec == nil {
			return nil, errNotFound
		}
		return rec.clone(), nil
	}
	rec, err := o.base.account(a)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (o *overlay) exists(a address.Address) (bool, error) {
	_, err := o.get(a)
	if errors.Is(err, errNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (o *overlay) put(a address.Address, rec *accountRecord) {
	if _, ok := o.accounts[a]; !ok {
		o.order = append(o.order, a)
	}
	o.accounts[a] = rec
}

func (o *overlay) del(a address.Address) {
	o.put(a, nil)
}
