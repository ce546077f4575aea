package token

import (
	"math"
	"math/big"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// ToBaseUnits scales a UI amount such as "12.5" by 10^decimals.
func ToBaseUnits(ui string, decimals uint8) (uint64, error) {
	d, err := decimal.NewFromString(ui)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidAmount, "parse %q", ui)
	}
	if d.IsNegative() {
		return 0, errors.Wrapf(ErrInvalidAmount, "negative amount %s", ui)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, errors.Wrapf(ErrInvalidAmount, "%s has more than %d decimals", ui, decimals)
	}
	if scaled.GreaterThan(decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)) {
		return 0, errors.Wrapf(ErrInvalidAmount, "%s overflows", ui)
	}
	return scaled.BigInt().Uint64(), nil
}

// FromBaseUnits formats base units as a UI amount.
func FromBaseUnits(amount uint64, decimals uint8) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), 0).Shift(-int32(decimals)).StringFixed(int32(decimals))
}
