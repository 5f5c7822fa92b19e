package evm

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var ErrBadAmount = errors.New("evm: invalid amount")

// FromWei scales an integer base-unit amount down by decimals.
func FromWei(x *big.Int, decimals int32) decimal.Decimal {
	if x == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(x, -decimals)
}

// ToWei converts a whole-unit amount to base units. Amounts with more
// fractional digits than decimals, and negative amounts, are rejected.
func ToWei(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: %s is negative", ErrBadAmount, amount)
	}
	shifted := amount.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("%w: too many fractional digits for %d decimals", ErrBadAmount, decimals)
	}
	return shifted.BigInt(), nil
}
