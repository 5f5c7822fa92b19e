// Package pumpfun estimates initial buys against a fresh pump.fun bonding curve.
package pumpfun

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	TokenDecimals = 9
	solDecimals   = 9
)

var (
	unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(TokenDecimals), nil)

	InitialVirtualSolReserves   = big.NewInt(30_000_000_000)
	InitialVirtualTokenReserves = new(big.Int).Mul(big.NewInt(1_073_000_000), unit)
	InitialRealTokenReserves    = new(big.Int).Mul(big.NewInt(793_100_000), unit)
	TotalSupply                 = new(big.Int).Mul(big.NewInt(1_000_000_000), unit)
)

// InitialBuyAmount quotes the raw token amount bought with sol on a curve
// nobody has traded yet. Fractions of a lamport are dropped and the quote
// never exceeds the real token reserves.
func InitialBuyAmount(sol decimal.Decimal) *big.Int {
	in := sol.Shift(solDecimals).Truncate(0).BigInt()
	if in.Sign() <= 0 {
		return new(big.Int)
	}
	k := new(big.Int).Mul(InitialVirtualSolReserves, InitialVirtualTokenReserves)
	newSol := new(big.Int).Add(InitialVirtualSolReserves, in)
	newTok := new(big.Int).Quo(k, newSol)
	newTok.Add(newTok, big.NewInt(1))

	out := new(big.Int).Sub(InitialVirtualTokenReserves, newTok)
	if out.Cmp(InitialRealTokenReserves) > 0 {
		out.Set(InitialRealTokenReserves)
	}
	return out
}

// Tokens converts a raw amount to whole tokens.
func Tokens(raw *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(raw, -TokenDecimals)
}

// SupplyPercent is the share of total supply raw represents, in percent.
func SupplyPercent(raw *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(raw, 2).DivRound(decimal.NewFromBigInt(TotalSupply, 0), 4)
}

// SplitBuys divides total SOL evenly over n wallets in whole lamports. The
// remainder goes to the first wallet.
func SplitBuys(total decimal.Decimal, n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	lamports := total.Shift(solDecimals).Truncate(0)
	if lamports.IsNegative() {
		lamports = decimal.Zero
	}
	each := lamports.Div(decimal.NewFromInt(int64(n))).Truncate(0)
	rem := lamports.Sub(each.Mul(decimal.NewFromInt(int64(n))))

	out := make([]decimal.Decimal, n)
	for i := range out {
		v := each
		if i == 0 {
			v = v.Add(rem)
		}
		out[i] = v.Shift(-solDecimals)
	}
	return out
}
