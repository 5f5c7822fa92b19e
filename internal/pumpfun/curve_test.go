package pumpfun

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialBuyAmount(t *testing.T) {
	cases := map[string]string{
		"1":    "34612903225806451",
		"0.5":  "17590163934426229",
		"85":   "793086956521739130",
		"100":  "793100000000000000",
		"1000": "793100000000000000",
		"0":    "0",
		"-3":   "0",
		// below one lamport
		"0.0000000001": "0",
	}
	for sol, want := range cases {
		got := InitialBuyAmount(decimal.RequireFromString(sol))
		assert.Equal(t, want, got.String(), sol)
	}
}

func TestInitialBuyDoesNotMutateReserves(t *testing.T) {
	before := InitialRealTokenReserves.String()
	out := InitialBuyAmount(decimal.NewFromInt(1000))
	out.SetInt64(1)
	assert.Equal(t, before, InitialRealTokenReserves.String())
}

func TestSupplyPercent(t *testing.T) {
	assert.Equal(t, "79.31", SupplyPercent(InitialRealTokenReserves).String())
	assert.Equal(t, "3.4613", SupplyPercent(InitialBuyAmount(decimal.NewFromInt(1))).String())
	assert.Equal(t, "793100000", Tokens(InitialRealTokenReserves).String())
}

func TestSplitBuys(t *testing.T) {
	parts := SplitBuys(decimal.NewFromInt(1), 3)
	require.Len(t, parts, 3)
	assert.Equal(t, "0.333333334", parts[0].String())
	assert.Equal(t, "0.333333333", parts[1].String())
	assert.Equal(t, "0.333333333", parts[2].String())

	sum := decimal.Zero
	for _, p := range parts {
		sum = sum.Add(p)
	}
	assert.True(t, sum.Equal(decimal.NewFromInt(1)))

	assert.Nil(t, SplitBuys(decimal.NewFromInt(1), 0))
	for _, p := range SplitBuys(decimal.NewFromInt(-1), 2) {
		assert.True(t, p.IsZero())
	}
}
