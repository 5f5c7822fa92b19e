package wallet

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Chain identifies the address/key family a wallet belongs to.
type Chain string

const (
	Solana Chain = "solana"
	EVM    Chain = "evm"
)

// ParseChain accepts the chain names used in env files and flags.
func ParseChain(s string) (Chain, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "solana", "sol", "pumpfun":
		return Solana, nil
	case "evm", "bsc", "bnb", "eth", "four-meme", "fourmeme":
		return EVM, nil
	}
	return "", fmt.Errorf("unknown chain %q", s)
}

// Account is one managed wallet of a bundle.
// A balance field is either unset (never observed) or the last successful read.
type Account struct {
	ID            int                 `json:"id"`
	Address       string              `json:"address"`
	Secret        string              `json:"secret,omitempty"`
	NativeBalance decimal.NullDecimal `json:"nativeBalance"`
	TokenBalance  decimal.NullDecimal `json:"tokenBalance"`
}

// WithNative returns a copy with the native balance set.
func (a Account) WithNative(v decimal.Decimal) Account {
	a.NativeBalance = decimal.NewNullDecimal(v)
	return a
}

// WithToken returns a copy with the token balance set.
func (a Account) WithToken(v decimal.Decimal) Account {
	a.TokenBalance = decimal.NewNullDecimal(v)
	return a
}

// Addresses lists the account addresses in order.
func Addresses(accounts []Account) []string {
	out := make([]string, len(accounts))
	for i, a := range accounts {
		out[i] = a.Address
	}
	return out
}

// Append adds generated wallets after the existing ones and keeps ids contiguous.
func Append(existing, generated []Account) []Account {
	out := make([]Account, 0, len(existing)+len(generated))
	out = append(out, existing...)
	for i, g := range generated {
		g.ID = len(existing) + i + 1
		out = append(out, g)
	}
	return out
}

// Selection is the operator's pick of wallets, keyed by address.
// It is kept apart from Account so balance refreshes never touch it.
type Selection map[string]bool

// NewSelection selects the given addresses.
func NewSelection(addresses ...string) Selection {
	s := make(Selection, len(addresses))
	for _, a := range addresses {
		if a = strings.TrimSpace(a); a != "" {
			s[a] = true
		}
	}
	return s
}

// Filter returns the selected accounts together with their positions in accounts.
// An empty selection selects everything.
func (s Selection) Filter(accounts []Account) ([]Account, []int) {
	out := make([]Account, 0, len(accounts))
	idx := make([]int, 0, len(accounts))
	for i, a := range accounts {
		if len(s) == 0 || s[a.Address] {
			out = append(out, a)
			idx = append(idx, i)
		}
	}
	return out, idx
}

// MergeAt writes refreshed balances back into dst at the given positions.
// Only balance fields are copied; ids and secrets in dst are preserved.
func MergeAt(dst []Account, idx []int, refreshed []Account) {
	for k, i := range idx {
		if k >= len(refreshed) || i < 0 || i >= len(dst) {
			return
		}
		if dst[i].Address != refreshed[k].Address {
			continue
		}
		dst[i].NativeBalance = refreshed[k].NativeBalance
		dst[i].TokenBalance = refreshed[k].TokenBalance
	}
}
