package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/ligun0805/bundle-wallets/internal/wallet"
)

func nativeSymbol(c wallet.Chain) string {
	if c == wallet.EVM {
		return "BNB"
	}
	return "SOL"
}

func formatBalance(v decimal.NullDecimal, places int32) string {
	if !v.Valid {
		return "-"
	}
	return v.Decimal.StringFixed(places)
}

func printWallets(w io.Writer, c wallet.Chain, token string, accounts []wallet.Account) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	head := []string{"ID", "ADDRESS", nativeSymbol(c)}
	if token != "" {
		head = append(head, "TOKEN")
	}
	fmt.Fprintln(tw, strings.Join(head, "\t"))
	for _, a := range accounts {
		row := []string{fmt.Sprint(a.ID), a.Address, formatBalance(a.NativeBalance, 6)}
		if token != "" {
			row = append(row, formatBalance(a.TokenBalance, 2))
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q: %w", s, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount %q must be positive", s)
	}
	return d, nil
}
