package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/ligun0805/bundle-wallets/internal/config"
	"github.com/ligun0805/bundle-wallets/internal/logger"
	"github.com/ligun0805/bundle-wallets/internal/pumpfun"
	"github.com/ligun0805/bundle-wallets/internal/wallet"
)

func runGenerate(_ context.Context, st config.Settings, args []string) error {
	fs := newFlagSet("generate")
	var sf sessionFlags
	sf.register(fs, st)
	n := fs.Int("n", 5, "number of wallets")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *n <= 0 {
		return fmt.Errorf("-n must be positive, got %d", *n)
	}

	store, sess, err := sf.open(st)
	if err != nil {
		return err
	}
	fresh, err := wallet.Generate(sess.Chain, *n)
	if err != nil {
		return err
	}
	before := len(sess.Accounts)
	sess.Accounts = wallet.Append(sess.Accounts, fresh)
	if err := store.Save(sess); err != nil {
		return err
	}
	logger.S().Infof("generated %d %s wallet(s), session %s now holds %d", *n, sess.Chain, sess.ID, len(sess.Accounts))
	printWallets(os.Stdout, sess.Chain, "", sess.Accounts[before:])
	return nil
}

func runGrind(ctx context.Context, st config.Settings, args []string) error {
	fs := newFlagSet("grind")
	var sf sessionFlags
	sf.register(fs, st)
	pattern := fs.String("pattern", "", "base58 characters the address must contain")
	position := fs.String("position", "start", "start or end")
	workers := fs.Int("workers", runtime.NumCPU(), "search goroutines")
	save := fs.Bool("save", false, "append the found keypair to the session")
	if err := fs.Parse(args); err != nil {
		return err
	}

	start := time.Now()
	res, err := wallet.Grind(ctx, wallet.GrindOptions{
		Pattern:       *pattern,
		Position:      *position,
		Workers:       *workers,
		ProgressEvery: time.Second,
		OnProgress: func(n uint64) {
			rate := float64(n) / time.Since(start).Seconds()
			logger.S().Infof("grind: %d keypairs tried (%.0f/s)", n, rate)
		},
	})
	if err != nil {
		return err
	}
	fmt.Printf("address: %s\nsecret:  %s\nattempts: %d in %s\n",
		res.Account.Address, res.Account.Secret, res.Attempts, time.Since(start).Round(time.Millisecond))

	if !*save {
		return nil
	}
	sf.chain = string(wallet.Solana)
	store, sess, err := sf.open(st)
	if err != nil {
		return err
	}
	sess.Accounts = wallet.Append(sess.Accounts, []wallet.Account{res.Account})
	return store.Save(sess)
}

func runExport(_ context.Context, st config.Settings, args []string) error {
	fs := newFlagSet("export")
	var sf sessionFlags
	sf.register(fs, st)
	out := fs.String("out", "", "CSV file (default: stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	_, sess, err := sf.open(st)
	if err != nil {
		return err
	}
	sub, _ := sf.selection().Filter(sess.Accounts)
	if len(sub) == 0 {
		return fmt.Errorf("no wallets selected to export")
	}

	if *out == "" {
		return wallet.WriteCSV(os.Stdout, sub)
	}
	f, err := os.OpenFile(*out, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := wallet.WriteCSV(f, sub); err != nil {
		_ = f.Close()
		return err
	}
	logger.S().Infof("exported %d wallet(s) to %s", len(sub), *out)
	return f.Close()
}

func runQuote(_ context.Context, _ config.Settings, args []string) error {
	fs := newFlagSet("quote")
	sol := fs.String("sol", "", "total SOL spent on the initial buy")
	wallets := fs.Int("wallets", 1, "wallets sharing the buy")
	if err := fs.Parse(args); err != nil {
		return err
	}
	total, err := parseAmount(*sol)
	if err != nil {
		return err
	}
	raw := pumpfun.InitialBuyAmount(total)
	fmt.Printf("tokens:  %s (%s%% of supply)\n", pumpfun.Tokens(raw).StringFixed(2), pumpfun.SupplyPercent(raw).StringFixed(2))
	if *wallets > 1 {
		for i, part := range pumpfun.SplitBuys(total, *wallets) {
			fmt.Printf("wallet %d: %s SOL\n", i+1, part.StringFixed(9))
		}
	}
	if raw.Cmp(pumpfun.InitialRealTokenReserves) == 0 {
		fmt.Println("note: quote is capped at the curve's real token reserves")
	}
	return nil
}
