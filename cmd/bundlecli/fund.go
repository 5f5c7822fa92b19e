package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/ligun0805/bundle-wallets/internal/chain/evm"
	"github.com/ligun0805/bundle-wallets/internal/chain/solana"
	"github.com/ligun0805/bundle-wallets/internal/config"
	"github.com/ligun0805/bundle-wallets/internal/logger"
	"github.com/ligun0805/bundle-wallets/internal/refresher"
	"github.com/ligun0805/bundle-wallets/internal/wallet"
)

// outcome is the chain-neutral view of one fund or sweep result.
type outcome struct {
	address string
	ref     string
	skipped string
	err     error
}

func runFund(ctx context.Context, st config.Settings, args []string) error {
	fs := newFlagSet("fund")
	var sf sessionFlags
	sf.register(fs, st)
	amount := fs.String("amount", "", "native amount sent to each wallet")
	noRefresh := fs.Bool("no-refresh", false, "skip the balance refresh after funding")
	if err := fs.Parse(args); err != nil {
		return err
	}
	each, err := parseAmount(*amount)
	if err != nil {
		return err
	}
	store, sess, err := sf.open(st)
	if err != nil {
		return err
	}
	sub, idx := sf.selection().Filter(sess.Accounts)
	if len(sub) == 0 {
		return errors.New("no wallets to fund")
	}

	secret := st.FundingKey
	if secret == "" {
		if secret, err = readPassword("Funding wallet secret key: "); err != nil {
			return err
		}
	}
	logger.S().Infof("funding %d wallet(s) with %s %s each using key %s", len(sub), each, nativeSymbol(sess.Chain), maskSecret(secret))

	urls := st.RPCs(sess.Chain)
	var results []outcome
	switch sess.Chain {
	case wallet.EVM:
		c, err := firstReachable(ctx, urls, dialEVM(st), (*evm.Client).Close)
		if err != nil {
			return err
		}
		defer c.Close()
		transfers := make([]evm.Transfer, len(sub))
		for i, a := range sub {
			transfers[i] = evm.Transfer{To: a.Address, Amount: each}
		}
		res, err := c.Fund(ctx, evm.FundParams{PrivateKeyHex: secret, Transfers: transfers, Logf: logger.S().Debugf})
		if err != nil {
			return err
		}
		for _, r := range res {
			results = append(results, outcome{address: r.To, ref: r.Hash, err: r.Err})
		}
	default:
		c, err := firstReachable(ctx, urls, dialSolana, closeSolana)
		if err != nil {
			return err
		}
		defer closeSolana(c)
		transfers := make([]solana.Transfer, len(sub))
		for i, a := range sub {
			transfers[i] = solana.Transfer{To: a.Address, Amount: each}
		}
		res, err := c.Fund(ctx, solana.FundParams{Secret: secret, Transfers: transfers, Logf: logger.S().Debugf})
		if err != nil {
			return err
		}
		for _, r := range res {
			results = append(results, outcome{address: r.To, ref: r.Signature, err: r.Err})
		}
	}
	failed := printOutcomes("funded", results)

	if !*noRefresh && ctx.Err() == nil {
		rep, err := refreshAccounts(ctx, st, sess, sub, withSessionToken(st, sess))
		if err != nil {
			logger.L().Warn("post-fund refresh skipped", zap.Error(err))
		} else {
			wallet.MergeAt(sess.Accounts, idx, rep.Accounts)
			if err := store.Save(sess); err != nil {
				return err
			}
			printWallets(os.Stdout, sess.Chain, sess.Token, rep.Accounts)
			reportPartial(rep)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d transfers failed", failed, len(results))
	}
	return nil
}

func runSweep(ctx context.Context, st config.Settings, args []string) error {
	fs := newFlagSet("sweep")
	var sf sessionFlags
	sf.register(fs, st)
	to := fs.String("to", "", "recipient address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, sess, err := sf.open(st)
	if err != nil {
		return err
	}
	if sess.Chain != wallet.EVM {
		return fmt.Errorf("sweep supports evm sessions only, this one is %s", sess.Chain)
	}
	sub, idx := sf.selection().Filter(sess.Accounts)
	secrets := make([]string, 0, len(sub))
	for _, a := range sub {
		if a.Secret == "" {
			return fmt.Errorf("wallet %d (%s) has no secret key in the session", a.ID, a.Address)
		}
		secrets = append(secrets, a.Secret)
	}
	c, err := firstReachable(ctx, st.RPCs(sess.Chain), dialEVM(st), (*evm.Client).Close)
	if err != nil {
		return err
	}
	defer c.Close()
	res, err := c.Sweep(ctx, evm.SweepParams{Secrets: secrets, To: *to, Logf: logger.S().Debugf})
	if err != nil {
		return err
	}
	results := make([]outcome, len(res))
	for i, r := range res {
		results[i] = outcome{address: sub[i].Address, ref: r.Hash, skipped: r.Skipped, err: r.Err}
	}
	failed := printOutcomes("swept", results)

	rep, err := refreshAccounts(ctx, st, sess, sub, withSessionToken(st, sess))
	if err != nil {
		logger.L().Warn("post-sweep refresh skipped", zap.Error(err))
	} else {
		wallet.MergeAt(sess.Accounts, idx, rep.Accounts)
		if err := store.Save(sess); err != nil {
			return err
		}
		reportPartial(rep)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d withdrawals failed", failed, len(results))
	}
	return nil
}

func withSessionToken(st config.Settings, sess wallet.Session) refresher.Options {
	opts := st.RefreshOptions()
	if sess.Token != "" {
		opts.Token = sess.Token
	}
	return opts
}

func printOutcomes(verb string, results []outcome) (failed int) {
	for _, r := range results {
		switch {
		case r.err != nil:
			failed++
			fmt.Fprintf(os.Stderr, "FAIL  %s: %v\n", r.address, r.err)
		case r.skipped != "":
			fmt.Printf("SKIP  %s: %s\n", r.address, r.skipped)
		default:
			fmt.Printf("OK    %s %s (%s)\n", r.address, verb, r.ref)
		}
	}
	return failed
}
