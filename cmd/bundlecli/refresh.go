package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ligun0805/bundle-wallets/internal/chain"
	"github.com/ligun0805/bundle-wallets/internal/config"
	"github.com/ligun0805/bundle-wallets/internal/logger"
	"github.com/ligun0805/bundle-wallets/internal/refresher"
	"github.com/ligun0805/bundle-wallets/internal/wallet"
)

func runRefresh(ctx context.Context, st config.Settings, args []string) error {
	fs := newFlagSet("refresh")
	var sf sessionFlags
	sf.register(fs, st)
	token := fs.String("token", "", "token mint/contract to track (default: session token, then TOKEN_ADDRESS)")
	chunk := fs.Int("chunk", st.ChunkSize, "wallets queried concurrently")
	delay := fs.Duration("delay", st.ChunkDelay, "pause between chunks")
	attempts := fs.Int("attempts", st.MaxAttempts, "attempts per wallet")
	backoff := fs.Duration("backoff", st.BaseBackoff, "wait before the first retry; doubles afterwards")
	maxBackoff := fs.Duration("max-backoff", st.MaxBackoff, "cap for a single retry wait (0 = none)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, sess, err := sf.open(st)
	if err != nil {
		return err
	}
	if *token != "" {
		sess.Token = *token
	} else if sess.Token == "" {
		sess.Token = st.TokenAddress
	}

	opts := st.RefreshOptions()
	opts.ChunkSize = *chunk
	opts.InterChunkDelay = *delay
	opts.MaxAttempts = *attempts
	opts.BaseBackoff = *backoff
	opts.MaxBackoff = *maxBackoff
	opts.Token = sess.Token

	sub, idx := sf.selection().Filter(sess.Accounts)
	rep, err := refreshAccounts(ctx, st, sess, sub, opts)
	if err != nil {
		return err
	}
	wallet.MergeAt(sess.Accounts, idx, rep.Accounts)
	if err := store.Save(sess); err != nil {
		return err
	}

	printWallets(os.Stdout, sess.Chain, sess.Token, rep.Accounts)
	reportPartial(rep)
	return nil
}

// refreshAccounts runs one refresher pass over accounts against the
// session's chain.
func refreshAccounts(ctx context.Context, st config.Settings, sess wallet.Session, accounts []wallet.Account, opts refresher.Options) (refresher.Report, error) {
	q, closeAll, err := buildQuerier(st, sess.Chain)
	if err != nil {
		return refresher.Report{}, err
	}
	defer closeAll()

	log := logger.With(zap.String("session", sess.ID), zap.String("chain", string(sess.Chain)))
	opts.Logf = log.Sugar().Debugf
	opts.IsRetryable = chain.IsRateLimited
	opts.OnFailure = func(f refresher.Failure) {
		log.Warn("balance refresh failed",
			zap.Int("index", f.Index),
			zap.String("address", f.Address),
			zap.Int("attempts", f.Attempts),
			zap.String("class", string(chain.Classify(f.Err))),
			zap.Error(f.Err),
		)
	}

	native, tok := chain.Bind(q)
	r, err := refresher.New(native, tok, opts)
	if err != nil {
		return refresher.Report{}, err
	}
	log.Info("refreshing balances",
		zap.Int("wallets", len(accounts)),
		zap.String("token", opts.Token),
		zap.Int("chunk", opts.ChunkSize),
	)
	rep := r.RefreshReport(ctx, accounts)
	log.Info("refresh finished",
		zap.Int("refreshed", rep.Refreshed),
		zap.Int("failed", rep.Failed),
		zap.Int("skipped", rep.Skipped),
		zap.Duration("elapsed", rep.Elapsed.Round(time.Millisecond)),
	)
	return rep, nil
}

func reportPartial(rep refresher.Report) {
	if !rep.Partial() {
		return
	}
	fmt.Fprintf(os.Stderr, "%d of %d balances failed to refresh\n", rep.Failed+rep.Skipped, len(rep.Accounts))
	if rep.Cancelled {
		fmt.Fprintln(os.Stderr, "refresh interrupted; unprocessed wallets kept their previous balances")
	}
}
