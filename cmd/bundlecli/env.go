package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/ligun0805/bundle-wallets/internal/chain"
	"github.com/ligun0805/bundle-wallets/internal/chain/evm"
	"github.com/ligun0805/bundle-wallets/internal/chain/solana"
	"github.com/ligun0805/bundle-wallets/internal/config"
	"github.com/ligun0805/bundle-wallets/internal/logger"
	"github.com/ligun0805/bundle-wallets/internal/wallet"
)

// sessionFlags are shared by every command that touches the wallet file.
type sessionFlags struct {
	file     string
	chain    string
	selected string
}

func (f *sessionFlags) register(fs *flag.FlagSet, st config.Settings) {
	fs.StringVar(&f.file, "file", st.WalletsFile, "wallet session file")
	fs.StringVar(&f.chain, "chain", "", "solana or bsc; defaults to the session's chain, then CHAIN")
	fs.StringVar(&f.selected, "selected", "", "comma-separated addresses to act on (default: all)")
}

func (f *sessionFlags) selection() wallet.Selection {
	return wallet.NewSelection(config.SplitCSV(f.selected)...)
}

// open loads the session and settles which chain it belongs to.
func (f *sessionFlags) open(st config.Settings) (*wallet.Store, wallet.Session, error) {
	store := wallet.NewStore(f.file)
	sess, err := store.Load()
	if err != nil {
		return nil, wallet.Session{}, err
	}
	want := sess.Chain
	if f.chain != "" {
		c, err := wallet.ParseChain(f.chain)
		if err != nil {
			return nil, wallet.Session{}, err
		}
		if want != "" && want != c && len(sess.Accounts) > 0 {
			return nil, wallet.Session{}, fmt.Errorf("session %s holds %s wallets, not %s", f.file, want, c)
		}
		want = c
	}
	if want == "" {
		want = st.Chain
	}
	sess.Chain = want
	return store, sess, nil
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

type pinger interface {
	Ping(ctx context.Context) error
}

func dialEVM(st config.Settings) func(string) (*evm.Client, error) {
	return func(url string) (*evm.Client, error) { return evm.Dial(url, st.RPCTimeout) }
}

func dialSolana(url string) (*solana.Client, error) { return solana.New(url), nil }

func closeSolana(c *solana.Client) { _ = c.Close() }

// firstReachable returns the first endpoint, in fallback order, that dials
// and answers Ping. Transactions stay on that one endpoint; only reads fall
// back per call.
func firstReachable[C pinger](ctx context.Context, urls []string, dial func(string) (C, error), closeFn func(C)) (C, error) {
	var zero C
	if len(urls) == 0 {
		return zero, chain.ErrNoEndpoints
	}
	errs := make([]error, 0, len(urls))
	for i, url := range urls {
		c, err := dial(url)
		if err == nil {
			if err = c.Ping(ctx); err == nil {
				return c, nil
			}
			closeFn(c)
		}
		logger.L().Warn("endpoint unreachable", zap.Int("endpoint", i), zap.Error(err))
		errs = append(errs, fmt.Errorf("endpoint %d: %w", i, err))
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}
	return zero, fmt.Errorf("%w: %w", chain.ErrAllEndpointsFailed, errors.Join(errs...))
}

// buildQuerier dials every configured endpoint for c, in fallback order,
// behind the optional request-rate limiter.
func buildQuerier(st config.Settings, c wallet.Chain) (chain.Querier, func(), error) {
	urls := st.RPCs(c)
	if len(urls) == 0 {
		return nil, nil, chain.ErrNoEndpoints
	}
	var (
		qs      []chain.Querier
		closers []func()
	)
	for _, url := range urls {
		switch c {
		case wallet.EVM:
			ec, err := evm.Dial(url, st.RPCTimeout)
			if err != nil {
				logger.S().Warnf("skipping endpoint %s: %v", url, err)
				continue
			}
			qs = append(qs, ec)
			closers = append(closers, ec.Close)
		default:
			sc := solana.New(url)
			qs = append(qs, sc)
			closers = append(closers, func() { _ = sc.Close() })
		}
	}
	if len(qs) == 0 {
		return nil, nil, errors.Join(chain.ErrNoEndpoints, fmt.Errorf("none of %d endpoint(s) could be dialled", len(urls)))
	}
	closeAll := func() {
		for _, f := range closers {
			f()
		}
	}
	return chain.Throttle(chain.Fallback(qs...), st.RPCRateLimit, 1), closeAll, nil
}
