// Package refresher updates wallet balances in paced, size-bounded chunks,
// retrying rate-limited lookups with exponential backoff.
package refresher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ligun0805/bundle-wallets/internal/wallet"
)

// NativeQuery reads the native-currency balance of one address.
type NativeQuery func(ctx context.Context, address string) (decimal.Decimal, error)

// TokenQuery reads the balance of token held by one address.
type TokenQuery func(ctx context.Context, address, token string) (decimal.Decimal, error)

// Failure describes an account whose balances were left unchanged.
type Failure struct {
	Index     int
	Address   string
	Attempts  int
	Retryable bool
	Err       error
}

func (f Failure) Error() string {
	return fmt.Sprintf("account %d (%s): %d attempt(s): %v", f.Index, f.Address, f.Attempts, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// Report is the outcome of one refresh run.
type Report struct {
	Accounts  []wallet.Account
	Refreshed int
	Failed    int
	// Skipped counts accounts never attempted because ctx was cancelled.
	Skipped   int
	Cancelled bool
	Failures  []Failure
	Elapsed   time.Duration
}

// Partial reports whether any account kept its previous values.
func (r Report) Partial() bool { return r.Failed > 0 || r.Skipped > 0 }

// Refresher is stateless between runs and safe for concurrent use.
type Refresher struct {
	native NativeQuery
	token  TokenQuery
	opts   Options

	sleep func(ctx context.Context, d time.Duration) error
}

// New validates the configuration. Errors here are programming errors and are
// returned before any query is issued.
func New(native NativeQuery, token TokenQuery, opts Options) (*Refresher, error) {
	if native == nil {
		return nil, ErrNoNativeQuery
	}
	if opts.Token != "" && token == nil {
		return nil, ErrNoTokenQuery
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.IsRetryable == nil {
		opts.IsRetryable = IsRateLimited
	}
	return &Refresher{native: native, token: token, opts: opts, sleep: sleepCtx}, nil
}

// Refresh returns accounts with balances updated where lookups succeeded.
// The result always has the same length and order as the input.
func (r *Refresher) Refresh(ctx context.Context, accounts []wallet.Account) []wallet.Account {
	return r.RefreshReport(ctx, accounts).Accounts
}

type outcome struct {
	account wallet.Account
	failure *Failure
}

// RefreshReport is Refresh with per-run counters and the failure list.
func (r *Refresher) RefreshReport(ctx context.Context, accounts []wallet.Account) Report {
	start := time.Now()
	out := make([]wallet.Account, len(accounts))
	copy(out, accounts)
	rep := Report{Accounts: out}

	chunks := Chunks(len(accounts), r.opts.ChunkSize)
	for ci, c := range chunks {
		if ci > 0 {
			if err := r.sleep(ctx, r.opts.InterChunkDelay); err != nil {
				rep.Cancelled = true
				rep.Skipped = len(accounts) - c[0]
				break
			}
		}
		if ctx.Err() != nil {
			rep.Cancelled = true
			rep.Skipped = len(accounts) - c[0]
			break
		}

		results := make([]outcome, c[1]-c[0])
		var wg sync.WaitGroup
		for i := c[0]; i < c[1]; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i-c[0]] = r.refreshOne(ctx, i, accounts[i])
			}(i)
		}
		wg.Wait()

		for k, res := range results {
			out[c[0]+k] = res.account
			if res.failure == nil {
				rep.Refreshed++
				continue
			}
			rep.Failed++
			rep.Failures = append(rep.Failures, *res.failure)
			if r.opts.OnFailure != nil {
				r.opts.OnFailure(*res.failure)
			}
		}
		r.opts.logf("refresh: chunk %d/%d done (%d accounts)", ci+1, len(chunks), c[1]-c[0])
	}
	if rep.Cancelled {
		r.opts.logf("refresh: cancelled, %d account(s) not attempted", rep.Skipped)
	}
	rep.Elapsed = time.Since(start)
	return rep
}

// refreshOne treats the native and token lookups as a single retry unit.
// The input account is returned untouched on failure.
func (r *Refresher) refreshOne(ctx context.Context, idx int, acc wallet.Account) outcome {
	bo := newBackOff(r.opts.BaseBackoff, r.opts.MaxBackoff)
	fail := Failure{Index: idx, Address: acc.Address}

	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			wait := bo.NextBackOff()
			r.opts.logf("refresh: %s retry %d/%d in %s after: %v", acc.Address, attempt, r.opts.MaxAttempts, wait, fail.Err)
			if err := r.sleep(ctx, wait); err != nil {
				fail.Err = err
				return outcome{account: acc, failure: &fail}
			}
		}
		fail.Attempts = attempt

		next, err := r.query(ctx, acc)
		if err == nil {
			return outcome{account: next}
		}
		fail.Err = err
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			break
		}
		fail.Retryable = r.opts.IsRetryable(err)
		if !fail.Retryable {
			break
		}
	}
	return outcome{account: acc, failure: &fail}
}

func (r *Refresher) query(ctx context.Context, acc wallet.Account) (wallet.Account, error) {
	native, err := r.native(ctx, acc.Address)
	if err != nil {
		return acc, fmt.Errorf("native balance: %w", err)
	}
	next := acc.WithNative(native)
	if r.opts.Token == "" || r.token == nil {
		return next, nil
	}
	tok, err := r.token(ctx, acc.Address, r.opts.Token)
	if err != nil {
		return acc, fmt.Errorf("token balance: %w", err)
	}
	return next.WithToken(tok), nil
}
