// Package chain holds provider plumbing shared by the chain adapters:
// endpoint fallback, request throttling and error classification.
package chain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/ligun0805/bundle-wallets/internal/refresher"
)

var (
	ErrAllEndpointsFailed = errors.New("all rpc endpoints failed")
	ErrNoEndpoints        = errors.New("no rpc endpoints configured")
)

// Querier is a read-only balance provider for one chain.
type Querier interface {
	NativeBalance(ctx context.Context, address string) (decimal.Decimal, error)
	TokenBalance(ctx context.Context, address, token string) (decimal.Decimal, error)
}

// Bind exposes q as refresher query functions.
func Bind(q Querier) (refresher.NativeQuery, refresher.TokenQuery) {
	return q.NativeBalance, q.TokenBalance
}

type fallback []Querier

// Fallback tries each querier in order and returns the first success.
// When every endpoint fails the joined errors are wrapped with
// ErrAllEndpointsFailed, so a throttled endpoint stays visible to
// IsRateLimited even if a later one failed differently.
func Fallback(qs ...Querier) Querier {
	live := make(fallback, 0, len(qs))
	for _, q := range qs {
		if q != nil {
			live = append(live, q)
		}
	}
	if len(live) == 1 {
		return live[0]
	}
	return live
}

func (f fallback) NativeBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	return f.try(ctx, func(q Querier) (decimal.Decimal, error) { return q.NativeBalance(ctx, address) })
}

func (f fallback) TokenBalance(ctx context.Context, address, token string) (decimal.Decimal, error) {
	return f.try(ctx, func(q Querier) (decimal.Decimal, error) { return q.TokenBalance(ctx, address, token) })
}

func (f fallback) try(ctx context.Context, call func(Querier) (decimal.Decimal, error)) (decimal.Decimal, error) {
	if len(f) == 0 {
		return decimal.Zero, ErrNoEndpoints
	}
	errs := make([]error, 0, len(f))
	for i, q := range f {
		v, err := call(q)
		if err == nil {
			return v, nil
		}
		errs = append(errs, fmt.Errorf("endpoint %d: %w", i, err))
		if ctx.Err() != nil {
			return decimal.Zero, ctx.Err()
		}
	}
	return decimal.Zero, fmt.Errorf("%w: %w", ErrAllEndpointsFailed, errors.Join(errs...))
}

type throttled struct {
	q   Querier
	lim *rate.Limiter
}

// Throttle caps the request rate sent through q. rps <= 0 returns q as is.
func Throttle(q Querier, rps float64, burst int) Querier {
	if rps <= 0 {
		return q
	}
	if burst < 1 {
		burst = 1
	}
	return &throttled{q: q, lim: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (t *throttled) NativeBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	if err := t.lim.Wait(ctx); err != nil {
		return decimal.Zero, err
	}
	return t.q.NativeBalance(ctx, address)
}

func (t *throttled) TokenBalance(ctx context.Context, address, token string) (decimal.Decimal, error) {
	if err := t.lim.Wait(ctx); err != nil {
		return decimal.Zero, err
	}
	return t.q.TokenBalance(ctx, address, token)
}

// Class is a coarse provider error category used in logs and reports.
type Class string

const (
	ClassNone        Class = ""
	ClassRateLimited Class = "rpc_rate_limited"
	ClassTimeout     Class = "rpc_timeout"
	ClassUnavailable Class = "rpc_unavailable"
	ClassRPCError    Class = "rpc_error"
)

// Classify maps a provider error onto a Class.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	if IsRateLimited(err) {
		return ClassRateLimited
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ClassTimeout
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "context deadline exceeded") {
		return ClassTimeout
	}
	for _, m := range []string{"connection reset", "connection refused", "broken pipe", "eof", "no such host"} {
		if strings.Contains(s, m) {
			return ClassUnavailable
		}
	}
	return ClassRPCError
}

type rateLimiter interface{ RateLimited() bool }

// IsRateLimited trusts typed adapter errors: any of them reporting
// throttling wins, and if adapters classified the error otherwise the
// answer is no. Text matching only applies to errors no adapter classified,
// since adapter error text can carry URLs and slot numbers.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	typed, limited := typedVerdict(err)
	if typed {
		return limited
	}
	return refresher.IsRateLimited(err)
}

// typedVerdict walks the whole error tree, joined branches included, so a
// throttled endpoint behind Fallback is not hidden by an earlier one.
func typedVerdict(err error) (typed, limited bool) {
	if err == nil {
		return false, false
	}
	if rl, ok := err.(rateLimiter); ok {
		if rl.RateLimited() {
			return true, true
		}
		typed = true
	}
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			t, l := typedVerdict(e)
			if l {
				return true, true
			}
			typed = typed || t
		}
	case interface{ Unwrap() error }:
		t, l := typedVerdict(u.Unwrap())
		if l {
			return true, true
		}
		typed = typed || t
	}
	return typed, false
}
