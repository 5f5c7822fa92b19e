package wallet

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/gagliardetto/solana-go"
)

var ErrBadPattern = errors.New("pattern cannot appear in a base58 address")

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// GrindOptions configures a vanity address search.
type GrindOptions struct {
	Pattern       string
	Position      string // "start" (default) or "end"
	Workers       int
	ProgressEvery time.Duration
	OnProgress    func(attempts uint64)
}

type GrindResult struct {
	Account  Account
	Attempts uint64
}

// Grind searches random Solana keypairs until the address starts or ends with
// Pattern, compared case-insensitively.
func Grind(ctx context.Context, opts GrindOptions) (GrindResult, error) {
	pattern := strings.ToLower(strings.TrimSpace(opts.Pattern))
	if pattern == "" {
		return GrindResult{}, fmt.Errorf("%w: empty", ErrBadPattern)
	}
	for _, r := range pattern {
		if !strings.ContainsRune(base58Alphabet, r) && !strings.ContainsRune(base58Alphabet, unicode.ToUpper(r)) {
			return GrindResult{}, fmt.Errorf("%w: %q", ErrBadPattern, r)
		}
	}
	var match func(string) bool
	switch strings.ToLower(strings.TrimSpace(opts.Position)) {
	case "", "start":
		match = func(addr string) bool { return strings.HasPrefix(strings.ToLower(addr), pattern) }
	case "end":
		match = func(addr string) bool { return strings.HasSuffix(strings.ToLower(addr), pattern) }
	default:
		return GrindResult{}, fmt.Errorf("grind: unknown position %q", opts.Position)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	every := opts.ProgressEvery
	if every <= 0 {
		every = 100 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var attempts atomic.Uint64
	found := make(chan GrindResult, 1)
	errc := make(chan error, 1)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				prv, err := solana.NewRandomPrivateKey()
				n := attempts.Add(1)
				if err != nil {
					select {
					case errc <- err:
					default:
					}
					cancel()
					return
				}
				addr := prv.PublicKey().String()
				if !match(addr) {
					continue
				}
				select {
				case found <- GrindResult{Account: Account{ID: 1, Address: addr, Secret: prv.String()}, Attempts: n}:
					cancel()
				default:
				}
				return
			}
		}()
	}

	if opts.OnProgress != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t := time.NewTicker(every)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					opts.OnProgress(attempts.Load())
				}
			}
		}()
	}

	wg.Wait()
	select {
	case res := <-found:
		res.Attempts = attempts.Load()
		return res, nil
	default:
	}
	select {
	case err := <-errc:
		return GrindResult{}, fmt.Errorf("grind: %w", err)
	default:
	}
	return GrindResult{}, ctx.Err()
}
