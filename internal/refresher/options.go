package refresher

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoNativeQuery  = errors.New("refresher: native balance query is required")
	ErrNoTokenQuery   = errors.New("refresher: token query is required when a token is tracked")
	ErrInvalidOptions = errors.New("refresher: invalid options")
)

const (
	DefaultChunkSize       = 3
	DefaultInterChunkDelay = time.Second
	DefaultMaxAttempts     = 3
	DefaultBaseBackoff     = 2 * time.Second
)

// Options tunes how hard the refresher leans on the upstream provider.
type Options struct {
	// ChunkSize is the number of accounts queried concurrently.
	ChunkSize int
	// InterChunkDelay is the pause between two chunks. Zero disables it.
	InterChunkDelay time.Duration
	// MaxAttempts caps the attempts per account, first try included.
	MaxAttempts int
	// BaseBackoff is the wait before the second attempt; it doubles afterwards.
	BaseBackoff time.Duration
	// MaxBackoff caps a single retry wait. Zero means uncapped.
	MaxBackoff time.Duration

	// Token is the tracked token; empty means native balances only.
	Token string

	// IsRetryable decides whether a failed attempt is worth another try.
	// Defaults to IsRateLimited.
	IsRetryable func(error) bool
	// OnFailure receives one event per account left unchanged. Events are
	// delivered in account order from the calling goroutine.
	OnFailure func(Failure)
	Logf      func(string, ...any)
}

// DefaultOptions returns the pacing used by the dashboard: chunks of 3, 1s
// between chunks, 3 attempts, 2s base backoff.
func DefaultOptions() Options {
	return Options{
		ChunkSize:       DefaultChunkSize,
		InterChunkDelay: DefaultInterChunkDelay,
		MaxAttempts:     DefaultMaxAttempts,
		BaseBackoff:     DefaultBaseBackoff,
	}
}

func (o Options) validate() error {
	switch {
	case o.ChunkSize <= 0:
		return fmt.Errorf("%w: chunk size %d", ErrInvalidOptions, o.ChunkSize)
	case o.MaxAttempts <= 0:
		return fmt.Errorf("%w: max attempts %d", ErrInvalidOptions, o.MaxAttempts)
	case o.InterChunkDelay < 0:
		return fmt.Errorf("%w: inter-chunk delay %s", ErrInvalidOptions, o.InterChunkDelay)
	case o.BaseBackoff < 0:
		return fmt.Errorf("%w: base backoff %s", ErrInvalidOptions, o.BaseBackoff)
	case o.MaxBackoff < 0:
		return fmt.Errorf("%w: max backoff %s", ErrInvalidOptions, o.MaxBackoff)
	}
	return nil
}

func (o *Options) logf(format string, a ...any) {
	if o.Logf != nil {
		o.Logf(format, a...)
	}
}
