package refresher

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var rateLimitMarkers = []string{
	"429",
	"too many requests",
	"rate limit",
	"rate-limit",
	"ratelimit",
	"-32005", // JSON-RPC "limit exceeded"
}

// IsRateLimited reports whether err looks like upstream throttling.
// Matching is textual; pass a provider-specific predicate through
// Options.IsRetryable when the provider exposes typed errors.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	return MentionsRateLimit(err.Error())
}

// MentionsRateLimit reports whether a provider message reads as throttling.
func MentionsRateLimit(msg string) bool {
	s := strings.ToLower(msg)
	for _, m := range rateLimitMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// newBackOff returns a jitter-free doubling schedule starting at base.
func newBackOff(base, limit time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = time.Duration(math.MaxInt64)
	if limit > 0 {
		b.MaxInterval = limit
		b.InitialInterval = min(base, limit)
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// BackoffSchedule lists the waits between consecutive attempts:
// attempt k (k >= 2) waits base * 2^(k-2), capped at limit when limit > 0.
func BackoffSchedule(base, limit time.Duration, attempts int) []time.Duration {
	if attempts < 2 {
		return nil
	}
	b := newBackOff(base, limit)
	out := make([]time.Duration, attempts-1)
	for i := range out {
		out[i] = b.NextBackOff()
	}
	return out
}

// Chunks partitions n items into contiguous [start, end) ranges of at most size.
func Chunks(n, size int) [][2]int {
	if n <= 0 || size <= 0 {
		return nil
	}
	out := make([][2]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		out = append(out, [2]int{start, min(start+size, n)})
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
