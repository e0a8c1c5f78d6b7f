package engine

import (
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// newExponentialBackOff configures a cenkalti/backoff/v4 ExponentialBackOff
// matching the spec's `delay = base * 2^(attemptsMade-1)` shape: Multiplier
// 2 starting at base, capped at maxDelay, with ±50% jitter via
// RandomizationFactor 0.5. MaxElapsedTime is left at 0 (disabled) — the engine
// decides when to stop retrying via maxAttempts, not elapsed wall time.
func newExponentialBackOff(base, maxDelay time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.MaxInterval = maxDelay
	b.RandomizationFactor = 0.5
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// nextDelay computes the backoff before retrying attemptsMade (1-indexed,
// the attempt that just failed) by replaying an ExponentialBackOff
// attemptsMade times — the engine needs the resulting duration to compute
// JobRecord.ScheduledAt rather than driving backoff.Retry's own timer.
func nextDelay(base time.Duration, attemptsMade int, maxDelay time.Duration) time.Duration {
	if attemptsMade < 1 {
		attemptsMade = 1
	}
	b := newExponentialBackOff(base, maxDelay)
	var d time.Duration
	for i := 0; i < attemptsMade; i++ {
		d = b.NextBackOff()
	}
	return d
}

// rateLimitDelay is the spec §4.4 rule for 429 responses: the greater of
// the normal exponential backoff and the platform's reported
// Retry-After, plus a small jitter so many jobs hitting the same 429
// don't all wake at once.
func rateLimitDelay(base time.Duration, attemptsMade int, maxDelay time.Duration, retryAfterMs int64) time.Duration {
	scheduled := nextDelay(base, attemptsMade, maxDelay)
	retryAfter := time.Duration(retryAfterMs) * time.Millisecond
	if retryAfter <= scheduled {
		return scheduled
	}
	jitter := time.Duration(rand.Int63n(int64(250 * time.Millisecond)))
	return retryAfter + jitter
}
