// Package ratelimit implements the process-wide Global Token Bucket (C3)
// and is reused at a second, smaller scope for the Synthesis Engine's
// per-operation rate limit (spec §4.4).
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/sentinel-synth/synthcore/internal/domain"
)

// Probe is the result of a non-blocking acquisition attempt.
type Probe struct {
	Granted bool
	WaitMs  int64
}

// Bucket is a thread-safe token bucket. Refill is computed lazily on each
// call from elapsed wall-clock time rather than by a background ticker,
// matching spec §4.3's "on each call, refill = min(...)" description.
type Bucket struct {
	mu         sync.Mutex
	capacity   float64
	refillRate float64 // tokens per second
	available  float64
	lastRefill time.Time
	nowFunc    func() time.Time

	// waiters is a FIFO-approximate broadcast: every call to notifyWaiters
	// closes and replaces the channel so all parked goroutines wake and
	// re-check availability in arrival order relative to their own select.
	waitCh chan struct{}
}

// New creates a Bucket starting at full capacity.
func New(capacity, refillRate float64) *Bucket {
	b := &Bucket{
		capacity:   capacity,
		refillRate: refillRate,
		available:  capacity,
		lastRefill: time.Now(),
		waitCh:     make(chan struct{}),
	}
	return b
}

func (b *Bucket) now() time.Time {
	if b.nowFunc != nil {
		return b.nowFunc()
	}
	return time.Now()
}

// refillLocked must be called with b.mu held.
func (b *Bucket) refillLocked() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.available = min(b.capacity, b.available+elapsed*b.refillRate)
	b.lastRefill = now
}

// waitMsLocked computes how long until one token is available, assuming
// refillLocked has just run. Must be called with b.mu held.
func (b *Bucket) waitMsLocked() int64 {
	if b.refillRate <= 0 {
		return -1 // never refills
	}
	deficit := 1 - b.available
	if deficit <= 0 {
		return 0
	}
	seconds := deficit / b.refillRate
	return int64(seconds * 1000)
}

// Acquire is the non-blocking probe (spec §4.3).
func (b *Bucket) Acquire() Probe {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.available >= 1 {
		b.available--
		return Probe{Granted: true, WaitMs: 0}
	}
	return Probe{Granted: false, WaitMs: b.waitMsLocked()}
}

func (b *Bucket) notifyWaiters() {
	close(b.waitCh)
	b.waitCh = make(chan struct{})
}

// AcquireAndWait suspends the caller until a token is available or ctx is
// cancelled (spec §4.3).
func (b *Bucket) AcquireAndWait(ctx context.Context) error {
	for {
		b.mu.Lock()
		b.refillLocked()
		if b.available >= 1 {
			b.available--
			b.mu.Unlock()
			return nil
		}
		waitMs := b.waitMsLocked()
		ch := b.waitCh
		b.mu.Unlock()

		var timer *time.Timer
		if waitMs >= 0 {
			timer = time.NewTimer(time.Duration(waitMs) * time.Millisecond)
		} else {
			timer = time.NewTimer(time.Hour)
		}

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			// Re-check; another waiter may have taken the refilled token.
		case <-ch:
			timer.Stop()
		}
	}
}

// Release returns an unused token to the bucket (used when a reservation
// is abandoned, e.g. the job is cancelled after acquiring but before the
// REST call fires) and wakes any parked waiters.
func (b *Bucket) Release() {
	b.mu.Lock()
	b.refillLocked()
	b.available = min(b.capacity, b.available+1)
	b.notifyWaiters()
	b.mu.Unlock()
}

// Status reports the observable bucket state (spec §4.3, §3).
func (b *Bucket) Status() domain.TokenBucketState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return domain.TokenBucketState{
		Capacity:        b.capacity,
		RefillRate:      b.refillRate,
		AvailableTokens: b.available,
	}
}
