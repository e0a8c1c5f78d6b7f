// Package kv defines the KV Store adapter (C1): idempotency keys, TTL,
// cooldowns, counters, and session CRUD. All calls are asynchronous-style
// (they accept a context) and may fail with a distinguishable Unavailable
// error; callers in this repo treat Exists failures as fail-open per
// spec §4.1.
package kv

import (
	"context"
	"time"
)

// Store is the KV Store adapter contract.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error

	// Increment bumps a counter scoped to a fixed window that opens at the
	// first increment and lasts window, and returns the post-increment
	// value.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)

	// Cooldown helpers scope a key under "cooldown:<key>".
	CooldownGet(ctx context.Context, key string) (time.Time, bool, error)
	CooldownSet(ctx context.Context, key string, until time.Time) error
	CooldownClear(ctx context.Context, key string) error

	// Session helpers scope a key under "session:<key>" and store an
	// opaque JSON blob with a TTL.
	SessionSave(ctx context.Context, key string, value string, ttl time.Duration) error
	SessionLoad(ctx context.Context, key string) (string, bool, error)
	SessionDelete(ctx context.Context, key string) error
}
