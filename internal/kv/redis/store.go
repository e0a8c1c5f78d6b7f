// Package redis implements kv.Store over github.com/redis/go-redis/v9,
// grounded on the teacher's redis-backed idempotency store
// (worker/internal/repository/redis/idempotency.go) and generalized to
// the full KV contract (exists/set/get/delete, counters, cooldowns,
// sessions).
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/sentinel-synth/synthcore/internal/domain"
	"github.com/sentinel-synth/synthcore/internal/kv"
)

var _ kv.Store = (*Store)(nil)

const (
	cooldownPrefix = "cooldown:"
	sessionPrefix  = "session:"
)

// Store is a Redis-backed kv.Store.
type Store struct {
	client *goredis.Client
}

// New wraps an existing go-redis client.
func New(client *goredis.Client) *Store {
	return &Store{client: client}
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("kv/redis: %s: %w: %v", op, domain.ErrUnavailable, err)
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, wrap("exists", err)
	}
	return n > 0, nil
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return wrap("set", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap("get", err)
	}
	return v, true, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return wrap("delete", err)
	}
	return nil
}

// Increment uses INCR followed by a conditional EXPIRE (only applied to
// the first increment in a window) so repeated calls within the window
// share one TTL-bounded counter.
func (s *Store) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, wrap("increment", err)
	}
	if n == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return n, wrap("increment/expire", err)
		}
	}
	return n, nil
}

func (s *Store) CooldownGet(ctx context.Context, key string) (time.Time, bool, error) {
	v, ok, err := s.Get(ctx, cooldownPrefix+key)
	if err != nil || !ok {
		return time.Time{}, ok, err
	}
	t, parseErr := time.Parse(time.RFC3339Nano, v)
	if parseErr != nil {
		return time.Time{}, false, nil
	}
	return t, true, nil
}

func (s *Store) CooldownSet(ctx context.Context, key string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return s.Set(ctx, cooldownPrefix+key, until.Format(time.RFC3339Nano), ttl)
}

func (s *Store) CooldownClear(ctx context.Context, key string) error {
	return s.Delete(ctx, cooldownPrefix+key)
}

func (s *Store) SessionSave(ctx context.Context, key string, value string, ttl time.Duration) error {
	return s.Set(ctx, sessionPrefix+key, value, ttl)
}

func (s *Store) SessionLoad(ctx context.Context, key string) (string, bool, error) {
	return s.Get(ctx, sessionPrefix+key)
}

func (s *Store) SessionDelete(ctx context.Context, key string) error {
	return s.Delete(ctx, sessionPrefix+key)
}
