// Package inmem implements kv.Store entirely in-process with a map and a
// mutex. It backs local development and any test that wants real
// exists/set/TTL semantics without standing up Redis (miniredis covers the
// cases that need to exercise the actual redis.Store wire behavior).
package inmem

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/sentinel-synth/synthcore/internal/kv"
)

var _ kv.Store = (*Store)(nil)

type entry struct {
	value   string
	expires time.Time // zero means no expiry
}

// Store is an in-memory kv.Store. Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	data    map[string]entry
	nowFunc func() time.Time
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		data:    make(map[string]entry),
		nowFunc: time.Now,
	}
}

func (s *Store) now() time.Time {
	if s.nowFunc != nil {
		return s.nowFunc()
	}
	return time.Now()
}

func (s *Store) expired(e entry) bool {
	return !e.expires.IsZero() && s.now().After(e.expires)
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key]
	if !ok || s.expired(e) {
		return false, nil
	}
	return true, nil
}

func (s *Store) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := entry{value: value}
	if ttl > 0 {
		e.expires = s.now().Add(ttl)
	}
	s.data[key] = e
	return nil
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key]
	if !ok || s.expired(e) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *Store) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key]
	if !ok || s.expired(e) {
		e = entry{value: "0", expires: s.now().Add(window)}
	}
	current, _ := strconv.ParseInt(e.value, 10, 64)
	n := current + 1
	e.value = strconv.FormatInt(n, 10)
	s.data[key] = e
	return n, nil
}

func (s *Store) CooldownGet(ctx context.Context, key string) (time.Time, bool, error) {
	v, ok, err := s.Get(ctx, "cooldown:"+key)
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
	ttl := until.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.Set(ctx, "cooldown:"+key, until.Format(time.RFC3339Nano), ttl)
}

func (s *Store) CooldownClear(ctx context.Context, key string) error {
	return s.Delete(ctx, "cooldown:"+key)
}

func (s *Store) SessionSave(ctx context.Context, key string, value string, ttl time.Duration) error {
	return s.Set(ctx, "session:"+key, value, ttl)
}

func (s *Store) SessionLoad(ctx context.Context, key string) (string, bool, error) {
	return s.Get(ctx, "session:"+key)
}

func (s *Store) SessionDelete(ctx context.Context, key string) error {
	return s.Delete(ctx, "session:"+key)
}
