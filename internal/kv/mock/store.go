// Package mock provides a test double for kv.Store, following the
// teacher's Fn-override-plus-recorded-calls idiom.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/sentinel-synth/synthcore/internal/kv"
)

var _ kv.Store = (*Store)(nil)

// Store is a test double for kv.Store.
type Store struct {
	mu sync.Mutex

	ExistsFn func(ctx context.Context, key string) (bool, error)
	SetFn    func(ctx context.Context, key, value string, ttl time.Duration) error

	ExistsCalls []string
	SetCalls    []string

	existing  map[string]bool
	cooldowns map[string]time.Time
	sessions  map[string]string
}

// NewEmpty returns a Store where Exists defaults to false for every key
// until Set is called for it (a minimal working fake, not just a stub).
func NewEmpty() *Store {
	return &Store{
		existing:  make(map[string]bool),
		cooldowns: make(map[string]time.Time),
		sessions:  make(map[string]string),
	}
}

func (m *Store) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	m.ExistsCalls = append(m.ExistsCalls, key)
	existing := m.existing
	m.mu.Unlock()

	if m.ExistsFn != nil {
		return m.ExistsFn(ctx, key)
	}
	return existing[key], nil
}

func (m *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	m.SetCalls = append(m.SetCalls, key)
	if m.existing != nil {
		m.existing[key] = true
	}
	m.mu.Unlock()

	if m.SetFn != nil {
		return m.SetFn(ctx, key, value, ttl)
	}
	return nil
}

func (m *Store) Get(ctx context.Context, key string) (string, bool, error) {
	ok, err := m.Exists(ctx, key)
	return "", ok, err
}

func (m *Store) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.existing, key)
	m.mu.Unlock()
	return nil
}

func (m *Store) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	return 1, nil
}

func (m *Store) CooldownGet(ctx context.Context, key string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.cooldowns[key]
	return until, ok, nil
}

func (m *Store) CooldownSet(ctx context.Context, key string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cooldowns[key] = until
	return nil
}

func (m *Store) CooldownClear(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cooldowns, key)
	return nil
}

func (m *Store) SessionSave(ctx context.Context, key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[key] = value
	return nil
}

func (m *Store) SessionLoad(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.sessions[key]
	return v, ok, nil
}

func (m *Store) SessionDelete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
	return nil
}

// ExistsCallCount returns how many times Exists was called.
func (m *Store) ExistsCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ExistsCalls)
}

// SetCallCount returns how many times Set was called.
func (m *Store) SetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.SetCalls)
}
