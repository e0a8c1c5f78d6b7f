package redis_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/sentinel-synth/synthcore/internal/kv/redis"
)

func newTestStore(t *testing.T) (*redis.Store, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	store := redis.New(client)

	cleanup := func() {
		_ = client.Close()
		mr.Close()
	}
	return store, cleanup
}

func TestExistsSetDelete(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	ok, err := store.Exists(ctx, "event:processed:e1")
	if err != nil || ok {
		t.Fatalf("expected not exists, got ok=%v err=%v", ok, err)
	}

	if err := store.Set(ctx, "event:processed:e1", "1", time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}

	ok, err = store.Exists(ctx, "event:processed:e1")
	if err != nil || !ok {
		t.Fatalf("expected exists, got ok=%v err=%v", ok, err)
	}

	if err := store.Delete(ctx, "event:processed:e1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ok, _ = store.Exists(ctx, "event:processed:e1")
	if ok {
		t.Fatal("expected not exists after delete")
	}
}

func TestIncrementSharesWindow(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := store.Increment(ctx, "counter:guild1", time.Minute)
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if n != i {
			t.Fatalf("expected counter %d, got %d", i, n)
		}
	}
}

func TestCooldownRoundTrip(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	until := time.Now().Add(10 * time.Minute)
	if err := store.CooldownSet(ctx, "verify:user1", until); err != nil {
		t.Fatalf("cooldown set: %v", err)
	}

	got, ok, err := store.CooldownGet(ctx, "verify:user1")
	if err != nil || !ok {
		t.Fatalf("expected cooldown present, ok=%v err=%v", ok, err)
	}
	if got.Unix() != until.Unix() {
		t.Fatalf("expected %v, got %v", until, got)
	}

	if err := store.CooldownClear(ctx, "verify:user1"); err != nil {
		t.Fatalf("cooldown clear: %v", err)
	}
	_, ok, _ = store.CooldownGet(ctx, "verify:user1")
	if ok {
		t.Fatal("expected cooldown cleared")
	}
}

func TestSessionRoundTrip(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.SessionSave(ctx, "sess1", `{"step":1}`, time.Minute); err != nil {
		t.Fatalf("session save: %v", err)
	}
	v, ok, err := store.SessionLoad(ctx, "sess1")
	if err != nil || !ok || v != `{"step":1}` {
		t.Fatalf("expected session loaded, got v=%q ok=%v err=%v", v, ok, err)
	}
	if err := store.SessionDelete(ctx, "sess1"); err != nil {
		t.Fatalf("session delete: %v", err)
	}
	_, ok, _ = store.SessionLoad(ctx, "sess1")
	if ok {
		t.Fatal("expected session deleted")
	}
}
