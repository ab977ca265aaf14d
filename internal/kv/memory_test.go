package kv

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreSetGetExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore(WithClock(func() time.Time { return now }))
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := store.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("Get = %q, %v", got, err)
	}

	now = now.Add(time.Minute)
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestMemoryStoreSetNX(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore(WithClock(func() time.Time { return now }))
	ctx := context.Background()

	ok, err := store.SetNX(ctx, "cooldown", []byte("1"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("first SetNX = %v, %v", ok, err)
	}
	ok, err = store.SetNX(ctx, "cooldown", []byte("2"), time.Minute)
	if err != nil || ok {
		t.Fatalf("second SetNX = %v, %v; want false", ok, err)
	}

	// After the window the key is writable again.
	now = now.Add(61 * time.Second)
	ok, err = store.SetNX(ctx, "cooldown", []byte("3"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("SetNX after expiry = %v, %v", ok, err)
	}
}

func TestMemoryStoreIncrExpire(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore(WithClock(func() time.Time { return now }))
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := store.Incr(ctx, "counter")
		if err != nil || n != want {
			t.Fatalf("Incr = %d, %v; want %d", n, err, want)
		}
	}
	if err := store.Expire(ctx, "counter", time.Minute); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	now = now.Add(2 * time.Minute)
	n, err := store.Incr(ctx, "counter")
	if err != nil || n != 1 {
		t.Fatalf("Incr after window = %d, %v; want 1", n, err)
	}
}

func TestMemoryStoreUpdate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Update(ctx, "missing", time.Minute, func([]byte) ([]byte, error) {
		t.Fatal("mutate must not run for a missing key")
		return nil, nil
	}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := store.Set(ctx, "k", []byte("a"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	boom := errors.New("domain failure")
	if _, err := store.Update(ctx, "k", 0, func([]byte) ([]byte, error) {
		return nil, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("mutate error not propagated: %v", err)
	}
	got, _ := store.Get(ctx, "k")
	if string(got) != "a" {
		t.Fatalf("aborted update must not write, value = %q", got)
	}

	next, err := store.Update(ctx, "k", 0, func(cur []byte) ([]byte, error) {
		return append(cur, 'b'), nil
	})
	if err != nil || string(next) != "ab" {
		t.Fatalf("Update = %q, %v", next, err)
	}
}

func TestMemoryStoreUpdateConflict(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Set(ctx, "k", []byte("a"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	_, err := store.Update(ctx, "k", 0, func(cur []byte) ([]byte, error) {
		// A competing writer commits between our read and our write.
		if err := store.Set(ctx, "k", []byte("other"), 0); err != nil {
			return nil, err
		}
		return append(cur, 'b'), nil
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	got, _ := store.Get(ctx, "k")
	if string(got) != "other" {
		t.Fatalf("losing writer must not overwrite, value = %q", got)
	}
}

func TestMemoryStoreConcurrentIncr(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Incr(ctx, "c"); err != nil {
				t.Errorf("Incr: %v", err)
			}
		}()
	}
	wg.Wait()

	n, err := store.Incr(ctx, "c")
	if err != nil || n != 51 {
		t.Fatalf("final count = %d, %v; want 51", n, err)
	}
}
