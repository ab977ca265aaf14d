package passport

import (
	"context"
	"testing"
	"time"

	"starpass.org/internal/kv"
)

func TestEnsureLoginAllowedPairLimit(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := kv.NewMemoryStore(kv.WithClock(func() time.Time { return now }))
	g := NewRateGovernor(store)
	ctx := context.Background()

	for i := 0; i < loginIPPhoneLimit; i++ {
		if err := g.EnsureLoginAllowed(ctx, "203.0.113.9", "13800138000"); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	if err := g.EnsureLoginAllowed(ctx, "203.0.113.9", "13800138000"); !IsCode(err, CodeTooFrequent) {
		t.Fatalf("expected ERR_CODE_TOO_FREQUENT, got %v", err)
	}
	// A different phone from the same ip still has headroom under the ip cap.
	if err := g.EnsureLoginAllowed(ctx, "203.0.113.9", "13900139000"); err != nil {
		t.Fatalf("different phone: %v", err)
	}
	// The window resets after 60s.
	now = now.Add(61 * time.Second)
	if err := g.EnsureLoginAllowed(ctx, "203.0.113.9", "13800138000"); err != nil {
		t.Fatalf("after window: %v", err)
	}
}

func TestEnsureLoginAllowedIPLimit(t *testing.T) {
	store := kv.NewMemoryStore()
	g := NewRateGovernor(store)
	ctx := context.Background()

	// Saturate the per-ip counter directly.
	for i := 0; i < loginIPLimit; i++ {
		if _, err := store.Incr(ctx, rlKeyPrefix+"login:ip:203.0.113.9"); err != nil {
			t.Fatalf("incr: %v", err)
		}
	}
	err := g.EnsureLoginAllowed(ctx, "203.0.113.9", "13800138000")
	if !IsCode(err, CodeTooFrequent) {
		t.Fatalf("expected ERR_CODE_TOO_FREQUENT, got %v", err)
	}
}

func TestEnsureLoginAllowedCountsBlockedAttempts(t *testing.T) {
	store := kv.NewMemoryStore()
	g := NewRateGovernor(store)
	ctx := context.Background()

	for i := 0; i < loginIPPhoneLimit+5; i++ {
		_ = g.EnsureLoginAllowed(ctx, "203.0.113.9", "13800138000")
	}
	// Blocked attempts kept counting: the pair counter sits above the limit.
	n, err := store.Incr(ctx, rlKeyPrefix+"login:ip_phone:203.0.113.9:13800138000")
	if err != nil {
		t.Fatalf("incr: %v", err)
	}
	if n != int64(loginIPPhoneLimit+5+1) {
		t.Fatalf("pair counter = %d, want %d", n, loginIPPhoneLimit+6)
	}
}

func TestEnsureRefreshAllowed(t *testing.T) {
	store := kv.NewMemoryStore()
	g := NewRateGovernor(store)
	ctx := context.Background()

	for i := 0; i < refreshIPGuidLimit; i++ {
		if err := g.EnsureRefreshAllowed(ctx, "203.0.113.9", "g1"); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	if err := g.EnsureRefreshAllowed(ctx, "203.0.113.9", "g1"); !IsCode(err, CodeTooFrequent) {
		t.Fatalf("expected ERR_CODE_TOO_FREQUENT, got %v", err)
	}
	if err := g.EnsureRefreshAllowed(ctx, "203.0.113.9", "g2"); err != nil {
		t.Fatalf("different guid: %v", err)
	}
}
