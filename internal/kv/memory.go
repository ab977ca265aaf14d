package kv

import (
	"context"
	"strconv"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

type memoryEntry struct {
	value     []byte
	version   uint64
	expiresAt time.Time // zero means no expiry
}

// MemoryStore is the in-process fallback used for single-instance deployments
// and tests. Keys expire lazily on access; versions back the Update CAS.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

// MemoryOption configures MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source (for tests).
func WithClock(fn func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// live returns the entry for key, dropping it first if expired.
func (s *MemoryStore) live(key string) *memoryEntry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return nil
	}
	return e
}

func (s *MemoryStore) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		return nil, ErrNotFound
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	prev := s.live(key)
	var version uint64
	if prev != nil {
		version = prev.version + 1
	}
	s.entries[key] = &memoryEntry{value: stored, version: version, expiresAt: s.deadline(ttl)}
	return nil
}

func (s *MemoryStore) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live(key) != nil {
		return false, nil
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	s.entries[key] = &memoryEntry{value: stored, expiresAt: s.deadline(ttl)}
	return true, nil
}

func (s *MemoryStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		s.entries[key] = &memoryEntry{value: []byte("1")}
		return 1, nil
	}
	n, err := strconv.ParseInt(string(e.value), 10, 64)
	if err != nil {
		return 0, err
	}
	n++
	e.value = []byte(strconv.FormatInt(n, 10))
	e.version++
	return n, nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.live(key); e != nil {
		e.expiresAt = s.deadline(ttl)
	}
	return nil
}

func (s *MemoryStore) Update(_ context.Context, key string, ttl time.Duration, mutate func([]byte) ([]byte, error)) ([]byte, error) {
	s.mu.Lock()
	e := s.live(key)
	if e == nil {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	version := e.version
	current := make([]byte, len(e.value))
	copy(current, e.value)
	s.mu.Unlock()

	// Mutate runs outside the lock so concurrent writers genuinely race,
	// matching the read-mutate-conditional-write cycle of the Redis path.
	next, err := mutate(current)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e = s.live(key)
	if e == nil {
		return nil, ErrNotFound
	}
	if e.version != version {
		return nil, ErrConflict
	}
	stored := make([]byte, len(next))
	copy(stored, next)
	e.value = stored
	e.version++
	e.expiresAt = s.deadline(ttl)
	return next, nil
}
