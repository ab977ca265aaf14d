package users

import (
	"context"
	"sort"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps accounts in process memory. Used when no database is
// configured and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	byPhone map[string]*User
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
		byPhone: make(map[string]*User),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	cp := *u
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.byPhone[cp.Phone] = &cp
	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

func (s *MemoryStore) FindByPhone(_ context.Context, phone string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byPhone[phone]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) FindByGUID(_ context.Context, guid string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.byPhone {
		if u.GUID == guid {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Update(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byPhone[u.Phone]
	if !ok {
		return ErrNotFound
	}
	cp := *u
	cp.CreatedAt = existing.CreatedAt
	cp.UpdatedAt = s.now().UTC()
	s.byPhone[cp.Phone] = &cp
	u.UpdatedAt = cp.UpdatedAt
	return nil
}

func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*User
	for _, u := range s.byPhone {
		if filter.Status != nil && u.Status != *filter.Status {
			continue
		}
		cp := *u
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].GUID > all[j].GUID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}
