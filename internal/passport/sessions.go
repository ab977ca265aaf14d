package passport

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"starpass.org/internal/kv"
)

const (
	sessionKeyPrefix = "passport:session:"
	// updateMaxAttempts bounds the optimistic-update loop. Exhausting it is
	// an infrastructure fault, not a business outcome.
	updateMaxAttempts = 6
)

// SessionStore is the sole writer of session records. Sessions live in the
// shared store under a TTL equal to the refresh-token lifetime, so stale
// sessions vanish on their own.
type SessionStore struct {
	store kv.Store
	ttl   time.Duration
}

func NewSessionStore(store kv.Store) *SessionStore {
	return &SessionStore{store: store, ttl: RefreshTokenTTL}
}

func sessionKey(guid string) string {
	return sessionKeyPrefix + guid
}

// Put overwrites any existing session for the guid.
func (s *SessionStore) Put(ctx context.Context, session *Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, sessionKey(session.GUID), raw, s.ttl)
}

// Get returns nil without error when no session exists.
func (s *SessionStore) Get(ctx context.Context, guid string) (*Session, error) {
	raw, err := s.store.Get(ctx, sessionKey(guid))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *SessionStore) Delete(ctx context.Context, guid string) error {
	return s.store.Del(ctx, sessionKey(guid))
}

// Update is the only way a session changes after creation. The mutate
// callback runs against a private copy; an error from it aborts the
// transaction with nothing written and propagates to the caller. Conflicting
// writers retry from a fresh read, so concurrent refreshes for different
// apps never overwrite each other's entries. Returns nil when no session
// exists (mutate is not invoked then).
func (s *SessionStore) Update(ctx context.Context, guid string, mutate func(*Session) error) (*Session, error) {
	key := sessionKey(guid)
	for attempt := 0; attempt < updateMaxAttempts; attempt++ {
		raw, err := s.store.Update(ctx, key, s.ttl, func(current []byte) ([]byte, error) {
			var session Session
			if err := json.Unmarshal(current, &session); err != nil {
				return nil, err
			}
			if err := mutate(&session); err != nil {
				return nil, err
			}
			return json.Marshal(&session)
		})
		if errors.Is(err, kv.ErrConflict) {
			continue
		}
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		var updated Session
		if err := json.Unmarshal(raw, &updated); err != nil {
			return nil, err
		}
		return &updated, nil
	}
	return nil, E(CodeInternal, "session update conflict")
}

// FindByAccessToken resolves a session through the guid embedded in the
// token, then requires an exact token match in the apps map. The scan guards
// against stale tokens that still parse but no longer belong to any grant.
func (s *SessionStore) FindByAccessToken(ctx context.Context, accessToken string) (*Session, error) {
	guid, ok := GUIDFromAccessToken(accessToken)
	if !ok {
		return nil, nil
	}
	session, err := s.Get(ctx, guid)
	if err != nil || session == nil {
		return nil, err
	}
	for _, app := range session.Apps {
		if app.AccessToken == accessToken {
			return session, nil
		}
	}
	return nil, nil
}
