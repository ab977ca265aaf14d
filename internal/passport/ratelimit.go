package passport

import (
	"context"
	"time"

	"starpass.org/internal/kv"
	"starpass.org/internal/obs"
)

const (
	rlKeyPrefix = "passport:rl:"

	loginIPLimit       = 60
	loginIPPhoneLimit  = 10
	refreshIPGuidLimit = 120
	rateWindow         = 60 * time.Second
)

// RateGovernor enforces fixed-window counters on login and refresh traffic.
// Counters are never decremented: a blocked attempt still consumed its slot.
type RateGovernor struct {
	store kv.Store
}

func NewRateGovernor(store kv.Store) *RateGovernor {
	return &RateGovernor{store: store}
}

// Touch bumps the window counter for key and reports whether the caller is
// still within limit. The window TTL is armed on the first hit.
func (g *RateGovernor) Touch(ctx context.Context, key string, limit int64) (bool, error) {
	n, err := g.store.Incr(ctx, key)
	if err != nil {
		obs.Event("error", "rate counter failure", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
		return false, errInternal()
	}
	if n == 1 {
		if err := g.store.Expire(ctx, key, rateWindow); err != nil {
			obs.Event("error", "rate expiry failure", map[string]any{
				"key":   key,
				"error": err.Error(),
			})
			return false, errInternal()
		}
	}
	return n <= limit, nil
}

// EnsureLoginAllowed checks the per-ip and per-ip+phone login windows, in
// that order. Both counters are bumped even when the first one breaches.
func (g *RateGovernor) EnsureLoginAllowed(ctx context.Context, ip, phone string) error {
	okIP, err := g.Touch(ctx, rlKeyPrefix+"login:ip:"+ip, loginIPLimit)
	if err != nil {
		return err
	}
	okPair, err := g.Touch(ctx, rlKeyPrefix+"login:ip_phone:"+ip+":"+phone, loginIPPhoneLimit)
	if err != nil {
		return err
	}
	if !okIP || !okPair {
		return E(CodeTooFrequent, "too many login attempts")
	}
	return nil
}

// EnsureRefreshAllowed checks the per-ip+guid refresh window.
func (g *RateGovernor) EnsureRefreshAllowed(ctx context.Context, ip, guid string) error {
	ok, err := g.Touch(ctx, rlKeyPrefix+"refresh:ip_guid:"+ip+":"+guid, refreshIPGuidLimit)
	if err != nil {
		return err
	}
	if !ok {
		return E(CodeTooFrequent, "too many refresh attempts")
	}
	return nil
}
