package passport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	mathrand "math/rand/v2"
	"regexp"
	"time"

	"starpass.org/internal/kv"
	"starpass.org/internal/obs"
)

// Mainland mobile numbers: 11 digits, 1 then 3-9.
var phonePattern = regexp.MustCompile(`^1[3-9][0-9]{9}$`)

const (
	codeValidity = 5 * time.Minute
	// codeGrace keeps the record around past its validity so a late attempt
	// reports ERR_CODE_EXPIRED instead of looking like an unknown phone.
	codeGrace = time.Hour

	sendCooldown  = 60 * time.Second
	dailySendCap  = 10
	ipSendCap     = 30
	ipSendWindow  = 60 * time.Second
	codeKeyPrefix = "passport:vc:"
)

type codeRecord struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// VerificationService issues and validates one-time login codes.
type VerificationService struct {
	store   kv.Store
	gateway Gateway
	now     func() time.Time
	newCode func() string
}

// VerificationOption configures VerificationService.
type VerificationOption func(*VerificationService)

// WithVerificationClock overrides the time source (for tests).
func WithVerificationClock(fn func() time.Time) VerificationOption {
	return func(s *VerificationService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithCodeFunc overrides code generation (for tests).
func WithCodeFunc(fn func() string) VerificationOption {
	return func(s *VerificationService) {
		if fn != nil {
			s.newCode = fn
		}
	}
}

func NewVerificationService(store kv.Store, gateway Gateway, opts ...VerificationOption) *VerificationService {
	s := &VerificationService{
		store:   store,
		gateway: gateway,
		now:     time.Now,
		newCode: randomCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func randomCode() string {
	return fmt.Sprintf("%06d", mathrand.IntN(1000000))
}

func codeKey(phone string) string     { return codeKeyPrefix + "code:" + phone }
func cooldownKey(phone string) string { return codeKeyPrefix + "cooldown:" + phone }
func dailyKey(phone, day string) string {
	return codeKeyPrefix + "daily:" + phone + ":" + day
}
func ipWindowKey(ip string) string { return codeKeyPrefix + "ip:" + ip }

// SendCode validates the phone, walks the rate checks in order (per-phone
// cooldown, per-phone daily cap, optional per-ip window), then generates,
// stores and delivers a fresh code. The first failing check aborts before
// any later check runs.
func (s *VerificationService) SendCode(ctx context.Context, phone, ip string) error {
	if !phonePattern.MatchString(phone) {
		return E(CodePhoneInvalid, "invalid phone")
	}
	now := s.now()

	// One send per phone per 60s window.
	ok, err := s.store.SetNX(ctx, cooldownKey(phone), []byte(now.UTC().Format(time.RFC3339)), sendCooldown)
	if err != nil {
		return s.storeFailure("send cooldown", err)
	}
	if !ok {
		return E(CodeTooFrequent, "too frequent")
	}

	// At most 10 sends per phone per UTC day.
	day := now.UTC().Format("2006-01-02")
	count, err := s.store.Incr(ctx, dailyKey(phone, day))
	if err != nil {
		return s.storeFailure("daily counter", err)
	}
	if count == 1 {
		// The extra minute absorbs clock jitter around midnight.
		ttl := nextUTCMidnight(now).Sub(now) + time.Minute
		if err := s.store.Expire(ctx, dailyKey(phone, day), ttl); err != nil {
			return s.storeFailure("daily expiry", err)
		}
	}
	if count > dailySendCap {
		return E(CodeTooFrequent, "too frequent today")
	}

	if ip != "" {
		n, err := s.store.Incr(ctx, ipWindowKey(ip))
		if err != nil {
			return s.storeFailure("ip counter", err)
		}
		if n == 1 {
			if err := s.store.Expire(ctx, ipWindowKey(ip), ipSendWindow); err != nil {
				return s.storeFailure("ip expiry", err)
			}
		}
		if n > ipSendCap {
			return E(CodeTooFrequent, "too many requests from this ip")
		}
	}

	code := s.newCode()
	if err := s.saveCode(ctx, phone, code, now); err != nil {
		return s.storeFailure("save code", err)
	}
	if err := s.gateway.SendVerificationCode(ctx, phone, code); err != nil {
		return asPassportError(err)
	}
	return nil
}

func (s *VerificationService) saveCode(ctx context.Context, phone, code string, now time.Time) error {
	rec := codeRecord{Code: code, ExpiresAt: now.Add(codeValidity)}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, codeKey(phone), raw, codeValidity+codeGrace)
}

// ValidateCode checks the outstanding code for the phone. The code is not
// consumed on success: it stays valid until its expiry, which is accepted
// because codes are phone-scoped and short-lived. A missing or corrupt
// record reports ERR_PHONE_INVALID, matching the wire contract existing
// clients depend on.
func (s *VerificationService) ValidateCode(ctx context.Context, phone, code string, now time.Time) error {
	raw, err := s.store.Get(ctx, codeKey(phone))
	if errors.Is(err, kv.ErrNotFound) {
		return E(CodePhoneInvalid, "no code")
	}
	if err != nil {
		return s.storeFailure("load code", err)
	}
	var rec codeRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return E(CodePhoneInvalid, "no code")
	}
	if rec.ExpiresAt.IsZero() {
		return E(CodePhoneInvalid, "no code")
	}
	if !now.Before(rec.ExpiresAt) {
		return E(CodeCodeExpired, "expired")
	}
	if code != rec.Code {
		return E(CodeCodeInvalid, "mismatch")
	}
	return nil
}

func (s *VerificationService) storeFailure(op string, err error) error {
	obs.Event("error", "verification store failure", map[string]any{
		"op":    op,
		"error": err.Error(),
	})
	return errInternal()
}

func nextUTCMidnight(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day()+1, 0, 0, 0, 0, time.UTC)
}
