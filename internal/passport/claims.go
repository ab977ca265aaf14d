package passport

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ClaimsSigner mints short-lived HS256 assertions describing a verified
// session. The assertion is informational for downstream services; it is
// never accepted back as an access credential.
type ClaimsSigner struct {
	secret []byte
	now    func() time.Time
}

// ClaimsSignerOption configures ClaimsSigner.
type ClaimsSignerOption func(*ClaimsSigner)

// WithClaimsClock overrides the time source (for tests).
func WithClaimsClock(fn func() time.Time) ClaimsSignerOption {
	return func(s *ClaimsSigner) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewClaimsSigner returns nil when no secret is configured; callers treat a
// nil signer as "claims assertions disabled".
func NewClaimsSigner(secret string, opts ...ClaimsSignerOption) *ClaimsSigner {
	if secret == "" {
		return nil
	}
	s := &ClaimsSigner{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type claimsAssertion struct {
	jwt.RegisteredClaims
	AppID         string   `json:"app_id"`
	Roles         []string `json:"roles,omitempty"`
	UserType      string   `json:"user_type,omitempty"`
	AccountSource string   `json:"account_source,omitempty"`
}

// Sign produces a compact JWT carrying the verified claims. The assertion
// expires with the access token it describes.
func (s *ClaimsSigner) Sign(c Claims) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claimsAssertion{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.GUID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
			Issuer:    "starpass",
		},
		AppID:         c.AppID,
		Roles:         c.Roles,
		UserType:      c.UserType,
		AccountSource: c.AccountSource,
	})
	return token.SignedString(s.secret)
}

// Parse verifies a previously minted assertion. Exposed for downstream
// services sharing the secret and for tests.
func (s *ClaimsSigner) Parse(raw string) (Claims, error) {
	var payload claimsAssertion
	_, err := jwt.ParseWithClaims(raw, &payload, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return Claims{}, err
	}
	var expires time.Time
	if payload.ExpiresAt != nil {
		expires = payload.ExpiresAt.Time
	}
	return Claims{
		GUID:          payload.Subject,
		AppID:         payload.AppID,
		ExpiresAt:     expires,
		Roles:         payload.Roles,
		UserType:      payload.UserType,
		AccountSource: payload.AccountSource,
	}, nil
}
