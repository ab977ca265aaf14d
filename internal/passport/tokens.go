package passport

import (
	"context"
	"time"

	"starpass.org/internal/audit"
	"starpass.org/internal/loginlog"
	"starpass.org/internal/obs"
)

// TokenService owns the credential lifecycle after login: refresh, verify
// and logout.
type TokenService struct {
	sessions *SessionStore
	governor *RateGovernor
	logins   *loginlog.Recorder
	audit    *audit.Log
	roles    *RoleMapping
	signer   *ClaimsSigner
	now      func() time.Time
}

// TokenOption configures TokenService.
type TokenOption func(*TokenService)

// WithTokenClock overrides the time source (for tests).
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithClaimsSigner enables signed claims assertions on verification. A nil
// signer leaves them disabled.
func WithClaimsSigner(signer *ClaimsSigner) TokenOption {
	return func(s *TokenService) { s.signer = signer }
}

func NewTokenService(
	sessions *SessionStore,
	governor *RateGovernor,
	logins *loginlog.Recorder,
	auditLog *audit.Log,
	roles *RoleMapping,
	opts ...TokenOption,
) *TokenService {
	s := &TokenService{
		sessions: sessions,
		governor: governor,
		logins:   logins,
		audit:    auditLog,
		roles:    roles,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RefreshAccessToken mints a new access token for appID inside an existing
// session. The refresh token itself never rotates. An app seen for the first
// time rides into the session on the shared refresh credential; that silent
// cross-app entry is what the sso_login audit event records.
func (s *TokenService) RefreshAccessToken(ctx context.Context, guid, refreshToken, appID, ip string) (*LoginResult, error) {
	if err := s.governor.EnsureRefreshAllowed(ctx, ip, guid); err != nil {
		return nil, err
	}

	now := s.now()
	firstSeen := false
	session, err := s.sessions.Update(ctx, guid, func(session *Session) error {
		if !now.Before(session.RefreshTokenExpiresAt) {
			return E(CodeRefreshExpired, "refresh token expired")
		}
		if session.RefreshToken != refreshToken {
			return E(CodeRefreshMismatch, "refresh token mismatch")
		}
		if session.Apps == nil {
			session.Apps = make(map[string]AppSession)
		}
		accessToken, err := NewAccessToken(guid)
		if err != nil {
			return err
		}
		_, known := session.Apps[appID]
		firstSeen = !known
		session.Apps[appID] = AppSession{
			AccessToken:          accessToken,
			AccessTokenExpiresAt: now.Add(AccessTokenTTL),
			LastActiveAt:         now,
		}
		return nil
	})
	if err != nil {
		return nil, asPassportError(err)
	}
	if session == nil {
		return nil, E(CodeSessionNotFound, "session not found")
	}

	if firstSeen {
		s.audit.Record(ctx, audit.EventSSOLogin, guid, appID, "", map[string]any{"ip": ip})
	}
	return buildLoginResult(session, appID, s.roles, now), nil
}

// VerifyAccessTokenWithClaims resolves an access token to its full claims.
// expectedAppID, when non-empty, additionally pins the token to one app.
// Check order is fixed: unknown token, then expiry, then app ownership.
func (s *TokenService) VerifyAccessTokenWithClaims(ctx context.Context, accessToken, expectedAppID string) (*Claims, string, error) {
	guid, ok := GUIDFromAccessToken(accessToken)
	if !ok {
		return nil, "", E(CodeAccessInvalid, "malformed access token")
	}
	session, err := s.sessions.Get(ctx, guid)
	if err != nil {
		obs.Event("error", "session lookup failure", map[string]any{"error": err.Error()})
		return nil, "", errInternal()
	}
	if session == nil {
		return nil, "", E(CodeAccessInvalid, "unknown access token")
	}

	ownerApp := ""
	var grant AppSession
	for appID, app := range session.Apps {
		if app.AccessToken == accessToken {
			ownerApp = appID
			grant = app
			break
		}
	}
	if ownerApp == "" {
		return nil, "", E(CodeAccessInvalid, "unknown access token")
	}
	if !s.now().Before(grant.AccessTokenExpiresAt) {
		return nil, "", E(CodeAccessExpired, "access token expired")
	}
	if expectedAppID != "" && ownerApp != expectedAppID {
		return nil, "", E(CodeAppIDMismatch, "token belongs to another app")
	}

	roles := session.Roles
	if roles == nil {
		roles = []string{}
	}
	claims := &Claims{
		GUID:          session.GUID,
		AppID:         ownerApp,
		ExpiresAt:     grant.AccessTokenExpiresAt,
		Roles:         roles,
		UserType:      s.roles.UserTypeLabel(session.UserType),
		AccountSource: session.AccountSource,
	}

	assertion := ""
	if s.signer != nil {
		assertion, err = s.signer.Sign(*claims)
		if err != nil {
			obs.Event("error", "claims signing failure", map[string]any{"error": err.Error()})
			assertion = ""
		}
	}
	return claims, assertion, nil
}

// VerifyAccessToken is the reduced check for resource apps that only need
// ownership and expiry.
func (s *TokenService) VerifyAccessToken(ctx context.Context, accessToken, expectedAppID string) (*TokenCheck, error) {
	claims, _, err := s.VerifyAccessTokenWithClaims(ctx, accessToken, expectedAppID)
	if err != nil {
		return nil, err
	}
	return &TokenCheck{GUID: claims.GUID, AppID: claims.AppID, ExpiresAt: claims.ExpiresAt}, nil
}

// LogoutByAccessToken tears down the whole session the token belongs to.
// Logging out all apps at once is intentional: the session is the unit of
// trust, not the grant. A token that resolves to nothing still succeeds.
func (s *TokenService) LogoutByAccessToken(ctx context.Context, accessToken string) error {
	session, err := s.sessions.FindByAccessToken(ctx, accessToken)
	if err != nil {
		obs.Event("error", "session lookup failure", map[string]any{"error": err.Error()})
		return errInternal()
	}
	if session == nil {
		return nil
	}
	return s.logout(ctx, session.GUID, "")
}

// LogoutByGUID tears down the session for guid. Absent sessions succeed
// without recording anything.
func (s *TokenService) LogoutByGUID(ctx context.Context, guid string) error {
	session, err := s.sessions.Get(ctx, guid)
	if err != nil {
		obs.Event("error", "session lookup failure", map[string]any{"error": err.Error()})
		return errInternal()
	}
	if session == nil {
		return nil
	}
	return s.logout(ctx, guid, "")
}

func (s *TokenService) logout(ctx context.Context, guid, actor string) error {
	if err := s.sessions.Delete(ctx, guid); err != nil {
		obs.Event("error", "session delete failure", map[string]any{"error": err.Error()})
		return errInternal()
	}
	now := s.now()
	s.logins.RecordLogout(ctx, guid, now)
	s.audit.Record(ctx, audit.EventLogout, guid, "", actor, nil)
	return nil
}
