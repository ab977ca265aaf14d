package passport

import (
	"context"
	"errors"
	"time"

	"starpass.org/internal/audit"
	"starpass.org/internal/loginlog"
	"starpass.org/internal/obs"
	"starpass.org/internal/users"
)

const (
	defaultUserType      = 1
	defaultAccountSource = "phone"
	loginChannel         = "phone_code"
)

// AuthService owns the phone-code login flow: code validation, account
// lookup or creation, and session establishment.
type AuthService struct {
	users    users.Store
	sessions *SessionStore
	codes    *VerificationService
	governor *RateGovernor
	logins   *loginlog.Recorder
	audit    *audit.Log
	roles    *RoleMapping
	now      func() time.Time
}

// AuthOption configures AuthService.
type AuthOption func(*AuthService)

// WithAuthClock overrides the time source (for tests).
func WithAuthClock(fn func() time.Time) AuthOption {
	return func(s *AuthService) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewAuthService(
	store users.Store,
	sessions *SessionStore,
	codes *VerificationService,
	governor *RateGovernor,
	logins *loginlog.Recorder,
	auditLog *audit.Log,
	roles *RoleMapping,
	opts ...AuthOption,
) *AuthService {
	s := &AuthService{
		users:    store,
		sessions: sessions,
		codes:    codes,
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

// LoginByPhone exchanges a verified one-time code for a fresh session. A
// first-time phone gets a new account; a deleted account is reborn under a
// new guid; a banned account is refused with the attempt recorded.
func (s *AuthService) LoginByPhone(ctx context.Context, phone, code, appID, ip string) (*LoginResult, error) {
	if !phonePattern.MatchString(phone) {
		return nil, E(CodePhoneInvalid, "invalid phone")
	}
	if err := s.governor.EnsureLoginAllowed(ctx, ip, phone); err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.codes.ValidateCode(ctx, phone, code, now); err != nil {
		return nil, err
	}

	u, err := s.users.FindByPhone(ctx, phone)
	switch {
	case errors.Is(err, users.ErrNotFound):
		u = &users.User{
			GUID:          NewGUID(defaultUserType, now),
			Phone:         phone,
			UserType:      defaultUserType,
			Status:        users.StatusActive,
			AccountSource: defaultAccountSource,
		}
		if err := s.users.Create(ctx, u); err != nil {
			return nil, s.storeFailure("create user", err)
		}
	case err != nil:
		return nil, s.storeFailure("find user", err)
	case u.Status == users.StatusBanned:
		s.logins.RecordLogin(ctx, loginlog.Event{
			GUID:      u.GUID,
			Phone:     phone,
			AppID:     appID,
			IP:        ip,
			Channel:   loginChannel,
			Success:   false,
			ErrorCode: string(CodeUserBanned),
			When:      now,
		})
		return nil, E(CodeUserBanned, "account is banned")
	case u.Status == users.StatusDeleted:
		// A deleted account that logs in again comes back under a new
		// identity: the phone is the durable key, the guid is not.
		u.GUID = NewGUID(u.UserType, now)
		u.Status = users.StatusActive
		if err := s.users.Update(ctx, u); err != nil {
			return nil, s.storeFailure("reactivate user", err)
		}
	}

	refreshToken, err := NewRefreshToken()
	if err != nil {
		return nil, s.storeFailure("mint refresh token", err)
	}
	accessToken, err := NewAccessToken(u.GUID)
	if err != nil {
		return nil, s.storeFailure("mint access token", err)
	}
	session := &Session{
		GUID:                  u.GUID,
		RefreshToken:          refreshToken,
		RefreshTokenExpiresAt: now.Add(RefreshTokenTTL),
		UserType:              u.UserType,
		AccountSource:         u.AccountSource,
		Roles:                 s.sessionRoles(u),
		Apps: map[string]AppSession{
			appID: {
				AccessToken:          accessToken,
				AccessTokenExpiresAt: now.Add(AccessTokenTTL),
				LastActiveAt:         now,
			},
		},
	}
	if err := s.sessions.Put(ctx, session); err != nil {
		return nil, s.storeFailure("store session", err)
	}

	s.logins.RecordLogin(ctx, loginlog.Event{
		GUID:    u.GUID,
		Phone:   phone,
		AppID:   appID,
		IP:      ip,
		Channel: loginChannel,
		Success: true,
		When:    now,
	})
	s.audit.Record(ctx, audit.EventLogin, u.GUID, appID, "", map[string]any{
		"phone": MaskPhone(phone),
		"ip":    ip,
	})

	return s.loginResult(session, appID), nil
}

func (s *AuthService) sessionRoles(u *users.User) []string {
	if len(u.Roles) > 0 {
		out := make([]string, len(u.Roles))
		copy(out, u.Roles)
		return out
	}
	return s.roles.AdminRoles(u.UserType)
}

// loginResult renders the shared login/refresh response for one app's grant.
func (s *AuthService) loginResult(session *Session, appID string) *LoginResult {
	return buildLoginResult(session, appID, s.roles, s.now())
}

func buildLoginResult(session *Session, appID string, roles *RoleMapping, now time.Time) *LoginResult {
	app := session.Apps[appID]
	resultRoles := session.Roles
	if resultRoles == nil {
		resultRoles = []string{}
	}
	source := session.AccountSource
	if source == "" {
		source = defaultAccountSource
	}
	expiresIn := int(app.AccessTokenExpiresAt.Sub(now) / time.Second)
	if expiresIn < 0 {
		expiresIn = 0
	}
	return &LoginResult{
		GUID:                  session.GUID,
		AccessToken:           app.AccessToken,
		RefreshToken:          session.RefreshToken,
		UserStatus:            users.StatusActive,
		AccountSource:         source,
		UserType:              roles.UserTypeLabel(session.UserType),
		Roles:                 resultRoles,
		AccessTokenExpiresAt:  app.AccessTokenExpiresAt,
		RefreshTokenExpiresAt: session.RefreshTokenExpiresAt,
		ExpiresIn:             expiresIn,
	}
}

func (s *AuthService) storeFailure(op string, err error) error {
	obs.Event("error", "auth store failure", map[string]any{
		"op":    op,
		"error": err.Error(),
	})
	return errInternal()
}
