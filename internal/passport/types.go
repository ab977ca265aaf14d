package passport

import "time"

const (
	// RefreshTokenTTL bounds a whole session; the session record's store TTL
	// equals it, so an idle session disappears without explicit reaping.
	RefreshTokenTTL = 2 * 24 * time.Hour
	// AccessTokenTTL bounds a single application's access grant.
	AccessTokenTTL = 4 * time.Hour
)

// AppSession is the access grant for one application inside a session.
type AppSession struct {
	AccessToken          string    `json:"access_token"`
	AccessTokenExpiresAt time.Time `json:"access_token_expires_at"`
	LastActiveAt         time.Time `json:"last_active_at"`
}

// Session binds one identity's refresh credential to its per-application
// access grants. One session per guid; the refresh token never changes for
// the lifetime of the session, only entries in Apps do.
type Session struct {
	GUID                  string                `json:"guid"`
	RefreshToken          string                `json:"refresh_token"`
	RefreshTokenExpiresAt time.Time             `json:"refresh_token_expires_at"`
	UserType              int                   `json:"user_type,omitempty"`
	AccountSource         string                `json:"account_source,omitempty"`
	Roles                 []string              `json:"roles,omitempty"`
	Apps                  map[string]AppSession `json:"apps"`
}

// LoginResult is the response shape shared by login and refresh.
type LoginResult struct {
	GUID                  string    `json:"guid"`
	AccessToken           string    `json:"access_token"`
	RefreshToken          string    `json:"refresh_token"`
	UserStatus            int       `json:"user_status"`
	AccountSource         string    `json:"account_source"`
	UserType              string    `json:"user_type,omitempty"`
	Roles                 []string  `json:"roles"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
	ExpiresIn             int       `json:"expires_in"`
}

// Claims is the full verification result for an access token.
type Claims struct {
	GUID          string    `json:"guid"`
	AppID         string    `json:"app_id"`
	ExpiresAt     time.Time `json:"expires_at"`
	Roles         []string  `json:"roles"`
	UserType      string    `json:"user_type"`
	AccountSource string    `json:"account_source"`
}

// TokenCheck is the reduced verification result exposed to resource apps
// that only need ownership and expiry.
type TokenCheck struct {
	GUID      string    `json:"guid"`
	AppID     string    `json:"app_id"`
	ExpiresAt time.Time `json:"expires_at"`
}
