package passport

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// Token format contract: access tokens are "A.<guid>.<32 hex>", so the owning
// guid is recoverable without a store lookup. Refresh tokens are "R.<32 hex>"
// and fully opaque. Both random halves come from crypto/rand because the
// tokens are credentials.
const (
	accessTokenPrefix  = "A"
	refreshTokenPrefix = "R"
	tokenRandomBytes   = 16
)

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("token randomness: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// NewAccessToken mints an access token owned by guid.
func NewAccessToken(guid string) (string, error) {
	suffix, err := randomHex(tokenRandomBytes)
	if err != nil {
		return "", err
	}
	return accessTokenPrefix + "." + guid + "." + suffix, nil
}

// NewRefreshToken mints an opaque refresh token.
func NewRefreshToken() (string, error) {
	suffix, err := randomHex(tokenRandomBytes)
	if err != nil {
		return "", err
	}
	return refreshTokenPrefix + "." + suffix, nil
}

// GUIDFromAccessToken is the decode half of the access-token encoding: it
// recovers the owning guid, reporting false for anything not shaped like an
// access token.
func GUIDFromAccessToken(token string) (string, bool) {
	parts := strings.SplitN(token, ".", 3)
	if len(parts) != 3 || parts[0] != accessTokenPrefix || parts[1] == "" || parts[2] == "" {
		return "", false
	}
	return parts[1], true
}
