package httpapi

import (
	"errors"
	"net/http"

	"starpass.org/internal/obs"
	"starpass.org/internal/passport"
)

// statusForCode maps wire error codes to HTTP statuses. Credential problems
// are 401, policy refusals 403, throttling 429; everything else about the
// request itself is a plain 400.
func statusForCode(code passport.Code) int {
	switch code {
	case passport.CodeAccessExpired,
		passport.CodeAccessInvalid,
		passport.CodeRefreshExpired,
		passport.CodeRefreshMismatch,
		passport.CodeSessionNotFound:
		return http.StatusUnauthorized
	case passport.CodeUserBanned,
		passport.CodeAppIDMismatch:
		return http.StatusForbidden
	case passport.CodeTooFrequent:
		return http.StatusTooManyRequests
	case passport.CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// writePassportError renders the {code, message} error body every client
// already parses.
func writePassportError(w http.ResponseWriter, err error) {
	code := passport.CodeOf(err)
	if code == passport.CodeTooFrequent {
		obs.IncRateLimitExceeded()
	}
	message := "request failed"
	var pe *passport.Error
	if errors.As(err, &pe) {
		message = pe.Message
	}
	writeJSON(w, statusForCode(code), map[string]any{
		"code":    string(code),
		"message": message,
	})
}
