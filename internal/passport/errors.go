package passport

import "errors"

// Code is the wire-level error code shared with every client application.
type Code string

const (
	CodeCodeInvalid     Code = "ERR_CODE_INVALID"
	CodeCodeExpired     Code = "ERR_CODE_EXPIRED"
	CodeTooFrequent     Code = "ERR_CODE_TOO_FREQUENT"
	CodePhoneInvalid    Code = "ERR_PHONE_INVALID"
	CodeUserBanned      Code = "ERR_USER_BANNED"
	CodeRefreshExpired  Code = "ERR_REFRESH_EXPIRED"
	CodeRefreshMismatch Code = "ERR_REFRESH_MISMATCH"
	CodeAppIDMismatch   Code = "ERR_APP_ID_MISMATCH"
	CodeAccessExpired   Code = "ERR_ACCESS_EXPIRED"
	CodeAccessInvalid   Code = "ERR_ACCESS_INVALID"
	CodeSessionNotFound Code = "ERR_SESSION_NOT_FOUND"
	CodeInternal        Code = "ERR_INTERNAL"
)

// Error is a terminal, user-facing outcome of a single call. CodeInternal is
// the only retryable kind; every other code reports a business rule violation.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// E constructs an Error.
func E(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// errInternal is the uniform infrastructure-fault result. The underlying
// cause is logged at the failure site, never exposed to callers.
func errInternal() *Error {
	return E(CodeInternal, "service temporarily unavailable")
}

// CodeOf extracts the wire code from err. Non-passport errors map to
// ERR_INTERNAL.
func CodeOf(err error) Code {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given wire code.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// asPassportError returns err unchanged when it already carries a wire code,
// otherwise the uniform internal error.
func asPassportError(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return errInternal()
}
