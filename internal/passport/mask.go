package passport

// Masking helpers for log output. Raw phones, tokens and codes never reach
// the logs.

// MaskPhone renders 13800138000 as 138****8000. Values that are not 11
// digits pass through unchanged.
func MaskPhone(phone string) string {
	if len(phone) != 11 {
		return phone
	}
	for _, c := range phone {
		if c < '0' || c > '9' {
			return phone
		}
	}
	return phone[:3] + "****" + phone[7:]
}

// MaskToken keeps the first and last four characters of a token.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "****" + token[len(token)-4:]
}

// MaskCode hides a verification code entirely.
func MaskCode(string) string {
	return "******"
}
