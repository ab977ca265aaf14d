package passport

import (
	"fmt"
	mathrand "math/rand/v2"
	"time"
)

// NewGUID builds an identity id: an 8-digit UTC date, a zero-padded two-digit
// user type, and ten random digits. The deterministic prefix aids debugging
// and sharding; the suffix avoids collisions. A guid is an identifier, not a
// credential, so math/rand randomness is sufficient.
func NewGUID(userType int, now time.Time) string {
	digits := make([]byte, 10)
	for i := range digits {
		digits[i] = byte('0' + mathrand.IntN(10))
	}
	return fmt.Sprintf("%s%02d%s", now.UTC().Format("20060102"), userType%100, digits)
}
