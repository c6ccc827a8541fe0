// Package randx generates random strings (AES key/IV material for the
// token package's tests) and startup jitter. Nothing
// here is used for the admission decisions themselves (those are entirely
// owned by the atomic scripts); this package only feeds auxiliary,
// non-correctness-bearing randomness.
package randx

import (
	"crypto/rand"
	"fmt"
)

// Letters is the URL-safe alphabet used by GenerateRandomBytes.
const Letters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// GenerateRandomBytes returns a cryptographically random string of length
// runes drawn from Letters. Used by the token package's tests to mint
// throwaway AES key/IV material; the housekeeper lease's own fencing
// value uses google/uuid instead (see redisx.NewLease), since that value
// is compared, never generated ad hoc in a test.
func GenerateRandomBytes(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be a positive integer: %d", length)
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	for i := range buf {
		buf[i] = Letters[int(buf[i])%len(Letters)]
	}
	return string(buf), nil
}
