package docpipe

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint is the SHA-256 hex digest of text. Used for cache identity
// and lead-chunk detection, not for security.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
