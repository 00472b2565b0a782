package security

import (
	"crypto/sha256"
	"encoding/hex"
)

// TokenDigest returns a hex SHA-256 digest of the raw token string. The
// revocation store is keyed by digest so the raw token never leaves memory.
func TokenDigest(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
