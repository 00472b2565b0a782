package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Hasher hashes and verifies passwords using bcrypt. Callers must not log or
// persist plaintext passwords.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher with the given bcrypt cost (4-31). Cost 12 is a
// reasonable default for interactive login.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Hash produces a bcrypt hash of password and the salt portion it embeds.
// The salt is stored alongside the hash for schema parity with clients that
// manage salts explicitly; verification only needs the hash.
func (h *Hasher) Hash(password []byte) (hash, salt string, err error) {
	b, err := bcrypt.GenerateFromPassword(password, h.Cost)
	if err != nil {
		return "", "", err
	}
	return string(b), SaltFromHash(string(b)), nil
}

// Compare verifies password against the stored hash using constant-time
// comparison. Returns nil if they match.
func (h *Hasher) Compare(hash string, password []byte) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), password)
}

// SaltFromHash extracts the salt prefix ($version$cost$salt22) from a bcrypt
// hash, or "" when the hash is too short to contain one.
func SaltFromHash(hash string) string {
	// $2a$12$ + 22 salt chars = 29 bytes.
	if len(hash) < 29 {
		return ""
	}
	return hash[:29]
}

// IsMismatch reports whether err means the password simply did not match.
func IsMismatch(err error) bool {
	return errors.Is(err, bcrypt.ErrMismatchedHashAndPassword)
}
