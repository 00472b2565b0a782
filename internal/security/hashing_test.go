package security

import "testing"

func TestHashAndCompare(t *testing.T) {
	h := NewHasher(4) // min cost for test speed
	hash, salt, err := h.Hash([]byte("Pw1!secret"))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if err := h.Compare(hash, []byte("Pw1!secret")); err != nil {
		t.Errorf("Compare with correct password: %v", err)
	}
	err = h.Compare(hash, []byte("wrong"))
	if err == nil {
		t.Error("Compare accepted wrong password")
	}
	if !IsMismatch(err) {
		t.Errorf("IsMismatch(%v) = false", err)
	}
	if salt != SaltFromHash(hash) {
		t.Errorf("salt %q does not match hash prefix", salt)
	}
	if len(salt) != 29 {
		t.Errorf("salt length = %d, want 29", len(salt))
	}
}

func TestNewHasherClampsCost(t *testing.T) {
	if h := NewHasher(0); h.Cost < 4 {
		t.Errorf("cost %d below bcrypt minimum", h.Cost)
	}
	if h := NewHasher(99); h.Cost > 31 {
		t.Errorf("cost %d above bcrypt maximum", h.Cost)
	}
}

func TestTokenDigestStable(t *testing.T) {
	a, b := TokenDigest("tok"), TokenDigest("tok")
	if a != b {
		t.Error("digest not deterministic")
	}
	if a == TokenDigest("other") {
		t.Error("distinct tokens share a digest")
	}
	if len(a) != 64 {
		t.Errorf("digest length = %d, want 64 hex chars", len(a))
	}
}
