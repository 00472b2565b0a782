// Package revocation stores revoked-token digests until their natural expiry.
//
// The Redis store makes revocation consistent across running instances; the
// memory store has the same semantics for development and tests but is
// process-local, which matters when more than one instance serves traffic.
package revocation

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process revocation set with per-entry TTLs. Entries
// past their expiry are pruned lazily on lookup and by Prune.
type MemoryStore struct {
	mu  sync.Mutex
	m   map[string]time.Time
	now func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]time.Time), now: time.Now}
}

// Revoke records the digest for ttl. Non-positive TTLs are ignored; such a
// token is already past its own expiry.
func (s *MemoryStore) Revoke(ctx context.Context, digest string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[digest] = s.now().Add(ttl)
	return nil
}

// IsRevoked reports whether the digest is present and unexpired.
func (s *MemoryStore) IsRevoked(ctx context.Context, digest string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.m[digest]
	if !ok {
		return false, nil
	}
	if !s.now().Before(until) {
		delete(s.m, digest)
		return false, nil
	}
	return true, nil
}

// Prune drops every expired entry and returns the number removed. Safe to run
// concurrently with live traffic; removal of an expired entry is monotonic.
func (s *MemoryStore) Prune(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for digest, until := range s.m {
		if !now.Before(until) {
			delete(s.m, digest)
			removed++
		}
	}
	return removed, nil
}
