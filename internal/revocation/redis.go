package revocation

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "revoked:"

// RedisStore keeps revoked-token digests in Redis with per-key TTLs, so
// revocation is shared across instances and pruning is handled by Redis
// expiry rather than a scheduled job.
type RedisStore struct {
	client *goredis.Client
}

// NewRedisStore returns a store backed by the given client.
func NewRedisStore(client *goredis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// NewClient builds a Redis client for the given address.
func NewClient(addr, password string, db int) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Revoke records the digest for ttl. Non-positive TTLs are ignored.
func (s *RedisStore) Revoke(ctx context.Context, digest string, ttl time.Duration) error {
	if s.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, keyPrefix+digest, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token digest: %w", err)
	}
	return nil
}

// IsRevoked reports whether the digest is present. The caller is expected to
// fail closed when the error is non-nil.
func (s *RedisStore) IsRevoked(ctx context.Context, digest string) (bool, error) {
	if s.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	n, err := s.client.Exists(ctx, keyPrefix+digest).Result()
	if err != nil {
		return false, fmt.Errorf("check token digest: %w", err)
	}
	return n > 0, nil
}
