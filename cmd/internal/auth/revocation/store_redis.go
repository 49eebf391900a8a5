package revocation

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps blacklist entries in Redis with native key expiry.
type RedisStore struct {
	base
	rdb redis.Cmdable
}

// NewRedisStore wraps an existing client. The client is owned by the caller.
func NewRedisStore(rdb redis.Cmdable, opts ...Option) *RedisStore {
	return &RedisStore{base: newBase(opts), rdb: rdb}
}

func (s *RedisStore) Blacklist(ctx context.Context, refreshToken string) error {
	ttl, err := s.remaining(refreshToken)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		s.observe("already_expired")
		return nil
	}
	// Sub-millisecond remainders would round to a zero TTL, which Redis treats as no expiry.
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	if err := s.rdb.Set(ctx, s.key(refreshToken), "1", ttl).Err(); err != nil {
		s.observe("error")
		return err
	}
	s.observe("stored")
	return nil
}

func (s *RedisStore) IsBlacklisted(ctx context.Context, refreshToken string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.key(refreshToken)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
