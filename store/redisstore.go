package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// simpleClient is the subset of redis.Cmdable the store actually calls,
// named after the teacher's own ethdb/redisdb.simpleClient abstraction —
// narrowing the dependency surface keeps RedisStore testable against a
// hand-written fake as well as against miniredis.
type simpleClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	SCard(ctx context.Context, key string) *redis.IntCmd
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

var _ simpleClient = (*redis.Client)(nil)

var _ KeyedStore = (*RedisStore)(nil)

// RedisStore implements KeyedStore on top of a Redis client.
type RedisStore struct {
	client  simpleClient
	timeout time.Duration // per-call deadline (spec §5's "store" suspension point); 0 means none
}

// NewRedisStore wraps an existing go-redis client. Pass the real
// *redis.Client in production and a client dialed against miniredis in
// tests. timeout bounds every call (spec §6's store_timeout_ms, default
// 1s); pass 0 to leave calls bounded only by the caller's context.
func NewRedisStore(client *redis.Client, timeout time.Duration) *RedisStore {
	return &RedisStore{client: client, timeout: timeout}
}

func (s *RedisStore) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 0
	}
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()
	v, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *RedisStore) SetAdd(ctx context.Context, key string, member string) error {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()
	return s.client.SAdd(ctx, key, member).Err()
}

func (s *RedisStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()
	return s.client.SMembers(ctx, key).Result()
}

func (s *RedisStore) SetCard(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()
	return s.client.SCard(ctx, key).Result()
}

func (s *RedisStore) ListPush(ctx context.Context, key string, value []byte) error {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()
	return s.client.RPush(ctx, key, value).Err()
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()
	return s.client.Del(ctx, keys...).Err()
}
