// Package store implements the Keyed State Store collaborator interface of
// spec §6 (set/get/set_add/set_members/set_card/list_push/del, all
// TTL-capable) and, on top of it, the Cursor Store and Intent Store
// components of spec §4.A/§4.B.
package store

import (
	"context"
	"time"
)

// KeyedStore is the narrow surface the pre-ranking engine needs from the
// external keyed state store (spec §6). It intentionally mirrors a small
// slice of the Redis command set — the teacher's own ethdb/redisdb package
// abstracts go-redis the same way, behind a small interface (there named
// simpleClient) so it can be faked in tests without a running server.
type KeyedStore interface {
	// Set stores value under key with the given TTL. ttl <= 0 means no
	// expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns the value for key, or ok=false if absent or expired.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// SetAdd adds member to the set at key.
	SetAdd(ctx context.Context, key string, member string) error
	// SetMembers returns all members of the set at key.
	SetMembers(ctx context.Context, key string) ([]string, error)
	// SetCard returns the cardinality of the set at key.
	SetCard(ctx context.Context, key string) (int64, error)
	// ListPush appends value to the list at key (RPUSH semantics).
	ListPush(ctx context.Context, key string, value []byte) error
	// Del deletes all of the given keys; missing keys are not an error.
	Del(ctx context.Context, keys ...string) error
}
