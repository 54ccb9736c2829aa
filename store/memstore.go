package store

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-process KeyedStore, the analogue of the teacher's
// ethdb/memorydb in-memory KV store — used for local/standalone runs and
// in unit tests that don't need real TTL or persistence guarantees.
type MemStore struct {
	mu      sync.Mutex
	values  map[string][]byte
	sets    map[string]map[string]struct{}
	lists   map[string][][]byte
	expires map[string]time.Time
}

var _ KeyedStore = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		values:  make(map[string][]byte),
		sets:    make(map[string]map[string]struct{}),
		lists:   make(map[string][][]byte),
		expires: make(map[string]time.Time),
	}
}

func (m *MemStore) expired(key string) bool {
	at, ok := m.expires[key]
	return ok && time.Now().After(at)
}

func (m *MemStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	if ttl > 0 {
		m.expires[key] = time.Now().Add(ttl)
	} else {
		delete(m.expires, key)
	}
	return nil
}

func (m *MemStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		delete(m.values, key)
		delete(m.expires, key)
		return nil, false, nil
	}
	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemStore) SetAdd(_ context.Context, key string, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	set[member] = struct{}{}
	return nil
}

func (m *MemStore) SetMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.sets[key]
	out := make([]string, 0, len(set))
	for member := range set {
		out = append(out, member)
	}
	return out, nil
}

func (m *MemStore) SetCard(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.sets[key])), nil
}

func (m *MemStore) ListPush(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[key] = append(m.lists[key], append([]byte(nil), value...))
	return nil
}

func (m *MemStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.values, key)
		delete(m.sets, key)
		delete(m.lists, key)
		delete(m.expires, key)
	}
	return nil
}
