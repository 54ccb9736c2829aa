// Copyright 2022 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package lru

import "sync"

// SizeConstrainedCache is an LRU cache bounded by total byte size of its
// values rather than item count.
type SizeConstrainedCache[K comparable, V ~[]byte] struct {
	mu      sync.Mutex
	lru     *BasicLRU[K, V]
	maxSize uint64
	size    uint64
}

// NewSizeConstrainedCache creates a cache which can hold maxSize bytes of
// value data in total.
func NewSizeConstrainedCache[K comparable, V ~[]byte](maxSize uint64) *SizeConstrainedCache[K, V] {
	return &SizeConstrainedCache[K, V]{
		lru:     NewBasicLRU[K, V](1), // capacity is enforced by size, not item count
		maxSize: maxSize,
	}
}

// Add inserts value under key, evicting the oldest entries until the total
// size is within maxSize. Oversized single values are still stored; the
// cache simply evicts everything else to make room.
func (c *SizeConstrainedCache[K, V]) Add(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.lru.Peek(key); ok {
		c.size -= uint64(len(old))
	}
	c.lru.unboundedAdd(key, value)
	c.size += uint64(len(value))

	// Never evict the item just added, even if it alone exceeds maxSize:
	// a single oversized blob must still be servable from cache once
	// fetched, not re-fetched on every call.
	for c.size > c.maxSize && c.lru.Len() > 1 {
		_, v, ok := c.lru.RemoveOldest()
		if !ok {
			break
		}
		c.size -= uint64(len(v))
	}
}

// Get fetches a value, updating recency.
func (c *SizeConstrainedCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(key)
}
