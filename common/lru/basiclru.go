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

// Package lru implements generic fixed-size caches, adapted from the
// teacher's own common/lru package. The pre-ranking engine's blob fetcher
// uses BasicLRU to cache fully-decoded, content-addressed payloads (spec
// §4.D): a blob_id never changes content, so caching it is always safe.
package lru

import "container/list"

// BasicLRU implements a fixed-size LRU cache of key/value pairs. It is not
// safe for concurrent use without an external lock.
type BasicLRU[K comparable, V any] struct {
	list     *list.List
	items    map[K]*list.Element
	capacity int
}

type entry[K any, V any] struct {
	key   K
	value V
}

// NewBasicLRU creates a new LRU cache with the given capacity.
func NewBasicLRU[K comparable, V any](capacity int) *BasicLRU[K, V] {
	if capacity <= 0 {
		capacity = 1
	}
	return &BasicLRU[K, V]{
		list:     list.New(),
		items:    make(map[K]*list.Element, capacity),
		capacity: capacity,
	}
}

// Add adds a value to the cache, evicting the oldest entry if necessary.
// It reports whether an eviction occurred.
func (c *BasicLRU[K, V]) Add(key K, value V) (evicted bool) {
	if el, ok := c.items[key]; ok {
		c.list.MoveToFront(el)
		el.Value.(*entry[K, V]).value = value
		return false
	}
	el := c.list.PushFront(&entry[K, V]{key, value})
	c.items[key] = el
	if c.list.Len() > c.capacity {
		c.removeOldest()
		return true
	}
	return false
}

// unboundedAdd inserts or updates key without triggering capacity-based
// eviction, for use by callers (SizeConstrainedCache) that enforce their
// own eviction policy on top of the same list/map structure.
func (c *BasicLRU[K, V]) unboundedAdd(key K, value V) {
	if el, ok := c.items[key]; ok {
		c.list.MoveToFront(el)
		el.Value.(*entry[K, V]).value = value
		return
	}
	el := c.list.PushFront(&entry[K, V]{key, value})
	c.items[key] = el
}

// Get retrieves a value from the cache, marking it most-recently used.
func (c *BasicLRU[K, V]) Get(key K) (V, bool) {
	if el, ok := c.items[key]; ok {
		c.list.MoveToFront(el)
		return el.Value.(*entry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Peek retrieves a value without updating recency.
func (c *BasicLRU[K, V]) Peek(key K) (V, bool) {
	if el, ok := c.items[key]; ok {
		return el.Value.(*entry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Contains reports whether key is present, without updating recency.
func (c *BasicLRU[K, V]) Contains(key K) bool {
	_, ok := c.items[key]
	return ok
}

// Remove deletes a key, reporting whether it was present.
func (c *BasicLRU[K, V]) Remove(key K) bool {
	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.list.Remove(el)
	delete(c.items, key)
	return true
}

// GetOldest returns the least-recently used entry without removing it.
func (c *BasicLRU[K, V]) GetOldest() (key K, value V, ok bool) {
	el := c.list.Back()
	if el == nil {
		return key, value, false
	}
	e := el.Value.(*entry[K, V])
	return e.key, e.value, true
}

// RemoveOldest removes the least-recently used entry.
func (c *BasicLRU[K, V]) RemoveOldest() (key K, value V, ok bool) {
	el := c.list.Back()
	if el == nil {
		return key, value, false
	}
	e := el.Value.(*entry[K, V])
	c.list.Remove(el)
	delete(c.items, e.key)
	return e.key, e.value, true
}

func (c *BasicLRU[K, V]) removeOldest() {
	el := c.list.Back()
	if el == nil {
		return
	}
	e := el.Value.(*entry[K, V])
	c.list.Remove(el)
	delete(c.items, e.key)
}

// Len returns the number of entries currently in the cache.
func (c *BasicLRU[K, V]) Len() int {
	return c.list.Len()
}

// Keys returns the keys in the cache, oldest first.
func (c *BasicLRU[K, V]) Keys() []K {
	keys := make([]K, 0, c.list.Len())
	for el := c.list.Back(); el != nil; el = el.Prev() {
		keys = append(keys, el.Value.(*entry[K, V]).key)
	}
	return keys
}

// Purge empties the cache.
func (c *BasicLRU[K, V]) Purge() {
	c.list.Init()
	c.items = make(map[K]*list.Element, c.capacity)
}
