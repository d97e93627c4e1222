package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"
)

// microcacheCapacity bounds the number of in-process entries; the least
// recently used entry is evicted once the bound is reached.
const microcacheCapacity = 4096

type microcacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// Microcache is a process-local cache with a single fixed TTL, used to
// absorb bursts of identical update checks without a network round trip.
// A TTL of zero or less disables it entirely.
//
// Expired entries are dropped lazily on lookup; there is no background
// sweeper. All methods are safe for concurrent use.
type Microcache[V any] struct {
	mu  sync.Mutex
	lru *lru.LRU[string, microcacheEntry[V]]
	ttl time.Duration
}

// NewMicrocache returns a Microcache whose entries expire ttl after Set.
func NewMicrocache[V any](ttl time.Duration) *Microcache[V] {
	m := &Microcache[V]{ttl: ttl}
	if ttl > 0 {
		// NewLRU only errors on a non-positive size.
		m.lru, _ = lru.NewLRU[string, microcacheEntry[V]](microcacheCapacity, nil)
	}
	return m
}

// Get returns the value stored under key, or false when the key is
// absent, expired, or the cache is disabled.
func (m *Microcache[V]) Get(key string) (V, bool) {
	var zero V
	if m.lru == nil {
		return zero, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.lru.Get(key)
	if !ok {
		return zero, false
	}
	if time.Now().After(entry.expiresAt) {
		m.lru.Remove(key)
		return zero, false
	}
	return entry.value, true
}

// Set stores value under key for the cache's TTL. It is a no-op when the
// cache is disabled.
func (m *Microcache[V]) Set(key string, value V) {
	if m.lru == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.lru.Add(key, microcacheEntry[V]{
		value:     value,
		expiresAt: time.Now().Add(m.ttl),
	})
}

// Len returns the number of entries currently held, expired or not.
func (m *Microcache[V]) Len() int {
	if m.lru == nil {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len()
}
