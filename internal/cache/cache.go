package cache

import (
	"strings"
	"sync"
	"time"
)

// Cache memoizes expensive results for a bounded time. The interface
// mirrors a key-value store so the in-memory implementation can be
// swapped for an external one without touching callers.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
	Delete(key string)
	DeleteByPattern(pattern string)
}

type item struct {
	value     any
	expiresAt time.Time
}

// Memory is a mutex-guarded in-process Cache with lazy expiry.
type Memory struct {
	mu    sync.Mutex
	items map[string]item
	now   func() time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{
		items: make(map[string]item),
		now:   time.Now,
	}
}

// Get returns the value for key if present and not expired.
func (m *Memory) Get(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[key]
	if !ok {
		return nil, false
	}
	if m.now().After(it.expiresAt) {
		delete(m.items, key)
		return nil, false
	}
	return it.value, true
}

// Set stores value under key for ttl.
func (m *Memory) Set(key string, value any, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = item{value: value, expiresAt: m.now().Add(ttl)}
}

// Delete removes key if present.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
}

// DeleteByPattern removes every key matching pattern, where a trailing
// "*" matches any suffix and anything else is an exact match.
func (m *Memory) DeleteByPattern(pattern string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		for key := range m.items {
			if strings.HasPrefix(key, prefix) {
				delete(m.items, key)
			}
		}
		return
	}
	delete(m.items, pattern)
}
