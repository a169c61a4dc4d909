package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type memEntry struct {
	data      []byte
	expiresAt time.Time
}

// Memory is an in-process Cache backed by expirable LRUs. It is used when
// no Redis is configured and in tests. Values are stored JSON-encoded so
// callers never share memory with the cache.
//
// Single-use entries live in their own LRU, so lookup traffic can never
// evict a pending linking token.
type Memory struct {
	mu     sync.Mutex
	lru    *expirable.LRU[string, memEntry]
	single *expirable.LRU[string, memEntry]
	now    func() time.Time
}

// NewMemory creates a cache holding at most size read-through entries and,
// separately, at most size single-use entries. maxTTL bounds the lifetime of
// any entry regardless of the ttl passed to Set or Put.
func NewMemory(size int, maxTTL time.Duration) *Memory {
	return &Memory{
		lru:    expirable.NewLRU[string, memEntry](size, nil, maxTTL),
		single: expirable.NewLRU[string, memEntry](size, nil, maxTTL),
		now:    time.Now,
	}
}

// SetClock overrides the time source used for per-entry expiry.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) Get(_ context.Context, key string, dst any) error {
	m.mu.Lock()
	e, ok := m.lookup(m.lru, key)
	m.mu.Unlock()
	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(e.data, dst)
}

func (m *Memory) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	return m.add(m.lru, key, value, ttl)
}

// Delete removes key whichever kind of entry it is.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lru.Remove(key)
	m.single.Remove(key)
	return nil
}

func (m *Memory) Put(_ context.Context, key string, value any, ttl time.Duration) error {
	return m.add(m.single, key, value, ttl)
}

func (m *Memory) Take(_ context.Context, key string, dst any) error {
	m.mu.Lock()
	e, ok := m.lookup(m.single, key)
	if ok {
		m.single.Remove(key)
	}
	m.mu.Unlock()
	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(e.data, dst)
}

func (m *Memory) add(lru *expirable.LRU[string, memEntry], key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	lru.Add(key, memEntry{data: b, expiresAt: m.now().Add(ttl)})
	return nil
}

// lookup must be called with mu held.
func (m *Memory) lookup(lru *expirable.LRU[string, memEntry], key string) (memEntry, bool) {
	e, ok := lru.Get(key)
	if !ok {
		return memEntry{}, false
	}
	if !m.now().Before(e.expiresAt) {
		lru.Remove(key)
		return memEntry{}, false
	}
	return e, true
}

var _ Cache = (*Memory)(nil)
