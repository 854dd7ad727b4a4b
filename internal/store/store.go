// Package store holds loaded datasets and result objects between requests.
// The in-memory stores are bounded and expiring; the sqlite catalog persists
// data-source definitions, credentials, and settings across restarts.
package store

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned for lookups of missing or expired entries.
var ErrNotFound = errors.New("store: not found")

const (
	// DefaultTTL is how long an entry stays retrievable after its last write.
	DefaultTTL = time.Hour
	// DefaultMaxEntries bounds the store; the oldest entry is evicted first.
	DefaultMaxEntries = 100
)

type entry struct {
	value   any
	written time.Time
}

// Memory is a bounded, expiring in-memory key/value store. Safe for
// concurrent use.
type Memory struct {
	mu         sync.RWMutex
	entries    map[string]entry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// NewMemory returns a store with the given TTL and entry cap. Zero values
// select the defaults.
func NewMemory(ttl time.Duration, maxEntries int) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Memory{
		entries:    make(map[string]entry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Put stores value under id, overwriting any prior entry. When the store is
// full the oldest entry is evicted.
func (m *Memory) Put(id string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepLocked()
	if _, exists := m.entries[id]; !exists && len(m.entries) >= m.maxEntries {
		m.evictOldestLocked()
	}
	m.entries[id] = entry{value: value, written: m.now()}
}

// Get returns the stored value, or ErrNotFound when absent or expired.
func (m *Memory) Get(id string) (any, error) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()

	if !ok || m.now().Sub(e.written) > m.ttl {
		return nil, ErrNotFound
	}
	return e.value, nil
}

// Delete removes an entry; missing ids are a no-op.
func (m *Memory) Delete(id string) {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
}

// Keys returns the live entry ids, oldest first.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	m.sweepLocked()
	type aged struct {
		id string
		at time.Time
	}
	out := make([]aged, 0, len(m.entries))
	for id, e := range m.entries {
		out = append(out, aged{id, e.written})
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].at.Before(out[j].at) })
	ids := make([]string, len(out))
	for i, a := range out {
		ids[i] = a.id
	}
	return ids
}

// Len returns the live entry count.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	return len(m.entries)
}

func (m *Memory) sweepLocked() {
	cutoff := m.now().Add(-m.ttl)
	for id, e := range m.entries {
		if e.written.Before(cutoff) {
			delete(m.entries, id)
		}
	}
}

func (m *Memory) evictOldestLocked() {
	var oldest string
	var at time.Time
	for id, e := range m.entries {
		if oldest == "" || e.written.Before(at) {
			oldest, at = id, e.written
		}
	}
	if oldest != "" {
		delete(m.entries, oldest)
	}
}
