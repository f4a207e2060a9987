package cache

import (
	"context"
	"path"
	"sync"
	"time"
)

// sweepThreshold bounds the in-process map: once the entry count passes it, a
// write triggers a sweep of expired entries.
const sweepThreshold = 4096

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is the in-process fallback backend. Expiry is lazy: reads check
// timestamps and writes above the size threshold sweep out dead entries. It
// is not an LRU; entries live until their TTL passes.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns the cached bytes for key, if present and unexpired.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if s.now().After(entry.expiresAt) {
		delete(s.entries, key)
		return nil, false
	}
	return entry.value, true
}

// Set stores value under key with the given TTL.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) >= sweepThreshold {
		s.sweepLocked()
	}
	s.entries[key] = memoryEntry{value: value, expiresAt: s.now().Add(ttl)}
}

// Invalidate drops a single key.
func (s *MemoryStore) Invalidate(_ context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// InvalidatePattern drops every key matching a glob-like pattern.
func (s *MemoryStore) InvalidatePattern(_ context.Context, pattern string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.entries {
		if ok, err := path.Match(pattern, key); err == nil && ok {
			delete(s.entries, key)
		}
	}
}

// Len reports the current entry count, expired entries included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) sweepLocked() {
	now := s.now()
	for key, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
}
