package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aali87/sfmc-scripting-sub000/internal/core"
)

// MemoryStore is an in-process implementation of core.CacheStore used by
// tests and single-shot runs that opt out of disk persistence. It carries
// no cross-process guarantees.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*core.CacheEntry
	maxAge  time.Duration
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore(maxAge time.Duration) *MemoryStore {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &MemoryStore{
		entries: make(map[string]*core.CacheEntry),
		maxAge:  maxAge,
	}
}

func memKey(cacheType, accountID string) string {
	return cacheType + "/" + accountID
}

// Read returns the stored entry, honoring the same expiry semantics as the
// file store.
func (s *MemoryStore) Read(ctx context.Context, cacheType, accountID string, opts core.ReadOptions) (*core.CacheEntry, error) {
	s.mu.RLock()
	entry, ok := s.entries[memKey(cacheType, accountID)]
	s.mu.RUnlock()
	if !ok {
		return nil, core.ErrCacheMiss
	}
	if opts.IgnoreExpiry {
		return entry, nil
	}
	maxAge := s.maxAge
	if opts.MaxAge > 0 {
		maxAge = opts.MaxAge
	}
	if time.Since(entry.CachedAt) > maxAge {
		return nil, core.ErrCacheExpired
	}
	return entry, nil
}

// Write stores a new entry, superseding any previous one.
func (s *MemoryStore) Write(ctx context.Context, cacheType, accountID string, data any, extra map[string]any) (bool, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return false, fmt.Errorf("failed to serialize cache payload: %w", err)
	}
	entry := &core.CacheEntry{
		CacheType: cacheType,
		AccountID: accountID,
		Data:      payload,
		CachedAt:  time.Now().UTC(),
		Extra:     extra,
	}
	s.mu.Lock()
	s.entries[memKey(cacheType, accountID)] = entry
	s.mu.Unlock()
	return true, nil
}

// Clear removes the entry, reporting whether one existed.
func (s *MemoryStore) Clear(ctx context.Context, cacheType, accountID string) (bool, error) {
	key := memKey(cacheType, accountID)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	delete(s.entries, key)
	return ok, nil
}

// Info describes the entry without decoding its payload.
func (s *MemoryStore) Info(ctx context.Context, cacheType, accountID string) (*core.CacheInfo, error) {
	s.mu.RLock()
	entry, ok := s.entries[memKey(cacheType, accountID)]
	s.mu.RUnlock()
	if !ok {
		return &core.CacheInfo{}, nil
	}
	info := &core.CacheInfo{Exists: true, Age: time.Since(entry.CachedAt)}
	if counts, ok := entry.Extra["itemCounts"].(map[string]int); ok {
		info.ItemCounts = counts
	}
	return info, nil
}
