package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aali87/sfmc-scripting-sub000/internal/core"
)

// envelope is the on-disk layout of one cache file.
type envelope struct {
	Metadata envelopeMeta    `json:"metadata"`
	Data     json.RawMessage `json:"data"`
}

type envelopeMeta struct {
	CachedAt   time.Time      `json:"cachedAt"`
	AccountID  string         `json:"accountId"`
	CacheType  string         `json:"cacheType"`
	ItemCounts map[string]int `json:"itemCounts,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// FileStore is a file-backed implementation of core.CacheStore, one JSON
// file per (cacheType, accountID), coordinated across OS processes by a
// sibling lock file. Readers never take the lock; the write-temp-then-rename
// protocol guarantees they only ever observe complete files.
type FileStore struct {
	dir    string
	maxAge time.Duration
	lock   LockConfig
	logger *zap.Logger
}

// NewFileStore creates the cache directory if needed.
func NewFileStore(dir string, maxAge time.Duration, lock LockConfig, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &FileStore{dir: dir, maxAge: maxAge, lock: lock, logger: logger}, nil
}

func (s *FileStore) path(cacheType, accountID string) string {
	name := fmt.Sprintf("%s_%s.json", sanitizeComponent(cacheType), sanitizeComponent(accountID))
	return filepath.Join(s.dir, name)
}

// sanitizeComponent keeps cache keys filesystem-safe.
func sanitizeComponent(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, s)
}

// Read parses whatever is currently at the target path. Parse failures and
// missing expiry metadata are cache misses, not errors.
func (s *FileStore) Read(ctx context.Context, cacheType, accountID string, opts core.ReadOptions) (*core.CacheEntry, error) {
	raw, err := os.ReadFile(s.path(cacheType, accountID))
	if err != nil {
		return nil, core.ErrCacheMiss
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.logger.Warn("Discarding unparseable cache file",
			zap.String("cache_type", cacheType),
			zap.String("account_id", accountID),
			zap.Error(err))
		return nil, core.ErrCacheMiss
	}
	if env.Metadata.CachedAt.IsZero() {
		return nil, core.ErrCacheMiss
	}

	entry := &core.CacheEntry{
		CacheType: env.Metadata.CacheType,
		AccountID: env.Metadata.AccountID,
		Data:      env.Data,
		CachedAt:  env.Metadata.CachedAt,
		Extra:     env.Metadata.Extra,
	}
	if opts.IgnoreExpiry {
		return entry, nil
	}
	maxAge := s.maxAge
	if opts.MaxAge > 0 {
		maxAge = opts.MaxAge
	}
	if time.Since(env.Metadata.CachedAt) > maxAge {
		return nil, core.ErrCacheExpired
	}
	return entry, nil
}

// Write serializes data under the cross-process lock and atomically renames
// it over the target path. Returns (false, nil) when the lock stayed
// contended; callers proceed uncached.
func (s *FileStore) Write(ctx context.Context, cacheType, accountID string, data any, extra map[string]any) (bool, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return false, fmt.Errorf("failed to serialize cache payload: %w", err)
	}
	counts, rest := hoistItemCounts(extra)
	env := envelope{
		Metadata: envelopeMeta{
			CachedAt:   time.Now().UTC(),
			AccountID:  accountID,
			CacheType:  cacheType,
			ItemCounts: counts,
			Extra:      rest,
		},
		Data: payload,
	}
	blob, err := json.Marshal(env)
	if err != nil {
		return false, fmt.Errorf("failed to serialize cache envelope: %w", err)
	}

	target := s.path(cacheType, accountID)
	err = withExclusiveLock(target, s.lock, func() error {
		return writeAtomic(target, blob)
	})
	if err == ErrLockTimeout {
		s.logger.Warn("Skipping cache write, lock contended",
			zap.String("cache_type", cacheType),
			zap.String("account_id", accountID))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// hoistItemCounts promotes an "itemCounts" entry from the extra metadata
// into the typed envelope field, returning the remaining metadata.
func hoistItemCounts(extra map[string]any) (map[string]int, map[string]any) {
	counts, ok := extra["itemCounts"].(map[string]int)
	if !ok {
		return nil, extra
	}
	rest := make(map[string]any, len(extra)-1)
	for k, v := range extra {
		if k != "itemCounts" {
			rest[k] = v
		}
	}
	if len(rest) == 0 {
		rest = nil
	}
	return counts, rest
}

// writeAtomic writes blob to a temp file in the target's directory and
// renames it into place so readers never see a partial file.
func writeAtomic(target string, blob []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp cache file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move cache file into place: %w", err)
	}
	return nil
}

// Clear removes the entry and any leftover lock file. Returns whether an
// entry existed.
func (s *FileStore) Clear(ctx context.Context, cacheType, accountID string) (bool, error) {
	target := s.path(cacheType, accountID)
	err := os.Remove(target)
	os.Remove(target + ".lock")
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to remove cache file: %w", err)
	}
	return true, nil
}

// Info describes the entry without decoding its payload.
func (s *FileStore) Info(ctx context.Context, cacheType, accountID string) (*core.CacheInfo, error) {
	raw, err := os.ReadFile(s.path(cacheType, accountID))
	if err != nil {
		return &core.CacheInfo{}, nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Metadata.CachedAt.IsZero() {
		return &core.CacheInfo{}, nil
	}
	return &core.CacheInfo{
		Exists:     true,
		Age:        time.Since(env.Metadata.CachedAt),
		ItemCounts: env.Metadata.ItemCounts,
	}, nil
}
